package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "novasite/api/v1"
	"novasite/internal/config"
	"novasite/internal/http"
	"novasite/internal/http/middleware"
	"novasite/internal/identity"
)

// publicCORSConfig is shared by the public tracking endpoints: pages are
// served from the same origin, but the beacon may arrive from cached or
// embedded contexts.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// SetupSession configures session management on the server.
func SetupSession(srv *cartridge.Server) {
	cfg := config.GetConfig()
	sessionMgr := cartridge.NewSessionManager(cartridge.SessionConfig{
		CookieName: cfg.AppName + "_session",
		Secret:     cfg.GetSessionSecret(),
		TTL:        time.Duration(cfg.GetLoginSessionTimeout()) * time.Second,
		Secure:     cfg.IsProduction(),
		LoginPath:  "/login",
	})
	srv.SetSession(sessionMgr)
}

// NewIdentityStore builds the visitor/session cookie store from config.
func NewIdentityStore() *identity.Store {
	cfg := config.GetConfig()
	return identity.NewStore(
		cfg.PrivateKey,
		time.Duration(cfg.VisitorCookieMaxAgeDays)*24*time.Hour,
		time.Duration(cfg.SessionCookieMaxAgeHours)*time.Hour,
		cfg.IsProduction(),
	)
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	SetupSession(srv)
	MountAppRoutesWithoutSession(srv)
}

// MountAppRoutesWithoutSession mounts routes without setting up session.
func MountAppRoutesWithoutSession(srv *cartridge.Server) {
	cfg := config.GetConfig()
	sessionMgr := srv.Session()
	logger := srv.GetLogger()
	store := NewIdentityStore()

	// Rate limiting only applies in production; in development and test it
	// would interfere with iteration and fixtures.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// Public tracking API: 70 requests per minute per IP covers legitimate
	// navigation while containing abuse.
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Stricter limit on auth endpoints against brute force.
	authRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(10),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	// Public pages buffer a page view on every render.
	publicPageConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{
			middleware.TrackVisits(store, srv.GetDBManager(), logger, v1.ClientIP),
		},
	}

	// Public form posts share the public rate limiter.
	publicFormConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
	}

	adminConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{
			sessionMgr.Middleware(),
		},
	}

	trackingHandler := v1.NewHandler(store, http.SiteClient(logger))

	// === PUBLIC PAGES ===
	srv.Get("/", http.HomeIndexAction, publicPageConfig)
	srv.Get("/products", http.ProductsIndexAction, publicPageConfig)
	srv.Get("/blog", http.BlogIndexAction, publicPageConfig)
	srv.Get("/blog/:ref", http.BlogShowAction, publicPageConfig)
	srv.Get("/resources", http.ResourcesIndexAction, publicPageConfig)
	srv.Get("/resources/:slug/download", http.ResourceDownloadAction, publicPageConfig)
	srv.Get("/careers", http.CareersIndexAction, publicPageConfig)
	srv.Get("/webinars", http.WebinarsIndexAction, publicPageConfig)
	srv.Get("/events", http.EventsIndexAction, publicPageConfig)
	srv.Get("/contact", http.ContactIndexAction, publicPageConfig)
	srv.Get("/partners", http.PartnersIndexAction, publicPageConfig)

	// === PUBLIC FORMS ===
	srv.Post("/contact", http.ContactSubmitAction, publicFormConfig)
	srv.Post("/partners", http.PartnerSubmitAction, publicFormConfig)
	srv.Post("/careers/apply", http.CareersApplyAction, publicFormConfig)
	srv.Post("/newsletter/subscribe", http.NewsletterSubscribeAction, publicFormConfig)
	srv.Get("/newsletter/unsubscribe", http.NewsletterUnsubscribeAction, publicFormConfig)
	srv.Post("/consent", http.ConsentAction(store))

	// === HEALTH ===
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	// === PUBLIC TRACKING API ===
	srv.Post("/x/api/v1/page-views", trackingHandler.TrackPageViewAction, publicAPIConfig)
	srv.Options("/x/api/v1/page-views", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)
	srv.Post("/x/api/v1/page-views/flush", trackingHandler.FlushPageViewsAction, publicAPIConfig)
	srv.Options("/x/api/v1/page-views/flush", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)

	// === CONTENT SERVICE HOOKS ===
	srv.Post("/hooks/cms/publish", http.CMSPublishHookAction, publicFormConfig)

	// === AUTHENTICATION ===
	loginConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{authRateLimiter},
	}
	srv.Get("/login", http.RenderLoginAction)
	srv.Post("/login", http.ProcessLoginAction, loginConfig)
	srv.Post("/logout", http.LogoutAction)

	// === PROTECTED ADMIN ROUTES ===
	srv.Get("/admin", http.AdminIndexAction, adminConfig)

	srv.Get("/admin/visitors", http.VisitorsIndexAction, adminConfig)
	srv.Get("/admin/visitors/export.csv", http.VisitorsExportAction, adminConfig)

	srv.Get("/admin/content/:entity", http.ContentListAction, adminConfig)
	srv.Get("/admin/content/:entity/export.csv", http.ContentExportAction, adminConfig)
	srv.Get("/admin/content/:entity/new", http.ContentNewAction, adminConfig)
	srv.Post("/admin/content/:entity", http.ContentSaveAction, adminConfig)
	srv.Get("/admin/content/:entity/:ref/edit", http.ContentEditAction, adminConfig)
	srv.Post("/admin/content/:entity/:ref", http.ContentSaveAction, adminConfig)
	srv.Delete("/admin/content/:entity/:ref", http.ContentDeleteAction, adminConfig)
	srv.Post("/admin/content/:entity/:ref/delete", http.ContentDeleteAction, adminConfig)
}
