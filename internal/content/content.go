// Package content declares the per-entity descriptors for the admin
// screens: which collection backs each screen, which fields are searched,
// which filters apply, the CSV export columns, and the write-side form
// rules. Everything else (state machine, pagination, export) is shared via
// the listing and forms packages.
package content

import (
	"context"
	"sort"
	"strings"

	"novasite/internal/cms"
	"novasite/internal/listing"
)

// ListConfig is the concrete listing configuration for CMS-backed screens.
type ListConfig = listing.Config[cms.Record]

// descriptors maps the entity slug used by admin URLs and CLI exports to
// its screen descriptor. Adding a screen means adding a line here plus its
// constructor below.
var descriptors = map[string]func(*cms.Client) ListConfig{
	"blogs":            Blogs,
	"webinars":         Webinars,
	"events":           Events,
	"jobs":             Jobs,
	"resources":        Resources,
	"inquiries":        Inquiries,
	"partner-requests": PartnerRequests,
	"subscribers":      Subscribers,
	"applications":     Applications,
	"users":            Users,
}

// Descriptor resolves an entity slug to its listing configuration.
func Descriptor(entity string, client *cms.Client) (ListConfig, bool) {
	build, ok := descriptors[entity]
	if !ok {
		return ListConfig{}, false
	}
	return build(client), true
}

// Entities returns the known entity slugs in sorted order.
func Entities() []string {
	names := make([]string, 0, len(descriptors))
	for name := range descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// field builds a column/search accessor for one record field.
func field(name string) func(cms.Record) string {
	return func(r cms.Record) string { return r.String(name) }
}

// fieldEquals builds a filter predicate matching the field exactly.
func fieldEquals(name string) func(cms.Record, string) bool {
	return func(r cms.Record, v string) bool {
		return strings.EqualFold(r.String(name), v)
	}
}

// fieldContains builds a filter predicate matching a substring,
// case-insensitively.
func fieldContains(name string) func(cms.Record, string) bool {
	return func(r cms.Record, v string) bool {
		return strings.Contains(strings.ToLower(r.String(name)), strings.ToLower(v))
	}
}

func searchFields(names ...string) []func(cms.Record) string {
	fns := make([]func(cms.Record) string, len(names))
	for i, n := range names {
		fns[i] = field(n)
	}
	return fns
}

func loadAll(client *cms.Client, collection string) func(context.Context) ([]cms.Record, error) {
	return func(ctx context.Context) ([]cms.Record, error) {
		return client.List(ctx, collection, nil)
	}
}

func deleteByRef(client *cms.Client, collection string) func(context.Context, string) error {
	return func(ctx context.Context, ref string) error {
		return client.Delete(ctx, collection, ref)
	}
}

// Blogs lists blog posts. The only screen besides webinars that re-sorts
// locally: newest date first, regardless of API order.
func Blogs(client *cms.Client) ListConfig {
	return ListConfig{
		Entity: "blogs",
		Search: searchFields("title", "author", "category"),
		Filters: map[string]func(cms.Record, string) bool{
			"category": fieldEquals("category"),
			"status":   fieldEquals("status"),
		},
		Columns: []listing.Column[cms.Record]{
			{Header: "Title", Value: field("title")},
			{Header: "Author", Value: field("author")},
			{Header: "Category", Value: field("category")},
			{Header: "Date", Value: field("date")},
			{Header: "Status", Value: field("status")},
		},
		Less: func(a, b cms.Record) bool {
			return a.Time("date").After(b.Time("date"))
		},
		Load:   loadAll(client, cms.CollectionBlogs),
		Delete: deleteByRef(client, cms.CollectionBlogs),
	}
}

// Webinars lists webinar records, newest first by scheduled date.
func Webinars(client *cms.Client) ListConfig {
	return ListConfig{
		Entity: "webinars",
		Search: searchFields("title", "speaker"),
		Filters: map[string]func(cms.Record, string) bool{
			"status": fieldEquals("status"),
		},
		Columns: []listing.Column[cms.Record]{
			{Header: "Title", Value: field("title")},
			{Header: "Speaker", Value: field("speaker")},
			{Header: "Date", Value: field("date")},
			{Header: "Status", Value: field("status")},
		},
		Less: func(a, b cms.Record) bool {
			return a.Time("date").After(b.Time("date"))
		},
		Load:   loadAll(client, cms.CollectionWebinars),
		Delete: deleteByRef(client, cms.CollectionWebinars),
	}
}

// Events lists company events.
func Events(client *cms.Client) ListConfig {
	return ListConfig{
		Entity: "events",
		Search: searchFields("title", "location"),
		Filters: map[string]func(cms.Record, string) bool{
			"type": fieldEquals("type"),
		},
		Columns: []listing.Column[cms.Record]{
			{Header: "Title", Value: field("title")},
			{Header: "Location", Value: field("location")},
			{Header: "Date", Value: field("date")},
			{Header: "Type", Value: field("type")},
		},
		Load:   loadAll(client, cms.CollectionEvents),
		Delete: deleteByRef(client, cms.CollectionEvents),
	}
}

// Jobs lists open positions.
func Jobs(client *cms.Client) ListConfig {
	return ListConfig{
		Entity: "jobs",
		Search: searchFields("title", "department", "location"),
		Filters: map[string]func(cms.Record, string) bool{
			"department": fieldEquals("department"),
			"type":       fieldEquals("type"),
		},
		Columns: []listing.Column[cms.Record]{
			{Header: "Title", Value: field("title")},
			{Header: "Department", Value: field("department")},
			{Header: "Location", Value: field("location")},
			{Header: "Type", Value: field("type")},
		},
		Load:   loadAll(client, cms.CollectionJobs),
		Delete: deleteByRef(client, cms.CollectionJobs),
	}
}

// Resources lists downloadable assets (whitepapers, guides).
func Resources(client *cms.Client) ListConfig {
	return ListConfig{
		Entity: "resources",
		Search: searchFields("title", "description"),
		Filters: map[string]func(cms.Record, string) bool{
			"type": fieldEquals("type"),
		},
		Columns: []listing.Column[cms.Record]{
			{Header: "Title", Value: field("title")},
			{Header: "Type", Value: field("type")},
			{Header: "Downloads", Value: field("downloads")},
		},
		Load:   loadAll(client, cms.CollectionResources),
		Delete: deleteByRef(client, cms.CollectionResources),
	}
}

// Inquiries lists contact-form submissions.
func Inquiries(client *cms.Client) ListConfig {
	return ListConfig{
		Entity: "inquiries",
		Search: searchFields("name", "email", "subject"),
		Filters: map[string]func(cms.Record, string) bool{
			"subject": fieldContains("subject"),
		},
		Columns: []listing.Column[cms.Record]{
			{Header: "Name", Value: field("name")},
			{Header: "Email", Value: field("email")},
			{Header: "Subject", Value: field("subject")},
			{Header: "Message", Value: field("message")},
		},
		Load:   loadAll(client, cms.CollectionInquiries),
		Delete: deleteByRef(client, cms.CollectionInquiries),
	}
}

// PartnerRequests lists partner-program applications.
func PartnerRequests(client *cms.Client) ListConfig {
	return ListConfig{
		Entity: "partner-requests",
		Search: searchFields("company", "name", "email"),
		Filters: map[string]func(cms.Record, string) bool{
			"country": fieldEquals("country"),
		},
		Columns: []listing.Column[cms.Record]{
			{Header: "Company", Value: field("company")},
			{Header: "Name", Value: field("name")},
			{Header: "Email", Value: field("email")},
			{Header: "Country", Value: field("country")},
		},
		Load:   loadAll(client, cms.CollectionPartnerRequests),
		Delete: deleteByRef(client, cms.CollectionPartnerRequests),
	}
}

// Subscribers lists newsletter subscriptions.
func Subscribers(client *cms.Client) ListConfig {
	return ListConfig{
		Entity: "subscribers",
		Search: searchFields("email"),
		Columns: []listing.Column[cms.Record]{
			{Header: "Email", Value: field("email")},
			{Header: "Subscribed At", Value: field("createdAt")},
		},
		Load:   loadAll(client, cms.CollectionSubscribers),
		Delete: deleteByRef(client, cms.CollectionSubscribers),
	}
}

// Applications lists job applications.
func Applications(client *cms.Client) ListConfig {
	return ListConfig{
		Entity: "applications",
		Search: searchFields("name", "email", "position"),
		Filters: map[string]func(cms.Record, string) bool{
			"position": fieldEquals("position"),
		},
		Columns: []listing.Column[cms.Record]{
			{Header: "Name", Value: field("name")},
			{Header: "Email", Value: field("email")},
			{Header: "Position", Value: field("position")},
			{Header: "Submitted", Value: field("createdAt")},
		},
		Load:   loadAll(client, cms.CollectionApplications),
		Delete: deleteByRef(client, cms.CollectionApplications),
	}
}

// Users lists admin accounts.
func Users(client *cms.Client) ListConfig {
	return ListConfig{
		Entity: "users",
		Search: searchFields("username", "email"),
		Columns: []listing.Column[cms.Record]{
			{Header: "Username", Value: field("username")},
			{Header: "Email", Value: field("email")},
		},
		Load:   loadAll(client, cms.CollectionUsers),
		Delete: deleteByRef(client, cms.CollectionUsers),
	}
}
