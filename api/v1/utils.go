package v1

import (
	"net"
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// proxy headers consulted when X-Forwarded-For is absent, in order
var singleIPHeaders = []string{"X-Real-IP", "CF-Connecting-IP", "True-Client-IP", "X-Client-IP"}

// getClientIP resolves the caller's public address behind reverse proxies.
// Private and loopback candidates are skipped so that a misconfigured proxy
// chain does not attribute every visit to the proxy itself.
func getClientIP(c *fiber.Ctx) string {
	if ip := selectPreferredIP(strings.Split(c.Get("X-Forwarded-For"), ",")); ip != "" {
		return ip
	}

	for _, header := range singleIPHeaders {
		if ip := selectPreferredIP([]string{c.Get(header)}); ip != "" {
			return ip
		}
	}

	if ip := selectPreferredIP(parseForwardedHeader(c.Get("Forwarded"))); ip != "" {
		return ip
	}

	candidates := []string{c.Context().RemoteAddr().String(), c.IP()}
	if ip := selectPreferredIP(candidates); ip != "" {
		return ip
	}

	return "127.0.0.1"
}

// ClientIP exposes the proxied-address resolution to other packages.
func ClientIP(c *fiber.Ctx) string {
	return getClientIP(c)
}

// selectPreferredIP picks the first public IPv4 from the candidates,
// falling back to the first public IPv6.
func selectPreferredIP(values []string) string {
	var ipv6Fallback string

	for _, raw := range values {
		clean, parsed := normalizeIP(raw)
		if parsed == nil || isPrivateIP(parsed) {
			continue
		}
		if parsed.To4() != nil {
			return clean
		}
		if ipv6Fallback == "" {
			ipv6Fallback = clean
		}
	}

	return ipv6Fallback
}

// normalizeIP cleans one header candidate into a canonical address: strips
// whitespace, quotes, brackets, ports, zone identifiers, and unmaps
// 4-in-6 addresses.
func normalizeIP(raw string) (string, net.IP) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"")
	if clean == "" {
		return "", nil
	}

	if percent := strings.Index(clean, "%"); percent != -1 {
		clean = clean[:percent]
	}

	var addr netip.Addr
	if addrPort, err := netip.ParseAddrPort(clean); err == nil {
		addr = addrPort.Addr()
	} else if parsed, err := netip.ParseAddr(strings.Trim(clean, "[]")); err == nil {
		addr = parsed
	} else if host, _, err := net.SplitHostPort(clean); err == nil {
		return normalizeIP(host)
	} else {
		return "", nil
	}

	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	return addr.String(), net.ParseIP(addr.String())
}

func isPrivateIP(ip net.IP) bool {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return false
	}
	addr = addr.Unmap()
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsUnspecified()
}

// parseForwardedHeader extracts the for= members of an RFC 7239 header.
func parseForwardedHeader(header string) []string {
	var candidates []string

	for _, entry := range strings.Split(header, ",") {
		for _, part := range strings.Split(entry, ";") {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(strings.ToLower(part), "for=") {
				candidates = append(candidates, strings.TrimPrefix(part, "for="))
			}
		}
	}

	return candidates
}
