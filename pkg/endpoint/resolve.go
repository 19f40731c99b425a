// Package endpoint builds the ordered list of synthesis endpoints to try.
package endpoint

import (
	"net"
	"net/url"
	"slices"
	"strings"
)

// DefaultPath is the synthesis route served next to the article.
const DefaultPath = "/api/blog-tts"

// DefaultDevPorts are the ports a local front-end dev server listens on.
var DefaultDevPorts = []string{"5173", "5174"}

// Config selects which candidates are produced.
type Config struct {
	Override     string
	UseDevProxy  bool
	DevProxyPort string
	DevPorts     []string
	Fallbacks    []string
}

// Runtime describes where the article is being read from.
type Runtime struct {
	Origin string // scheme://host[:port], empty when unknown
}

// Resolve returns candidate endpoints in priority order: the override, the
// local dev proxy when running on a dev port, the origin's own route when not
// local, then the static fallbacks. Blanks are dropped and the first
// occurrence of a duplicate wins. It never fails.
func Resolve(cfg Config, rt Runtime) []string {
	var candidates []string
	candidates = append(candidates, cfg.Override)

	origin := strings.TrimRight(strings.TrimSpace(rt.Origin), "/")
	if origin != "" {
		host, port := splitOrigin(origin)
		local := isLoopback(host)
		if local && cfg.UseDevProxy && slices.Contains(devPorts(cfg), port) && cfg.DevProxyPort != "" {
			candidates = append(candidates, "http://localhost:"+cfg.DevProxyPort+DefaultPath)
		}
		if !local {
			candidates = append(candidates, origin+DefaultPath)
		}
	}

	fallbacks := cfg.Fallbacks
	if len(fallbacks) == 0 {
		fallbacks = []string{DefaultPath}
	}
	candidates = append(candidates, fallbacks...)

	return dedupe(candidates)
}

// Absolute resolves a relative candidate against origin. Absolute candidates
// are returned unchanged; relative ones without an origin are returned as-is.
func Absolute(candidate, origin string) string {
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || origin == "" {
		return candidate
	}
	base, err := url.Parse(origin)
	if err != nil {
		return candidate
	}
	return base.ResolveReference(u).String()
}

// OriginOf returns scheme://host[:port] of raw, or "" when raw is not an absolute URL.
func OriginOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func splitOrigin(origin string) (host, port string) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", ""
	}
	return u.Hostname(), u.Port()
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func devPorts(cfg Config) []string {
	if len(cfg.DevPorts) > 0 {
		return cfg.DevPorts
	}
	return DefaultDevPorts
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
