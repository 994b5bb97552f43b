// Package router picks the Discord webhook a relayed message is posted to.
package router

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Route binds a tag to a destination endpoint. An empty endpoint means the
// tag is recognised but delivered to the default.
type Route struct {
	Tag      string
	Endpoint string
}

type compiledRoute struct {
	Route
	pattern *regexp.Regexp
}

// Router resolves message text to an endpoint. Routes are scanned in
// declared order and the first tag present wins.
type Router struct {
	mu              sync.RWMutex
	routes          []compiledRoute
	defaultEndpoint string
}

// New compiles the routing table.
func New(routes []Route, defaultEndpoint string) (*Router, error) {
	r := &Router{}
	if err := r.Update(routes, defaultEndpoint); err != nil {
		return nil, err
	}
	return r, nil
}

// Update atomically swaps the routing table, preserving order.
func (r *Router) Update(routes []Route, defaultEndpoint string) error {
	compiled := make([]compiledRoute, 0, len(routes))
	seen := make(map[string]bool, len(routes))

	for _, route := range routes {
		tag := strings.TrimPrefix(strings.TrimSpace(route.Tag), "#")
		if tag == "" {
			return fmt.Errorf("empty routing tag")
		}
		key := strings.ToUpper(tag)
		if seen[key] {
			return fmt.Errorf("duplicate routing tag: %s", tag)
		}
		seen[key] = true

		compiled = append(compiled, compiledRoute{
			Route:   Route{Tag: tag, Endpoint: strings.TrimSpace(route.Endpoint)},
			pattern: tagPattern(tag),
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = compiled
	r.defaultEndpoint = strings.TrimSpace(defaultEndpoint)
	return nil
}

// Resolve returns the endpoint for text and the tag that selected it. The
// tag is empty when the default endpoint was used; ok is false when there
// is nowhere to deliver.
func (r *Router) Resolve(text string) (endpoint, tag string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, route := range r.routes {
		if !route.pattern.MatchString(text) {
			continue
		}
		if route.Endpoint != "" {
			return route.Endpoint, route.Tag, true
		}
		break
	}

	if r.defaultEndpoint != "" {
		return r.defaultEndpoint, "", true
	}
	return "", "", false
}

// Endpoints lists every distinct configured endpoint, default last.
func (r *Router) Endpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, route := range r.routes {
		if route.Endpoint != "" && !seen[route.Endpoint] {
			seen[route.Endpoint] = true
			out = append(out, route.Endpoint)
		}
	}
	if r.defaultEndpoint != "" && !seen[r.defaultEndpoint] {
		out = append(out, r.defaultEndpoint)
	}
	return out
}

// tagPattern matches "#TAG" or a standalone "TAG", case-insensitively, as a
// whole token.
func tagPattern(tag string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_#])#?` + regexp.QuoteMeta(tag) + `(?:[^\p{L}\p{N}_]|$)`)
}
