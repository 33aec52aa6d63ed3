package dispatch

import (
	"sort"
	"strings"

	"rocketwatch/internal/event"
)

// DefaultRoute is the routing key used when no prefix matches.
const DefaultRoute = "default"

// Router maps events to destination channels by prefix.
type Router struct {
	prefixes []string
	routes   map[string][]string
}

// NewRouter builds a router from a prefix → channels table. The key
// "default" is the fallback.
func NewRouter(table map[string][]string) *Router {
	r := &Router{routes: make(map[string][]string, len(table))}
	for prefix, channels := range table {
		if len(channels) == 0 {
			continue
		}
		r.routes[prefix] = append([]string(nil), channels...)
		if prefix != DefaultRoute {
			r.prefixes = append(r.prefixes, prefix)
		}
	}
	// Longest first so the first hit is the longest match.
	sort.Slice(r.prefixes, func(i, j int) bool {
		if len(r.prefixes[i]) != len(r.prefixes[j]) {
			return len(r.prefixes[i]) > len(r.prefixes[j])
		}
		return r.prefixes[i] < r.prefixes[j]
	})
	return r
}

// Destinations returns the channels for e: the longest prefix matching the
// event name, then the longest matching the topic, then the default.
func (r *Router) Destinations(e *event.Event) []string {
	if channels, ok := r.match(e.Name); ok {
		return channels
	}
	if channels, ok := r.match(e.Topic); ok {
		return channels
	}
	return r.routes[DefaultRoute]
}

func (r *Router) match(key string) ([]string, bool) {
	if key == "" {
		return nil, false
	}
	for _, prefix := range r.prefixes {
		if strings.HasPrefix(key, prefix) {
			return r.routes[prefix], true
		}
	}
	return nil, false
}
