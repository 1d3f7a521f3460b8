// Package channels maps alert channel names to Slack webhook URLs. The
// mapping can be swapped at runtime when configuration reloads.
package channels

import (
	"maps"
	"slices"
	"strings"
	"sync"
)

// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	webhooks map[string]string
}

// NewRegistry returns a Registry holding webhooks.
func NewRegistry(webhooks map[string]string) *Registry {
	r := &Registry{}
	r.Replace(webhooks)
	return r
}

// Replace swaps the whole mapping. Names are matched case-insensitively and
// entries with an empty URL are dropped.
func (r *Registry) Replace(webhooks map[string]string) {
	next := make(map[string]string, len(webhooks))
	for name, url := range webhooks {
		if url = strings.TrimSpace(url); url != "" {
			next[strings.ToLower(name)] = url
		}
	}
	r.mu.Lock()
	r.webhooks = next
	r.mu.Unlock()
}

// Lookup returns the webhook for channel.
func (r *Registry) Lookup(channel string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	url, ok := r.webhooks[strings.ToLower(channel)]
	return url, ok
}

// Names returns the configured channel names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.webhooks))
}
