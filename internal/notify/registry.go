package notify

import (
	"sort"

	"github.com/gosuda/evidra/internal/messenger"
)

// Registry is a simple map-based MessengerRegistry.
type Registry struct {
	messengers map[string]messenger.Messenger
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		messengers: make(map[string]messenger.Messenger),
	}
}

// Register adds a messenger under its own platform name.
func (r *Registry) Register(m messenger.Messenger) {
	r.messengers[m.Platform()] = m
}

// Get returns the messenger for the given platform, or false if not registered.
func (r *Registry) Get(platform string) (messenger.Messenger, bool) {
	m, ok := r.messengers[platform]
	return m, ok
}

// Platforms lists the registered platform names in sorted order.
func (r *Registry) Platforms() []string {
	out := make([]string, 0, len(r.messengers))
	for p := range r.messengers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
