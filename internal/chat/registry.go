package chat

import (
	"strings"
	"sync"
)

// Registry tracks the display names claimed process-wide. A name is held by
// at most one owner, and an owner holds at most one name.
type Registry struct {
	mu      sync.Mutex
	byName  map[string]string
	byOwner map[string]string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]string),
		byOwner: make(map[string]string),
	}
}

// Claim gives name to owner. The owner's previous name, if different, is
// released in the same critical section and returned. Claiming the name the
// owner already holds succeeds without change.
func (r *Registry) Claim(owner, name string) (released string, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errInvalidUsername
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, ok := r.byName[name]; ok {
		if holder != owner {
			return "", errUsernameTaken
		}
		return "", nil
	}

	if prev, ok := r.byOwner[owner]; ok {
		delete(r.byName, prev)
		released = prev
	}
	r.byName[name] = owner
	r.byOwner[owner] = name
	return released, nil
}

// Release frees whatever name owner holds and returns it. It is a no-op for
// owners holding nothing.
func (r *Registry) Release(owner string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.byOwner[owner]
	if !ok {
		return ""
	}
	delete(r.byOwner, owner)
	delete(r.byName, name)
	return name
}

// Holder reports which owner holds name.
func (r *Registry) Holder(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.byName[name]
	return owner, ok
}

// Len returns the number of claimed names.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byName)
}
