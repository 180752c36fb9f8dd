package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor creates a Provider instance. Implementations register
// themselves with the registry using Register().
type Constructor func() (Provider, error)

// registry maps provider ids to their constructors.
var (
	registry      = make(map[string]Constructor)
	registryMutex sync.RWMutex
)

// Register registers a provider constructor under its id.
// This is called from init() functions in implementation packages.
//
// Example:
//
//	func init() {
//	    provider.Register(ProviderID, func() (provider.Provider, error) {
//	        return New(), nil
//	    })
//	}
func Register(id string, constructor Constructor) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if constructor == nil {
		panic(fmt.Sprintf("provider: Register constructor is nil for id %s", id))
	}
	if _, exists := registry[id]; exists {
		panic(fmt.Sprintf("provider: Register called twice for id %s", id))
	}
	registry[id] = constructor
}

// Resolve creates the provider registered under id.
// Returns ErrNotRegistered when the id is unknown.
func Resolve(id string) (Provider, error) {
	registryMutex.RLock()
	constructor := registry[id]
	registryMutex.RUnlock()

	if constructor == nil {
		return nil, fmt.Errorf("provider %q: %w", id, ErrNotRegistered)
	}
	return constructor()
}

// IsRegistered returns true if a constructor is registered for the id.
func IsRegistered(id string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, exists := registry[id]
	return exists
}

// RegisteredIDs returns all registered provider ids, sorted.
func RegisteredIDs() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UnregisterAll clears all registered constructors.
// This is primarily useful for testing.
func UnregisterAll() {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	registry = make(map[string]Constructor)
}

// Set resolves a fixed set of provider ids once at startup, so later
// lookups never consult the registry.
type Set struct {
	providers map[string]Provider
}

// NewSet resolves every id and returns the immutable set.
func NewSet(ids ...string) (*Set, error) {
	providers := make(map[string]Provider, len(ids))
	for _, id := range ids {
		p, err := Resolve(id)
		if err != nil {
			return nil, err
		}
		providers[id] = p
	}
	return &Set{providers: providers}, nil
}

// NewSetOf builds a set from already constructed providers, bypassing
// the registry. Used when providers carry instance configuration such
// as credentials.
func NewSetOf(providers ...Provider) *Set {
	set := &Set{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		set.providers[p.ID()] = p
	}
	return set
}

// Get returns the provider for id, or ErrNotRegistered if the set was
// built without it.
func (s *Set) Get(id string) (Provider, error) {
	p, ok := s.providers[id]
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", id, ErrNotRegistered)
	}
	return p, nil
}
