package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ztorgb/server/pkg/colormap"
)

// ErrUnknownProfile is returned when a profile name is not registered.
var ErrUnknownProfile = errors.New("unknown profile")

// ProfileInfo describes a registered profile for API responses.
type ProfileInfo struct {
	Name        string     `json:"name"`
	Weights     [3]float64 `json:"weights"`
	Gamma       float64    `json:"gamma"`
	ChromaLimit float64    `json:"chroma_limit"`
	Default     bool       `json:"default"`
}

// ProfileRegistry holds named color profiles.
type ProfileRegistry struct {
	mu          sync.RWMutex
	profiles    map[string]colormap.Profile
	defaultName string
}

// NewProfileRegistry creates a registry preloaded with the built-in sRGB
// profiles. An empty defaultName selects "srgb".
func NewProfileRegistry(defaultName string) *ProfileRegistry {
	r := &ProfileRegistry{
		profiles:    colormap.Profiles(),
		defaultName: "srgb",
	}
	if name := normalizeProfileName(defaultName); name != "" {
		r.defaultName = name
	}
	return r
}

// Register validates and adds a profile, replacing any profile of the same
// name.
func (r *ProfileRegistry) Register(name string, weights [3]float64, gamma float64) error {
	name = normalizeProfileName(name)
	if name == "" {
		return fmt.Errorf("%w: empty profile name", colormap.ErrInvalidProfile)
	}

	p, err := colormap.NewProfile(weights, gamma)
	if err != nil {
		return fmt.Errorf("profile %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[name] = p
	return nil
}

// Lookup returns the named profile. An empty name selects the default.
func (r *ProfileRegistry) Lookup(name string) (string, colormap.Profile, error) {
	name = normalizeProfileName(name)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaultName
	}
	p, ok := r.profiles[name]
	if !ok {
		return "", colormap.Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return name, p, nil
}

// DefaultName returns the name of the default profile.
func (r *ProfileRegistry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// Names returns all registered profile names in sorted order.
func (r *ProfileRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Infos describes all registered profiles in name order.
func (r *ProfileRegistry) Infos() []ProfileInfo {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ProfileInfo, 0, len(names))
	for _, name := range names {
		p := r.profiles[name]
		infos = append(infos, ProfileInfo{
			Name:        name,
			Weights:     p.Weights(),
			Gamma:       p.Gamma(),
			ChromaLimit: p.Transform().ChromaLimit,
			Default:     name == r.defaultName,
		})
	}
	return infos
}

func normalizeProfileName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
