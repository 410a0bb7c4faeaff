package api

import (
	"sync"

	"github.com/ztorgb/server/internal/service"
)

// FieldRegistry holds field services for all configured and uploaded fields.
type FieldRegistry struct {
	mu           sync.RWMutex
	base         service.FieldServiceConfig
	services     map[string]*service.FieldService
	defaultField string
	fieldOrder   []string
	title        string
}

// NewFieldRegistry creates a new field registry. base supplies the cache,
// renderer, metrics and logger shared by all field services.
func NewFieldRegistry(base service.FieldServiceConfig, title string) *FieldRegistry {
	return &FieldRegistry{
		base:     base,
		services: make(map[string]*service.FieldService),
		title:    title,
	}
}

// Add creates and registers a field service. The first field added becomes
// the default.
func (r *FieldRegistry) Add(fieldID, source string, load service.Loader) *service.FieldService {
	cfg := r.base
	cfg.ID = fieldID
	cfg.Source = source
	cfg.Load = load
	svc := service.NewFieldService(cfg)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[fieldID]; !ok {
		r.fieldOrder = append(r.fieldOrder, fieldID)
	}
	r.services[fieldID] = svc
	if r.defaultField == "" {
		r.defaultField = fieldID
	}
	return svc
}

// Remove unregisters a field. It reports whether the field was present.
func (r *FieldRegistry) Remove(fieldID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[fieldID]; !ok {
		return false
	}
	delete(r.services, fieldID)
	for i, id := range r.fieldOrder {
		if id == fieldID {
			r.fieldOrder = append(r.fieldOrder[:i:i], r.fieldOrder[i+1:]...)
			break
		}
	}
	if r.defaultField == fieldID {
		r.defaultField = ""
		if len(r.fieldOrder) > 0 {
			r.defaultField = r.fieldOrder[0]
		}
	}
	return true
}

// Get returns the field service for a field, or nil if not found.
func (r *FieldRegistry) Get(fieldID string) *service.FieldService {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.services[fieldID]
}

// Default returns the default field's service.
func (r *FieldRegistry) Default() *service.FieldService {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.services[r.defaultField]
}

// DefaultFieldID returns the default field ID.
func (r *FieldRegistry) DefaultFieldID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultField
}

// FieldIDs returns all field IDs in registration order.
func (r *FieldRegistry) FieldIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.fieldOrder...)
}

// Title returns the configured site title.
func (r *FieldRegistry) Title() string {
	if r.title != "" {
		return r.title
	}
	return "ZtoRGB"
}

// Fields returns info for all registered fields in registration order.
func (r *FieldRegistry) Fields() []service.FieldInfo {
	ids := r.FieldIDs()
	infos := make([]service.FieldInfo, 0, len(ids))
	for _, id := range ids {
		if svc := r.Get(id); svc != nil {
			infos = append(infos, svc.Info())
		}
	}
	return infos
}
