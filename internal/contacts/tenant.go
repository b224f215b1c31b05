package contacts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// TenantResolver maps the WhatsApp business number that received a message
// to the owning clinic.
type TenantResolver interface {
	ResolveClinic(ctx context.Context, phoneNumberID string) (uuid.UUID, error)
}

// StaticTenantResolver resolves from an in-memory map with an optional
// fallback clinic.
type StaticTenantResolver struct {
	mapping  map[string]uuid.UUID
	fallback uuid.UUID
}

// NewStaticTenantResolver constructs a resolver. Keys are normalized to digits.
func NewStaticTenantResolver(mapping map[string]uuid.UUID, fallback uuid.UUID) *StaticTenantResolver {
	normalized := make(map[string]uuid.UUID, len(mapping))
	for raw, clinic := range mapping {
		key := NormalizePhone(raw)
		if key == "" || clinic == uuid.Nil {
			continue
		}
		normalized[key] = clinic
	}
	return &StaticTenantResolver{mapping: normalized, fallback: fallback}
}

// ResolveClinic implements TenantResolver.
func (r *StaticTenantResolver) ResolveClinic(_ context.Context, phoneNumberID string) (uuid.UUID, error) {
	if r == nil {
		return uuid.Nil, ErrNoTenant
	}
	if clinic, ok := r.mapping[NormalizePhone(phoneNumberID)]; ok {
		return clinic, nil
	}
	if r.fallback != uuid.Nil {
		return r.fallback, nil
	}
	return uuid.Nil, ErrNoTenant
}

// ParseTenantMap decodes a JSON object of phone-number-id to clinic id.
func ParseTenantMap(raw string) (map[string]uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]uuid.UUID{}, nil
	}
	var decoded map[string]string
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("contacts: parse tenant map: %w", err)
	}
	out := make(map[string]uuid.UUID, len(decoded))
	for number, clinic := range decoded {
		id, err := uuid.Parse(strings.TrimSpace(clinic))
		if err != nil {
			return nil, fmt.Errorf("contacts: tenant map entry %q: %w", number, err)
		}
		out[number] = id
	}
	return out, nil
}

type clinicLister interface {
	FirstClinic(ctx context.Context) (uuid.UUID, error)
}

// FirstClinicResolver sends every message to the oldest clinic. Only meant
// for single-tenant deployments and local development.
type FirstClinicResolver struct {
	store clinicLister
}

// NewFirstClinicResolver wraps a clinic lister.
func NewFirstClinicResolver(store clinicLister) *FirstClinicResolver {
	return &FirstClinicResolver{store: store}
}

// ResolveClinic implements TenantResolver.
func (r *FirstClinicResolver) ResolveClinic(ctx context.Context, _ string) (uuid.UUID, error) {
	return r.store.FirstClinic(ctx)
}
