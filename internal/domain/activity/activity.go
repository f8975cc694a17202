// Package activity defines the audit domain: the immutable activity entry,
// the entity-changed event emitted by business modules, and the static
// exclusion sets applied at the audit engine boundary.
package activity

import (
	"time"
)

// Kind classifies an audited operation.
type Kind string

const (
	KindCreate         Kind = "create"
	KindUpdate         Kind = "update"
	KindDelete         Kind = "delete"
	KindLogin          Kind = "login"
	KindLogout         Kind = "logout"
	KindPasswordChange Kind = "password_change"
	KindProfileUpdate  Kind = "profile_update"
	KindSettingsUpdate Kind = "settings_update"
)

// ValidKinds is the set of all valid activity kinds.
var ValidKinds = map[Kind]bool{
	KindCreate:         true,
	KindUpdate:         true,
	KindDelete:         true,
	KindLogin:          true,
	KindLogout:         true,
	KindPasswordChange: true,
	KindProfileUpdate:  true,
	KindSettingsUpdate: true,
}

// EntryKind is the entity kind of the audit entry itself. Events about this
// kind are never observed (recursion guard).
const EntryKind = "activity_entry"

// ExcludedKinds are entity kinds belonging to the audit and identity
// infrastructure. Mutations of these kinds are skipped at the Observed
// stage rather than case-by-case in every business module.
var ExcludedKinds = map[string]bool{
	EntryKind:       true,
	"session":       true,
	"access_token":  true,
	"refresh_token": true,
	"permission":    true,
}

// VolatileFields are bookkeeping fields stripped from update details to keep
// the log free of noise. They are excluded even when present in the
// caller-supplied changed-fields manifest.
var VolatileFields = map[string]bool{
	"last_login": true,
	"updated_at": true,
}

// Entry is an immutable record of a single observed mutation. Entries are
// created exclusively by the audit engine and never mutated or deleted.
type Entry struct {
	ID         string         `json:"id"` // ULID: lexically ordered by creation time
	ActorID    *string        `json:"actor_id"`
	Kind       Kind           `json:"kind"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Details    map[string]any `json:"details"`
	IPAddress  *string        `json:"ip_address,omitempty"`
	UserAgent  *string        `json:"user_agent,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// RequestMeta carries HTTP metadata for request-originated mutations.
// Absent for system and background changes.
type RequestMeta struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ChangeEvent is the entity-changed event every business module emits on
// create, update, and delete. It is the engine's only input contract.
type ChangeEvent struct {
	EntityKind    string         `json:"entity_kind"`
	EntityID      string         `json:"entity_id"`
	Kind          Kind           `json:"kind"`
	ActorHint     string         `json:"actor_hint,omitempty"`     // explicit actor (request principal)
	ChangedFields map[string]any `json:"changed_fields,omitempty"` // update manifest, never a full diff
	Request       *RequestMeta   `json:"request,omitempty"`
	EmittedAt     time.Time      `json:"emitted_at"`
}

// Filter narrows an audit entry listing. Zero values mean "no restriction".
type Filter struct {
	ActorID    string
	Kind       Kind
	TargetType string
	TargetID   string
	Since      time.Time
	Until      time.Time
	Limit      int
	Offset     int
}

// Summary aggregates entries for the dashboard.
type Summary struct {
	Total  int64          `json:"total"`
	ByKind map[Kind]int64 `json:"by_kind"`
	ByDay  []DayCount     `json:"by_day"`
	Actors int64          `json:"unique_actors"`
}

// DayCount is one day's entry count.
type DayCount struct {
	Day   time.Time `json:"day"`
	Count int64     `json:"count"`
}
