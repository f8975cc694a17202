// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict or a uniqueness
// violation (e.g. a second membership for the same user and organization).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates a request failed input validation.
var ErrValidation = errors.New("validation failed")

// ErrNotAuthenticated indicates no principal is attached to the request.
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrNotAuthorized indicates the principal holds no membership, or an
// insufficient role, in the target organization.
var ErrNotAuthorized = errors.New("not authorized")

// ErrQuotaExceeded indicates an organization quota (seats, storage) would be
// exceeded by the requested action. Deliberately distinct from
// ErrNotAuthorized so callers can render a different message.
var ErrQuotaExceeded = errors.New("organization quota exceeded")

// ErrUnknownRole indicates a role value outside the hierarchy table was
// encountered. Treated as a configuration anomaly: deny and log, never allow.
var ErrUnknownRole = errors.New("unknown role")

// ErrScopeResolution indicates a tenant-owned record could not resolve its
// owning organization. The record is excluded from results, never exposed.
var ErrScopeResolution = errors.New("cannot resolve owning organization")
