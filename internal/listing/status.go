// Package listing holds the listing state machine and the typed partial
// updates staged by sellers and applied on moderation.
package listing

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusSold     Status = "sold"
	StatusInactive Status = "inactive"
)

var (
	ErrUnknownStatus     = errors.New("unknown listing status")
	ErrInvalidTransition = errors.New("invalid listing status transition")
)

var allStatuses = []Status{StatusDraft, StatusPending, StatusApproved, StatusRejected, StatusSold, StatusInactive}

// edges lists every allowed move except "any -> inactive", which is handled
// separately.
var edges = map[Status][]Status{
	StatusDraft:    {StatusPending},
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusPending, StatusSold},
	StatusRejected: {StatusPending},
}

func ParseStatus(value string) (Status, error) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, value)
}

func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

func CanTransition(from, to Status) bool {
	if to == StatusInactive {
		return from != StatusInactive
	}
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates a move and returns the new status.
func Transition(from, to Status) (Status, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}

// Editable reports whether a seller may still propose changes.
func (s Status) Editable() bool {
	return s != StatusSold && s != StatusInactive
}

// Public reports whether the storefront shows listings in this status.
func (s Status) Public() bool {
	return s == StatusApproved || s == StatusSold
}

func (s Status) IsPending() bool  { return s == StatusPending }
func (s Status) IsApproved() bool { return s == StatusApproved }
func (s Status) IsSold() bool     { return s == StatusSold }

func IsExpired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && now.After(*expiresAt)
}
