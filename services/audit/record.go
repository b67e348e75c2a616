package audit

import (
	"strings"
	"time"
)

// Action tags the kind of sensitive operation a record describes. The set is
// open: any non-empty tag is stored and displayed verbatim.
type Action string

const (
	ActionSignup     Action = "signup"
	ActionUnregister Action = "unregister"
	ActionUpload     Action = "upload"
	ActionCheckin    Action = "checkin"
)

var knownActions = map[Action]string{
	ActionSignup:     "Signup",
	ActionUnregister: "Unregister",
	ActionUpload:     "Upload",
	ActionCheckin:    "Check-in",
}

// Known reports whether the action is one the dashboard has a label for.
func (a Action) Known() bool {
	_, ok := knownActions[a]
	return ok
}

// Label returns a display label, falling back to the raw tag.
func (a Action) Label() string {
	if label, ok := knownActions[a]; ok {
		return label
	}
	return string(a)
}

// Record is one immutable row of the audit trail.
type Record struct {
	ID           int64     `json:"id" db:"id"`
	Timestamp    time.Time `json:"timestamp" db:"created_at"`
	Action       Action    `json:"action" db:"action"`
	UserEmail    string    `json:"user_email" db:"user_email"`
	ActivityName *string   `json:"activity_name" db:"activity_name"`
	Details      *string   `json:"details" db:"details"`
	IPAddress    *string   `json:"ip_address" db:"ip_address"`
}

// Event is the caller-supplied part of a record. ID and Timestamp are always
// assigned by the store.
type Event struct {
	Action       Action
	UserEmail    string
	ActivityName string
	Details      string
	IPAddress    string
}

func (e Event) normalize() Event {
	return Event{
		Action:       Action(strings.TrimSpace(string(e.Action))),
		UserEmail:    strings.TrimSpace(e.UserEmail),
		ActivityName: strings.TrimSpace(e.ActivityName),
		Details:      strings.TrimSpace(e.Details),
		IPAddress:    strings.TrimSpace(e.IPAddress),
	}
}

func (e Event) toRecord() Record {
	return Record{
		Action:       e.Action,
		UserEmail:    e.UserEmail,
		ActivityName: optional(e.ActivityName),
		Details:      optional(e.Details),
		IPAddress:    optional(e.IPAddress),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// stamp normalises a store-assigned instant so every backend round-trips it
// identically.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
