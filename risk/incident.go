// Package risk turns reported incidents into per-edge danger scores.
//
// Incidents are attached to the nearest street edge, accumulated with a recency weight into an
// EdgeRiskProfile, and scored by a fuzzy evaluator configured from data. The result of one pass
// is an immutable Snapshot that the planner reads alongside the graph it was built for.
package risk

import (
	"fmt"
	"math"
	"time"
)

// Type is the category of a reported incident.
type Type string

const (
	TypeAssault  Type = "assault"
	TypeCrash    Type = "crash"
	TypeHomicide Type = "homicide"
	TypeRobbery  Type = "robbery"
	TypeOther    Type = "other"
)

// Valid reports whether t is one of the known categories.
func (t Type) Valid() bool {
	switch t {
	case TypeAssault, TypeCrash, TypeHomicide, TypeRobbery, TypeOther:
		return true
	}
	return false
}

// Status is the follow-up state of an incident.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusUnresolved Status = "unresolved"
	StatusResolved   Status = "resolved"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusInProgress, StatusUnresolved, StatusResolved:
		return true
	}
	return false
}

// Active reports whether incidents with this status still count towards risk.
func (s Status) Active() bool {
	return s == StatusInProgress || s == StatusUnresolved
}

// Incident is a reported safety event at a point.
type Incident struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	Severity    int       `json:"severity"`
	OccurredAt  time.Time `json:"occurredAt"`
	Status      Status    `json:"status"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Description string    `json:"description,omitempty"`
}

// Validate checks the fields Assign relies on.
func (i Incident) Validate(maxSeverity int) error {
	if i.ID == "" {
		return fmt.Errorf("incident has empty id")
	}
	if i.Severity < 0 || i.Severity > maxSeverity {
		return fmt.Errorf("incident %s: severity %d outside 0..%d", i.ID, i.Severity, maxSeverity)
	}
	if math.IsNaN(i.Latitude) || math.IsNaN(i.Longitude) ||
		i.Latitude < -90 || i.Latitude > 90 || i.Longitude < -180 || i.Longitude > 180 {
		return fmt.Errorf("incident %s: invalid coordinates (%v, %v)", i.ID, i.Latitude, i.Longitude)
	}
	if i.Type != "" && !i.Type.Valid() {
		return fmt.Errorf("incident %s: unknown type %q", i.ID, i.Type)
	}
	if !i.Status.Valid() {
		return fmt.Errorf("incident %s: unknown status %q", i.ID, i.Status)
	}
	if i.OccurredAt.IsZero() {
		return fmt.Errorf("incident %s: missing occurrence time", i.ID)
	}
	return nil
}
