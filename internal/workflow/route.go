package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RouteKeyPrefix prefixes the system-config key that holds the route of a request type.
const RouteKeyPrefix = "approval.route."

// RouteKey returns the system-config key for a request type's route.
func RouteKey(t RequestType) string {
	return RouteKeyPrefix + string(t)
}

// StageDef is one configured stage. Exactly one of ApproverID, ApproverRef, ApproverRole is set.
// ApproverRef names another config key whose value is the approver's user id.
type StageDef struct {
	Key          string `json:"key,omitempty"`
	ApproverID   string `json:"approver_id,omitempty"`
	ApproverRef  string `json:"approver_ref,omitempty"`
	ApproverRole string `json:"approver_role,omitempty"`
}

// Route is the stage chain configured for one request type.
type Route struct {
	StartInDraft bool       `json:"start_in_draft"`
	SLAHours     int        `json:"sla_hours,omitempty"`
	Stages       []StageDef `json:"stages"`
}

// ParseRoute decodes and structurally validates a route value.
func ParseRoute(raw string) (Route, error) {
	var r Route
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return Route{}, fmt.Errorf("%w: malformed route: %v", ErrConfiguration, err)
	}
	if err := r.validate(); err != nil {
		return Route{}, err
	}
	return r, nil
}

func (r Route) validate() error {
	if len(r.Stages) == 0 {
		return fmt.Errorf("%w: route has no stages", ErrConfiguration)
	}
	if r.SLAHours < 0 {
		return fmt.Errorf("%w: sla_hours must not be negative", ErrConfiguration)
	}
	seen := make(map[string]bool, len(r.Stages))
	for i, st := range r.Stages {
		set := 0
		for _, v := range []string{st.ApproverID, st.ApproverRef, st.ApproverRole} {
			if v != "" {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("%w: stage %d must name exactly one of approver_id, approver_ref, approver_role", ErrConfiguration, i+1)
		}
		if st.ApproverID != "" {
			if _, err := uuid.Parse(st.ApproverID); err != nil {
				return fmt.Errorf("%w: stage %d approver_id is not a uuid", ErrConfiguration, i+1)
			}
		}
		key := stageKey(st.Key, i, len(r.Stages))
		if seen[key] {
			return fmt.Errorf("%w: duplicate stage key %q", ErrConfiguration, key)
		}
		seen[key] = true
	}
	return nil
}

// stageKey names unnamed stages once the chain has more than one stage, so pending statuses stay distinct.
func stageKey(key string, idx, total int) string {
	if key == "" && total > 1 {
		return fmt.Sprintf("stage_%d", idx+1)
	}
	return key
}

// StageAssignment is a stage resolved against a config snapshot. It is what a request carries once submitted.
type StageAssignment struct {
	Seq          int
	Key          string
	ApproverID   *uuid.UUID
	ApproverRole string
}

// PendingStatus returns the status a request has while waiting on this stage.
func (s StageAssignment) PendingStatus() Status {
	return PendingStatus(s.Key)
}

// Allows reports whether the actor is the configured approver of this stage.
func (s StageAssignment) Allows(actor Actor) bool {
	if s.ApproverID != nil {
		return actor.ID == *s.ApproverID
	}
	return s.ApproverRole != "" && actor.Role == s.ApproverRole
}

// ConfigSnapshot is an immutable copy of the system configuration taken at one point in time.
type ConfigSnapshot struct {
	values  map[string]string
	takenAt time.Time
}

// NewConfigSnapshot copies values so later mutation of the source map has no effect.
func NewConfigSnapshot(values map[string]string, takenAt time.Time) ConfigSnapshot {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return ConfigSnapshot{values: cp, takenAt: takenAt}
}

func (c ConfigSnapshot) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

func (c ConfigSnapshot) TakenAt() time.Time {
	return c.takenAt
}

// Values returns a copy of every key in the snapshot.
func (c ConfigSnapshot) Values() map[string]string {
	cp := make(map[string]string, len(c.values))
	for k, v := range c.values {
		cp[k] = v
	}
	return cp
}

// Route returns the parsed route for a request type.
func (c ConfigSnapshot) Route(t RequestType) (Route, error) {
	raw, ok := c.values[RouteKey(t)]
	if !ok || strings.TrimSpace(raw) == "" {
		return Route{}, fmt.Errorf("%w: no approval route configured for %s", ErrConfiguration, t)
	}
	return ParseRoute(raw)
}

// ResolveStages resolves every stage of the route to a concrete approver.
func (c ConfigSnapshot) ResolveStages(t RequestType) (Route, []StageAssignment, error) {
	route, err := c.Route(t)
	if err != nil {
		return Route{}, nil, err
	}

	stages := make([]StageAssignment, 0, len(route.Stages))
	for i, def := range route.Stages {
		st := StageAssignment{
			Seq:          i + 1,
			Key:          stageKey(def.Key, i, len(route.Stages)),
			ApproverRole: def.ApproverRole,
		}
		switch {
		case def.ApproverID != "":
			id, err := uuid.Parse(def.ApproverID)
			if err != nil {
				return Route{}, nil, fmt.Errorf("%w: stage %d approver_id is not a uuid", ErrConfiguration, i+1)
			}
			st.ApproverID = &id
		case def.ApproverRef != "":
			raw, ok := c.values[def.ApproverRef]
			if !ok || strings.TrimSpace(raw) == "" {
				return Route{}, nil, fmt.Errorf("%w: approver for stage %q is not configured (%s)", ErrConfiguration, st.Key, def.ApproverRef)
			}
			id, err := uuid.Parse(strings.TrimSpace(raw))
			if err != nil {
				return Route{}, nil, fmt.Errorf("%w: %s is not a user id", ErrConfiguration, def.ApproverRef)
			}
			st.ApproverID = &id
		}
		stages = append(stages, st)
	}
	return route, stages, nil
}
