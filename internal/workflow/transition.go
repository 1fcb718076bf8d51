package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// RoleAdmin may cancel or submit on behalf of a requester and sees every pending request.
	RoleAdmin = "admin"

	// RoleSystem is recorded for transitions made by background jobs.
	RoleSystem = "system"
)

// Actor is the user performing a transition.
type Actor struct {
	ID   uuid.UUID
	Role string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// SystemActor is the actor recorded for SLA expiry.
var SystemActor = Actor{ID: uuid.Nil, Role: RoleSystem}

// Request is the part of an approval request the transition rules depend on.
type Request struct {
	Status       Status
	RequestedBy  uuid.UUID
	CurrentStage int
	Stages       []StageAssignment
	DueAt        *time.Time
}

// CurrentStageAssignment returns the stage the request is waiting on.
func (r Request) CurrentStageAssignment() (StageAssignment, bool) {
	if !r.Status.IsPending() || r.CurrentStage < 1 || r.CurrentStage > len(r.Stages) {
		return StageAssignment{}, false
	}
	return r.Stages[r.CurrentStage-1], true
}

// Outcome describes one legal transition. ActedStage is the 1-based stage that recorded a decision, or 0.
type Outcome struct {
	Action     Action
	From       Status
	To         Status
	ActedStage int
	NextStage  int
}

// Start computes the initial state of a new request.
func Start(route Route, stages []StageAssignment) (Outcome, error) {
	if len(stages) == 0 {
		return Outcome{}, fmt.Errorf("%w: stage chain is empty", ErrConfiguration)
	}
	if route.StartInDraft {
		return Outcome{Action: ActionCreate, To: StatusDraft}, nil
	}
	return Outcome{Action: ActionCreate, To: stages[0].PendingStatus(), NextStage: 1}, nil
}

// Submit moves a draft into its first stage using a freshly resolved chain.
func Submit(r Request, actor Actor, stages []StageAssignment) (Outcome, error) {
	if r.Status != StatusDraft {
		return Outcome{}, fmt.Errorf("%w: cannot submit a request that is %s", ErrInvalidState, r.Status)
	}
	if actor.ID != r.RequestedBy && !actor.IsAdmin() {
		return Outcome{}, fmt.Errorf("%w: only the requester may submit", ErrForbidden)
	}
	if len(stages) == 0 {
		return Outcome{}, fmt.Errorf("%w: stage chain is empty", ErrConfiguration)
	}
	return Outcome{Action: ActionSubmit, From: r.Status, To: stages[0].PendingStatus(), NextStage: 1}, nil
}

// Approve records the current stage's decision and advances the chain.
func Approve(r Request, actor Actor) (Outcome, error) {
	stage, err := actionableStage(r, actor)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Action: ActionApprove, From: r.Status, ActedStage: stage.Seq}
	if stage.Seq == len(r.Stages) {
		out.To = StatusApproved
		return out, nil
	}
	next := r.Stages[stage.Seq]
	out.To = next.PendingStatus()
	out.NextStage = next.Seq
	return out, nil
}

// Reject ends the request from any stage. The reason must not be blank; state and
// approver checks come first so a finished request always reports ErrInvalidState.
func Reject(r Request, actor Actor, reason string) (Outcome, error) {
	stage, err := actionableStage(r, actor)
	if err != nil {
		return Outcome{}, err
	}
	if strings.TrimSpace(reason) == "" {
		return Outcome{}, fmt.Errorf("%w: reject reason is required", ErrValidation)
	}
	return Outcome{Action: ActionReject, From: r.Status, To: StatusRejected, ActedStage: stage.Seq}, nil
}

// Cancel withdraws a draft or pending request. Only the requester or an admin may cancel.
func Cancel(r Request, actor Actor) (Outcome, error) {
	if r.Status != StatusDraft && !r.Status.IsPending() {
		return Outcome{}, fmt.Errorf("%w: cannot cancel a request that is %s", ErrInvalidState, r.Status)
	}
	if actor.ID != r.RequestedBy && !actor.IsAdmin() {
		return Outcome{}, fmt.Errorf("%w: only the requester may cancel", ErrForbidden)
	}
	return Outcome{Action: ActionCancel, From: r.Status, To: StatusCancelled}, nil
}

// Expire ends a pending request whose SLA deadline has passed.
func Expire(r Request, now time.Time) (Outcome, error) {
	if !r.Status.IsPending() {
		return Outcome{}, fmt.Errorf("%w: cannot expire a request that is %s", ErrInvalidState, r.Status)
	}
	if r.DueAt == nil || now.Before(*r.DueAt) {
		return Outcome{}, fmt.Errorf("%w: request is not overdue", ErrInvalidState)
	}
	return Outcome{Action: ActionExpire, From: r.Status, To: StatusExpired}, nil
}

func actionableStage(r Request, actor Actor) (StageAssignment, error) {
	if !r.Status.IsPending() {
		return StageAssignment{}, fmt.Errorf("%w: request is already %s", ErrInvalidState, r.Status)
	}
	stage, ok := r.CurrentStageAssignment()
	if !ok {
		return StageAssignment{}, fmt.Errorf("%w: request has no current stage", ErrInvalidState)
	}
	if !stage.Allows(actor) {
		// an approver of an earlier stage is retrying a decision that already went through
		for _, prev := range r.Stages[:stage.Seq-1] {
			if prev.Allows(actor) {
				return StageAssignment{}, fmt.Errorf("%w: stage %q was already decided", ErrInvalidState, prev.Key)
			}
		}
		return StageAssignment{}, fmt.Errorf("%w: not the approver for stage %q", ErrForbidden, stage.Key)
	}
	return stage, nil
}
