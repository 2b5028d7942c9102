// services/errors.go - Domain error taxonomy
package services

import (
	"errors"
	"fmt"
	"strings"

	"snapquest/database"
	"snapquest/models"
)

var (
	ErrIneligible        = errors.New("not eligible to attempt quest")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNotFound          = errors.New("not found")
	ErrNotAuthorized     = errors.New("not authorized")
	ErrInvalidInput      = errors.New("invalid input")

	ErrAlreadyVoted     = errors.New("already voted on this submission")
	ErrSelfVote         = errors.New("cannot vote on your own submission")
	ErrVotingClosed     = errors.New("voting is not open for this contest")
	ErrIncompleteBallot = errors.New("incomplete ballot")
)

// IneligibleError carries the first failed eligibility check.
type IneligibleError struct {
	Reason string
}

func (e *IneligibleError) Error() string {
	return "not eligible: " + e.Reason
}

func (e *IneligibleError) Is(target error) bool {
	return target == ErrIneligible
}

// TransitionError reports a lifecycle call on an attempt that is missing or
// already terminal.
type TransitionError struct {
	AttemptID string
	From      models.AttemptStatus // empty when the attempt does not exist
	To        models.AttemptStatus
}

func (e *TransitionError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("attempt %s not found, cannot move to %s", e.AttemptID, e.To)
	}
	return fmt.Sprintf("attempt %s cannot move from %s to %s", e.AttemptID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IncompleteBallotError lists what a rejected ballot was missing.
type IncompleteBallotError struct {
	Missing []string
	Reason  string
}

func (e *IncompleteBallotError) Error() string {
	if len(e.Missing) > 0 {
		return "incomplete ballot: missing votes for " + strings.Join(e.Missing, ", ")
	}
	return "incomplete ballot: " + e.Reason
}

func (e *IncompleteBallotError) Is(target error) bool {
	return target == ErrIncompleteBallot
}

// notFound converts a store miss into a NotFoundError and passes every other
// error through unchanged.
func notFound(err error, kind, id string) error {
	if errors.Is(err, database.ErrNotFound) {
		return &NotFoundError{Kind: kind, ID: id}
	}
	return err
}
