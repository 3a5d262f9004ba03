// Package quota enforces per-owner ceilings on subjects, notes and flashcard
// sets.
package quota

import (
	"context"
	"errors"
	"fmt"

	"studyhub/pkg/domain"
	"studyhub/pkg/limits"
)

// ErrQuotaExceeded matches every *ExceededError.
var ErrQuotaExceeded = errors.New("quota exceeded")

// ExceededError names the resource kind and the ceiling that was hit.
type ExceededError struct {
	Kind  domain.ResourceKind
	Limit int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: at most %d %s allowed", e.Limit, pluralKind(e.Kind))
}

func (e *ExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

func pluralKind(k domain.ResourceKind) string {
	switch k {
	case domain.KindSubject:
		return "subjects per user"
	case domain.KindNote:
		return "notes per subject"
	case domain.KindFlashcardSet:
		return "flashcard sets per subject"
	default:
		return string(k)
	}
}

// Counter counts existing siblings. Subjects are counted per user, notes and
// flashcard sets per subject.
type Counter interface {
	CountSubjects(ctx context.Context, ownerID string) (int, error)
	CountNotes(ctx context.Context, subjectID string) (int, error)
	CountFlashcardSets(ctx context.Context, subjectID string) (int, error)
}

type Enforcer struct {
	counter Counter
	limits  limits.Limits
}

func NewEnforcer(counter Counter, l limits.Limits) *Enforcer {
	return &Enforcer{counter: counter, limits: l}
}

// Ceiling returns the configured maximum for kind, or 0 for unknown kinds.
func (e *Enforcer) Ceiling(kind domain.ResourceKind) int {
	switch kind {
	case domain.KindSubject:
		return e.limits.MaxSubjectsPerUser
	case domain.KindNote:
		return e.limits.MaxNotesPerSubject
	case domain.KindFlashcardSet:
		return e.limits.MaxFlashcardSetsPerSubject
	default:
		return 0
	}
}

// CanCreate reports whether ownerID is below the ceiling for kind. ownerID is
// the user for subjects and the parent subject otherwise.
func (e *Enforcer) CanCreate(ctx context.Context, kind domain.ResourceKind, ownerID string) (bool, error) {
	var (
		n   int
		err error
	)
	switch kind {
	case domain.KindSubject:
		n, err = e.counter.CountSubjects(ctx, ownerID)
	case domain.KindNote:
		n, err = e.counter.CountNotes(ctx, ownerID)
	case domain.KindFlashcardSet:
		n, err = e.counter.CountFlashcardSets(ctx, ownerID)
	default:
		return false, fmt.Errorf("quota: unknown resource kind %q", kind)
	}
	if err != nil {
		return false, fmt.Errorf("count %s: %w", kind, err)
	}
	return n < e.Ceiling(kind), nil
}

// Check is CanCreate returning an *ExceededError on refusal.
func (e *Enforcer) Check(ctx context.Context, kind domain.ResourceKind, ownerID string) error {
	ok, err := e.CanCreate(ctx, kind, ownerID)
	if err != nil {
		return err
	}
	if !ok {
		return e.Exceeded(kind)
	}
	return nil
}

// Exceeded builds the refusal for kind, for callers whose guarded insert
// lost the race after the pre-check passed.
func (e *Enforcer) Exceeded(kind domain.ResourceKind) *ExceededError {
	return &ExceededError{Kind: kind, Limit: e.Ceiling(kind)}
}
