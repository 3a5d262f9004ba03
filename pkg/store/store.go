package store

import (
	"context"
	"errors"
	"time"

	"studyhub/pkg/domain"
)

var (
	// ErrNotFound is returned when an update or delete targets a missing record.
	ErrNotFound = errors.New("record not found")
	// ErrCeilingReached is returned by guarded inserts when the owner already
	// holds ceiling records of that kind. Nothing is written.
	ErrCeilingReached = errors.New("ceiling reached")
)

// Store defines persistence for users, subjects, notes, flashcard sets and the changelog.
//
// The Create* methods taking a ceiling count the owner's existing records and
// insert in one transaction serialized per owner, so concurrent creations can
// never push a count past the ceiling. CreateNote and CreateFlashcardSet
// return ErrNotFound when the parent subject no longer exists.
type Store interface {
	// users
	UpsertUser(ctx context.Context, u domain.User) error
	GetUser(ctx context.Context, id string) (domain.User, bool, error)

	// subjects
	CreateSubject(ctx context.Context, s domain.Subject, ceiling int) error
	GetSubject(ctx context.Context, id string) (domain.Subject, bool, error)
	ListSubjectsByOwner(ctx context.Context, ownerID string) ([]domain.Subject, error)
	RenameSubject(ctx context.Context, id, name string) error
	// DeleteSubject removes the subject with its notes and flashcard sets and
	// returns the removed notes so their blobs can be cleaned up.
	DeleteSubject(ctx context.Context, id string) ([]domain.Note, error)
	CountSubjects(ctx context.Context, ownerID string) (int, error)

	// notes
	CreateNote(ctx context.Context, n domain.Note, ceiling int) error
	SetNoteBlob(ctx context.Context, id, blobName, blobURL string, pageCount int) error
	GetNote(ctx context.Context, id string) (domain.Note, bool, error)
	ListNotes(ctx context.Context, subjectID string) ([]domain.Note, error)
	DeleteNote(ctx context.Context, id string) error
	CountNotes(ctx context.Context, subjectID string) (int, error)
	// ListPendingNotes returns notes still pointing at the placeholder URL
	// that were created before the cutoff.
	ListPendingNotes(ctx context.Context, createdBefore time.Time) ([]domain.Note, error)

	// flashcard sets
	CreateFlashcardSet(ctx context.Context, f domain.FlashcardSet, ceiling int) error
	GetFlashcardSet(ctx context.Context, id string) (domain.FlashcardSet, bool, error)
	ListFlashcardSets(ctx context.Context, subjectID string) ([]domain.FlashcardSet, error)
	DeleteFlashcardSet(ctx context.Context, id string) error
	CountFlashcardSets(ctx context.Context, subjectID string) (int, error)

	// changelog
	SaveVersionUpdate(ctx context.Context, v domain.VersionUpdate) error
	ListVersionUpdates(ctx context.Context) ([]domain.VersionUpdate, error)
}
