package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"studyhub/pkg/domain"
	"studyhub/pkg/store"
)

// CreateSubject adds a subject for user after the name and quota checks.
func (a *App) CreateSubject(ctx context.Context, user domain.User, name string) (domain.Subject, error) {
	name = strings.TrimSpace(name)
	if err := a.limits.CheckSubjectName(name); err != nil {
		return domain.Subject{}, err
	}
	if err := a.quota.Check(ctx, domain.KindSubject, user.ID); err != nil {
		return domain.Subject{}, err
	}
	now := a.timestamp()
	subject := domain.Subject{
		ID:        a.newID(),
		OwnerID:   user.ID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateSubject(ctx, subject, a.quota.Ceiling(domain.KindSubject)); err != nil {
		return domain.Subject{}, a.guarded(domain.KindSubject, fmt.Errorf("create subject: %w", err))
	}
	return subject, nil
}

func (a *App) ListSubjects(ctx context.Context, user domain.User) ([]domain.Subject, error) {
	items, err := a.store.ListSubjectsByOwner(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return items, nil
}

func (a *App) GetSubject(ctx context.Context, user domain.User, id string) (domain.Subject, error) {
	return a.ownedSubject(ctx, user, id)
}

func (a *App) RenameSubject(ctx context.Context, user domain.User, id, name string) (domain.Subject, error) {
	name = strings.TrimSpace(name)
	if err := a.limits.CheckSubjectName(name); err != nil {
		return domain.Subject{}, err
	}
	if _, err := a.ownedSubject(ctx, user, id); err != nil {
		return domain.Subject{}, err
	}
	if err := a.store.RenameSubject(ctx, id, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Subject{}, ErrSubjectNotFound
		}
		return domain.Subject{}, fmt.Errorf("rename subject: %w", err)
	}
	return a.ownedSubject(ctx, user, id)
}

// DeleteSubject removes the subject with its notes and flashcard sets, then
// deletes the note files. File cleanup failures are logged, not returned.
func (a *App) DeleteSubject(ctx context.Context, user domain.User, id string) error {
	if _, err := a.ownedSubject(ctx, user, id); err != nil {
		return err
	}
	removed, err := a.store.DeleteSubject(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSubjectNotFound
		}
		return fmt.Errorf("delete subject: %w", err)
	}
	for _, n := range removed {
		a.blobs.DeleteByURL(ctx, n.BlobURL)
	}
	return nil
}

func (a *App) ownedSubject(ctx context.Context, user domain.User, id string) (domain.Subject, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Subject{}, ErrSubjectNotFound
	}
	subject, ok, err := a.store.GetSubject(ctx, id)
	if err != nil {
		return domain.Subject{}, fmt.Errorf("get subject: %w", err)
	}
	if !ok {
		return domain.Subject{}, ErrSubjectNotFound
	}
	if subject.OwnerID != user.ID {
		return domain.Subject{}, ErrForbidden
	}
	return subject, nil
}
