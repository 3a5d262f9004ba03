package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"studyhub/pkg/domain"
	"studyhub/pkg/limits"
	"studyhub/pkg/store"
)

// CreateFlashcardSet validates the title and every card before the quota check.
func (a *App) CreateFlashcardSet(ctx context.Context, user domain.User, subjectID, title string, cards []domain.Flashcard) (domain.FlashcardSet, error) {
	title = strings.TrimSpace(title)
	if err := a.limits.CheckSetTitle(title); err != nil {
		return domain.FlashcardSet{}, err
	}
	if len(cards) == 0 || len(cards) > a.limits.MaxFlashcardsPerSet {
		return domain.FlashcardSet{}, &limits.ValidationError{Field: "cards", Reason: "count out of range", Limit: int64(a.limits.MaxFlashcardsPerSet)}
	}
	clean := make([]domain.Flashcard, 0, len(cards))
	for _, c := range cards {
		c.Question = strings.TrimSpace(c.Question)
		c.Answer = strings.TrimSpace(c.Answer)
		if err := a.limits.CheckFlashcard(c.Question, c.Answer); err != nil {
			return domain.FlashcardSet{}, err
		}
		clean = append(clean, c)
	}
	subject, err := a.ownedSubject(ctx, user, subjectID)
	if err != nil {
		return domain.FlashcardSet{}, err
	}
	if err := a.quota.Check(ctx, domain.KindFlashcardSet, subject.ID); err != nil {
		return domain.FlashcardSet{}, err
	}
	now := a.timestamp()
	set := domain.FlashcardSet{
		ID:        a.newID(),
		SubjectID: subject.ID,
		OwnerID:   user.ID,
		Title:     title,
		Cards:     clean,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateFlashcardSet(ctx, set, a.quota.Ceiling(domain.KindFlashcardSet)); err != nil {
		return domain.FlashcardSet{}, a.guarded(domain.KindFlashcardSet, fmt.Errorf("create flashcard set: %w", err))
	}
	return set, nil
}

func (a *App) ListFlashcardSets(ctx context.Context, user domain.User, subjectID string) ([]domain.FlashcardSet, error) {
	subject, err := a.ownedSubject(ctx, user, subjectID)
	if err != nil {
		return nil, err
	}
	items, err := a.store.ListFlashcardSets(ctx, subject.ID)
	if err != nil {
		return nil, fmt.Errorf("list flashcard sets: %w", err)
	}
	return items, nil
}

func (a *App) DeleteFlashcardSet(ctx context.Context, user domain.User, id string) error {
	id = strings.TrimSpace(id)
	set, ok, err := a.store.GetFlashcardSet(ctx, id)
	if err != nil {
		return fmt.Errorf("get flashcard set: %w", err)
	}
	if !ok {
		return ErrFlashcardSetNotFound
	}
	if set.OwnerID != user.ID {
		return ErrForbidden
	}
	if err := a.store.DeleteFlashcardSet(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrFlashcardSetNotFound
		}
		return fmt.Errorf("delete flashcard set: %w", err)
	}
	return nil
}
