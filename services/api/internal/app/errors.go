package app

import "errors"

var (
	// ErrUnauthorized means the caller's ID token is missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the resource exists but belongs to someone else.
	ErrForbidden            = errors.New("forbidden")
	ErrSubjectNotFound      = errors.New("subject not found")
	ErrNoteNotFound         = errors.New("note not found")
	ErrFlashcardSetNotFound = errors.New("flashcard set not found")
	// ErrNoteNotReady means the note's file has not been stored.
	ErrNoteNotReady = errors.New("note file not available")
)
