package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"studyhub/internal/util"
	"studyhub/pkg/domain"
	"studyhub/pkg/store"
)

// UploadNote stores a PDF under a subject. The order is: validate, check
// ownership and quota, insert the note with a placeholder URL (reserving the
// slot), upload, then point the note at the blob. A failed upload removes the
// reserved note.
func (a *App) UploadNote(ctx context.Context, user domain.User, subjectID, filename string, r io.Reader) (domain.Note, error) {
	filename = strings.TrimSpace(filename)
	data, err := io.ReadAll(io.LimitReader(r, a.limits.MaxFileSizeBytes+1))
	if err != nil {
		return domain.Note{}, fmt.Errorf("read upload: %w", err)
	}
	size := int64(len(data))
	if err := a.limits.CheckUpload(filename, size); err != nil {
		return domain.Note{}, err
	}
	subject, err := a.ownedSubject(ctx, user, subjectID)
	if err != nil {
		return domain.Note{}, err
	}
	if err := a.quota.Check(ctx, domain.KindNote, subject.ID); err != nil {
		return domain.Note{}, err
	}

	now := a.timestamp()
	note := domain.Note{
		ID:               a.newID(),
		SubjectID:        subject.ID,
		OwnerID:          user.ID,
		OriginalFilename: filename,
		BlobURL:          domain.PlaceholderBlobURL,
		SizeBytes:        size,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := a.store.CreateNote(ctx, note, a.quota.Ceiling(domain.KindNote)); err != nil {
		return domain.Note{}, a.guarded(domain.KindNote, fmt.Errorf("create note: %w", err))
	}

	log := util.LoggerFromContext(ctx)
	ref, err := a.blobs.Upload(ctx, user.ID, subject.ID, bytes.NewReader(data), size, filename)
	if err != nil {
		a.releaseNote(ctx, note.ID)
		return domain.Note{}, fmt.Errorf("store note file: %w", err)
	}
	pages := pageCount(data)
	if err := a.store.SetNoteBlob(ctx, note.ID, ref.Name, ref.URL, pages); err != nil {
		a.releaseNote(ctx, note.ID)
		a.blobs.DeleteByName(ctx, ref.Name)
		return domain.Note{}, fmt.Errorf("record note file: %w", err)
	}
	log.Info("note uploaded", "note_id", note.ID, "subject_id", subject.ID, "blob", ref.Name, "bytes", size, "pages", pages)

	note.BlobName = ref.Name
	note.BlobURL = ref.URL
	note.PageCount = pages
	return note, nil
}

func (a *App) releaseNote(ctx context.Context, noteID string) {
	if err := a.store.DeleteNote(ctx, noteID); err != nil && !errors.Is(err, store.ErrNotFound) {
		util.LoggerFromContext(ctx).Warn("release reserved note failed", "note_id", noteID, "err", err)
	}
}

// pageCount is best-effort; unreadable PDFs report 0.
func pageCount(data []byte) (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return reader.NumPage()
}

func (a *App) ListNotes(ctx context.Context, user domain.User, subjectID string) ([]domain.Note, error) {
	subject, err := a.ownedSubject(ctx, user, subjectID)
	if err != nil {
		return nil, err
	}
	items, err := a.store.ListNotes(ctx, subject.ID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return items, nil
}

// DeleteNote removes the note record, then its file on a best-effort basis.
func (a *App) DeleteNote(ctx context.Context, user domain.User, noteID string) error {
	note, err := a.ownedNote(ctx, user, noteID)
	if err != nil {
		return err
	}
	if err := a.store.DeleteNote(ctx, note.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoteNotFound
		}
		return fmt.Errorf("delete note: %w", err)
	}
	a.blobs.DeleteByURL(ctx, note.BlobURL)
	return nil
}

// NoteDownloadURL returns a short-lived link to the note's PDF.
func (a *App) NoteDownloadURL(ctx context.Context, user domain.User, noteID string) (string, error) {
	note, err := a.ownedNote(ctx, user, noteID)
	if err != nil {
		return "", err
	}
	if note.BlobName == "" {
		return "", ErrNoteNotReady
	}
	link, err := a.blobs.DownloadURL(ctx, note.BlobName, a.downloadExpiry)
	if err != nil {
		return "", fmt.Errorf("sign download url: %w", err)
	}
	return link, nil
}

func (a *App) ownedNote(ctx context.Context, user domain.User, noteID string) (domain.Note, error) {
	noteID = strings.TrimSpace(noteID)
	if noteID == "" {
		return domain.Note{}, ErrNoteNotFound
	}
	note, ok, err := a.store.GetNote(ctx, noteID)
	if err != nil {
		return domain.Note{}, fmt.Errorf("get note: %w", err)
	}
	if !ok {
		return domain.Note{}, ErrNoteNotFound
	}
	if note.OwnerID != user.ID {
		return domain.Note{}, ErrForbidden
	}
	return note, nil
}
