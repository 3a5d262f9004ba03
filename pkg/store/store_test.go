package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"studyhub/pkg/domain"
)

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestGormStoreContract(t *testing.T) {
	dsn := os.Getenv("STUDYHUB_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("STUDYHUB_TEST_DATABASE_URL not set")
	}
	s, err := NewGormStore(dsn)
	if err != nil {
		t.Fatalf("open gorm store: %v", err)
	}
	runStoreContract(t, func(t *testing.T) Store { return s })
}

func runStoreContract(t *testing.T, open func(t *testing.T) Store) {
	t.Run("UpsertUserKeepsCreationTime", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		id := uuid.NewString()
		created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		if err := s.UpsertUser(ctx, domain.User{ID: id, DisplayName: "Ada", AuthProvider: "email", CreatedAt: created, LastSignInAt: created}); err != nil {
			t.Fatalf("first upsert: %v", err)
		}
		later := created.Add(48 * time.Hour)
		if err := s.UpsertUser(ctx, domain.User{ID: id, DisplayName: "Ada L.", AuthProvider: "google.com", CreatedAt: later, LastSignInAt: later}); err != nil {
			t.Fatalf("second upsert: %v", err)
		}
		u, ok, err := s.GetUser(ctx, id)
		if err != nil || !ok {
			t.Fatalf("get user: ok=%v err=%v", ok, err)
		}
		if u.DisplayName != "Ada L." || u.AuthProvider != "google.com" {
			t.Fatalf("profile not refreshed: %+v", u)
		}
		if !u.CreatedAt.Equal(created) {
			t.Fatalf("creation time overwritten: %v", u.CreatedAt)
		}
		if !u.LastSignInAt.Equal(later) {
			t.Fatalf("last sign-in not refreshed: %v", u.LastSignInAt)
		}
	})

	t.Run("SubjectCeilingIsEnforced", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		owner := uuid.NewString()
		for i := 0; i < 3; i++ {
			if err := s.CreateSubject(ctx, newSubject(owner), 3); err != nil {
				t.Fatalf("create subject %d: %v", i, err)
			}
		}
		if err := s.CreateSubject(ctx, newSubject(owner), 3); !errors.Is(err, ErrCeilingReached) {
			t.Fatalf("expected ErrCeilingReached, got %v", err)
		}
		n, err := s.CountSubjects(ctx, owner)
		if err != nil || n != 3 {
			t.Fatalf("count = %d err=%v, want 3", n, err)
		}
	})

	t.Run("ConcurrentNoteInsertsRespectCeiling", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		subj := newSubject(uuid.NewString())
		if err := s.CreateSubject(ctx, subj, 0); err != nil {
			t.Fatalf("create subject: %v", err)
		}
		var wg sync.WaitGroup
		var mu sync.Mutex
		created := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.CreateNote(ctx, newNote(subj), 5)
				if err == nil {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if created != 5 {
			t.Fatalf("created %d notes, want exactly 5", created)
		}
		got, _, err := s.GetSubject(ctx, subj.ID)
		if err != nil || got.NoteCount != 5 {
			t.Fatalf("note counter = %d err=%v, want 5", got.NoteCount, err)
		}
	})

	t.Run("DeleteSubjectCascades", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		subj := newSubject(uuid.NewString())
		if err := s.CreateSubject(ctx, subj, 0); err != nil {
			t.Fatalf("create subject: %v", err)
		}
		note := newNote(subj)
		if err := s.CreateNote(ctx, note, 0); err != nil {
			t.Fatalf("create note: %v", err)
		}
		if err := s.SetNoteBlob(ctx, note.ID, "u/s/1-a.pdf", "https://blobs/notes/u/s/1-a.pdf", 3); err != nil {
			t.Fatalf("set note blob: %v", err)
		}
		set := domain.FlashcardSet{ID: uuid.NewString(), SubjectID: subj.ID, OwnerID: subj.OwnerID, Title: "t", Cards: []domain.Flashcard{{Question: "q", Answer: "a"}}, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
		if err := s.CreateFlashcardSet(ctx, set, 0); err != nil {
			t.Fatalf("create set: %v", err)
		}
		removed, err := s.DeleteSubject(ctx, subj.ID)
		if err != nil {
			t.Fatalf("delete subject: %v", err)
		}
		if len(removed) != 1 || removed[0].BlobURL != "https://blobs/notes/u/s/1-a.pdf" {
			t.Fatalf("unexpected removed notes: %+v", removed)
		}
		if _, ok, _ := s.GetFlashcardSet(ctx, set.ID); ok {
			t.Fatalf("flashcard set survived cascade")
		}
		if _, err := s.DeleteSubject(ctx, subj.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("DeleteNoteDecrementsCounter", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		subj := newSubject(uuid.NewString())
		if err := s.CreateSubject(ctx, subj, 0); err != nil {
			t.Fatalf("create subject: %v", err)
		}
		note := newNote(subj)
		if err := s.CreateNote(ctx, note, 0); err != nil {
			t.Fatalf("create note: %v", err)
		}
		if err := s.DeleteNote(ctx, note.ID); err != nil {
			t.Fatalf("delete note: %v", err)
		}
		got, _, _ := s.GetSubject(ctx, subj.ID)
		if got.NoteCount != 0 {
			t.Fatalf("note counter = %d, want 0", got.NoteCount)
		}
		if err := s.DeleteNote(ctx, note.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ChildInsertsRequireSubject", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		subj := newSubject(uuid.NewString())
		if err := s.CreateSubject(ctx, subj, 0); err != nil {
			t.Fatalf("create subject: %v", err)
		}
		if _, err := s.DeleteSubject(ctx, subj.ID); err != nil {
			t.Fatalf("delete subject: %v", err)
		}
		note := newNote(subj)
		if err := s.CreateNote(ctx, note, 0); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for note, got %v", err)
		}
		if _, ok, _ := s.GetNote(ctx, note.ID); ok {
			t.Fatalf("note written under deleted subject")
		}
		set := domain.FlashcardSet{ID: uuid.NewString(), SubjectID: subj.ID, OwnerID: subj.OwnerID, Title: "Cells", CreatedAt: time.Now().UTC()}
		if err := s.CreateFlashcardSet(ctx, set, 0); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for flashcard set, got %v", err)
		}
		if _, ok, _ := s.GetFlashcardSet(ctx, set.ID); ok {
			t.Fatalf("flashcard set written under deleted subject")
		}
	})

	t.Run("ListPendingNotesOnlyReturnsOldPlaceholders", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		subj := newSubject(uuid.NewString())
		if err := s.CreateSubject(ctx, subj, 0); err != nil {
			t.Fatalf("create subject: %v", err)
		}
		cutoff := time.Now().UTC().Add(-time.Hour)
		old, recent, stored := newNote(subj), newNote(subj), newNote(subj)
		old.CreatedAt = cutoff.Add(-time.Minute)
		stored.CreatedAt = cutoff.Add(-time.Minute)
		for _, n := range []domain.Note{old, recent, stored} {
			if err := s.CreateNote(ctx, n, 0); err != nil {
				t.Fatalf("create note: %v", err)
			}
		}
		if err := s.SetNoteBlob(ctx, stored.ID, "u/s/1-a.pdf", "https://blobs/notes/u/s/1-a.pdf", 1); err != nil {
			t.Fatalf("set blob: %v", err)
		}
		pending, err := s.ListPendingNotes(ctx, cutoff)
		if err != nil {
			t.Fatalf("list pending: %v", err)
		}
		found := false
		for _, n := range pending {
			switch n.ID {
			case old.ID:
				found = true
			case recent.ID, stored.ID:
				t.Fatalf("unexpected pending note %+v", n)
			}
		}
		if !found {
			t.Fatalf("old placeholder missing from %+v", pending)
		}
	})

	t.Run("VersionUpdatesNewestFirst", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		older := domain.VersionUpdate{Version: "v-" + uuid.NewString(), Title: "old", Features: []string{"a"}, ReleaseDate: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)}
		newer := domain.VersionUpdate{Version: "v-" + uuid.NewString(), Title: "new", Features: []string{"b", "c"}, ReleaseDate: time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)}
		for _, v := range []domain.VersionUpdate{older, newer} {
			if err := s.SaveVersionUpdate(ctx, v); err != nil {
				t.Fatalf("save version: %v", err)
			}
		}
		list, err := s.ListVersionUpdates(ctx)
		if err != nil || len(list) < 2 {
			t.Fatalf("list versions: %v (%d)", err, len(list))
		}
		if list[0].Version != newer.Version || len(list[0].Features) != 2 || list[0].Features[1] != "c" {
			t.Fatalf("unexpected first entry: %+v", list[0])
		}
	})
}

func newSubject(owner string) domain.Subject {
	now := time.Now().UTC()
	return domain.Subject{ID: uuid.NewString(), OwnerID: owner, Name: "Biology", CreatedAt: now, UpdatedAt: now}
}

func newNote(subj domain.Subject) domain.Note {
	now := time.Now().UTC()
	return domain.Note{
		ID:               uuid.NewString(),
		SubjectID:        subj.ID,
		OwnerID:          subj.OwnerID,
		OriginalFilename: "a.pdf",
		BlobURL:          domain.PlaceholderBlobURL,
		SizeBytes:        1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
