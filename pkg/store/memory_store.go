package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"studyhub/pkg/domain"
)

// MemoryStore keeps records in-process. A single mutex makes every guarded
// insert atomic, matching the per-owner locking of GormStore.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]domain.User
	subjects map[string]domain.Subject
	notes    map[string]domain.Note
	sets     map[string]domain.FlashcardSet
	versions map[string]domain.VersionUpdate

	userWriteErr error
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		subjects: make(map[string]domain.Subject),
		notes:    make(map[string]domain.Note),
		sets:     make(map[string]domain.FlashcardSet),
		versions: make(map[string]domain.VersionUpdate),
	}
}

// FailUserWrites makes UpsertUser return err until called again with nil.
func (m *MemoryStore) FailUserWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userWriteErr = err
}

func (m *MemoryStore) UpsertUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userWriteErr != nil {
		return m.userWriteErr
	}
	if existing, ok := m.users[u.ID]; ok {
		u.CreatedAt = existing.CreatedAt
	}
	m.users[u.ID] = u
	return nil
}

func (m *MemoryStore) GetUser(_ context.Context, id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) CreateSubject(_ context.Context, s domain.Subject, ceiling int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ceiling > 0 && m.countSubjectsLocked(s.OwnerID) >= ceiling {
		return ErrCeilingReached
	}
	s.NoteCount, s.FlashcardSetCount = 0, 0
	m.subjects[s.ID] = s
	return nil
}

func (m *MemoryStore) GetSubject(_ context.Context, id string) (domain.Subject, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subjects[id]
	return s, ok, nil
}

func (m *MemoryStore) ListSubjectsByOwner(_ context.Context, ownerID string) ([]domain.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Subject, 0)
	for _, s := range m.subjects {
		if s.OwnerID == ownerID {
			res = append(res, s)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) RenameSubject(_ context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subjects[id]
	if !ok {
		return ErrNotFound
	}
	s.Name = name
	s.UpdatedAt = time.Now().UTC()
	m.subjects[id] = s
	return nil
}

func (m *MemoryStore) DeleteSubject(_ context.Context, id string) ([]domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subjects[id]; !ok {
		return nil, ErrNotFound
	}
	var removed []domain.Note
	for nid, n := range m.notes {
		if n.SubjectID == id {
			removed = append(removed, n)
			delete(m.notes, nid)
		}
	}
	for sid, f := range m.sets {
		if f.SubjectID == id {
			delete(m.sets, sid)
		}
	}
	delete(m.subjects, id)
	sort.Slice(removed, func(i, j int) bool { return removed[i].CreatedAt.Before(removed[j].CreatedAt) })
	return removed, nil
}

func (m *MemoryStore) CountSubjects(_ context.Context, ownerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countSubjectsLocked(ownerID), nil
}

func (m *MemoryStore) countSubjectsLocked(ownerID string) int {
	n := 0
	for _, s := range m.subjects {
		if s.OwnerID == ownerID {
			n++
		}
	}
	return n
}

func (m *MemoryStore) CreateNote(_ context.Context, n domain.Note, ceiling int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subjects[n.SubjectID]; !ok {
		return ErrNotFound
	}
	if ceiling > 0 && m.countNotesLocked(n.SubjectID) >= ceiling {
		return ErrCeilingReached
	}
	m.notes[n.ID] = n
	m.adjustSubjectLocked(n.SubjectID, 1, 0)
	return nil
}

func (m *MemoryStore) SetNoteBlob(_ context.Context, id, blobName, blobURL string, pageCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return ErrNotFound
	}
	n.BlobName = blobName
	n.BlobURL = blobURL
	n.PageCount = pageCount
	n.UpdatedAt = time.Now().UTC()
	m.notes[id] = n
	return nil
}

func (m *MemoryStore) GetNote(_ context.Context, id string) (domain.Note, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notes[id]
	return n, ok, nil
}

func (m *MemoryStore) ListNotes(_ context.Context, subjectID string) ([]domain.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Note, 0)
	for _, n := range m.notes {
		if n.SubjectID == subjectID {
			res = append(res, n)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) DeleteNote(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.notes, id)
	m.adjustSubjectLocked(n.SubjectID, -1, 0)
	return nil
}

func (m *MemoryStore) CountNotes(_ context.Context, subjectID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countNotesLocked(subjectID), nil
}

func (m *MemoryStore) ListPendingNotes(_ context.Context, createdBefore time.Time) ([]domain.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Note, 0)
	for _, n := range m.notes {
		if n.BlobURL == domain.PlaceholderBlobURL && n.CreatedAt.Before(createdBefore) {
			res = append(res, n)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) countNotesLocked(subjectID string) int {
	n := 0
	for _, note := range m.notes {
		if note.SubjectID == subjectID {
			n++
		}
	}
	return n
}

func (m *MemoryStore) CreateFlashcardSet(_ context.Context, f domain.FlashcardSet, ceiling int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subjects[f.SubjectID]; !ok {
		return ErrNotFound
	}
	if ceiling > 0 && m.countSetsLocked(f.SubjectID) >= ceiling {
		return ErrCeilingReached
	}
	f.Cards = slices.Clone(f.Cards)
	m.sets[f.ID] = f
	m.adjustSubjectLocked(f.SubjectID, 0, 1)
	return nil
}

func (m *MemoryStore) GetFlashcardSet(_ context.Context, id string) (domain.FlashcardSet, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.sets[id]
	return f, ok, nil
}

func (m *MemoryStore) ListFlashcardSets(_ context.Context, subjectID string) ([]domain.FlashcardSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.FlashcardSet, 0)
	for _, f := range m.sets {
		if f.SubjectID == subjectID {
			res = append(res, f)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) DeleteFlashcardSet(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.sets[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.sets, id)
	m.adjustSubjectLocked(f.SubjectID, 0, -1)
	return nil
}

func (m *MemoryStore) CountFlashcardSets(_ context.Context, subjectID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countSetsLocked(subjectID), nil
}

func (m *MemoryStore) countSetsLocked(subjectID string) int {
	n := 0
	for _, f := range m.sets {
		if f.SubjectID == subjectID {
			n++
		}
	}
	return n
}

func (m *MemoryStore) adjustSubjectLocked(subjectID string, notes, sets int) {
	s, ok := m.subjects[subjectID]
	if !ok {
		return
	}
	s.NoteCount = max(s.NoteCount+notes, 0)
	s.FlashcardSetCount = max(s.FlashcardSetCount+sets, 0)
	s.UpdatedAt = time.Now().UTC()
	m.subjects[subjectID] = s
}

func (m *MemoryStore) SaveVersionUpdate(_ context.Context, v domain.VersionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v.Features = slices.Clone(v.Features)
	m.versions[v.Version] = v
	return nil
}

func (m *MemoryStore) ListVersionUpdates(_ context.Context) ([]domain.VersionUpdate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.VersionUpdate, 0, len(m.versions))
	for _, v := range m.versions {
		res = append(res, v)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ReleaseDate.After(res[j].ReleaseDate) })
	return res, nil
}
