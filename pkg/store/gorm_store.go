package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"studyhub/pkg/domain"
)

const migrateLockID int64 = 51731731

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &SubjectModel{}, &NoteModel{}, &FlashcardSetModel{}, &VersionUpdateModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// lockOwner serializes guarded inserts for one owner until the transaction ends.
// The lock does not depend on the owner row existing.
func lockOwner(tx *gorm.DB, key string) error {
	if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; err != nil {
		return fmt.Errorf("lock owner: %w", err)
	}
	return nil
}

// lockSubject row-locks a subject until the transaction ends. Child inserts
// and DeleteSubject both take it, so a child can never outlive its subject.
func lockSubject(tx *gorm.DB, id string) error {
	var model SubjectModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock subject: %w", err)
	}
	return nil
}

// UpsertUser creates the user or refreshes its provider-derived fields.
// created_at is only written on insert.
func (s *GormStore) UpsertUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "display_name", "photo_url", "email_verified", "auth_provider", "last_sign_in_at", "updated_at"}),
	}).Create(&model).Error
}

// GetUser returns a user by ID.
func (s *GormStore) GetUser(ctx context.Context, id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CreateSubject inserts a subject unless the owner already has ceiling subjects.
func (s *GormStore) CreateSubject(ctx context.Context, subj domain.Subject, ceiling int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOwner(tx, "subjects:"+subj.OwnerID); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&SubjectModel{}).Where("owner_id = ?", subj.OwnerID).Count(&count).Error; err != nil {
			return err
		}
		if ceiling > 0 && count >= int64(ceiling) {
			return ErrCeilingReached
		}
		model := subjectToModel(subj)
		return tx.Create(&model).Error
	})
}

// GetSubject retrieves a subject with its counters.
func (s *GormStore) GetSubject(ctx context.Context, id string) (domain.Subject, bool, error) {
	var model SubjectModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Subject{}, false, nil
		}
		return domain.Subject{}, false, err
	}
	return subjectFromModel(model), true, nil
}

// ListSubjectsByOwner returns the owner's subjects ordered by creation.
func (s *GormStore) ListSubjectsByOwner(ctx context.Context, ownerID string) ([]domain.Subject, error) {
	var models []SubjectModel
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Subject, 0, len(models))
	for _, m := range models {
		res = append(res, subjectFromModel(m))
	}
	return res, nil
}

// RenameSubject updates the subject name.
func (s *GormStore) RenameSubject(ctx context.Context, id, name string) error {
	res := s.db.WithContext(ctx).Model(&SubjectModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"name":       name,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSubject removes the subject, its notes and its flashcard sets.
func (s *GormStore) DeleteSubject(ctx context.Context, id string) ([]domain.Note, error) {
	var removed []NoteModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockSubject(tx, id); err != nil {
			return err
		}
		if err := tx.Where("subject_id = ?", id).Find(&removed).Error; err != nil {
			return err
		}
		if err := tx.Delete(&NoteModel{}, "subject_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&FlashcardSetModel{}, "subject_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&SubjectModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	notes := make([]domain.Note, 0, len(removed))
	for _, m := range removed {
		notes = append(notes, noteFromModel(m))
	}
	return notes, nil
}

// CountSubjects returns the number of subjects owned by ownerID.
func (s *GormStore) CountSubjects(ctx context.Context, ownerID string) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&SubjectModel{}).Where("owner_id = ?", ownerID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// CreateNote inserts a note and bumps the subject's note counter. It returns
// ErrNotFound when the subject is gone.
func (s *GormStore) CreateNote(ctx context.Context, n domain.Note, ceiling int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockSubject(tx, n.SubjectID); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&NoteModel{}).Where("subject_id = ?", n.SubjectID).Count(&count).Error; err != nil {
			return err
		}
		if ceiling > 0 && count >= int64(ceiling) {
			return ErrCeilingReached
		}
		model := noteToModel(n)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		return bumpCounter(tx, n.SubjectID, "note_count", 1)
	})
}

// SetNoteBlob records the stored object behind a note.
func (s *GormStore) SetNoteBlob(ctx context.Context, id, blobName, blobURL string, pageCount int) error {
	var name *string
	if blobName != "" {
		name = &blobName
	}
	res := s.db.WithContext(ctx).Model(&NoteModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"blob_name":  name,
			"blob_url":   blobURL,
			"page_count": pageCount,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetNote retrieves a note.
func (s *GormStore) GetNote(ctx context.Context, id string) (domain.Note, bool, error) {
	var model NoteModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Note{}, false, nil
		}
		return domain.Note{}, false, err
	}
	return noteFromModel(model), true, nil
}

// ListNotes returns the notes of a subject ordered by upload time.
func (s *GormStore) ListNotes(ctx context.Context, subjectID string) ([]domain.Note, error) {
	var models []NoteModel
	if err := s.db.WithContext(ctx).Where("subject_id = ?", subjectID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Note, 0, len(models))
	for _, m := range models {
		res = append(res, noteFromModel(m))
	}
	return res, nil
}

// DeleteNote removes a note and decrements the subject's counter.
func (s *GormStore) DeleteNote(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model NoteModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Delete(&NoteModel{}, "id = ?", id).Error; err != nil {
			return err
		}
		return bumpCounter(tx, model.SubjectID, "note_count", -1)
	})
}

// CountNotes returns the number of notes in a subject.
func (s *GormStore) CountNotes(ctx context.Context, subjectID string) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&NoteModel{}).Where("subject_id = ?", subjectID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// ListPendingNotes returns placeholder notes older than createdBefore.
func (s *GormStore) ListPendingNotes(ctx context.Context, createdBefore time.Time) ([]domain.Note, error) {
	var models []NoteModel
	if err := s.db.WithContext(ctx).
		Where("blob_url = ? AND created_at < ?", domain.PlaceholderBlobURL, createdBefore).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Note, 0, len(models))
	for _, m := range models {
		res = append(res, noteFromModel(m))
	}
	return res, nil
}

// CreateFlashcardSet inserts a set and bumps the subject's set counter. It
// returns ErrNotFound when the subject is gone.
func (s *GormStore) CreateFlashcardSet(ctx context.Context, f domain.FlashcardSet, ceiling int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockSubject(tx, f.SubjectID); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&FlashcardSetModel{}).Where("subject_id = ?", f.SubjectID).Count(&count).Error; err != nil {
			return err
		}
		if ceiling > 0 && count >= int64(ceiling) {
			return ErrCeilingReached
		}
		model := flashcardSetToModel(f)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		return bumpCounter(tx, f.SubjectID, "flashcard_set_count", 1)
	})
}

// GetFlashcardSet retrieves a flashcard set.
func (s *GormStore) GetFlashcardSet(ctx context.Context, id string) (domain.FlashcardSet, bool, error) {
	var model FlashcardSetModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.FlashcardSet{}, false, nil
		}
		return domain.FlashcardSet{}, false, err
	}
	return flashcardSetFromModel(model), true, nil
}

// ListFlashcardSets returns a subject's sets ordered by creation.
func (s *GormStore) ListFlashcardSets(ctx context.Context, subjectID string) ([]domain.FlashcardSet, error) {
	var models []FlashcardSetModel
	if err := s.db.WithContext(ctx).Where("subject_id = ?", subjectID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.FlashcardSet, 0, len(models))
	for _, m := range models {
		res = append(res, flashcardSetFromModel(m))
	}
	return res, nil
}

// DeleteFlashcardSet removes a set and decrements the subject's counter.
func (s *GormStore) DeleteFlashcardSet(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model FlashcardSetModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Delete(&FlashcardSetModel{}, "id = ?", id).Error; err != nil {
			return err
		}
		return bumpCounter(tx, model.SubjectID, "flashcard_set_count", -1)
	})
}

// CountFlashcardSets returns the number of sets in a subject.
func (s *GormStore) CountFlashcardSets(ctx context.Context, subjectID string) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&FlashcardSetModel{}).Where("subject_id = ?", subjectID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// SaveVersionUpdate inserts or replaces a changelog entry keyed by version.
func (s *GormStore) SaveVersionUpdate(ctx context.Context, v domain.VersionUpdate) error {
	model := versionUpdateToModel(v)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "version"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "description", "features", "release_date"}),
	}).Create(&model).Error
}

// ListVersionUpdates returns the changelog, newest release first.
func (s *GormStore) ListVersionUpdates(ctx context.Context) ([]domain.VersionUpdate, error) {
	var models []VersionUpdateModel
	if err := s.db.WithContext(ctx).Order("release_date DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.VersionUpdate, 0, len(models))
	for _, m := range models {
		res = append(res, versionUpdateFromModel(m))
	}
	return res, nil
}

// bumpCounter adjusts a subject counter, never below zero. The subject may
// already be gone when a child delete races a cascade; that is not an error.
func bumpCounter(tx *gorm.DB, subjectID, column string, delta int) error {
	q := tx.Model(&SubjectModel{}).Where("id = ?", subjectID)
	if delta < 0 {
		q = q.Where(column + " > 0")
	}
	return q.Updates(map[string]any{
		column:       gorm.Expr(column+" + ?", delta),
		"updated_at": time.Now().UTC(),
	}).Error
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:            u.ID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		PhotoURL:      u.PhotoURL,
		EmailVerified: u.EmailVerified,
		AuthProvider:  u.AuthProvider,
		CreatedAt:     u.CreatedAt,
		LastSignInAt:  u.LastSignInAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	provider := m.AuthProvider
	if provider == "" {
		provider = domain.DefaultAuthProvider
	}
	return domain.User{
		ID:            m.ID,
		Email:         m.Email,
		DisplayName:   m.DisplayName,
		PhotoURL:      m.PhotoURL,
		EmailVerified: m.EmailVerified,
		AuthProvider:  provider,
		CreatedAt:     m.CreatedAt,
		LastSignInAt:  m.LastSignInAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func subjectToModel(s domain.Subject) SubjectModel {
	return SubjectModel{
		ID:        s.ID,
		OwnerID:   s.OwnerID,
		Name:      s.Name,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func subjectFromModel(m SubjectModel) domain.Subject {
	return domain.Subject{
		ID:                m.ID,
		OwnerID:           m.OwnerID,
		Name:              m.Name,
		NoteCount:         m.NoteCount,
		FlashcardSetCount: m.FlashcardSetCount,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func noteToModel(n domain.Note) NoteModel {
	var name *string
	if n.BlobName != "" {
		value := n.BlobName
		name = &value
	}
	return NoteModel{
		ID:               n.ID,
		SubjectID:        n.SubjectID,
		OwnerID:          n.OwnerID,
		OriginalFilename: n.OriginalFilename,
		BlobName:         name,
		BlobURL:          n.BlobURL,
		SizeBytes:        n.SizeBytes,
		PageCount:        n.PageCount,
		CreatedAt:        n.CreatedAt,
		UpdatedAt:        n.UpdatedAt,
	}
}

func noteFromModel(m NoteModel) domain.Note {
	name := ""
	if m.BlobName != nil {
		name = *m.BlobName
	}
	return domain.Note{
		ID:               m.ID,
		SubjectID:        m.SubjectID,
		OwnerID:          m.OwnerID,
		OriginalFilename: m.OriginalFilename,
		BlobName:         name,
		BlobURL:          m.BlobURL,
		SizeBytes:        m.SizeBytes,
		PageCount:        m.PageCount,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func flashcardSetToModel(f domain.FlashcardSet) FlashcardSetModel {
	cards, _ := json.Marshal(f.Cards)
	return FlashcardSetModel{
		ID:        f.ID,
		SubjectID: f.SubjectID,
		OwnerID:   f.OwnerID,
		Title:     f.Title,
		Cards:     cards,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

func flashcardSetFromModel(m FlashcardSetModel) domain.FlashcardSet {
	var cards []domain.Flashcard
	if len(m.Cards) > 0 {
		_ = json.Unmarshal(m.Cards, &cards)
	}
	return domain.FlashcardSet{
		ID:        m.ID,
		SubjectID: m.SubjectID,
		OwnerID:   m.OwnerID,
		Title:     m.Title,
		Cards:     cards,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func versionUpdateToModel(v domain.VersionUpdate) VersionUpdateModel {
	features, _ := json.Marshal(v.Features)
	return VersionUpdateModel{
		Version:     v.Version,
		Title:       v.Title,
		Description: v.Description,
		Features:    features,
		ReleaseDate: v.ReleaseDate,
	}
}

func versionUpdateFromModel(m VersionUpdateModel) domain.VersionUpdate {
	var features []string
	if len(m.Features) > 0 {
		_ = json.Unmarshal(m.Features, &features)
	}
	return domain.VersionUpdate{
		Version:     m.Version,
		Title:       m.Title,
		Description: m.Description,
		Features:    features,
		ReleaseDate: m.ReleaseDate,
	}
}
