package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID            string `gorm:"primaryKey"`
	Email         string `gorm:"index"`
	DisplayName   string
	PhotoURL      string
	EmailVerified bool      `gorm:"not null;default:false"`
	AuthProvider  string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
	LastSignInAt  time.Time
	UpdatedAt     time.Time
}

type SubjectModel struct {
	ID                string    `gorm:"primaryKey"`
	OwnerID           string    `gorm:"not null;index"`
	Name              string    `gorm:"not null;size:100"`
	NoteCount         int       `gorm:"not null;default:0"`
	FlashcardSetCount int       `gorm:"not null;default:0"`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

type NoteModel struct {
	ID               string  `gorm:"primaryKey"`
	SubjectID        string  `gorm:"not null;index"`
	OwnerID          string  `gorm:"not null;index"`
	OriginalFilename string  `gorm:"not null;size:255"`
	BlobName         *string `gorm:"uniqueIndex"`
	BlobURL          string  `gorm:"not null"`
	SizeBytes        int64   `gorm:"not null"`
	PageCount        int
	CreatedAt        time.Time `gorm:"not null;index"`
	UpdatedAt        time.Time `gorm:"not null"`
}

type FlashcardSetModel struct {
	ID        string         `gorm:"primaryKey"`
	SubjectID string         `gorm:"not null;index"`
	OwnerID   string         `gorm:"not null;index"`
	Title     string         `gorm:"not null;size:100"`
	Cards     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null;index"`
	UpdatedAt time.Time      `gorm:"not null"`
}

type VersionUpdateModel struct {
	Version     string `gorm:"primaryKey"`
	Title       string `gorm:"not null"`
	Description string
	Features    datatypes.JSON `gorm:"type:jsonb"`
	ReleaseDate time.Time      `gorm:"not null;index"`
}
