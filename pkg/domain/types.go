package domain

import "time"

// ResourceKind names a quota-bounded resource.
type ResourceKind string

const (
	KindSubject      ResourceKind = "subject"
	KindNote         ResourceKind = "note"
	KindFlashcardSet ResourceKind = "flashcardSet"
)

// DefaultAuthProvider is used when the identity provider reports no linked identity.
const DefaultAuthProvider = "email"

// PlaceholderBlobURL marks a note whose file has not been stored (yet).
const PlaceholderBlobURL = "placeholder://pending"

// User is the local cache of an identity-provider account.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email,omitempty"`
	DisplayName   string    `json:"displayName"`
	PhotoURL      string    `json:"photoURL,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	AuthProvider  string    `json:"authProvider"`
	CreatedAt     time.Time `json:"createdAt"`
	LastSignInAt  time.Time `json:"lastSignInAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type Subject struct {
	ID                string    `json:"id"`
	OwnerID           string    `json:"ownerId"`
	Name              string    `json:"name"`
	NoteCount         int       `json:"noteCount"`
	FlashcardSetCount int       `json:"flashcardSetCount"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type Note struct {
	ID               string    `json:"id"`
	SubjectID        string    `json:"subjectId"`
	OwnerID          string    `json:"ownerId"`
	OriginalFilename string    `json:"originalFilename"`
	BlobName         string    `json:"-"`
	BlobURL          string    `json:"blobUrl"`
	SizeBytes        int64     `json:"sizeBytes"`
	PageCount        int       `json:"pageCount,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type Flashcard struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type FlashcardSet struct {
	ID        string      `json:"id"`
	SubjectID string      `json:"subjectId"`
	OwnerID   string      `json:"ownerId"`
	Title     string      `json:"title"`
	Cards     []Flashcard `json:"cards"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// VersionUpdate is an entry of the release changelog.
type VersionUpdate struct {
	Version     string    `json:"version" yaml:"version"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description" yaml:"description"`
	Features    []string  `json:"features" yaml:"features"`
	ReleaseDate time.Time `json:"releaseDate" yaml:"releaseDate"`
}
