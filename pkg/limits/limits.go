package limits

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Limits holds every ceiling enforced by the service. Build it once at startup
// and pass it by value; it is never mutated afterwards.
type Limits struct {
	MaxSubjectsPerUser         int           `yaml:"maxSubjectsPerUser"`
	MaxNotesPerSubject         int           `yaml:"maxNotesPerSubject"`
	MaxFlashcardSetsPerSubject int           `yaml:"maxFlashcardSetsPerSubject"`
	MaxFlashcardsPerSet        int           `yaml:"maxFlashcardsPerSet"`
	MaxFileSizeBytes           int64         `yaml:"maxFileSizeBytes"`
	AllowedFileExtensions      []string      `yaml:"allowedFileExtensions"`
	MaxSubjectNameLength       int           `yaml:"maxSubjectNameLength"`
	MaxNoteFilenameLength      int           `yaml:"maxNoteFilenameLength"`
	MaxSetTitleLength          int           `yaml:"maxSetTitleLength"`
	MaxFlashcardQuestionLength int           `yaml:"maxFlashcardQuestionLength"`
	MaxFlashcardAnswerLength   int           `yaml:"maxFlashcardAnswerLength"`
	MaxChatMessageLength       int           `yaml:"maxChatMessageLength"`
	RateLimitWindow            time.Duration `yaml:"rateLimitWindow"`
	GeneralRequestsPerWindow   int           `yaml:"generalRequestsPerWindow"`
	UploadRequestsPerWindow    int           `yaml:"uploadRequestsPerWindow"`
	AIRequestsPerWindow        int           `yaml:"aiRequestsPerWindow"`
}

// Default returns the stock ceilings.
func Default() Limits {
	return Limits{
		MaxSubjectsPerUser:         10,
		MaxNotesPerSubject:         10,
		MaxFlashcardSetsPerSubject: 20,
		MaxFlashcardsPerSet:        100,
		MaxFileSizeBytes:           10 * 1024 * 1024,
		AllowedFileExtensions:      []string{".pdf"},
		MaxSubjectNameLength:       100,
		MaxNoteFilenameLength:      255,
		MaxSetTitleLength:          100,
		MaxFlashcardQuestionLength: 500,
		MaxFlashcardAnswerLength:   1000,
		MaxChatMessageLength:       2000,
		RateLimitWindow:            15 * time.Minute,
		GeneralRequestsPerWindow:   100,
		UploadRequestsPerWindow:    10,
		AIRequestsPerWindow:        30,
	}
}

// WithDefaults fills zero-valued fields from Default.
func (l Limits) WithDefaults() Limits {
	d := Default()
	if l.MaxSubjectsPerUser == 0 {
		l.MaxSubjectsPerUser = d.MaxSubjectsPerUser
	}
	if l.MaxNotesPerSubject == 0 {
		l.MaxNotesPerSubject = d.MaxNotesPerSubject
	}
	if l.MaxFlashcardSetsPerSubject == 0 {
		l.MaxFlashcardSetsPerSubject = d.MaxFlashcardSetsPerSubject
	}
	if l.MaxFlashcardsPerSet == 0 {
		l.MaxFlashcardsPerSet = d.MaxFlashcardsPerSet
	}
	if l.MaxFileSizeBytes == 0 {
		l.MaxFileSizeBytes = d.MaxFileSizeBytes
	}
	if len(l.AllowedFileExtensions) == 0 {
		l.AllowedFileExtensions = d.AllowedFileExtensions
	}
	if l.MaxSubjectNameLength == 0 {
		l.MaxSubjectNameLength = d.MaxSubjectNameLength
	}
	if l.MaxNoteFilenameLength == 0 {
		l.MaxNoteFilenameLength = d.MaxNoteFilenameLength
	}
	if l.MaxSetTitleLength == 0 {
		l.MaxSetTitleLength = d.MaxSetTitleLength
	}
	if l.MaxFlashcardQuestionLength == 0 {
		l.MaxFlashcardQuestionLength = d.MaxFlashcardQuestionLength
	}
	if l.MaxFlashcardAnswerLength == 0 {
		l.MaxFlashcardAnswerLength = d.MaxFlashcardAnswerLength
	}
	if l.MaxChatMessageLength == 0 {
		l.MaxChatMessageLength = d.MaxChatMessageLength
	}
	if l.RateLimitWindow == 0 {
		l.RateLimitWindow = d.RateLimitWindow
	}
	if l.GeneralRequestsPerWindow == 0 {
		l.GeneralRequestsPerWindow = d.GeneralRequestsPerWindow
	}
	if l.UploadRequestsPerWindow == 0 {
		l.UploadRequestsPerWindow = d.UploadRequestsPerWindow
	}
	if l.AIRequestsPerWindow == 0 {
		l.AIRequestsPerWindow = d.AIRequestsPerWindow
	}
	return l
}

// Validate reports the first non-positive ceiling.
func (l Limits) Validate() error {
	counts := []struct {
		name  string
		value int64
	}{
		{"maxSubjectsPerUser", int64(l.MaxSubjectsPerUser)},
		{"maxNotesPerSubject", int64(l.MaxNotesPerSubject)},
		{"maxFlashcardSetsPerSubject", int64(l.MaxFlashcardSetsPerSubject)},
		{"maxFlashcardsPerSet", int64(l.MaxFlashcardsPerSet)},
		{"maxFileSizeBytes", l.MaxFileSizeBytes},
		{"maxSubjectNameLength", int64(l.MaxSubjectNameLength)},
		{"maxNoteFilenameLength", int64(l.MaxNoteFilenameLength)},
		{"maxSetTitleLength", int64(l.MaxSetTitleLength)},
		{"maxFlashcardQuestionLength", int64(l.MaxFlashcardQuestionLength)},
		{"maxFlashcardAnswerLength", int64(l.MaxFlashcardAnswerLength)},
		{"maxChatMessageLength", int64(l.MaxChatMessageLength)},
		{"rateLimitWindow", int64(l.RateLimitWindow)},
		{"generalRequestsPerWindow", int64(l.GeneralRequestsPerWindow)},
		{"uploadRequestsPerWindow", int64(l.UploadRequestsPerWindow)},
		{"aiRequestsPerWindow", int64(l.AIRequestsPerWindow)},
	}
	for _, c := range counts {
		if c.value <= 0 {
			return fmt.Errorf("limits: %s must be > 0", c.name)
		}
	}
	if len(l.AllowedFileExtensions) == 0 {
		return errors.New("limits: allowedFileExtensions must not be empty")
	}
	for _, ext := range l.AllowedFileExtensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("limits: invalid extension %q (want \".ext\")", ext)
		}
	}
	return nil
}

// IsValidFileSize reports whether 0 < n <= MaxFileSizeBytes.
func (l Limits) IsValidFileSize(n int64) bool {
	return n > 0 && n <= l.MaxFileSizeBytes
}

// IsValidFileType reports whether the lowercased suffix after the final "."
// is in the allow-list. A name without "." never matches.
func (l Limits) IsValidFileType(name string) bool {
	ext := extension(name)
	if ext == "" {
		return false
	}
	for _, allowed := range l.AllowedFileExtensions {
		if strings.ToLower(allowed) == ext {
			return true
		}
	}
	return false
}

// IsValidStringLength reports whether 0 < len(s) <= max, counting runes.
func IsValidStringLength(s string, max int) bool {
	n := utf8.RuneCountInString(s)
	return n > 0 && n <= max
}

// IsValidFileSize applies Default().IsValidFileSize.
func IsValidFileSize(n int64) bool {
	return Default().IsValidFileSize(n)
}

// IsValidFileType applies Default().IsValidFileType.
func IsValidFileType(name string) bool {
	return Default().IsValidFileType(name)
}

func extension(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i:])
}

// CheckUpload validates an uploaded note file.
func (l Limits) CheckUpload(filename string, size int64) error {
	if !IsValidStringLength(filename, l.MaxNoteFilenameLength) {
		return &ValidationError{Field: "filename", Reason: "length out of range", Limit: int64(l.MaxNoteFilenameLength)}
	}
	if !l.IsValidFileType(filename) {
		return &ValidationError{Field: "filename", Reason: "unsupported file type, allowed: " + strings.Join(l.AllowedFileExtensions, ",")}
	}
	if !l.IsValidFileSize(size) {
		return &ValidationError{Field: "file", Reason: "size out of range", Limit: l.MaxFileSizeBytes}
	}
	return nil
}

// CheckSubjectName validates a subject name.
func (l Limits) CheckSubjectName(name string) error {
	if !IsValidStringLength(name, l.MaxSubjectNameLength) {
		return &ValidationError{Field: "name", Reason: "length out of range", Limit: int64(l.MaxSubjectNameLength)}
	}
	return nil
}

// CheckSetTitle validates a flashcard set title.
func (l Limits) CheckSetTitle(title string) error {
	if !IsValidStringLength(title, l.MaxSetTitleLength) {
		return &ValidationError{Field: "title", Reason: "length out of range", Limit: int64(l.MaxSetTitleLength)}
	}
	return nil
}

// CheckFlashcard validates one question/answer pair.
func (l Limits) CheckFlashcard(question, answer string) error {
	if !IsValidStringLength(question, l.MaxFlashcardQuestionLength) {
		return &ValidationError{Field: "question", Reason: "length out of range", Limit: int64(l.MaxFlashcardQuestionLength)}
	}
	if !IsValidStringLength(answer, l.MaxFlashcardAnswerLength) {
		return &ValidationError{Field: "answer", Reason: "length out of range", Limit: int64(l.MaxFlashcardAnswerLength)}
	}
	return nil
}

// CheckChatMessage validates a chat message body.
func (l Limits) CheckChatMessage(msg string) error {
	if !IsValidStringLength(msg, l.MaxChatMessageLength) {
		return &ValidationError{Field: "message", Reason: "length out of range", Limit: int64(l.MaxChatMessageLength)}
	}
	return nil
}
