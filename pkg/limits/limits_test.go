package limits

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIsValidFileSize(t *testing.T) {
	cases := []struct {
		n    int64
		want bool
	}{
		{-1, false},
		{0, false},
		{1, true},
		{2 * 1024 * 1024, true},
		{10 * 1024 * 1024, true},
		{10*1024*1024 + 1, false},
	}
	for _, tc := range cases {
		if got := IsValidFileSize(tc.n); got != tc.want {
			t.Fatalf("IsValidFileSize(%d) = %v, want %v", tc.n, got, tc.want)
		}
	}
}

func TestIsValidFileType(t *testing.T) {
	cases := map[string]bool{
		"notes.pdf":  true,
		"Notes.PDF":  true,
		"a.b.pdf":    true,
		"notes":      false,
		"a.tar.gz":   false,
		"pdf":        false,
		"notes.pdf.": false,
		"":           false,
		".pdf":       true,
	}
	for name, want := range cases {
		if got := IsValidFileType(name); got != want {
			t.Fatalf("IsValidFileType(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestIsValidStringLength(t *testing.T) {
	for _, max := range []int{0, 1, 100} {
		if IsValidStringLength("", max) {
			t.Fatalf("empty string must be invalid for max=%d", max)
		}
	}
	if !IsValidStringLength("a", 1) {
		t.Fatalf("single rune should fit max=1")
	}
	if IsValidStringLength("ab", 1) {
		t.Fatalf("two runes must exceed max=1")
	}
	if !IsValidStringLength("日本", 2) {
		t.Fatalf("length must count runes, not bytes")
	}
}

func TestDefaultCeilings(t *testing.T) {
	l := Default()
	if l.MaxSubjectsPerUser != 10 || l.MaxNotesPerSubject != 10 || l.MaxFlashcardSetsPerSubject != 20 {
		t.Fatalf("unexpected count ceilings: %+v", l)
	}
	if l.RateLimitWindow != 15*time.Minute || l.GeneralRequestsPerWindow != 100 || l.UploadRequestsPerWindow != 10 || l.AIRequestsPerWindow != 30 {
		t.Fatalf("unexpected rate ceilings: %+v", l)
	}
	if err := l.Validate(); err != nil {
		t.Fatalf("default limits should validate: %v", err)
	}
}

func TestWithDefaultsKeepsOverrides(t *testing.T) {
	l := Limits{MaxSubjectsPerUser: 3}.WithDefaults()
	if l.MaxSubjectsPerUser != 3 {
		t.Fatalf("override lost: %d", l.MaxSubjectsPerUser)
	}
	if l.MaxNotesPerSubject != 10 {
		t.Fatalf("default not applied: %d", l.MaxNotesPerSubject)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	l := Default()
	l.MaxNotesPerSubject = 0
	if err := l.Validate(); err == nil {
		t.Fatalf("expected zero ceiling to fail")
	}
	l = Default()
	l.AllowedFileExtensions = []string{"pdf"}
	if err := l.Validate(); err == nil {
		t.Fatalf("expected extension without dot to fail")
	}
}

func TestCheckUpload(t *testing.T) {
	l := Default()
	if err := l.CheckUpload("Chapter 1.pdf", 2*1024*1024); err != nil {
		t.Fatalf("valid upload rejected: %v", err)
	}
	err := l.CheckUpload("notes.docx", 10)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "filename" {
		t.Fatalf("expected filename validation error, got %v", err)
	}
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("validation error should match ErrInvalid")
	}
	if err := l.CheckUpload("big.pdf", l.MaxFileSizeBytes+1); err == nil {
		t.Fatalf("oversized upload accepted")
	}
	if err := l.CheckUpload(strings.Repeat("a", 252)+".pdf", 1); err == nil {
		t.Fatalf("overlong filename accepted")
	}
}

func TestCheckFlashcardAndSubject(t *testing.T) {
	l := Default()
	if err := l.CheckFlashcard("q", "a"); err != nil {
		t.Fatalf("valid card rejected: %v", err)
	}
	if err := l.CheckFlashcard("", "a"); err == nil {
		t.Fatalf("empty question accepted")
	}
	if err := l.CheckFlashcard("q", strings.Repeat("a", 1001)); err == nil {
		t.Fatalf("overlong answer accepted")
	}
	if err := l.CheckSubjectName(strings.Repeat("s", 101)); err == nil {
		t.Fatalf("overlong subject name accepted")
	}
	if err := l.CheckChatMessage(strings.Repeat("m", 2000)); err != nil {
		t.Fatalf("chat message at ceiling rejected: %v", err)
	}
}
