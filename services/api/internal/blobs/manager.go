// Package blobs names, uploads and removes the PDF objects behind notes.
package blobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"studyhub/internal/util"
	"studyhub/pkg/queue"
	"studyhub/pkg/storage"
)

// ContentType is set on every uploaded note.
const ContentType = "application/pdf"

const placeholderScheme = "placeholder://"

// Ref locates an uploaded blob.
type Ref struct {
	Name string
	URL  string
}

// Outcome reports a best-effort deletion. Callers may log Err but must not
// fail the surrounding operation on it.
type Outcome struct {
	// Skipped is set when there was nothing to delete (empty or placeholder URL).
	Skipped bool
	Deleted bool
	Name    string
	Err     error
	// Queued is set when a failed deletion was handed to the cleanup queue.
	Queued bool
}

// CleanupQueue retries deletions that failed inline.
type CleanupQueue interface {
	Enqueue(ctx context.Context, blobName string) (queue.CleanupJob, error)
	Start(ctx context.Context, concurrency int, handler queue.Handler)
}

type Manager struct {
	store storage.ObjectStore
	queue CleanupQueue
	now   func() time.Time
}

// NewManager wires a manager. cleanup may be nil, in which case failed
// deletions are only logged.
func NewManager(store storage.ObjectStore, cleanup CleanupQueue) (*Manager, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	return &Manager{store: store, queue: cleanup, now: time.Now}, nil
}

// Upload stores r as userID/subjectID/<epochMillis>-<sanitized name>.
// Two uploads of the same name by the same owner in the same millisecond
// share a name and the later one wins.
func (m *Manager) Upload(ctx context.Context, userID, subjectID string, r io.Reader, size int64, originalFileName string) (Ref, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(subjectID) == "" {
		return Ref{}, errors.New("blob owner and subject are required")
	}
	name := BlobName(userID, subjectID, originalFileName, m.now())
	if err := m.store.Put(ctx, name, r, size, ContentType); err != nil {
		return Ref{}, fmt.Errorf("upload %s: %w", name, err)
	}
	return Ref{Name: name, URL: m.store.URL(name)}, nil
}

// DeleteByURL removes the blob a note points at. It never returns an error;
// the Outcome says what happened. A missing object counts as deleted.
func (m *Manager) DeleteByURL(ctx context.Context, blobURL string) Outcome {
	blobURL = strings.TrimSpace(blobURL)
	if blobURL == "" || strings.HasPrefix(blobURL, placeholderScheme) {
		return Outcome{Skipped: true}
	}
	logger := util.LoggerFromContext(ctx)
	name, err := m.NameFromURL(blobURL)
	if err != nil {
		logger.Warn("blob cleanup skipped: unresolvable url", "url", blobURL, "err", err)
		return Outcome{Err: err}
	}
	return m.DeleteByName(ctx, name)
}

// DeleteByName is DeleteByURL for an already resolved name.
func (m *Manager) DeleteByName(ctx context.Context, name string) Outcome {
	out := Outcome{Name: name}
	err := m.store.DeleteIfExists(ctx, name)
	if err == nil {
		out.Deleted = true
		return out
	}
	out.Err = err
	logger := util.LoggerFromContext(ctx)
	logger.Warn("blob cleanup failed", "blob", name, "err", err)
	if m.queue == nil {
		return out
	}
	if _, qerr := m.queue.Enqueue(ctx, name); qerr != nil {
		logger.Warn("blob cleanup enqueue failed", "blob", name, "err", qerr)
		return out
	}
	out.Queued = true
	return out
}

// NameFromURL resolves a stored blob URL back to its object name. URLs under
// the store's base keep everything after it; other URLs drop their first
// path segment, the container.
func (m *Manager) NameFromURL(blobURL string) (string, error) {
	base := strings.TrimRight(m.store.BaseURL(), "/")
	if base != "" {
		if rest, ok := strings.CutPrefix(blobURL, base+"/"); ok {
			rest, _, _ = strings.Cut(rest, "?")
			name, err := url.PathUnescape(rest)
			if err != nil {
				return "", fmt.Errorf("unescape blob name: %w", err)
			}
			if name == "" {
				return "", errors.New("blob url has no object name")
			}
			return name, nil
		}
	}
	u, err := url.Parse(blobURL)
	if err != nil {
		return "", fmt.Errorf("parse blob url: %w", err)
	}
	_, name, ok := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if !ok || name == "" {
		return "", fmt.Errorf("blob url %q has no object name", blobURL)
	}
	return name, nil
}

// DownloadURL returns a time-limited read URL for name.
func (m *Manager) DownloadURL(ctx context.Context, name string, expiry time.Duration) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("blob name is required")
	}
	return m.store.PresignGet(ctx, name, expiry)
}

// RunCleanup starts queue consumers that retry failed deletions until ctx is
// done.
func (m *Manager) RunCleanup(ctx context.Context, concurrency int) error {
	if m.queue == nil {
		return errors.New("cleanup queue is not configured")
	}
	m.queue.Start(ctx, concurrency, func(ctx context.Context, job queue.CleanupJob) error {
		return m.store.DeleteIfExists(ctx, job.BlobName)
	})
	return nil
}

// BlobName builds the object name for an upload at t.
func BlobName(userID, subjectID, originalFileName string, t time.Time) string {
	return fmt.Sprintf("%s/%s/%d-%s", userID, subjectID, t.UnixMilli(), SanitizeFileName(originalFileName))
}

// SanitizeFileName replaces every rune outside [A-Za-z0-9._-] with '_'.
func SanitizeFileName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
