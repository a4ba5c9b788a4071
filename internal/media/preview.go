package media

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/DukeRupert/pinreport/internal/domain"
)

const previewScheme = "blob:pinreport/"

// PreviewRegistry hands out local preview references for prepared photos.
// Every reference must be revoked when its photo leaves the pending list.
type PreviewRegistry struct {
	mu   sync.Mutex
	live map[string]int64
}

func NewPreviewRegistry() *PreviewRegistry {
	return &PreviewRegistry{live: make(map[string]int64)}
}

// Create registers a preview for blob and returns its reference.
func (r *PreviewRegistry) Create(blob domain.Blob) string {
	uri := previewScheme + uuid.New().String()

	r.mu.Lock()
	r.live[uri] = blob.Size()
	r.mu.Unlock()

	return uri
}

// Revoke releases a preview. It reports whether the reference was live.
func (r *PreviewRegistry) Revoke(uri string) bool {
	if !strings.HasPrefix(uri, previewScheme) {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.live[uri]; !ok {
		return false
	}
	delete(r.live, uri)
	return true
}

// Outstanding returns the number of previews not yet revoked.
func (r *PreviewRegistry) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// =============================================================================
// Pending list
// =============================================================================

// PendingList holds the photos attached to a draft before submission.
// Removing an item, or clearing the list, revokes its preview.
type PendingList struct {
	previews *PreviewRegistry

	mu    sync.Mutex
	items []domain.PreparedMedia
}

func NewPendingList(previews *PreviewRegistry) *PendingList {
	return &PendingList{previews: previews}
}

func (l *PendingList) Add(m domain.PreparedMedia) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, m)
}

// Remove drops the item at index i.
func (l *PendingList) Remove(i int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if i < 0 || i >= len(l.items) {
		return fmt.Errorf("pending photo index %d out of range [0,%d)", i, len(l.items))
	}
	l.previews.Revoke(l.items[i].PreviewURI)
	l.items = append(l.items[:i], l.items[i+1:]...)
	return nil
}

// Clear revokes every preview and empties the list. Call it after a
// successful submit and when the draft is abandoned.
func (l *PendingList) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, m := range l.items {
		l.previews.Revoke(m.PreviewURI)
	}
	l.items = nil
}

// Items returns a copy of the pending photos.
func (l *PendingList) Items() []domain.PreparedMedia {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.PreparedMedia, len(l.items))
	copy(out, l.items)
	return out
}

func (l *PendingList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
