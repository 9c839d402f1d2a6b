// Package memory is an in-process store with the same atomicity guarantees as
// the Postgres store. It backs tests and single-node development runs.
package memory

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/domain"
)

type draftKey struct {
	tenantID  uuid.UUID
	requestID string
}

type Store struct {
	mu sync.RWMutex

	drafts        map[uuid.UUID]*domain.EvidenceDraft
	draftRequests map[draftKey]uuid.UUID
	attachments   map[uuid.UUID]*domain.Attachment
	records       map[uuid.UUID]*domain.EvidenceRecord
	recordByDraft map[uuid.UUID]uuid.UUID
	workItems     map[uuid.UUID]*domain.WorkItem
	events        []*domain.AuditEvent
}

func New() *Store {
	return &Store{
		drafts:        make(map[uuid.UUID]*domain.EvidenceDraft),
		draftRequests: make(map[draftKey]uuid.UUID),
		attachments:   make(map[uuid.UUID]*domain.Attachment),
		records:       make(map[uuid.UUID]*domain.EvidenceRecord),
		recordByDraft: make(map[uuid.UUID]uuid.UUID),
		workItems:     make(map[uuid.UUID]*domain.WorkItem),
	}
}

func (s *Store) Evidence() domain.EvidenceRepository  { return &EvidenceRepo{s: s} }
func (s *Store) WorkItems() domain.WorkItemRepository { return &WorkItemRepo{s: s} }
func (s *Store) Audit() domain.AuditRepository        { return &AuditRepo{s: s} }

// appendEvents must be called with mu held for writing.
func (s *Store) appendEvents(events ...*domain.AuditEvent) {
	for _, ev := range events {
		if ev == nil {
			continue
		}
		cp := *ev
		s.events = append(s.events, &cp)
	}
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// sortNewestFirst orders by creation time descending, then id for stability.
func sortNewestFirst[T any](items []T, key func(T) (int64, uuid.UUID)) {
	sort.Slice(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if ti != tj {
			return ti > tj
		}
		return idi.String() < idj.String()
	})
}
