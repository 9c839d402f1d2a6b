// Package evidence implements the evidence sealing protocol: the validation
// gate, draft lifecycle, attachments, sealing and follow-up work items.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/evidra/internal/domain"
)

// Store is the persistence the service needs.
type Store interface {
	Evidence() domain.EvidenceRepository
	WorkItems() domain.WorkItemRepository
	Audit() domain.AuditRepository
}

// EventPublisher fans committed audit events out to live subscribers.
type EventPublisher interface {
	PublishAuditEvent(ctx context.Context, ev *domain.AuditEvent) error
}

// WorkItemNotifier tells reviewers about new work items.
type WorkItemNotifier interface {
	NotifyWorkItem(ctx context.Context, w *domain.WorkItem) error
}

// Cipher encrypts attachment bytes at rest.
type Cipher interface {
	EncryptBytes(plaintext []byte) ([]byte, error)
	DecryptBytes(ciphertext []byte) ([]byte, error)
}

// Config tunes the gate and attachment limits.
type Config struct {
	MaxPayloadBytes int
	MaxFileBytes    int64
	Placeholders    []string
}

// DefaultMaxFileBytes caps uploaded attachments when Config leaves it unset.
const DefaultMaxFileBytes = 10 << 20

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type Option func(*Service)

func WithPublisher(p EventPublisher) Option { return func(s *Service) { s.publisher = p } }

func WithNotifier(n WorkItemNotifier) Option { return func(s *Service) { s.notifier = n } }

func WithMetrics(m *Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithCipher(c Cipher) Option { return func(s *Service) { s.cipher = c } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// Service is the evidence sealing engine. All operations are scoped to the
// tenant of the calling actor.
type Service struct {
	store        Store
	gate         *Gate
	maxFileBytes int64
	publisher    EventPublisher
	notifier     WorkItemNotifier
	metrics      *Metrics
	cipher       Cipher
	now          func() time.Time
}

func NewService(store Store, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:        store,
		gate:         NewGate(cfg.MaxPayloadBytes, cfg.Placeholders),
		maxFileBytes: cfg.MaxFileBytes,
		now:          time.Now,
	}
	if s.maxFileBytes <= 0 {
		s.maxFileBytes = DefaultMaxFileBytes
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Gate returns the validation gate used by the service.
func (s *Service) Gate() *Gate { return s.gate }

func (s *Service) event(ctx context.Context, actor domain.Actor, action, entityType string, id uuid.UUID, from, to, citation string) *domain.AuditEvent {
	ev := domain.NewAuditEvent(actor, action, entityType, id, from, to, citation, s.now().UTC())
	ev.CorrelationID = domain.CorrelationID(ctx)
	return ev
}

// publish is best effort; the events are already committed.
func (s *Service) publish(ctx context.Context, events ...*domain.AuditEvent) {
	if s.publisher == nil {
		return
	}
	for _, ev := range events {
		if ev == nil {
			continue
		}
		if err := s.publisher.PublishAuditEvent(ctx, ev); err != nil {
			log.Warn().Err(err).
				Str("tenant_id", ev.TenantID.String()).
				Str("action", ev.Action).
				Msg("publish audit event")
		}
	}
}

func (s *Service) notify(ctx context.Context, w *domain.WorkItem) {
	if s.notifier == nil || w == nil {
		return
	}
	if err := s.notifier.NotifyWorkItem(ctx, w); err != nil {
		log.Warn().Err(err).Str("work_item_id", w.ID.String()).Msg("notify work item")
	}
}

func requireWriter(actor domain.Actor) error {
	if !actor.CanWrite() {
		return domain.NewError(domain.CodeForbidden, fmt.Sprintf("role %q cannot modify evidence", actor.Role))
	}
	return nil
}

// stateError converts repository state sentinels into coded errors.
func stateError(err error) error {
	switch {
	case errors.Is(err, domain.ErrSealed):
		return domain.NewError(domain.CodeSealedImmutable, "draft is sealed and can no longer change")
	case errors.Is(err, domain.ErrQuarantined):
		return domain.NewError(domain.CodeDraftQuarantined, "draft is quarantined and can no longer change")
	default:
		return err
	}
}

func citationFor(m domain.EvidenceMetadata) string {
	if m.ContainsPersonalData {
		return domain.CitationGDPRProcessing
	}
	return domain.CitationCBAMRecordKeeping
}

func pageLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

func pageOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// ListAuditEvents returns the caller's tenant audit log, newest first.
func (s *Service) ListAuditEvents(ctx context.Context, actor domain.Actor, filter domain.AuditFilter) ([]*domain.AuditEvent, error) {
	filter.Limit = pageLimit(filter.Limit)
	filter.Offset = pageOffset(filter.Offset)

	events, err := s.store.Audit().ListByTenant(ctx, actor.TenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("evidence.ListAuditEvents: %w", err)
	}
	return events, nil
}
