package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/evidra/internal/domain"
	"github.com/gosuda/evidra/internal/evidence"
)

// Store is the persistence the registry needs.
type Store interface {
	Evidence() domain.EvidenceRepository
	Audit() domain.AuditRepository
}

// Result is the outcome of a registry action.
type Result struct {
	Action        string
	Valid         bool
	Issues        []Issue
	DeclarationID uuid.UUID
	Document      []byte
	SHA256        string
	GeneratedAt   time.Time
}

type Option func(*Service)

func WithPublisher(p evidence.EventPublisher) Option { return func(s *Service) { s.publisher = p } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

type Service struct {
	store     Store
	publisher evidence.EventPublisher
	now       func() time.Time
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle runs action for the actor's tenant. Validation findings are part of
// the result; Generate refuses to render an invalid declaration.
func (s *Service) Handle(ctx context.Context, actor domain.Actor, action Action) (*Result, error) {
	decl := action.declaration()
	decl.Normalize()

	issues := decl.Check()
	records, evIssues, err := s.loadEvidence(ctx, actor.TenantID, decl)
	if err != nil {
		return nil, fmt.Errorf("registry.Handle: %w", err)
	}
	issues = append(issues, evIssues...)

	switch a := action.(type) {
	case ValidateDeclaration:
		return &Result{Action: a.Name(), Valid: len(issues) == 0, Issues: issues}, nil
	case GenerateDeclaration:
		if !actor.CanWrite() {
			return nil, domain.NewError(domain.CodeForbidden, fmt.Sprintf("role %q cannot generate declarations", actor.Role))
		}
		if len(issues) > 0 {
			first := issues[0]
			return nil, domain.NewFieldError(domain.CodeValidationFailed, first.Field,
				fmt.Sprintf("declaration has %d issue(s): %s", len(issues), first.Message))
		}
		return s.generate(ctx, actor, decl, records)
	default:
		return nil, fmt.Errorf("registry.Handle: unhandled action %T", action)
	}
}

// loadEvidence resolves every referenced id within the tenant. Missing or
// unsealed records become issues, never errors.
func (s *Service) loadEvidence(ctx context.Context, tenantID uuid.UUID, d *Declaration) (map[uuid.UUID]*domain.EvidenceRecord, []Issue, error) {
	records := make(map[uuid.UUID]*domain.EvidenceRecord)
	seen := make(map[uuid.UUID]struct{})
	var issues []Issue

	for i, g := range d.Goods {
		for _, id := range g.EvidenceIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			rec, err := s.store.Evidence().GetRecord(ctx, tenantID, id)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				issues = append(issues, Issue{
					Field:   fmt.Sprintf("goods[%d].evidence_ids", i),
					Message: fmt.Sprintf("evidence %s is not a sealed record of this tenant", id),
				})
				continue
			case err != nil:
				return nil, nil, err
			case rec.LedgerState != domain.LedgerSealed:
				issues = append(issues, Issue{
					Field:   fmt.Sprintf("goods[%d].evidence_ids", i),
					Message: fmt.Sprintf("evidence %s is not sealed", rec.DisplayID),
				})
				continue
			}
			records[id] = rec
		}
	}

	return records, issues, nil
}

func (s *Service) generate(ctx context.Context, actor domain.Actor, d *Declaration, records map[uuid.UUID]*domain.EvidenceRecord) (*Result, error) {
	at := s.now().UTC()
	id := uuid.New()

	doc, err := render(id, d, records, at)
	if err != nil {
		return nil, err
	}
	sum := evidence.ContentHash(doc)

	ev := domain.NewAuditEvent(actor, domain.ActionDeclarationBuilt, domain.EntityDeclaration, id,
		"", "GENERATED", domain.CitationCBAMRecordKeeping, at)
	ev.CorrelationID = domain.CorrelationID(ctx)
	ev.Details["sha256"] = sum
	ev.Details["eori"] = d.EORI
	ev.Details["reporting_period"] = d.ReportingPeriod
	ev.Details["evidence_count"] = len(records)
	if err := s.store.Audit().Record(ctx, ev); err != nil {
		return nil, fmt.Errorf("registry.generate: %w", err)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishAuditEvent(ctx, ev); err != nil {
			log.Warn().Err(err).Str("declaration_id", id.String()).Msg("publish audit event")
		}
	}

	log.Info().
		Str("tenant_id", actor.TenantID.String()).
		Str("declaration_id", id.String()).
		Str("reporting_period", d.ReportingPeriod).
		Msg("cbam declaration generated")

	return &Result{
		Action:        ActionGenerate,
		Valid:         true,
		DeclarationID: id,
		Document:      doc,
		SHA256:        sum,
		GeneratedAt:   at,
	}, nil
}
