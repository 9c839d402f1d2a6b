// Package wizard drives the guided evidence submission flow: declare intent,
// attach a payload, declare retention and personal data, then review and seal.
//
// Session is a plain value holding the flow state. It is persisted through
// Encode and Decode so an interrupted run resumes where it stopped.
package wizard

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/domain"
	"github.com/gosuda/evidra/internal/evidence"
)

// Step is a wizard state. Steps only move forward, except that a user may step
// back before sealing.
type Step int

const (
	StepDeclare Step = iota
	StepPayload
	StepRetention
	StepReview
	StepSealed
)

var stepNames = [...]string{"DECLARE", "PAYLOAD", "RETENTION", "REVIEW", "SEALED"} //nolint:gochecknoglobals // lookup table

func (s Step) String() string {
	if s < StepDeclare || s > StepSealed {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return stepNames[s]
}

func (s Step) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Step) UnmarshalText(b []byte) error {
	for i, name := range stepNames {
		if name == string(b) {
			*s = Step(i)
			return nil
		}
	}
	return fmt.Errorf("wizard: unknown step %q", b)
}

var (
	ErrWrongStep = errors.New("wizard: operation not allowed at this step")
	ErrSealed    = errors.New("wizard: session is sealed")
	ErrAtStart   = errors.New("wizard: already at the first step")
	// ErrLocked is returned when the declaration is changed after its draft exists.
	ErrLocked = errors.New("wizard: declaration is locked once the draft is created")
)

// Declaration is the intent captured by the first step.
type Declaration struct {
	RequestID       string `json:"request_id"`
	IngestionMethod string `json:"ingestion_method"`
	SourceSystem    string `json:"source_system,omitempty"`
	DatasetType     string `json:"dataset_type"`
	DeclaredScope   string `json:"declared_scope"`
	ScopeTargetID   string `json:"scope_target_id,omitempty"`
	Purpose         string `json:"purpose"`
}

// Payload is either inline JSON text or a file on disk.
type Payload struct {
	JSON        string `json:"json,omitempty"`
	FilePath    string `json:"file_path,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

type Retention struct {
	Policy               string `json:"policy,omitempty"`
	ContainsPersonalData bool   `json:"contains_personal_data"`
	GDPRLegalBasis       string `json:"gdpr_legal_basis,omitempty"`
}

// Session is the serializable wizard state.
type Session struct {
	Name        string      `json:"name"`
	Step        Step        `json:"step"`
	Declaration Declaration `json:"declaration"`
	Payload     Payload     `json:"payload"`
	Retention   Retention   `json:"retention"`
	DraftID     *uuid.UUID  `json:"draft_id,omitempty"`
	// SealCommandID is fixed before the first seal attempt so a retry after a
	// timeout replays instead of conflicting.
	SealCommandID string     `json:"seal_command_id,omitempty"`
	EvidenceID    *uuid.UUID `json:"evidence_id,omitempty"`
	DisplayID     string     `json:"display_id,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewSession starts a session at StepDeclare.
func NewSession(name string) *Session {
	return &Session{Name: name, Step: StepDeclare}
}

// Encode serializes the session.
func Encode(s *Session) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("wizard.Encode: %w", err)
	}
	return b, nil
}

// Decode restores a session written by Encode.
func Decode(b []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("wizard.Decode: %w", err)
	}
	if s.Step < StepDeclare || s.Step > StepSealed {
		return nil, fmt.Errorf("wizard.Decode: step %d out of range", int(s.Step))
	}
	return &s, nil
}

func (s *Session) SetDeclaration(d Declaration) error {
	if err := s.expect(StepDeclare); err != nil {
		return err
	}
	if s.DraftID != nil && d != s.Declaration {
		return ErrLocked
	}
	s.Declaration = d
	return nil
}

func (s *Session) SetPayload(p Payload) error {
	if err := s.expect(StepPayload); err != nil {
		return err
	}
	s.Payload = p
	return nil
}

func (s *Session) SetRetention(r Retention) error {
	if err := s.expect(StepRetention); err != nil {
		return err
	}
	s.Retention = r
	return nil
}

func (s *Session) expect(step Step) error {
	if s.Step == StepSealed {
		return ErrSealed
	}
	if s.Step != step {
		return fmt.Errorf("%w: at %s, need %s", ErrWrongStep, s.Step, step)
	}
	return nil
}

// Validate checks the data of the current step locally. The server gate stays
// authoritative; this only catches mistakes before a round trip.
func (s *Session) Validate(gate *evidence.Gate) error {
	switch s.Step {
	case StepDeclare:
		return validateDeclaration(gate, s.Declaration)
	case StepPayload:
		return validatePayload(gate, s.Payload)
	case StepRetention:
		return validateRetention(s.Retention)
	case StepReview:
		if s.DraftID == nil {
			return domain.NewFieldError(domain.CodeValidationFailed, "draft_id", "no draft to seal")
		}
		return nil
	case StepSealed:
		return ErrSealed
	}
	return fmt.Errorf("wizard: unknown step %d", int(s.Step))
}

// Advance validates the current step and moves to the next one. Leaving
// DECLARE requires a created draft and entering SEALED requires a sealed record.
func (s *Session) Advance(gate *evidence.Gate) error {
	if err := s.Validate(gate); err != nil {
		return err
	}
	switch s.Step {
	case StepDeclare:
		if s.DraftID == nil {
			return domain.NewFieldError(domain.CodeValidationFailed, "draft_id", "draft has not been created")
		}
	case StepReview:
		if s.EvidenceID == nil {
			return domain.NewFieldError(domain.CodeValidationFailed, "evidence_id", "draft has not been sealed")
		}
	}
	s.Step++
	return nil
}

// Back returns to the previous step. Nothing moves once sealed.
func (s *Session) Back() error {
	switch s.Step {
	case StepSealed:
		return ErrSealed
	case StepDeclare:
		return ErrAtStart
	}
	s.Step--
	return nil
}

// Index is the zero-based position of the current step.
func (s *Session) Index() int { return int(s.Step) }

func validateDeclaration(gate *evidence.Gate, d Declaration) error {
	if d.RequestID == "" {
		return domain.NewFieldError(domain.CodeMissingRequiredMetadata, "request_id", "request_id is required")
	}
	meta := domain.EvidenceMetadata{
		IngestionMethod: domain.IngestionMethod(d.IngestionMethod),
		SourceSystem:    d.SourceSystem,
		DatasetType:     domain.DatasetType(d.DatasetType),
		DeclaredScope:   domain.DeclaredScope(d.DeclaredScope),
		ScopeTargetID:   d.ScopeTargetID,
		Purpose:         d.Purpose,
	}
	return gate.CheckMetadata(&meta)
}

func validatePayload(gate *evidence.Gate, p Payload) error {
	switch {
	case p.JSON != "" && p.FilePath != "":
		return domain.NewFieldError(domain.CodeInvalidPayload, "payload", "give either JSON or a file, not both")
	case p.JSON != "":
		_, err := gate.ValidatePayload(nil, p.JSON)
		return err
	case p.FilePath != "":
		info, err := os.Stat(p.FilePath)
		if err != nil {
			return domain.NewFieldError(domain.CodeInvalidPayload, "file", fmt.Sprintf("cannot read %s", p.FilePath))
		}
		if info.IsDir() || info.Size() == 0 {
			return domain.NewFieldError(domain.CodeInvalidPayload, "file", fmt.Sprintf("%s is not a non-empty file", p.FilePath))
		}
		return nil
	}
	return domain.NewFieldError(domain.CodeInvalidPayload, "payload", "payload is required")
}

func validateRetention(r Retention) error {
	if r.Policy != "" && !domain.RetentionPolicy(r.Policy).Valid() {
		return domain.NewFieldError(domain.CodeValidationFailed, "retention_policy",
			fmt.Sprintf("unknown retention policy %q", r.Policy))
	}
	if r.ContainsPersonalData && r.GDPRLegalBasis == "" {
		return domain.NewFieldError(domain.CodeMissingRequiredMetadata, "gdpr_legal_basis",
			"gdpr_legal_basis is required when contains_personal_data is true")
	}
	return nil
}
