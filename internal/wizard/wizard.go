package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/evidra/internal/evidence"
)

// ErrInFlight rejects a submission while another one is outstanding.
var ErrInFlight = errors.New("wizard: a request is already in flight")

// API is the server surface the wizard drives. *Client satisfies it.
type API interface {
	CreateDraft(ctx context.Context, d Declaration) (*Draft, error)
	GetDraft(ctx context.Context, id uuid.UUID) (*Draft, error)
	AttachPayload(ctx context.Context, id uuid.UUID, p Payload) (*Draft, error)
	UpdateRetention(ctx context.Context, id uuid.UUID, r Retention) (*Draft, error)
	Seal(ctx context.Context, id uuid.UUID, commandID string) (*SealResult, error)
}

// Wizard runs one named session against the API and persists every step.
type Wizard struct {
	session  *Session
	api      API
	store    Store
	gate     *evidence.Gate
	inFlight atomic.Bool
	now      func() time.Time
}

// Open resumes the session stored under name, or starts a new one.
func Open(name string, api API, store Store, gate *evidence.Gate) (*Wizard, error) {
	s, err := store.Load(name)
	switch {
	case errors.Is(err, ErrNoSession):
		s = NewSession(name)
	case err != nil:
		return nil, err
	}
	return &Wizard{session: s, api: api, store: store, gate: gate, now: time.Now}, nil
}

// Session returns a copy of the current state.
func (w *Wizard) Session() Session { return *w.session }

// Declare validates the intent, creates the draft and moves to PAYLOAD.
func (w *Wizard) Declare(ctx context.Context, d Declaration) error {
	return w.submit(func() error {
		if err := w.session.SetDeclaration(d); err != nil {
			return err
		}
		if err := w.session.Validate(w.gate); err != nil {
			return err
		}
		// Persist the request id first: a retry after a timeout must send
		// the same id so the server replays instead of creating a second draft.
		if err := w.save(); err != nil {
			return err
		}
		draft, err := w.api.CreateDraft(ctx, d)
		if err != nil {
			return err
		}
		w.session.DraftID = &draft.ID
		return w.advance()
	})
}

// AttachPayload validates and uploads the payload, then moves to RETENTION.
func (w *Wizard) AttachPayload(ctx context.Context, p Payload) error {
	return w.submit(func() error {
		if err := w.session.SetPayload(p); err != nil {
			return err
		}
		if err := w.session.Validate(w.gate); err != nil {
			return err
		}
		if _, err := w.api.AttachPayload(ctx, *w.session.DraftID, p); err != nil {
			return err
		}
		return w.advance()
	})
}

// DeclareRetention records retention and personal data, then moves to REVIEW.
func (w *Wizard) DeclareRetention(ctx context.Context, r Retention) error {
	return w.submit(func() error {
		if err := w.session.SetRetention(r); err != nil {
			return err
		}
		if err := w.session.Validate(w.gate); err != nil {
			return err
		}
		if _, err := w.api.UpdateRetention(ctx, *w.session.DraftID, r); err != nil {
			return err
		}
		return w.advance()
	})
}

// Review fetches the draft as the server holds it.
func (w *Wizard) Review(ctx context.Context) (*Draft, error) {
	if err := w.session.expect(StepReview); err != nil {
		return nil, err
	}
	return w.api.GetDraft(ctx, *w.session.DraftID)
}

// Seal seals the draft. On success the stored session is cleared; on timeout
// the session keeps its command id so Seal can simply be called again.
func (w *Wizard) Seal(ctx context.Context) (*SealResult, error) {
	var res *SealResult
	err := w.submit(func() error {
		if err := w.session.expect(StepReview); err != nil {
			return err
		}
		if w.session.SealCommandID == "" {
			w.session.SealCommandID = uuid.NewString()
			if err := w.save(); err != nil {
				return err
			}
		}

		var err error
		res, err = w.api.Seal(ctx, *w.session.DraftID, w.session.SealCommandID)
		if err != nil {
			return err
		}

		w.session.EvidenceID = &res.EvidenceID
		w.session.DisplayID = res.DisplayID
		if err := w.session.Advance(w.gate); err != nil {
			return err
		}
		return w.store.Clear(w.session.Name)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("evidence_id", res.EvidenceID.String()).Str("display_id", res.DisplayID).Msg("evidence sealed")
	return res, nil
}

// Back steps back one step and persists the move.
func (w *Wizard) Back() error {
	if err := w.session.Back(); err != nil {
		return err
	}
	return w.save()
}

// Cancel abandons the session. The server-side draft stays open.
func (w *Wizard) Cancel() error {
	if err := w.store.Clear(w.session.Name); err != nil {
		return err
	}
	w.session = NewSession(w.session.Name)
	return nil
}

// submit runs fn under the in-flight guard.
func (w *Wizard) submit(fn func() error) error {
	if !w.inFlight.CompareAndSwap(false, true) {
		return ErrInFlight
	}
	defer w.inFlight.Store(false)
	return fn()
}

func (w *Wizard) advance() error {
	if err := w.session.Advance(w.gate); err != nil {
		return err
	}
	return w.save()
}

func (w *Wizard) save() error {
	w.session.UpdatedAt = w.now().UTC()
	if err := w.store.Save(w.session); err != nil {
		return fmt.Errorf("wizard: save session: %w", err)
	}
	return nil
}
