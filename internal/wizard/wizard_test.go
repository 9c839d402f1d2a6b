package wizard

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/evidra/internal/domain"
	"github.com/gosuda/evidra/internal/evidence"
)

// fakeAPI records calls and can block or fail seal attempts.
type fakeAPI struct {
	mu         sync.Mutex
	draftID    uuid.UUID
	requestIDs []string
	commands   []string
	sealErrs   []error
	createErr  error
	block      chan struct{}
	started    chan struct{}
}

func newFakeAPI() *fakeAPI { return &fakeAPI{draftID: uuid.New()} }

func (f *fakeAPI) CreateDraft(_ context.Context, d Declaration) (*Draft, error) {
	if f.block != nil {
		close(f.started)
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requestIDs = append(f.requestIDs, d.RequestID)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &Draft{ID: f.draftID, Status: domain.DraftOpen}, nil
}

func (f *fakeAPI) GetDraft(_ context.Context, id uuid.UUID) (*Draft, error) {
	return &Draft{ID: id, Status: domain.DraftOpen, PayloadKind: domain.PayloadJSON}, nil
}

func (f *fakeAPI) AttachPayload(_ context.Context, id uuid.UUID, _ Payload) (*Draft, error) {
	return &Draft{ID: id}, nil
}

func (f *fakeAPI) UpdateRetention(_ context.Context, id uuid.UUID, _ Retention) (*Draft, error) {
	return &Draft{ID: id}, nil
}

func (f *fakeAPI) Seal(_ context.Context, _ uuid.UUID, commandID string) (*SealResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, commandID)
	if len(f.sealErrs) > 0 {
		err := f.sealErrs[0]
		f.sealErrs = f.sealErrs[1:]
		return nil, err
	}
	return &SealResult{EvidenceID: uuid.New(), DisplayID: "EV-20261018-0A1B2C3D", LedgerState: domain.LedgerSealed}, nil
}

func openWizard(t *testing.T, api API, store Store) *Wizard {
	t.Helper()
	w, err := Open("cbam-q1", api, store, evidence.NewGate(0, nil))
	require.NoError(t, err)
	return w
}

func TestWizard_FullRunAndResume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	api := newFakeAPI()
	store := NewFileStore(t.TempDir())

	w := openWizard(t, api, store)
	require.NoError(t, w.Declare(ctx, validDeclaration()))
	require.NoError(t, w.AttachPayload(ctx, Payload{JSON: `{"co2e_tonnes": 12.5}`}))

	// A new process picks up where the last one stopped.
	resumed := openWizard(t, api, store)
	s := resumed.Session()
	assert.Equal(t, StepRetention, s.Step)
	require.NotNil(t, s.DraftID)
	assert.Equal(t, api.draftID, *s.DraftID)

	require.NoError(t, resumed.DeclareRetention(ctx, Retention{Policy: string(domain.RetentionCBAMRegulatory)}))

	draft, err := resumed.Review(ctx)
	require.NoError(t, err)
	assert.Equal(t, api.draftID, draft.ID)

	res, err := resumed.Seal(ctx)
	require.NoError(t, err)
	assert.Equal(t, "EV-20261018-0A1B2C3D", res.DisplayID)
	assert.Equal(t, StepSealed, resumed.Session().Step)

	_, err = store.Load("cbam-q1")
	require.ErrorIs(t, err, ErrNoSession, "sealing clears the stored session")

	assert.ErrorIs(t, resumed.Back(), ErrSealed)
	_, err = resumed.Seal(ctx)
	assert.ErrorIs(t, err, ErrSealed)
}

func TestWizard_SealRetryReusesCommandID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	api := newFakeAPI()
	api.sealErrs = []error{ErrTimeout}
	store := NewFileStore(t.TempDir())

	w := openWizard(t, api, store)
	require.NoError(t, w.Declare(ctx, validDeclaration()))
	require.NoError(t, w.AttachPayload(ctx, Payload{JSON: `{"co2e_tonnes": 12.5}`}))
	require.NoError(t, w.DeclareRetention(ctx, Retention{}))

	_, err := w.Seal(ctx)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, StepReview, w.Session().Step)

	// The command id survives a restart.
	w = openWizard(t, api, store)
	_, err = w.Seal(ctx)
	require.NoError(t, err)

	require.Len(t, api.commands, 2)
	assert.Equal(t, api.commands[0], api.commands[1])
}

func TestWizard_CreateRetryReusesRequestID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	api := newFakeAPI()
	api.createErr = ErrTimeout
	store := NewFileStore(t.TempDir())

	w := openWizard(t, api, store)
	d := validDeclaration()
	d.RequestID = "req-first-attempt"
	require.ErrorIs(t, w.Declare(ctx, d), ErrTimeout)

	// The request id survives a restart even though no draft came back.
	resumed := openWizard(t, api, store)
	s := resumed.Session()
	assert.Equal(t, StepDeclare, s.Step)
	assert.Nil(t, s.DraftID)
	assert.Equal(t, "req-first-attempt", s.Declaration.RequestID)

	api.createErr = nil
	require.NoError(t, resumed.Declare(ctx, s.Declaration))
	assert.Equal(t, StepPayload, resumed.Session().Step)
	assert.Equal(t, []string{"req-first-attempt", "req-first-attempt"}, api.requestIDs)
}

func TestWizard_LocalValidationSkipsServer(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.createErr = assert.AnError
	w := openWizard(t, api, NewFileStore(t.TempDir()))

	d := validDeclaration()
	d.DatasetType = string(domain.DatasetCertificate)
	err := w.Declare(context.Background(), d)
	requireCode(t, err, domain.CodeUnsupportedCombination)
	assert.Equal(t, StepDeclare, w.Session().Step)
	assert.Empty(t, api.requestIDs)
}

func TestWizard_InFlightGuard(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.block = make(chan struct{})
	api.started = make(chan struct{})
	w := openWizard(t, api, NewFileStore(t.TempDir()))

	done := make(chan error, 1)
	go func() { done <- w.Declare(context.Background(), validDeclaration()) }()

	<-api.started
	assert.ErrorIs(t, w.Declare(context.Background(), validDeclaration()), ErrInFlight)

	close(api.block)
	require.NoError(t, <-done)
	assert.Equal(t, StepPayload, w.Session().Step)
}

func TestWizard_Cancel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	w := openWizard(t, newFakeAPI(), store)
	require.NoError(t, w.Declare(ctx, validDeclaration()))

	require.NoError(t, w.Cancel())
	assert.Equal(t, StepDeclare, w.Session().Step)
	assert.Nil(t, w.Session().DraftID)

	_, err := store.Load("cbam-q1")
	require.ErrorIs(t, err, ErrNoSession)
}
