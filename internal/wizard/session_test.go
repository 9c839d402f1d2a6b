package wizard

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/evidra/internal/domain"
	"github.com/gosuda/evidra/internal/evidence"
)

func validDeclaration() Declaration {
	return Declaration{
		RequestID:       "req-2026-q1",
		IngestionMethod: string(domain.MethodManualEntry),
		DatasetType:     string(domain.DatasetEmissionsData),
		DeclaredScope:   string(domain.ScopeEntireOrganization),
		Purpose:         "CBAM Q1 embedded emissions",
	}
}

func requireCode(t *testing.T, err error, code domain.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, domain.CodeOf(err))
}

// sessionAt walks a fresh session forward to step, filling in valid data.
func sessionAt(t *testing.T, step Step) *Session {
	t.Helper()

	gate := evidence.NewGate(0, nil)
	s := NewSession("test")
	if step == StepDeclare {
		return s
	}
	require.NoError(t, s.SetDeclaration(validDeclaration()))
	id := uuid.New()
	s.DraftID = &id
	require.NoError(t, s.Advance(gate))
	if step == StepPayload {
		return s
	}
	require.NoError(t, s.SetPayload(Payload{JSON: `{"co2e_tonnes": 12.5}`}))
	require.NoError(t, s.Advance(gate))
	if step == StepRetention {
		return s
	}
	require.NoError(t, s.SetRetention(Retention{Policy: string(domain.RetentionCBAMRegulatory)}))
	require.NoError(t, s.Advance(gate))
	if step == StepReview {
		return s
	}
	evID := uuid.New()
	s.EvidenceID = &evID
	require.NoError(t, s.Advance(gate))
	return s
}

func TestSession_ForwardFlow(t *testing.T) {
	t.Parallel()

	s := sessionAt(t, StepSealed)
	assert.Equal(t, StepSealed, s.Step)
	assert.Equal(t, 4, s.Index())
}

func TestSession_AdvanceRequiresRemoteState(t *testing.T) {
	t.Parallel()

	gate := evidence.NewGate(0, nil)

	t.Run("declare without draft", func(t *testing.T) {
		t.Parallel()
		s := NewSession("test")
		require.NoError(t, s.SetDeclaration(validDeclaration()))
		err := s.Advance(gate)
		requireCode(t, err, domain.CodeValidationFailed)
		assert.Equal(t, StepDeclare, s.Step)
	})

	t.Run("review without seal", func(t *testing.T) {
		t.Parallel()
		s := sessionAt(t, StepReview)
		err := s.Advance(gate)
		requireCode(t, err, domain.CodeValidationFailed)
		assert.Equal(t, StepReview, s.Step)
	})
}

func TestSession_NoBackwardMoveAfterSeal(t *testing.T) {
	t.Parallel()

	s := sessionAt(t, StepSealed)

	assert.ErrorIs(t, s.Back(), ErrSealed)
	assert.ErrorIs(t, s.SetDeclaration(validDeclaration()), ErrSealed)
	assert.ErrorIs(t, s.SetPayload(Payload{JSON: `{"a":1}`}), ErrSealed)
	assert.ErrorIs(t, s.SetRetention(Retention{}), ErrSealed)
	assert.ErrorIs(t, s.Advance(evidence.NewGate(0, nil)), ErrSealed)
	assert.Equal(t, StepSealed, s.Step)
}

func TestSession_Back(t *testing.T) {
	t.Parallel()

	s := sessionAt(t, StepReview)
	require.NoError(t, s.Back())
	assert.Equal(t, StepRetention, s.Step)
	require.NoError(t, s.Back())
	require.NoError(t, s.Back())
	assert.Equal(t, StepDeclare, s.Step)
	assert.ErrorIs(t, s.Back(), ErrAtStart)

	// The draft exists, so only the identical declaration is accepted.
	require.NoError(t, s.SetDeclaration(validDeclaration()))
	changed := validDeclaration()
	changed.DatasetType = string(domain.DatasetBOM)
	assert.ErrorIs(t, s.SetDeclaration(changed), ErrLocked)
}

func TestSession_SettersCheckStep(t *testing.T) {
	t.Parallel()

	s := NewSession("test")
	assert.ErrorIs(t, s.SetPayload(Payload{JSON: `{"a":1}`}), ErrWrongStep)
	assert.ErrorIs(t, s.SetRetention(Retention{}), ErrWrongStep)
}

func TestSession_ValidateDeclaration(t *testing.T) {
	t.Parallel()

	gate := evidence.NewGate(0, nil)

	tests := []struct {
		name   string
		mutate func(d *Declaration)
		code   domain.ErrorCode
	}{
		{name: "missing request id", mutate: func(d *Declaration) { d.RequestID = "" }, code: domain.CodeMissingRequiredMetadata},
		{name: "missing purpose", mutate: func(d *Declaration) { d.Purpose = "" }, code: domain.CodeMissingRequiredMetadata},
		{name: "manual certificate", mutate: func(d *Declaration) { d.DatasetType = string(domain.DatasetCertificate) }, code: domain.CodeUnsupportedCombination},
		{name: "manual transaction log", mutate: func(d *Declaration) { d.DatasetType = string(domain.DatasetTransactionLog) }, code: domain.CodeUnsupportedCombination},
		{name: "legal entity without target", mutate: func(d *Declaration) { d.DeclaredScope = string(domain.ScopeLegalEntity) }, code: domain.CodeMissingScopeTargetID},
		{name: "unknown dataset", mutate: func(d *Declaration) { d.DatasetType = "RECEIPTS" }, code: domain.CodeValidationFailed},
		{
			name: "api push without source system",
			mutate: func(d *Declaration) {
				d.IngestionMethod = string(domain.MethodAPIPush)
			},
			code: domain.CodeMissingRequiredMetadata,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewSession("test")
			d := validDeclaration()
			tt.mutate(&d)
			require.NoError(t, s.SetDeclaration(d))
			requireCode(t, s.Validate(gate), tt.code)
		})
	}
}

func TestSession_ValidatePayload(t *testing.T) {
	t.Parallel()

	gate := evidence.NewGate(0, nil)

	dir := t.TempDir()
	file := filepath.Join(dir, "invoice.pdf")
	require.NoError(t, os.WriteFile(file, []byte("%PDF-1.7"), 0o600))
	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	tests := []struct {
		name    string
		payload Payload
		code    domain.ErrorCode
	}{
		{name: "json object", payload: Payload{JSON: `{"site":"Lyon","co2e":3.2}`}},
		{name: "file", payload: Payload{FilePath: file}},
		{name: "nothing", payload: Payload{}, code: domain.CodeInvalidPayload},
		{name: "both", payload: Payload{JSON: `{"a":1}`, FilePath: file}, code: domain.CodeInvalidPayload},
		{name: "bare string", payload: Payload{JSON: `"hello"`}, code: domain.CodeInvalidPayload},
		{name: "placeholder", payload: Payload{JSON: `{"supplier":"TBD"}`}, code: domain.CodeInvalidPayload},
		{name: "missing file", payload: Payload{FilePath: filepath.Join(dir, "nope.csv")}, code: domain.CodeInvalidPayload},
		{name: "empty file", payload: Payload{FilePath: empty}, code: domain.CodeInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := sessionAt(t, StepPayload)
			require.NoError(t, s.SetPayload(tt.payload))
			err := s.Validate(gate)
			if tt.code == "" {
				require.NoError(t, err)
				return
			}
			requireCode(t, err, tt.code)
		})
	}
}

func TestSession_ValidateRetention(t *testing.T) {
	t.Parallel()

	gate := evidence.NewGate(0, nil)

	tests := []struct {
		name      string
		retention Retention
		code      domain.ErrorCode
	}{
		{name: "default policy", retention: Retention{}},
		{name: "legal hold with basis", retention: Retention{Policy: string(domain.RetentionLegalHold), ContainsPersonalData: true, GDPRLegalBasis: "Art. 6(1)(c)"}},
		{name: "unknown policy", retention: Retention{Policy: "FOREVER"}, code: domain.CodeValidationFailed},
		{name: "personal data without basis", retention: Retention{ContainsPersonalData: true}, code: domain.CodeMissingRequiredMetadata},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := sessionAt(t, StepRetention)
			require.NoError(t, s.SetRetention(tt.retention))
			err := s.Validate(gate)
			if tt.code == "" {
				require.NoError(t, err)
				return
			}
			requireCode(t, err, tt.code)
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	s := sessionAt(t, StepReview)
	s.SealCommandID = "cmd-1"

	b, err := Encode(s)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"step":"REVIEW"`)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	_, err = Decode([]byte(`{"name":"x","step":"LAUNCHED"}`))
	require.Error(t, err)

	_, err = Decode([]byte(`not json`))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoSession))
}
