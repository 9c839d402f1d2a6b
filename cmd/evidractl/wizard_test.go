package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestWizardStatus_FreshSession(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "wizard", "status", "--state-dir", t.TempDir(), "--name", "q1")
	require.NoError(t, err)
	assert.Contains(t, out, "session q1: step 1/5 DECLARE")
	assert.Contains(t, out, "next: evidractl wizard start")
}

func TestWizardStart_ThenCancel(t *testing.T) {
	t.Parallel()

	draftID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/drafts", r.URL.Path)
		assert.Equal(t, "evd_0123456789abcdef", r.Header.Get("X-API-Key"))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"draft": map[string]any{"id": draftID, "status": "DRAFT"},
		})
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	common := []string{"--state-dir", dir, "--server", srv.URL, "--api-key", "evd_0123456789abcdef"}

	out, err := execute(t, append([]string{"wizard", "start",
		"--dataset", "EMISSIONS_DATA", "--purpose", "CBAM Q1 embedded emissions", "--request-id", "req-1"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, draftID.String())
	assert.Contains(t, out, "next: evidractl wizard payload")

	out, err = execute(t, append([]string{"wizard", "status"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "step 2/5 PAYLOAD")

	_, err = execute(t, append([]string{"wizard", "cancel"}, common...)...)
	require.NoError(t, err)

	out, err = execute(t, append([]string{"wizard", "status"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "step 1/5 DECLARE")
}

func TestWizardStart_RetryReusesRequestID(t *testing.T) {
	t.Parallel()

	var (
		mu         sync.Mutex
		requestIDs []string
	)
	draftID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		mu.Lock()
		requestIDs = append(requestIDs, body["request_id"].(string))
		first := len(requestIDs) == 1
		mu.Unlock()

		if first {
			http.Error(w, "upstream gone", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"draft":    map[string]any{"id": draftID, "status": "DRAFT"},
			"replayed": true,
		})
	}))
	t.Cleanup(srv.Close)

	args := []string{"wizard", "start", "--state-dir", t.TempDir(), "--server", srv.URL,
		"--dataset", "EMISSIONS_DATA", "--purpose", "CBAM Q1 embedded emissions"}

	_, err := execute(t, args...)
	require.Error(t, err)

	out, err := execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, draftID.String())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, requestIDs, 2)
	assert.NotEmpty(t, requestIDs[0])
	assert.Equal(t, requestIDs[0], requestIDs[1])
}

func TestWizardStart_LocalRejection(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "wizard", "start", "--state-dir", t.TempDir(), "--server", "http://127.0.0.1:1",
		"--dataset", "CERTIFICATE", "--purpose", "supplier ISO cert")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be ingested via MANUAL_ENTRY")
}

func TestWizardPayload_NeedsOneSource(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "wizard", "payload", "--state-dir", t.TempDir())
	require.Error(t, err)
}
