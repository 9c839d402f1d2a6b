package wizard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/domain"
)

// Request budgets. Past them the caller gets ErrTimeout and may retry.
const (
	CreateTimeout  = 15 * time.Second
	SealTimeout    = 20 * time.Second
	requestTimeout = 15 * time.Second
)

// ErrTimeout is returned when the server did not answer within the budget.
var ErrTimeout = errors.New("wizard: request timed out, retry")

// RemoteError is a problem response from the server.
type RemoteError struct {
	Status        int              `json:"status"`
	Title         string           `json:"title"`
	Detail        string           `json:"detail"`
	Code          domain.ErrorCode `json:"error_code"`
	Field         string           `json:"field"`
	CorrelationID string           `json:"correlation_id"`
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Detail)
	if e.CorrelationID != "" {
		msg += " (correlation id " + e.CorrelationID + ")"
	}
	return msg
}

// Draft is the server's view of a draft, as far as the wizard needs it.
type Draft struct {
	ID        uuid.UUID `json:"id"`
	RequestID string    `json:"request_id"`
	domain.EvidenceMetadata
	Status           domain.DraftStatus     `json:"status"`
	PayloadKind      domain.PayloadKind     `json:"payload_kind"`
	PayloadHash      string                 `json:"payload_hash,omitempty"`
	Attachment       *domain.AttachmentInfo `json:"attachment,omitempty"`
	QuarantineReason string                 `json:"quarantine_reason,omitempty"`
}

type SealResult struct {
	EvidenceID   uuid.UUID          `json:"evidence_id"`
	DisplayID    string             `json:"display_id"`
	PayloadHash  string             `json:"payload_hash"`
	MetadataHash string             `json:"metadata_hash"`
	LedgerState  domain.LedgerState `json:"ledger_state"`
	Replayed     bool               `json:"replayed"`
}

// Credentials authenticate the client: a session token or an API key.
type Credentials struct {
	Token  string
	APIKey string
}

// Client talks to the evidence API.
type Client struct {
	baseURL string
	creds   Credentials
	http    *http.Client
}

// NewClient creates a client for the server at baseURL, e.g. http://localhost:8080.
// A nil httpClient uses http.DefaultClient.
func NewClient(baseURL string, creds Credentials, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		creds:   creds,
		http:    httpClient,
	}
}

func (c *Client) CreateDraft(ctx context.Context, d Declaration) (*Draft, error) {
	var out struct {
		Draft Draft `json:"draft"`
	}
	if err := c.do(ctx, CreateTimeout, http.MethodPost, "/drafts", d, &out); err != nil {
		return nil, err
	}
	return &out.Draft, nil
}

func (c *Client) GetDraft(ctx context.Context, id uuid.UUID) (*Draft, error) {
	var out Draft
	if err := c.do(ctx, requestTimeout, http.MethodGet, "/drafts/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AttachPayload sends p as inline JSON or uploads the file it names.
func (c *Client) AttachPayload(ctx context.Context, id uuid.UUID, p Payload) (*Draft, error) {
	var (
		path = "/drafts/" + id.String()
		body any
	)
	if p.FilePath != "" {
		content, err := os.ReadFile(p.FilePath)
		if err != nil {
			return nil, fmt.Errorf("wizard.AttachPayload: %w", err)
		}
		contentType := p.ContentType
		if contentType == "" {
			contentType = mime.TypeByExtension(filepath.Ext(p.FilePath))
		}
		path += "/file"
		body = map[string]any{
			"file_name":    filepath.Base(p.FilePath),
			"content_type": contentType,
			"content":      content,
		}
	} else {
		path += "/payload"
		body = map[string]string{"payload_bytes": p.JSON}
	}

	var out Draft
	if err := c.do(ctx, requestTimeout, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateRetention(ctx context.Context, id uuid.UUID, r Retention) (*Draft, error) {
	body := map[string]any{"contains_personal_data": r.ContainsPersonalData}
	if r.Policy != "" {
		body["retention_policy"] = r.Policy
	}
	if r.ContainsPersonalData {
		body["gdpr_legal_basis"] = r.GDPRLegalBasis
	}

	var out Draft
	if err := c.do(ctx, requestTimeout, http.MethodPatch, "/drafts/"+id.String(), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Seal seals the draft. Repeating commandID after a timeout replays the
// earlier seal instead of failing with SEALED_IMMUTABLE.
func (c *Client) Seal(ctx context.Context, id uuid.UUID, commandID string) (*SealResult, error) {
	var out SealResult
	body := map[string]string{"command_id": commandID}
	if err := c.do(ctx, SealTimeout, http.MethodPost, "/drafts/"+id.String()+"/seal", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("wizard: encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("wizard: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.creds.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.creds.Token)
	case c.creds.APIKey != "":
		req.Header.Set("X-API-Key", c.creds.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return timeoutOr(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return timeoutOr(err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		rerr := &RemoteError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, rerr); jsonErr != nil || rerr.Detail == "" {
			rerr.Detail = http.StatusText(resp.StatusCode)
		}
		rerr.Status = resp.StatusCode
		return rerr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("wizard: decode response: %w", err)
		}
	}
	return nil
}

func timeoutOr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return fmt.Errorf("wizard: %w", err)
}
