package evidence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/gosuda/evidra/internal/domain"
)

// DefaultPlaceholders is the blocklist used when none is configured.
var DefaultPlaceholders = []string{"test", "tbd", "n/a", "lorem ipsum", "xxx", "placeholder", "dummy"}

// DefaultMaxPayloadBytes caps the encoded size of a JSON payload.
const DefaultMaxPayloadBytes = 1 << 20

// Gate validates declared metadata and payloads. Checks run in a fixed order so
// identical input always yields the identical error code.
type Gate struct {
	maxPayloadBytes int
	placeholders    map[string]struct{}
}

// NewGate creates a Gate. Non-positive maxPayloadBytes and an empty blocklist
// fall back to the defaults.
func NewGate(maxPayloadBytes int, placeholders []string) *Gate {
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = DefaultMaxPayloadBytes
	}
	if len(placeholders) == 0 {
		placeholders = DefaultPlaceholders
	}
	set := make(map[string]struct{}, len(placeholders))
	for _, p := range placeholders {
		set[normalizePlaceholder(p)] = struct{}{}
	}
	return &Gate{maxPayloadBytes: maxPayloadBytes, placeholders: set}
}

// CreateRequest is a draft-creation request as submitted by a client.
// Payload holds a decoded JSON value; PayloadBytes holds raw text. Either may be empty.
type CreateRequest struct {
	RequestID            string
	CommandID            string
	IngestionMethod      string
	SourceSystem         string
	DatasetType          string
	DeclaredScope        string
	ScopeTargetID        string
	Purpose              string
	RetentionPolicy      string
	ContainsPersonalData bool
	GDPRLegalBasis       string
	Payload              any
	PayloadBytes         string
}

// Declaration is a validated, normalized creation request.
type Declaration struct {
	RequestID string
	Metadata  domain.EvidenceMetadata
	// Payload is nil when none was submitted.
	Payload map[string]any
}

// ValidateCreate runs the full gate over a creation request.
func (g *Gate) ValidateCreate(req CreateRequest) (*Declaration, error) {
	meta := domain.EvidenceMetadata{
		IngestionMethod:      domain.IngestionMethod(strings.TrimSpace(req.IngestionMethod)),
		SourceSystem:         strings.TrimSpace(req.SourceSystem),
		DatasetType:          domain.DatasetType(strings.TrimSpace(req.DatasetType)),
		DeclaredScope:        domain.DeclaredScope(strings.TrimSpace(req.DeclaredScope)),
		ScopeTargetID:        strings.TrimSpace(req.ScopeTargetID),
		Purpose:              strings.TrimSpace(req.Purpose),
		RetentionPolicy:      domain.RetentionPolicy(strings.TrimSpace(req.RetentionPolicy)),
		ContainsPersonalData: req.ContainsPersonalData,
		GDPRLegalBasis:       strings.TrimSpace(req.GDPRLegalBasis),
	}

	// Incompatible pairs are rejected before anything else so no doomed draft
	// is ever created, whatever else is wrong with the request.
	if err := checkCombination(meta); err != nil {
		return nil, err
	}

	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		requestID = strings.TrimSpace(req.CommandID)
	}
	if requestID == "" {
		return nil, domain.NewFieldError(domain.CodeMissingRequiredMetadata, "request_id", "request_id is required")
	}

	if err := g.CheckMetadata(&meta); err != nil {
		return nil, err
	}

	decl := &Declaration{RequestID: requestID, Metadata: meta}
	if req.Payload != nil || req.PayloadBytes != "" {
		payload, err := g.ValidatePayload(req.Payload, req.PayloadBytes)
		if err != nil {
			return nil, err
		}
		decl.Payload = payload
	}

	return decl, nil
}

// CheckMetadata validates and normalizes declared metadata in place:
// required fields, enum values, scope target, source system and GDPR basis.
func (g *Gate) CheckMetadata(m *domain.EvidenceMetadata) error {
	if err := checkCombination(*m); err != nil {
		return err
	}

	required := []struct {
		field string
		value string
	}{
		{"ingestion_method", string(m.IngestionMethod)},
		{"dataset_type", string(m.DatasetType)},
		{"declared_scope", string(m.DeclaredScope)},
		{"purpose", m.Purpose},
	}
	for _, r := range required {
		if r.value == "" {
			return domain.NewFieldError(domain.CodeMissingRequiredMetadata, r.field, r.field+" is required")
		}
	}

	if !m.IngestionMethod.Valid() {
		return domain.NewFieldError(domain.CodeValidationFailed, "ingestion_method",
			fmt.Sprintf("unknown ingestion method %q", m.IngestionMethod))
	}
	if !m.DatasetType.Valid() {
		return domain.NewFieldError(domain.CodeValidationFailed, "dataset_type",
			fmt.Sprintf("unknown dataset type %q", m.DatasetType))
	}
	if !m.DeclaredScope.Valid() {
		return domain.NewFieldError(domain.CodeValidationFailed, "declared_scope",
			fmt.Sprintf("unknown declared scope %q", m.DeclaredScope))
	}
	if m.RetentionPolicy == "" {
		m.RetentionPolicy = domain.DefaultRetentionPolicy
	}
	if !m.RetentionPolicy.Valid() {
		return domain.NewFieldError(domain.CodeValidationFailed, "retention_policy",
			fmt.Sprintf("unknown retention policy %q", m.RetentionPolicy))
	}

	if m.DeclaredScope.RequiresTarget() && m.ScopeTargetID == "" {
		return domain.NewFieldError(domain.CodeMissingScopeTargetID, "scope_target_id",
			fmt.Sprintf("declared_scope %s requires scope_target_id", m.DeclaredScope))
	}
	if !m.DeclaredScope.RequiresTarget() {
		m.ScopeTargetID = ""
	}

	switch m.IngestionMethod {
	case domain.MethodManualEntry:
		// Client-declared provenance is never trusted for manual entry.
		m.SourceSystem = domain.SourceSystemInternalManual
	case domain.MethodFileUpload:
		if m.SourceSystem == "" {
			m.SourceSystem = domain.SourceSystemUserUpload
		}
	default:
		if m.SourceSystem == "" {
			return domain.NewFieldError(domain.CodeMissingRequiredMetadata, "source_system",
				fmt.Sprintf("source_system is required for %s", m.IngestionMethod))
		}
	}

	if m.ContainsPersonalData && m.GDPRLegalBasis == "" {
		return domain.NewFieldError(domain.CodeMissingRequiredMetadata, "gdpr_legal_basis",
			"gdpr_legal_basis is required when contains_personal_data is true")
	}
	if !m.ContainsPersonalData {
		m.GDPRLegalBasis = ""
	}

	return nil
}

func checkCombination(m domain.EvidenceMetadata) error {
	if !m.DatasetType.CompatibleWith(m.IngestionMethod) {
		return domain.NewFieldError(domain.CodeUnsupportedCombination, "dataset_type",
			fmt.Sprintf("dataset type %s cannot be ingested via %s", m.DatasetType, m.IngestionMethod))
	}
	return nil
}

// ValidatePayload accepts either a decoded JSON value or raw JSON text and
// returns the payload as a non-empty JSON object free of placeholder values.
func (g *Gate) ValidatePayload(value any, raw string) (map[string]any, error) {
	var encoded []byte
	if raw != "" {
		encoded = []byte(raw)
	} else {
		if value == nil {
			return nil, domain.NewFieldError(domain.CodeInvalidPayload, "payload", "payload is required")
		}
		b, err := json.Marshal(value)
		if err != nil {
			return nil, domain.NewFieldError(domain.CodeInvalidPayload, "payload", "payload is not valid JSON")
		}
		encoded = b
	}

	if len(encoded) > g.maxPayloadBytes {
		return nil, domain.NewFieldError(domain.CodeInvalidPayload, "payload",
			fmt.Sprintf("payload exceeds %d bytes", g.maxPayloadBytes))
	}

	payload, err := decodeObject(encoded)
	if err != nil {
		return nil, err
	}

	return payload, g.checkObject(payload)
}

// checkObject validates an already decoded payload object.
func (g *Gate) checkObject(payload map[string]any) error {
	if len(payload) == 0 {
		return domain.NewFieldError(domain.CodeInvalidPayload, "payload", "payload must not be an empty object")
	}
	return g.checkPlaceholders("payload", payload)
}

// decodeObject parses b as exactly one JSON object, keeping numbers exact.
func decodeObject(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, domain.NewFieldError(domain.CodeInvalidPayload, "payload", "payload is not valid JSON")
	}
	if dec.More() {
		return nil, domain.NewFieldError(domain.CodeInvalidPayload, "payload", "payload must contain a single JSON value")
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, domain.NewFieldError(domain.CodeInvalidPayload, "payload",
			fmt.Sprintf("payload must be a JSON object, got %s", jsonKind(v)))
	}
	return obj, nil
}

func (g *Gate) checkPlaceholders(path string, v any) error {
	switch val := v.(type) {
	case string:
		if _, ok := g.placeholders[normalizePlaceholder(val)]; ok {
			return domain.NewFieldError(domain.CodeInvalidPayload, path,
				fmt.Sprintf("Placeholder value %q is not allowed", val))
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := g.checkPlaceholders(path+"."+k, val[k]); err != nil {
				return err
			}
		}
	case []any:
		for i, item := range val {
			if err := g.checkPlaceholders(fmt.Sprintf("%s[%d]", path, i), item); err != nil {
				return err
			}
		}
	}
	return nil
}

func normalizePlaceholder(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// ValidateDraft re-runs the gate over a stored draft before sealing.
func (g *Gate) ValidateDraft(d *domain.EvidenceDraft) error {
	if d.RequestID == "" {
		return domain.NewFieldError(domain.CodeMissingRequiredMetadata, "request_id", "request_id is required")
	}
	meta := d.EvidenceMetadata
	if err := g.CheckMetadata(&meta); err != nil {
		return err
	}
	if meta != d.EvidenceMetadata {
		return domain.NewError(domain.CodeValidationFailed, "stored metadata is not normalized")
	}

	switch d.PayloadKind {
	case domain.PayloadJSON:
		return g.checkObject(d.Payload)
	case domain.PayloadFile:
		if d.Attachment == nil || d.Attachment.SHA256 == "" {
			return domain.NewFieldError(domain.CodeInvalidPayload, "payload", "file attachment is missing its content hash")
		}
		if len(d.Payload) > 0 {
			return g.checkObject(d.Payload)
		}
		return nil
	default:
		return domain.NewFieldError(domain.CodeValidationFailed, "payload", "no payload attached")
	}
}
