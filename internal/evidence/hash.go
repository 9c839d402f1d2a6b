package evidence

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/domain"
)

// canonicalJSON encodes v with sorted object keys and no insignificant
// whitespace. encoding/json already sorts map keys; struct fields keep
// declaration order, which is fixed per type.
func canonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func sumHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// PayloadHash is the SHA-256 of the payload's canonical JSON.
func PayloadHash(payload map[string]any) (string, error) {
	b, err := canonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("evidence.PayloadHash: %w", err)
	}
	return sumHex(b), nil
}

// sealedMetadata is the hashed view of a record's metadata. Field order is part
// of the hash; append new fields at the end only.
type sealedMetadata struct {
	TenantID    uuid.UUID `json:"tenant_id"`
	DraftID     uuid.UUID `json:"draft_id"`
	RequestID   string    `json:"request_id"`
	domain.EvidenceMetadata
	PayloadKind domain.PayloadKind     `json:"payload_kind"`
	PayloadHash string                 `json:"payload_hash"`
	Attachment  *domain.AttachmentInfo `json:"attachment,omitempty"`
	TrustLevel  domain.TrustLevel      `json:"trust_level"`
	SealedAtUTC string                 `json:"sealed_at_utc"`
}

// MetadataHash is the SHA-256 over the canonical JSON of the sealed metadata,
// binding it to the payload hash and the seal time.
func MetadataHash(d *domain.EvidenceDraft, payloadHash string, sealedAtUTC string) (string, error) {
	b, err := canonicalJSON(sealedMetadata{
		TenantID:         d.TenantID,
		DraftID:          d.ID,
		RequestID:        d.RequestID,
		EvidenceMetadata: d.EvidenceMetadata,
		PayloadKind:      d.PayloadKind,
		PayloadHash:      payloadHash,
		Attachment:       d.Attachment,
		TrustLevel:       d.IngestionMethod.TrustLevel(),
		SealedAtUTC:      sealedAtUTC,
	})
	if err != nil {
		return "", fmt.Errorf("evidence.MetadataHash: %w", err)
	}
	return sumHex(b), nil
}

// ContentHash is the SHA-256 of raw file bytes.
func ContentHash(content []byte) string {
	return sumHex(content)
}

// requestHash fingerprints a normalized creation request for idempotent replay.
func requestHash(decl *Declaration) (string, error) {
	b, err := canonicalJSON(struct {
		RequestID string `json:"request_id"`
		domain.EvidenceMetadata
		Payload map[string]any `json:"payload,omitempty"`
	}{decl.RequestID, decl.Metadata, decl.Payload})
	if err != nil {
		return "", fmt.Errorf("evidence.requestHash: %w", err)
	}
	return sumHex(b), nil
}
