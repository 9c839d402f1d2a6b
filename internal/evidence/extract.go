package evidence

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/gosuda/evidra/internal/domain"
)

// isStructured reports whether a file should be parsed into a JSON payload
// rather than referenced by hash only.
func isStructured(fileName, contentType string) bool {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch ct {
	case "application/json", "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return true
	}
	return false
}

// extractDocument parses YAML or JSON file content into a payload object.
// The result is normalized through JSON so hashing and placeholder checks see
// the same shapes as an inline payload.
func extractDocument(content []byte) (map[string]any, error) {
	var doc any
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, domain.NewFieldError(domain.CodeInvalidPayload, "content",
			fmt.Sprintf("file is not valid JSON or YAML: %v", firstLine(err.Error())))
	}

	b, err := json.Marshal(jsonCompatible(doc))
	if err != nil {
		return nil, domain.NewFieldError(domain.CodeInvalidPayload, "content", "file content cannot be represented as JSON")
	}

	obj, err := decodeObject(b)
	if err != nil {
		return nil, domain.NewFieldError(domain.CodeInvalidPayload, "content", "file must contain a JSON or YAML object")
	}
	return obj, nil
}

// jsonCompatible converts YAML mappings with non-string keys into string-keyed maps.
func jsonCompatible(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = jsonCompatible(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = jsonCompatible(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = jsonCompatible(item)
		}
		return out
	default:
		return v
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

// fileReference is the payload recorded for opaque files.
func fileReference(info domain.AttachmentInfo) map[string]any {
	return map[string]any{
		"file_name":    info.FileName,
		"content_type": info.ContentType,
		"size_bytes":   json.Number(fmt.Sprint(info.SizeBytes)),
		"sha256":       info.SHA256,
	}
}
