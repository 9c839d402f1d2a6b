// Package registry builds CBAM declarations for the French customs registry
// from sealed evidence.
package registry

import (
	"fmt"

	"github.com/gosuda/evidra/internal/domain"
)

// Action names accepted by the registry endpoint.
const (
	ActionValidate = "validate"
	ActionGenerate = "generate"
)

// Action is one of ValidateDeclaration or GenerateDeclaration.
type Action interface {
	Name() string
	declaration() *Declaration
}

// ValidateDeclaration checks a declaration without producing a document.
type ValidateDeclaration struct {
	Declaration Declaration
}

func (a ValidateDeclaration) Name() string              { return ActionValidate }
func (a ValidateDeclaration) declaration() *Declaration { return &a.Declaration }

// GenerateDeclaration validates a declaration and renders the XML document.
type GenerateDeclaration struct {
	Declaration Declaration
}

func (a GenerateDeclaration) Name() string              { return ActionGenerate }
func (a GenerateDeclaration) declaration() *Declaration { return &a.Declaration }

// ParseAction maps the wire discriminator to its variant.
func ParseAction(name string, decl Declaration) (Action, error) {
	switch name {
	case ActionValidate:
		return ValidateDeclaration{Declaration: decl}, nil
	case ActionGenerate:
		return GenerateDeclaration{Declaration: decl}, nil
	case "":
		return nil, domain.NewFieldError(domain.CodeMissingRequiredMetadata, "action", "action is required")
	default:
		return nil, domain.NewFieldError(domain.CodeValidationFailed, "action", fmt.Sprintf("unknown action %q", name))
	}
}
