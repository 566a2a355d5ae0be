// Package validator holds the per-subtype metadata policies and the registry
// that resolves them by class name.
package validator

import (
	"context"

	"metarepo/internal/model"
)

// Kind selects which document section a validator governs.
type Kind string

const (
	KindSite   Kind = "site"
	KindTarget Kind = "target"
	KindSystem Kind = "system"
)

// Section returns the document section governed by validators of kind k.
func (k Kind) Section() model.Section {
	switch k {
	case KindSite:
		return model.SectionSite
	case KindTarget:
		return model.SectionTarget
	case KindSystem:
		return model.SectionSystem
	}
	return ""
}

// Validator enforces the field policy of one metadata subtype.
type Validator interface {
	// Validate checks a raw section on create and returns the section to
	// store, with defaults and server-owned fields filled in.
	Validate(ctx context.Context, section model.Fields, p *model.Principal) (model.Fields, error)

	// ApplyUpdate stages the requested replacement of the governed section
	// into pending and archives the current value using tmpl. It does
	// nothing when the request omits the section or repeats its value.
	ApplyUpdate(ctx context.Context, current *model.Document, req *model.NotateRequest, pending *model.Patch, tmpl model.ArchiveEntry) error
}
