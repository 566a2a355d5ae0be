// Package repository defines the storage contract for catalog documents.
// Backend implementations live in subpackages (searchindex, relational, localfile).
package repository

import (
	"context"

	"metarepo/internal/model"
)

// PageSize is the number of documents returned per find page.
const PageSize = 1000

// DocumentRepository is implemented identically by every storage backend.
type DocumentRepository interface {
	// Find returns documents matching every filter and, when allowedGroups
	// is non-empty, whose tenant is one of allowedGroups. Page p holds up
	// to PageSize documents starting at p*PageSize, ordered by docId.
	Find(ctx context.Context, filters Filters, allowedGroups []string, page int) ([]model.Document, error)

	// Notate stores a new document atomically. It fails with ErrConflict
	// if the docId already exists.
	Notate(ctx context.Context, doc *model.Document) error

	// Update merges patch into the stored document. It fails with
	// ErrNotFound if docID is unknown. Once it returns, Find reflects the change.
	Update(ctx context.Context, docID string, patch *model.Patch) error
}

// Pinger is implemented by backends that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Offset returns the first row index of page.
func Offset(page int) int {
	if page < 0 {
		return 0
	}
	return page * PageSize
}
