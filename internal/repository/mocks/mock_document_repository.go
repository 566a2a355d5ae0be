package mocks

import (
	"context"

	"metarepo/internal/model"
	"metarepo/internal/repository"

	"github.com/stretchr/testify/mock"
)

type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) Find(ctx context.Context, filters repository.Filters, allowedGroups []string, page int) ([]model.Document, error) {
	args := m.Called(ctx, filters, allowedGroups, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

func (m *MockDocumentRepository) Notate(ctx context.Context, doc *model.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockDocumentRepository) Update(ctx context.Context, docID string, patch *model.Patch) error {
	args := m.Called(ctx, docID, patch)
	return args.Error(0)
}
