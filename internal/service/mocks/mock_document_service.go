package mocks

import (
	"context"

	"metarepo/internal/model"
	"metarepo/internal/repository"
	"metarepo/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockDocumentService struct {
	mock.Mock
}

var _ service.DocumentService = (*MockDocumentService)(nil)

func (m *MockDocumentService) Create(ctx context.Context, req *model.NotateRequest, p *model.Principal) (*model.Document, error) {
	args := m.Called(ctx, req, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) Update(ctx context.Context, req *model.NotateRequest, p *model.Principal) error {
	args := m.Called(ctx, req, p)
	return args.Error(0)
}

func (m *MockDocumentService) Find(ctx context.Context, filters repository.Filters, p *model.Principal) ([]model.Document, error) {
	args := m.Called(ctx, filters, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

func (m *MockDocumentService) AdminFindAll(ctx context.Context, page int, p *model.Principal) ([]model.Document, error) {
	args := m.Called(ctx, page, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

func (m *MockDocumentService) AdminForceNotate(ctx context.Context, doc *model.Document, p *model.Principal) (string, error) {
	args := m.Called(ctx, doc, p)
	return args.String(0), args.Error(1)
}
