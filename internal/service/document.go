package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"metarepo/internal/lock"
	"metarepo/internal/model"
	"metarepo/internal/repository"
	"metarepo/internal/validator"
)

// DocumentService defines the catalog use cases. Errors wrap the kinds in
// the model package.
type DocumentService interface {
	// Create validates a new document, assigns its docId and stores it as Available.
	Create(ctx context.Context, req *model.NotateRequest, p *model.Principal) (*model.Document, error)

	// Update changes a document visible to p and archives every replaced value.
	Update(ctx context.Context, req *model.NotateRequest, p *model.Principal) error

	// Find returns the Available documents visible to p that match filters.
	Find(ctx context.Context, filters repository.Filters, p *model.Principal) ([]model.Document, error)

	// AdminFindAll returns one page of every stored document regardless of tenant or status.
	AdminFindAll(ctx context.Context, page int, p *model.Principal) ([]model.Document, error)

	// AdminForceNotate stores doc verbatim, bypassing validation. Used for bulk import.
	AdminForceNotate(ctx context.Context, doc *model.Document, p *model.Principal) (string, error)
}

var tracer = otel.Tracer("metarepo/internal/service")

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	repo       repository.DocumentRepository
	registry   *validator.Registry
	locker     lock.Locker
	adminGroup string
	log        *zap.Logger
	now        func() time.Time
}

// NewDocumentService constructs a new DocumentService. Members of adminGroup
// may use the admin operations; an empty adminGroup disables them.
func NewDocumentService(repo repository.DocumentRepository, registry *validator.Registry, locker lock.Locker, adminGroup string, log *zap.Logger) DocumentService {
	return &documentService{
		repo:       repo,
		registry:   registry,
		locker:     locker,
		adminGroup: adminGroup,
		log:        log.With(zap.String("component", "service")),
		now:        time.Now,
	}
}

func (s *documentService) Create(ctx context.Context, req *model.NotateRequest, p *model.Principal) (doc *model.Document, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Create", trace.WithAttributes(
		attribute.String("metarepo.site_class", req.SiteClass),
		attribute.String("metarepo.target_class", req.TargetClass),
	))
	defer func() { endSpan(span, err) }()

	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	if req.SiteClass == "" || req.TargetClass == "" {
		return nil, fmt.Errorf("%w: siteClass and targetClass are required", model.ErrValidation)
	}
	if req.SystemClass == "" && req.SystemMetadata != nil {
		return nil, fmt.Errorf("%w: systemMetadata requires systemClass", model.ErrValidation)
	}

	doc = &model.Document{
		DocID:        uuid.NewString(),
		DocSetID:     dedupe(req.DocSetID),
		Status:       model.StatusAvailable,
		Timestamp:    s.stamp(),
		SiteClass:    req.SiteClass,
		TargetClass:  req.TargetClass,
		SystemClass:  req.SystemClass,
		UserMetadata: req.UserMetadata.Clone(),
	}
	if req.DisplayName != nil {
		doc.DisplayName = *req.DisplayName
	}

	for _, k := range s.governed(doc) {
		v, err := s.registry.Resolve(k, classOf(doc, k))
		if err != nil {
			return nil, err
		}
		section, err := v.Validate(ctx, req.Section(k.Section()), p)
		if err != nil {
			return nil, err
		}
		doc.SetSection(k.Section(), section)
	}
	doc.Normalize()

	span.SetAttributes(attribute.String("metarepo.doc_id", doc.DocID))
	if err := s.repo.Notate(ctx, doc); err != nil {
		return nil, err
	}
	s.log.Info("document created",
		zap.String("doc_id", doc.DocID),
		zap.String("tenant", doc.Tenant()),
		zap.String("editor", p.Username),
	)
	return doc, nil
}

func (s *documentService) Update(ctx context.Context, req *model.NotateRequest, p *model.Principal) (err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Update", trace.WithAttributes(
		attribute.String("metarepo.doc_id", req.DocID),
	))
	defer func() { endSpan(span, err) }()

	if err := requirePrincipal(p); err != nil {
		return err
	}
	if req.DocID == "" {
		return fmt.Errorf("%w: docId is required", model.ErrValidation)
	}

	release, err := s.locker.Lock(ctx, req.DocID)
	if err != nil {
		return err
	}
	defer release()

	found, err := s.repo.Find(ctx, repository.Filters{"docId": req.DocID}, AllowedGroups(p), 0)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return fmt.Errorf("%w: document %s", model.ErrNotFound, req.DocID)
	}
	current := &found[0]

	if err := checkClasses(current, req); err != nil {
		return err
	}

	now := s.stamp()
	tmpl := model.ArchiveEntry{Timestamp: now, EditorID: p.Username, Comment: req.ArchiveComment}
	patch := &model.Patch{}

	framework := model.Fields{}
	if req.DisplayName != nil && *req.DisplayName != current.DisplayName {
		framework["displayName"] = current.DisplayName
		patch.DisplayName = req.DisplayName
	}
	if ids := dedupe(req.DocSetID); ids != nil && !model.Equal(ids, current.DocSetID) {
		framework["docSetId"] = append([]string{}, current.DocSetID...)
		patch.DocSetID = ids
	}
	if len(framework) > 0 {
		e := tmpl
		e.Previous = framework
		patch.AppendArchive(model.SectionFramework, current, e)
	}

	if req.UserMetadata != nil && !model.Equal(req.UserMetadata, current.UserMetadata) {
		e := tmpl
		e.Previous = current.UserMetadata.Clone()
		patch.SetSection(model.SectionUser, req.UserMetadata.Clone())
		patch.AppendArchive(model.SectionUser, current, e)
	}

	for _, k := range s.governed(current) {
		v, err := s.registry.Resolve(k, classOf(current, k))
		if err != nil {
			return err
		}
		if err := v.ApplyUpdate(ctx, current, req, patch, tmpl); err != nil {
			return err
		}
	}

	if patch.Empty() {
		s.log.Debug("update without changes", zap.String("doc_id", req.DocID))
		return nil
	}
	patch.Timestamp = now
	patch.EditorID = p.Username
	patch.Comment = req.ArchiveComment

	if err := s.repo.Update(ctx, req.DocID, patch); err != nil {
		return err
	}
	s.log.Info("document updated",
		zap.String("doc_id", req.DocID),
		zap.Strings("changed", patch.Changed()),
		zap.String("editor", p.Username),
	)
	return nil
}

func (s *documentService) Find(ctx context.Context, filters repository.Filters, p *model.Principal) (docs []model.Document, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Find", trace.WithAttributes(
		attribute.StringSlice("metarepo.filters", filters.Keys()),
	))
	defer func() {
		span.SetAttributes(attribute.Int("metarepo.results", len(docs)))
		endSpan(span, err)
	}()

	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	f := filters.Clone()
	f["status"] = string(model.StatusAvailable)
	return s.repo.Find(ctx, f, AllowedGroups(p), 0)
}

func (s *documentService) AdminFindAll(ctx context.Context, page int, p *model.Principal) (docs []model.Document, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.AdminFindAll", trace.WithAttributes(
		attribute.Int("metarepo.page", page),
	))
	defer func() {
		span.SetAttributes(attribute.Int("metarepo.results", len(docs)))
		endSpan(span, err)
	}()

	if err := s.requireAdmin(p); err != nil {
		return nil, err
	}
	if page < 0 {
		return nil, fmt.Errorf("%w: page must not be negative", model.ErrValidation)
	}
	return s.repo.Find(ctx, nil, nil, page)
}

func (s *documentService) AdminForceNotate(ctx context.Context, doc *model.Document, p *model.Principal) (_ string, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.AdminForceNotate")
	defer func() { endSpan(span, err) }()

	if err := s.requireAdmin(p); err != nil {
		return "", err
	}
	if doc.DocID == "" {
		doc.DocID = uuid.NewString()
	}
	span.SetAttributes(attribute.String("metarepo.doc_id", doc.DocID))
	doc.Normalize()
	if err := s.repo.Notate(ctx, doc); err != nil {
		return "", err
	}
	s.log.Info("document force-notated", zap.String("doc_id", doc.DocID), zap.String("editor", p.Username))
	return doc.DocID, nil
}

// stamp reads the clock once at the precision every backend keeps, so the
// instant handed back equals the one a later find returns.
func (s *documentService) stamp() time.Time {
	return model.Stamp(s.now())
}

func (s *documentService) requireAdmin(p *model.Principal) error {
	if err := requirePrincipal(p); err != nil {
		return err
	}
	if s.adminGroup == "" || !p.InGroup(s.adminGroup, false) {
		return fmt.Errorf("%w: admin group membership required", model.ErrAuthorization)
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, model.KindOf(err))
	}
	span.End()
}

// governed lists the validator kinds that apply to doc.
func (s *documentService) governed(doc *model.Document) []validator.Kind {
	kinds := []validator.Kind{validator.KindSite, validator.KindTarget}
	if doc.SystemClass != "" {
		kinds = append(kinds, validator.KindSystem)
	}
	return kinds
}

func classOf(doc *model.Document, k validator.Kind) string {
	switch k {
	case validator.KindSite:
		return doc.SiteClass
	case validator.KindTarget:
		return doc.TargetClass
	case validator.KindSystem:
		return doc.SystemClass
	}
	return ""
}

func checkClasses(current *model.Document, req *model.NotateRequest) error {
	for _, c := range []struct{ field, stored, requested string }{
		{"siteClass", current.SiteClass, req.SiteClass},
		{"targetClass", current.TargetClass, req.TargetClass},
		{"systemClass", current.SystemClass, req.SystemClass},
	} {
		if c.requested != "" && c.requested != c.stored {
			return fmt.Errorf("%w: %s cannot be changed", model.ErrValidation, c.field)
		}
	}
	if current.SystemClass == "" && req.SystemMetadata != nil {
		return fmt.Errorf("%w: document has no systemClass", model.ErrValidation)
	}
	return nil
}
