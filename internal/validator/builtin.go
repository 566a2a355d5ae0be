package validator

import (
	"context"
	"errors"
	"fmt"
	"path"

	"metarepo/internal/model"
	"metarepo/internal/storage"
)

// Built-in class names.
const (
	SiteProject    = "project"
	TargetFile     = "file"
	TargetObject   = "object"
	SystemWorkflow = "workflow"
)

var workflowKeys = []string{
	"type", "versionMajor", "versionMinor", "versionPatch",
	"tenant", "workflowId", "parentWorkflowId", "originatorWorkflowId",
}

var versionDefaults = model.Fields{"versionMajor": 1, "versionMinor": 0, "versionPatch": 0}

var fileKeys = []string{"fileName", "filePath", "fileSize", "storageKey", "bucketName"}

// NewProject governs siteMetadata of workflow-produced artifacts.
func NewProject() Validator {
	return newWorkflowPolicy(KindSite)
}

// NewWorkflow applies the project rules to the system section.
func NewWorkflow() Validator {
	return newWorkflowPolicy(KindSystem)
}

func newWorkflowPolicy(kind Kind) *policy {
	return &policy{
		kind:      kind,
		allowed:   workflowKeys,
		required:  []string{"type", "versionMajor", "versionMinor", "versionPatch", "tenant", "workflowId", "parentWorkflowId", "originatorWorkflowId"},
		defaults:  versionDefaults,
		updatable: []string{"type", "versionMajor", "versionMinor", "versionPatch", "workflowId", "parentWorkflowId", "originatorWorkflowId"},
		immutable: []string{"tenant", "userId"},
		tenant:    true,
		stampUser: true,
	}
}

// NewFile governs targetMetadata describing a stored file.
func NewFile() Validator {
	return &policy{
		kind:      KindTarget,
		allowed:   fileKeys,
		required:  fileKeys,
		updatable: []string{"fileName", "filePath", "fileSize"},
		immutable: []string{"storageKey", "bucketName"},
	}
}

// NewObject governs targetMetadata pointing at an object in store. Only
// storageKey is required; the rest defaults from the object itself.
func NewObject(store storage.Storage) Validator {
	return &policy{
		kind:      KindTarget,
		allowed:   fileKeys,
		required:  []string{"storageKey"},
		updatable: []string{"fileName", "filePath", "fileSize"},
		immutable: []string{"storageKey", "bucketName"},
		enrich: func(ctx context.Context, f model.Fields) error {
			return statObject(ctx, store, f)
		},
	}
}

func statObject(ctx context.Context, store storage.Storage, f model.Fields) error {
	bucket := store.Bucket()
	if b, ok := f["bucketName"]; ok && b != bucket {
		return fmt.Errorf("%w: bucketName must be %q", model.ErrValidation, bucket)
	}
	f["bucketName"] = bucket

	key, ok := f["storageKey"].(string)
	if !ok || key == "" {
		return fmt.Errorf("%w: storageKey must be a non-empty string", model.ErrValidation)
	}
	info, err := store.Stat(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return fmt.Errorf("%w: object %q does not exist", model.ErrValidation, key)
		}
		return fmt.Errorf("%w: %w", model.ErrStorage, err)
	}
	applyDefaults(f, model.Fields{
		"fileSize": info.Size,
		"fileName": path.Base(key),
		"filePath": path.Dir(key),
	})
	return nil
}

// RegisterBuiltins registers the validators shipped with the service. The
// object validator is only available when an object store is configured.
func RegisterBuiltins(r *Registry, store storage.Storage) error {
	regs := []struct {
		kind Kind
		name string
		f    Factory
	}{
		{KindSite, SiteProject, NewProject},
		{KindTarget, TargetFile, NewFile},
		{KindSystem, SystemWorkflow, NewWorkflow},
	}
	if store != nil {
		regs = append(regs, struct {
			kind Kind
			name string
			f    Factory
		}{KindTarget, TargetObject, func() Validator { return NewObject(store) }})
	}
	for _, reg := range regs {
		if err := r.Register(reg.kind, reg.name, reg.f); err != nil {
			return err
		}
	}
	return nil
}
