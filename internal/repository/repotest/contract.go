// Package repotest holds the behaviour every DocumentRepository backend must
// share. Backend tests call Run with a constructor for a fresh, empty store.
package repotest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metarepo/internal/model"
	"metarepo/internal/repository"
)

// NewDocument returns a valid stored document owned by tenant.
func NewDocument(docID, tenant string) *model.Document {
	d := &model.Document{
		DocID:       docID,
		DocSetID:    []string{"set-" + tenant},
		DisplayName: "doc " + docID,
		Status:      model.StatusAvailable,
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SiteClass:   "project",
		TargetClass: "file",
		UserMetadata: model.Fields{
			"note": "first",
		},
		SiteMetadata: model.Fields{
			"type": "analysis", "tenant": tenant, "userId": "alice",
			"workflowId": "wf-" + docID, "parentWorkflowId": "wf-0", "originatorWorkflowId": "wf-0",
			"versionMajor": 1, "versionMinor": 0, "versionPatch": 0,
		},
		TargetMetadata: model.Fields{
			"fileName": docID + ".csv", "filePath": "/data", "fileSize": 10,
			"storageKey": "k/" + docID, "bucketName": "b",
		},
	}
	d.Normalize()
	return d
}

// Run exercises the repository contract against backends built by newRepo.
func Run(t *testing.T, newRepo func(t *testing.T) repository.DocumentRepository) {
	ctx := context.Background()

	t.Run("notate then find by docId", func(t *testing.T) {
		repo := newRepo(t)
		doc := NewDocument("d1", "teamA")
		require.NoError(t, repo.Notate(ctx, doc))

		got, err := repo.Find(ctx, repository.Filters{"docId": "d1"}, nil, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "d1", got[0].DocID)
		assert.Equal(t, "doc d1", got[0].DisplayName)
		assert.Equal(t, []string{"set-teamA"}, got[0].DocSetID)
		assert.Equal(t, model.StatusAvailable, got[0].Status)
		assert.True(t, doc.Timestamp.Equal(got[0].Timestamp))
		assert.True(t, model.Equal(doc.SiteMetadata, got[0].SiteMetadata))
		assert.True(t, model.Equal(doc.TargetMetadata, got[0].TargetMetadata))
		assert.True(t, model.Equal(doc.UserMetadata, got[0].UserMetadata))
		assert.Empty(t, got[0].FrameworkArchive)
	})

	t.Run("notate duplicate conflicts and keeps original", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Notate(ctx, NewDocument("d1", "teamA")))

		dup := NewDocument("d1", "teamB")
		dup.DisplayName = "impostor"
		err := repo.Notate(ctx, dup)
		assert.ErrorIs(t, err, model.ErrConflict)

		got, err := repo.Find(ctx, repository.Filters{"docId": "d1"}, nil, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "doc d1", got[0].DisplayName)
		assert.Equal(t, "teamA", got[0].Tenant())
	})

	t.Run("update unknown docId", func(t *testing.T) {
		repo := newRepo(t)
		name := "x"
		err := repo.Update(ctx, "missing", &model.Patch{DisplayName: &name})
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("update is visible to find", func(t *testing.T) {
		repo := newRepo(t)
		doc := NewDocument("d1", "teamA")
		require.NoError(t, repo.Notate(ctx, doc))

		name := "renamed"
		at := doc.Timestamp.Add(time.Hour)
		patch := &model.Patch{
			DisplayName:  &name,
			UserMetadata: model.Fields{"note": "second"},
			Timestamp:    at,
			EditorID:     "bob",
		}
		patch.AppendArchive(model.SectionFramework, doc, model.ArchiveEntry{Timestamp: at, EditorID: "bob", Previous: model.Fields{"displayName": "doc d1"}})
		patch.AppendArchive(model.SectionUser, doc, model.ArchiveEntry{Timestamp: at, EditorID: "bob", Previous: doc.UserMetadata.Clone()})
		require.NoError(t, repo.Update(ctx, "d1", patch))

		got, err := repo.Find(ctx, repository.Filters{"displayName": "renamed"}, nil, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "second", got[0].UserMetadata["note"])
		assert.True(t, at.Equal(got[0].Timestamp))
		assert.Equal(t, "teamA", got[0].Tenant(), "untouched sections survive")
		require.Len(t, got[0].FrameworkArchive, 1)
		assert.Equal(t, "doc d1", got[0].FrameworkArchive[0].Previous["displayName"])
		assert.Equal(t, "bob", got[0].FrameworkArchive[0].EditorID)
		require.Len(t, got[0].MetadataArchive, 1)
		assert.Equal(t, "first", got[0].MetadataArchive[0].Previous["note"])

		got, err = repo.Find(ctx, repository.Filters{"displayName": "doc d1"}, nil, 0)
		require.NoError(t, err)
		assert.Empty(t, got, "superseded values no longer match")
	})

	t.Run("filters are a conjunction", func(t *testing.T) {
		repo := newRepo(t)
		a := NewDocument("a", "teamA")
		b := NewDocument("b", "teamA")
		b.TargetMetadata["fileName"] = "a.csv"
		c := NewDocument("c", "teamB")
		c.TargetMetadata["fileName"] = "a.csv"
		for _, d := range []*model.Document{a, b, c} {
			require.NoError(t, repo.Notate(ctx, d))
		}

		got, err := repo.Find(ctx, repository.Filters{
			"targetMetadata.fileName": "a.csv",
			"siteMetadata.tenant":     "teamA",
		}, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids(got))

		got, err = repo.Find(ctx, repository.Filters{
			"targetMetadata.fileName": "a.csv",
			"siteMetadata.tenant":     "nobody",
		}, nil, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("numeric and membership filters", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Notate(ctx, NewDocument("a", "teamA")))
		b := NewDocument("b", "teamA")
		b.DocSetID = []string{"x", "y"}
		b.TargetMetadata["fileSize"] = 99
		require.NoError(t, repo.Notate(ctx, b))

		got, err := repo.Find(ctx, repository.Filters{"targetMetadata.fileSize": 99}, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, ids(got))

		got, err = repo.Find(ctx, repository.Filters{"docSetId": "y"}, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, ids(got))
	})

	t.Run("list metadata matches on membership", func(t *testing.T) {
		repo := newRepo(t)
		tagged := NewDocument("tagged", "teamA")
		tagged.UserMetadata["tags"] = []any{"raw", "qc"}
		single := NewDocument("single", "teamA")
		single.UserMetadata["tags"] = "qc"
		nested := NewDocument("nested", "teamA")
		nested.UserMetadata["tags"] = map[string]any{"stage": "qc"}
		for _, d := range []*model.Document{tagged, single, nested} {
			require.NoError(t, repo.Notate(ctx, d))
		}

		got, err := repo.Find(ctx, repository.Filters{"userMetadata.tags": "qc"}, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"single", "tagged"}, ids(got))

		got, err = repo.Find(ctx, repository.Filters{"userMetadata.tags": "final"}, nil, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("empty systemClass matches documents without one", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Notate(ctx, NewDocument("plain", "teamA")))
		wf := NewDocument("wf", "teamA")
		wf.SystemClass = "workflow"
		wf.SystemMetadata = model.Fields{"tenant": "teamA"}
		wf.Normalize()
		require.NoError(t, repo.Notate(ctx, wf))

		got, err := repo.Find(ctx, repository.Filters{"systemClass": ""}, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"plain"}, ids(got))

		got, err = repo.Find(ctx, repository.Filters{"systemClass": "workflow"}, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"wf"}, ids(got))
	})

	t.Run("millisecond instants round-trip exactly", func(t *testing.T) {
		repo := newRepo(t)
		doc := NewDocument("d1", "teamA")
		doc.Timestamp = model.Stamp(time.Date(2026, 3, 1, 12, 0, 0, 987654321, time.UTC))
		require.NoError(t, repo.Notate(ctx, doc))

		at := model.Stamp(doc.Timestamp.Add(1500 * time.Microsecond))
		patch := &model.Patch{UserMetadata: model.Fields{"note": "second"}, Timestamp: at, EditorID: "bob"}
		patch.AppendArchive(model.SectionUser, doc, model.ArchiveEntry{Timestamp: at, EditorID: "bob", Previous: doc.UserMetadata.Clone()})
		require.NoError(t, repo.Update(ctx, "d1", patch))

		got, err := repo.Find(ctx, repository.Filters{"docId": "d1"}, nil, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, at.Equal(got[0].Timestamp), "got %s want %s", got[0].Timestamp, at)
		require.Len(t, got[0].MetadataArchive, 1)
		assert.True(t, at.Equal(got[0].MetadataArchive[0].Timestamp))
	})

	t.Run("allowed groups scope by tenant", func(t *testing.T) {
		repo := newRepo(t)
		for i, tenant := range []string{"teamA", "teamB", "carol"} {
			require.NoError(t, repo.Notate(ctx, NewDocument(fmt.Sprintf("d%d", i), tenant)))
		}

		got, err := repo.Find(ctx, repository.Filters{}, []string{"teamB", "carol"}, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"d1", "d2"}, ids(got))

		got, err = repo.Find(ctx, repository.Filters{}, nil, 0)
		require.NoError(t, err)
		assert.Len(t, got, 3, "no groups means no tenant restriction")
	})

	t.Run("status filter", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Notate(ctx, NewDocument("live", "teamA")))
		gone := NewDocument("gone", "teamA")
		gone.Status = model.StatusDeleted
		require.NoError(t, repo.Notate(ctx, gone))

		got, err := repo.Find(ctx, repository.Filters{"status": string(model.StatusAvailable)}, []string{"teamA"}, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"live"}, ids(got))
	})

	t.Run("pages past the end are empty", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Notate(ctx, NewDocument("d1", "teamA")))

		got, err := repo.Find(ctx, repository.Filters{}, nil, 1)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("invalid filters rejected", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Find(ctx, repository.Filters{"bogus": "x"}, nil, 0)
		assert.ErrorIs(t, err, model.ErrValidation)
	})
}

func ids(docs []model.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.DocID)
	}
	return out
}
