package localfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"metarepo/internal/model"
	"metarepo/internal/repository"
	"metarepo/internal/repository/repotest"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "catalog", "metarepo.json"), zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestStore_Contract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.DocumentRepository {
		return newStore(t)
	})
}

func TestStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "metarepo.json")

	first, err := New(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, first.Notate(ctx, repotest.NewDocument("d1", "teamA")))

	second, err := New(path, zap.NewNop())
	require.NoError(t, err)
	got, err := second.Find(ctx, repository.Filters{"docId": "d1"}, nil, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up after rename")
}

func TestStore_CorruptCatalog(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.WriteFile(s.path, []byte("{not json"), 0o644))

	_, err := s.Find(context.Background(), nil, nil, 0)
	assert.ErrorIs(t, err, model.ErrStorage)
	assert.ErrorIs(t, s.Ping(context.Background()), model.ErrStorage)
}

func TestStore_EmptyFileIsEmptyCatalog(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.WriteFile(s.path, nil, 0o644))

	got, err := s.Find(context.Background(), nil, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New("", zap.NewNop())
	assert.Error(t, err)
}

func TestMatches(t *testing.T) {
	doc := repotest.NewDocument("d1", "teamA")
	doc.UserMetadata["tags"] = []any{"raw", "qc"}

	tests := []struct {
		name    string
		filters repository.Filters
		want    bool
	}{
		{"no filters", nil, true},
		{"bare field", repository.Filters{"displayName": "doc d1"}, true},
		{"dotted field", repository.Filters{"siteMetadata.tenant": "teamA"}, true},
		{"numeric field across types", repository.Filters{"targetMetadata.fileSize": 10.0}, true},
		{"docset member", repository.Filters{"docSetId": "set-teamA"}, true},
		{"missing key", repository.Filters{"userMetadata.absent": "x"}, false},
		{"type mismatch", repository.Filters{"targetMetadata.fileSize": "10"}, false},
		{"one of two fails", repository.Filters{"siteMetadata.tenant": "teamA", "status": "Deleted"}, false},
		{"unset systemClass reads empty", repository.Filters{"systemClass": ""}, true},
		{"unset systemClass is no class", repository.Filters{"systemClass": "workflow"}, false},
		{"list metadata member", repository.Filters{"userMetadata.tags": "qc"}, true},
		{"list metadata non-member", repository.Filters{"userMetadata.tags": "final"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := matches(doc, tt.filters)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
