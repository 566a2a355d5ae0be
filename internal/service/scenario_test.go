package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"metarepo/internal/config"
	"metarepo/internal/database"
	"metarepo/internal/database/migration"
	"metarepo/internal/model"
	"metarepo/internal/repository"
	"metarepo/internal/repository/localfile"
	"metarepo/internal/repository/relational"
	"metarepo/internal/repository/repotest"
)

func newLocalService(t *testing.T) *documentService {
	t.Helper()
	store, err := localfile.New(filepath.Join(t.TempDir(), "catalog.json"), zap.NewNop())
	require.NoError(t, err)
	return newTestService(t, store)
}

func newRelationalService(t *testing.T) *documentService {
	t.Helper()
	db, err := database.NewSQLite(config.DatabaseConfig{SQLitePath: filepath.Join(t.TempDir(), "metarepo.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migration.EnsureMigrated(context.Background(), db, zap.NewNop()))
	return newTestService(t, relational.New(db, relational.SQLite, zap.NewNop()))
}

// ticking makes every call to now one second later than the previous one.
func ticking(svc *documentService) {
	at := fixedNow
	svc.now = func() time.Time {
		at = at.Add(time.Second)
		return at
	}
}

func TestScenario_CreateUpdateFind(t *testing.T) {
	ctx := context.Background()
	svc := newLocalService(t)
	alice := member("alice", "teamA")

	doc, err := svc.Create(ctx, createRequest("teamA"), alice)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.SiteMetadata["versionMajor"])
	assert.Equal(t, 0, doc.SiteMetadata["versionMinor"])
	assert.Equal(t, 0, doc.SiteMetadata["versionPatch"])

	found, err := svc.Find(ctx, repository.Filters{"docId": doc.DocID}, alice)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, model.Equal(doc.SiteMetadata, found[0].SiteMetadata))
	assert.True(t, model.Equal(doc.TargetMetadata, found[0].TargetMetadata))

	renamed := "final results"
	require.NoError(t, svc.Update(ctx, &model.NotateRequest{DocID: doc.DocID, DisplayName: &renamed}, alice))

	found, err = svc.Find(ctx, repository.Filters{"docId": doc.DocID}, alice)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "final results", found[0].DisplayName)
	require.Len(t, found[0].FrameworkArchive, 1)
	assert.Equal(t, "results.csv", found[0].FrameworkArchive[0].Previous["displayName"])
	assert.Equal(t, "alice", found[0].FrameworkArchive[0].EditorID)

	bob := member("bob", "teamB")
	found, err = svc.Find(ctx, repository.Filters{"docId": doc.DocID}, bob)
	require.NoError(t, err)
	assert.Empty(t, found)

	err = svc.Update(ctx, &model.NotateRequest{DocID: doc.DocID, DisplayName: &renamed}, bob)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestScenario_ForceNotatedDeletedStaysHidden(t *testing.T) {
	ctx := context.Background()
	svc := newLocalService(t)

	doc := repotest.NewDocument("gone", "teamA")
	doc.Status = model.StatusDeleted
	_, err := svc.AdminForceNotate(ctx, doc, member("root", "admins"))
	require.NoError(t, err)

	found, err := svc.Find(ctx, repository.Filters{"docId": "gone"}, member("alice", "teamA"))
	require.NoError(t, err)
	assert.Empty(t, found)

	all, err := svc.AdminFindAll(ctx, 0, member("root", "admins"))
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestProperty_TenantIsolation(t *testing.T) {
	tenants := []string{"teamA", "teamB", "teamC", "alice", "bob"}
	types := []string{"analysis", "rerun"}

	rapid.Check(t, func(r *rapid.T) {
		ctx := context.Background()
		svc := newLocalService(t)

		owners := map[string]string{}
		n := rapid.IntRange(1, 8).Draw(r, "docs")
		for i := 0; i < n; i++ {
			tenant := rapid.SampledFrom(tenants).Draw(r, "tenant")
			req := createRequest(tenant)
			req.SiteMetadata["type"] = rapid.SampledFrom(types).Draw(r, "type")
			doc, err := svc.Create(ctx, req, member("creator", tenant))
			if err != nil {
				r.Fatalf("create: %v", err)
			}
			owners[doc.DocID] = tenant
		}

		var groups []string
		for _, g := range []string{"teamA", "teamB", "teamC"} {
			if rapid.Bool().Draw(r, "in"+g) {
				groups = append(groups, g)
			}
		}
		caller := member(rapid.SampledFrom([]string{"alice", "bob", "carol"}).Draw(r, "caller"), groups...)
		filters := repository.Filters{}
		if rapid.Bool().Draw(r, "byType") {
			filters["siteMetadata.type"] = rapid.SampledFrom(types).Draw(r, "filterType")
		}

		found, err := svc.Find(ctx, filters, caller)
		if err != nil {
			r.Fatalf("find: %v", err)
		}
		allowed := map[string]bool{}
		for _, g := range AllowedGroups(caller) {
			allowed[g] = true
		}
		for _, d := range found {
			if !allowed[d.Tenant()] {
				r.Fatalf("caller %s saw %s owned by %s", caller.Username, d.DocID, d.Tenant())
			}
			if owners[d.DocID] != d.Tenant() {
				r.Fatalf("tenant of %s changed", d.DocID)
			}
		}

		all, err := svc.AdminFindAll(ctx, 0, member("root", "admins"))
		if err != nil {
			r.Fatalf("find all: %v", err)
		}
		want := 0
		for _, d := range all {
			if !allowed[d.Tenant()] {
				continue
			}
			if v, ok := filters["siteMetadata.type"]; ok && d.SiteMetadata["type"] != v {
				continue
			}
			want++
		}
		if len(found) != want {
			r.Fatalf("caller saw %d documents, %d are visible", len(found), want)
		}
	})
}

func TestProperty_ArchiveReplay(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		ctx := context.Background()
		svc := newLocalService(t)
		ticking(svc)
		alice := member("alice", "teamA")

		doc, err := svc.Create(ctx, createRequest("teamA"), alice)
		if err != nil {
			r.Fatalf("create: %v", err)
		}

		history := []model.Fields{doc.UserMetadata.Clone()}
		n := rapid.IntRange(0, 6).Draw(r, "updates")
		for i := 0; i < n; i++ {
			next := model.Fields{
				"note":     fmt.Sprintf("v%d-%s", i, rapid.StringMatching(`[a-z]{0,6}`).Draw(r, "note")),
				"priority": rapid.IntRange(0, 3).Draw(r, "priority"),
			}
			if err := svc.Update(ctx, &model.NotateRequest{DocID: doc.DocID, UserMetadata: next}, alice); err != nil {
				r.Fatalf("update %d: %v", i, err)
			}
			history = append(history, next)
		}

		found, err := svc.Find(ctx, repository.Filters{"docId": doc.DocID}, alice)
		if err != nil || len(found) != 1 {
			r.Fatalf("find: %v (%d results)", err, len(found))
		}
		got := found[0]
		if len(got.MetadataArchive) != n {
			r.Fatalf("archive has %d entries after %d updates", len(got.MetadataArchive), n)
		}
		for i, e := range got.MetadataArchive {
			if !model.Equal(e.Previous, history[i]) {
				r.Fatalf("entry %d previous = %v, want %v", i, e.Previous, history[i])
			}
			if i > 0 && !e.Timestamp.After(got.MetadataArchive[i-1].Timestamp) {
				r.Fatalf("entry %d is not newer than entry %d", i, i-1)
			}
		}
		if !model.Equal(got.UserMetadata, history[n]) {
			r.Fatalf("current = %v, want %v", got.UserMetadata, history[n])
		}
	})
}

// update is one step of a generated edit sequence.
type update struct {
	req  model.NotateRequest
	name string
}

func drawUpdate(r *rapid.T, i int) update {
	req := model.NotateRequest{DocID: "d1", ArchiveComment: rapid.SampledFrom([]string{"", "fix", "rerun"}).Draw(r, "comment")}
	kind := rapid.SampledFrom([]string{"displayName", "docSetId", "userMetadata", "siteMetadata", "targetMetadata", "mixed"}).Draw(r, "kind")
	if kind == "displayName" || kind == "mixed" {
		name := rapid.SampledFrom([]string{"alpha", "beta", "doc d1"}).Draw(r, "name")
		req.DisplayName = &name
	}
	if kind == "docSetId" || kind == "mixed" {
		req.DocSetID = rapid.SliceOfN(rapid.SampledFrom([]string{"s1", "s2", "set-teamA"}), 0, 3).Draw(r, "sets")
	}
	if kind == "userMetadata" || kind == "mixed" {
		req.UserMetadata = model.Fields{"note": rapid.SampledFrom([]string{"first", "second", "third"}).Draw(r, "note")}
	}
	if kind == "siteMetadata" {
		req.SiteMetadata = model.Fields{
			"type": rapid.SampledFrom([]string{"analysis", "rerun"}).Draw(r, "type"), "workflowId": fmt.Sprintf("wf-%d", i),
			"parentWorkflowId": "wf-0", "originatorWorkflowId": "wf-0",
			"versionMajor": rapid.IntRange(1, 2).Draw(r, "major"),
		}
	}
	if kind == "targetMetadata" {
		req.TargetMetadata = model.Fields{
			"fileName": "d1.csv", "filePath": "/data",
			"fileSize": rapid.IntRange(1, 100).Draw(r, "size"),
		}
	}
	return update{req: req, name: kind}
}

func TestProperty_RelationalMatchesLocalFile(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		ctx := context.Background()
		local, rel := newLocalService(t), newRelationalService(t)
		ticking(local)
		ticking(rel)
		admin, alice := member("root", "admins"), member("alice", "teamA")

		for _, svc := range []*documentService{local, rel} {
			if _, err := svc.AdminForceNotate(ctx, repotest.NewDocument("d1", "teamA"), admin); err != nil {
				r.Fatalf("force notate: %v", err)
			}
		}

		m := rapid.IntRange(1, 6).Draw(r, "updates")
		for i := 0; i < m; i++ {
			u := drawUpdate(r, i)
			for _, svc := range []*documentService{local, rel} {
				req := u.req
				if err := svc.Update(ctx, &req, alice); err != nil {
					r.Fatalf("update %d (%s): %v", i, u.name, err)
				}
			}
		}

		a, err := local.Find(ctx, repository.Filters{"docId": "d1"}, alice)
		if err != nil {
			r.Fatalf("local find: %v", err)
		}
		b, err := rel.Find(ctx, repository.Filters{"docId": "d1"}, alice)
		if err != nil {
			r.Fatalf("relational find: %v", err)
		}
		aj, _ := json.Marshal(a)
		bj, _ := json.Marshal(b)
		if string(aj) != string(bj) {
			r.Fatalf("backends disagree\nlocal:      %s\nrelational: %s", aj, bj)
		}
	})
}

func TestScenario_RelationalFindAllPaging(t *testing.T) {
	ctx := context.Background()
	svc := newRelationalService(t)
	admin := member("root", "admins")

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := svc.AdminForceNotate(ctx, repotest.NewDocument(fmt.Sprintf("d%d", i), "teamA"), admin)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	sort.Strings(ids)

	page, err := svc.AdminFindAll(ctx, 0, admin)
	require.NoError(t, err)
	require.Len(t, page, 3)
	for i, d := range page {
		assert.Equal(t, ids[i], d.DocID)
	}

	page, err = svc.AdminFindAll(ctx, 1, admin)
	require.NoError(t, err)
	assert.Empty(t, page)
}
