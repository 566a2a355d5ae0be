// Package relational stores documents as an append-only log of normalized
// rows. Every write inserts a complete new version; reads fold the log.
package relational

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"metarepo/internal/model"
	"metarepo/internal/repository"
)

// Store is the relational implementation of repository.DocumentRepository.
// No row is ever updated or deleted.
type Store struct {
	db      *sql.DB
	dialect Dialect
	log     *zap.Logger
}

var _ repository.DocumentRepository = (*Store)(nil)

// New returns a Store over db. The schema must already be migrated.
func New(db *sql.DB, dialect Dialect, log *zap.Logger) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		log:     log.With(zap.String("component", "relational"), zap.String("dialect", dialect.Name())),
	}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type versionMeta struct {
	editorID string
	comment  string
	changed  sql.NullString
}

func (s *Store) Find(ctx context.Context, filters repository.Filters, allowedGroups []string, page int) ([]model.Document, error) {
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	query, args, ok, err := buildFindQuery(s.dialect, filters, allowedGroups, page)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []model.Document{}, nil
	}

	// One read transaction so every document is folded from the same snapshot.
	tx, err := s.db.BeginTx(ctx, s.dialect.ReadTxOptions())
	if err != nil {
		return nil, s.storageErr("begin find", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, s.storageErr("find documents", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, s.storageErr("scan doc_id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, s.storageErr("iterate doc_ids", err)
	}
	rows.Close()

	docs := make([]model.Document, 0, len(ids))
	for _, id := range ids {
		doc, _, err := s.load(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := tx.Commit(); err != nil {
		return nil, s.storageErr("commit find", err)
	}
	return docs, nil
}

func (s *Store) Notate(ctx context.Context, doc *model.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.storageErr("begin notate", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, s.dialect.Rebind(`SELECT COUNT(*) FROM metasheets WHERE doc_id = ?`), doc.DocID).Scan(&n); err != nil {
		return s.storageErr("check existing document", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: document %s already exists", model.ErrConflict, doc.DocID)
	}
	if err := s.insertVersion(ctx, tx, doc, 1, versionMeta{}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return s.writeErr("commit notate", doc.DocID, err)
	}
	if n := archivedEntries(doc); n > 0 {
		s.log.Warn("archive entries not stored; history restarts at this version",
			zap.String("doc_id", doc.DocID),
			zap.Int("dropped_entries", n),
		)
	}
	return nil
}

// archivedEntries counts the archive entries doc arrives with. Only imported
// documents carry any; the log cannot hold history older than version 1.
func archivedEntries(doc *model.Document) int {
	n := 0
	for _, s := range []model.Section{model.SectionFramework, model.SectionUser, model.SectionSite, model.SectionTarget, model.SectionSystem} {
		n += len(doc.Archive(s))
	}
	return n
}

// Update reconstructs the current document, applies patch in memory and
// writes the result as the next version. Two writers deriving the same next
// version collide on the primary key; the loser gets ErrConflict.
func (s *Store) Update(ctx context.Context, docID string, patch *model.Patch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.storageErr("begin update", err)
	}
	defer tx.Rollback()

	doc, version, err := s.load(ctx, tx, docID)
	if err != nil {
		return err
	}
	doc.Apply(patch)
	if patch.Timestamp.IsZero() {
		doc.Timestamp = model.Stamp(time.Now())
	}

	meta := versionMeta{
		editorID: patch.EditorID,
		comment:  patch.Comment,
		changed:  sql.NullString{String: strings.Join(patch.Changed(), ","), Valid: true},
	}
	if err := s.insertVersion(ctx, tx, doc, version+1, meta); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return s.writeErr("commit update", docID, err)
	}
	s.log.Debug("document version written", zap.String("doc_id", docID), zap.Int64("version", version+1))
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return s.storageErr("ping", err)
	}
	return nil
}

func (s *Store) insertVersion(ctx context.Context, q queryer, doc *model.Document, version int64, meta versionMeta) error {
	written := doc.Timestamp
	if written.IsZero() {
		written = model.Stamp(time.Now())
	}

	_, err := q.ExecContext(ctx, s.dialect.Rebind(`INSERT INTO metasheets
		(doc_id, version, written_at, display_name, target_class, site_class, system_class, status, editor_id, comment, changed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		doc.DocID, version, written.UnixNano(), doc.DisplayName, doc.TargetClass, doc.SiteClass,
		doc.SystemClass, string(doc.Status), meta.editorID, meta.comment, meta.changed,
	)
	if err != nil {
		return s.writeErr("insert metasheet", doc.DocID, err)
	}

	insertField := s.dialect.Rebind(`INSERT INTO metadata (doc_id, version, section, field_key, field_value) VALUES (?, ?, ?, ?, ?)`)
	for _, section := range model.MetadataSections {
		fields := doc.Section(section)
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			enc, err := encodeValue(fields[k])
			if err != nil {
				return err
			}
			if _, err := q.ExecContext(ctx, insertField, doc.DocID, version, string(section), k, enc); err != nil {
				return s.writeErr("insert metadata", doc.DocID, err)
			}
		}
	}

	insertGroup := s.dialect.Rebind(`INSERT INTO docsets (doc_id, version, ordinal, group_id) VALUES (?, ?, ?, ?)`)
	seen := map[string]bool{}
	for i, g := range doc.DocSetID {
		if seen[g] {
			continue
		}
		seen[g] = true
		if _, err := q.ExecContext(ctx, insertGroup, doc.DocID, version, i, g); err != nil {
			return s.writeErr("insert docset", doc.DocID, err)
		}
	}
	return nil
}

func (s *Store) writeErr(op, docID string, err error) error {
	if s.dialect.IsUniqueViolation(err) {
		return fmt.Errorf("%w: document %s was written concurrently", model.ErrConflict, docID)
	}
	return s.storageErr(op, err)
}

func (s *Store) storageErr(op string, err error) error {
	s.log.Error("relational operation failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s: %w", model.ErrStorage, op, err)
}
