package relational

import (
	"context"
	"fmt"
	"strings"
	"time"

	"metarepo/internal/model"
)

type versionRow struct {
	version     int64
	writtenAt   int64
	displayName string
	targetClass string
	siteClass   string
	systemClass string
	status      string
	editorID    string
	comment     string
	changed     *string
}

type history struct {
	rows      []versionRow
	snapshots map[int64]map[model.Section]model.Fields
	docsets   map[int64][]string
}

// load folds every stored version of docID into the current document and
// its archives. It returns the newest version number.
func (s *Store) load(ctx context.Context, q queryer, docID string) (*model.Document, int64, error) {
	h, err := s.readHistory(ctx, q, docID)
	if err != nil {
		return nil, 0, err
	}
	if len(h.rows) == 0 {
		return nil, 0, fmt.Errorf("%w: document %s", model.ErrNotFound, docID)
	}
	return h.fold(docID), h.rows[len(h.rows)-1].version, nil
}

func (s *Store) readHistory(ctx context.Context, q queryer, docID string) (*history, error) {
	h := &history{
		snapshots: map[int64]map[model.Section]model.Fields{},
		docsets:   map[int64][]string{},
	}

	rows, err := q.QueryContext(ctx, s.dialect.Rebind(`SELECT version, written_at, display_name, target_class, site_class, system_class, status, editor_id, comment, changed
		FROM metasheets WHERE doc_id = ? ORDER BY version`), docID)
	if err != nil {
		return nil, s.storageErr("load metasheets", err)
	}
	for rows.Next() {
		var r versionRow
		if err := rows.Scan(&r.version, &r.writtenAt, &r.displayName, &r.targetClass, &r.siteClass,
			&r.systemClass, &r.status, &r.editorID, &r.comment, &r.changed); err != nil {
			rows.Close()
			return nil, s.storageErr("scan metasheet", err)
		}
		h.rows = append(h.rows, r)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, s.storageErr("iterate metasheets", err)
	}
	if len(h.rows) == 0 {
		return h, nil
	}

	rows, err = q.QueryContext(ctx, s.dialect.Rebind(`SELECT version, section, field_key, field_value
		FROM metadata WHERE doc_id = ? ORDER BY version, section, field_key`), docID)
	if err != nil {
		return nil, s.storageErr("load metadata", err)
	}
	for rows.Next() {
		var (
			version      int64
			section, key string
			raw          string
		)
		if err := rows.Scan(&version, &section, &key, &raw); err != nil {
			rows.Close()
			return nil, s.storageErr("scan metadata", err)
		}
		v, err := decodeValue(raw)
		if err != nil {
			rows.Close()
			return nil, s.storageErr("decode metadata "+key, err)
		}
		bySection, ok := h.snapshots[version]
		if !ok {
			bySection = map[model.Section]model.Fields{}
			h.snapshots[version] = bySection
		}
		f, ok := bySection[model.Section(section)]
		if !ok {
			f = model.Fields{}
			bySection[model.Section(section)] = f
		}
		f[key] = v
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, s.storageErr("iterate metadata", err)
	}

	rows, err = q.QueryContext(ctx, s.dialect.Rebind(`SELECT version, group_id FROM docsets WHERE doc_id = ? ORDER BY version, ordinal`), docID)
	if err != nil {
		return nil, s.storageErr("load docsets", err)
	}
	for rows.Next() {
		var (
			version int64
			group   string
		)
		if err := rows.Scan(&version, &group); err != nil {
			rows.Close()
			return nil, s.storageErr("scan docset", err)
		}
		h.docsets[version] = append(h.docsets[version], group)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, s.storageErr("iterate docsets", err)
	}
	return h, nil
}

// fold builds the document from the newest version and synthesizes one
// archive entry per section for every version that changed it.
func (h *history) fold(docID string) *model.Document {
	last := h.rows[len(h.rows)-1]
	doc := &model.Document{
		DocID:       docID,
		DocSetID:    h.docset(last.version),
		DisplayName: last.displayName,
		Status:      model.Status(last.status),
		Timestamp:   time.Unix(0, last.writtenAt).UTC(),
		SiteClass:   last.siteClass,
		TargetClass: last.targetClass,
		SystemClass: last.systemClass,
	}
	for _, s := range model.MetadataSections {
		doc.SetSection(s, h.snapshots[last.version][s].Clone())
	}
	doc.Normalize()

	for i := 1; i < len(h.rows); i++ {
		prev, cur := h.rows[i-1], h.rows[i]
		changed := h.changed(prev, cur)
		base := model.ArchiveEntry{
			Timestamp: time.Unix(0, cur.writtenAt).UTC(),
			EditorID:  cur.editorID,
			Comment:   cur.comment,
		}

		framework := model.Fields{}
		if changed["displayName"] {
			framework["displayName"] = prev.displayName
		}
		if changed["docSetId"] {
			framework["docSetId"] = h.docset(prev.version)
		}
		if len(framework) > 0 {
			e := base
			e.Previous = framework
			doc.SetArchive(model.SectionFramework, append(doc.Archive(model.SectionFramework), e))
		}

		for _, s := range model.MetadataSections {
			if !changed[string(s)] {
				continue
			}
			e := base
			e.Previous = h.section(prev.version, s)
			doc.SetArchive(s, append(doc.Archive(s), e))
		}
	}
	return doc
}

// changed returns the fields cur replaced. Versions written without change
// markers fall back to comparing adjacent snapshots.
func (h *history) changed(prev, cur versionRow) map[string]bool {
	out := map[string]bool{}
	if cur.changed != nil {
		for _, f := range strings.Split(*cur.changed, ",") {
			if f != "" {
				out[f] = true
			}
		}
		return out
	}
	if prev.displayName != cur.displayName {
		out["displayName"] = true
	}
	if !model.Equal(h.docset(prev.version), h.docset(cur.version)) {
		out["docSetId"] = true
	}
	for _, s := range model.MetadataSections {
		if !model.Equal(h.section(prev.version, s), h.section(cur.version, s)) {
			out[string(s)] = true
		}
	}
	return out
}

func (h *history) section(version int64, s model.Section) model.Fields {
	if f := h.snapshots[version][s]; f != nil {
		return f.Clone()
	}
	return model.Fields{}
}

func (h *history) docset(version int64) []string {
	return append([]string{}, h.docsets[version]...)
}
