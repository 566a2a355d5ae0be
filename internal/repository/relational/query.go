package relational

import (
	"encoding/json"
	"fmt"
	"strings"

	"metarepo/internal/model"
	"metarepo/internal/repository"
)

// latestVersion selects the newest version of every document; filters only
// ever match the current state, never superseded rows.
const latestVersion = `(SELECT doc_id, MAX(version) AS version FROM metasheets GROUP BY doc_id)`

var frameworkColumns = map[string]string{
	"docId":       "doc_id",
	"displayName": "display_name",
	"status":      "status",
	"siteClass":   "site_class",
	"targetClass": "target_class",
	"systemClass": "system_class",
}

// buildFindQuery returns the doc_id query for a Find call. Each filter is one
// sub-select and the sub-selects are combined with INTERSECT. A metadata
// filter matches an equal value or a list holding it. ok is false when a
// filter can never match, e.g. a number compared with a text column.
func buildFindQuery(d Dialect, filters repository.Filters, allowedGroups []string, page int) (query string, args []any, ok bool, err error) {
	var parts []string

	for _, key := range filters.Keys() {
		v := filters[key]
		section, field, dotted := repository.SplitKey(key)
		switch {
		case dotted:
			enc, err := encodeValue(v)
			if err != nil {
				return "", nil, false, err
			}
			parts = append(parts, `SELECT md.doc_id FROM metadata md JOIN `+latestVersion+` lv ON lv.doc_id = md.doc_id AND lv.version = md.version WHERE md.section = ? AND md.field_key = ? AND (md.field_value = ? OR `+d.ArrayContains("md.field_value")+`)`)
			args = append(args, string(section), field, enc, "["+enc+"]")
		case key == "docSetId":
			s, isString := v.(string)
			if !isString {
				return "", nil, false, nil
			}
			parts = append(parts, `SELECT ds.doc_id FROM docsets ds JOIN `+latestVersion+` lv ON lv.doc_id = ds.doc_id AND lv.version = ds.version WHERE ds.group_id = ?`)
			args = append(args, s)
		default:
			s, isString := v.(string)
			if !isString {
				return "", nil, false, nil
			}
			parts = append(parts, `SELECT m.doc_id FROM metasheets m JOIN `+latestVersion+` lv ON lv.doc_id = m.doc_id AND lv.version = m.version WHERE m.`+frameworkColumns[key]+` = ?`)
			args = append(args, s)
		}
	}

	if len(allowedGroups) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(allowedGroups)), ", ")
		parts = append(parts, `SELECT md.doc_id FROM metadata md JOIN `+latestVersion+` lv ON lv.doc_id = md.doc_id AND lv.version = md.version WHERE md.section = ? AND md.field_key = ? AND md.field_value IN (`+placeholders+`)`)
		args = append(args, string(model.SectionSite), "tenant")
		for _, g := range allowedGroups {
			enc, err := encodeValue(g)
			if err != nil {
				return "", nil, false, err
			}
			args = append(args, enc)
		}
	}

	if len(parts) == 0 {
		parts = append(parts, `SELECT doc_id FROM metasheets GROUP BY doc_id`)
	}

	query = `SELECT doc_id FROM (` + strings.Join(parts, ` INTERSECT `) + `) matched ORDER BY doc_id LIMIT ? OFFSET ?`
	args = append(args, repository.PageSize, repository.Offset(page))
	return query, args, true, nil
}

// encodeValue renders a metadata value the way it is stored in field_value.
func encodeValue(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: encode value: %w", model.ErrValidation, err)
	}
	return string(b), nil
}

func decodeValue(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}
