package localfile

import (
	"encoding/json"
	"fmt"

	"metarepo/internal/model"
	"metarepo/internal/repository"
)

// matches reports whether doc has every filter key present and equal. A
// list-valued field matches when any element equals the filter value.
func matches(doc *model.Document, filters repository.Filters) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	generic, err := toGeneric(doc)
	if err != nil {
		return false, err
	}
	for _, key := range filters.Keys() {
		want := filters[key]
		got, ok := lookup(generic, key)
		if !ok {
			return false, nil
		}
		if list, isList := got.([]any); isList {
			if !anyEqual(list, want) {
				return false, nil
			}
			continue
		}
		if !model.Equal(got, want) {
			return false, nil
		}
	}
	return true, nil
}

func toGeneric(doc *model.Document) (map[string]any, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: encode document %s: %w", model.ErrStorage, doc.DocID, err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%w: decode document %s: %w", model.ErrStorage, doc.DocID, err)
	}
	return out, nil
}

// lookup returns the value stored under key. Framework fields omitted from
// the encoding, such as an unset systemClass, read as the empty string.
func lookup(doc map[string]any, key string) (any, bool) {
	section, field, dotted := repository.SplitKey(key)
	if !dotted {
		if v, ok := doc[key]; ok {
			return v, true
		}
		return "", true
	}
	m, ok := doc[string(section)].(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[field]
	return v, ok
}

func anyEqual(list []any, want any) bool {
	for _, v := range list {
		if model.Equal(v, want) {
			return true
		}
	}
	return false
}
