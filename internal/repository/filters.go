package repository

import (
	"fmt"
	"sort"
	"strings"

	"metarepo/internal/model"
)

// Filters maps a document field to the scalar value it must equal. Keys are
// either a framework field (see FrameworkFields) or "<section>.<key>" for a
// metadata section, e.g. "siteMetadata.tenant". Filtering on docSetId
// matches documents whose set contains the value.
type Filters map[string]any

// FrameworkFields are the bare keys accepted by Find.
var FrameworkFields = []string{"docId", "docSetId", "displayName", "status", "siteClass", "targetClass", "systemClass"}

// Clone returns a copy that can be modified freely.
func (f Filters) Clone() Filters {
	out := make(Filters, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Keys returns the filter keys sorted.
func (f Filters) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SplitKey returns the section and key of a dotted filter. ok is false for
// bare framework keys.
func SplitKey(key string) (section model.Section, field string, ok bool) {
	s, field, ok := strings.Cut(key, ".")
	return model.Section(s), field, ok
}

// Validate rejects unknown keys and non-scalar values with ErrValidation.
func (f Filters) Validate() error {
	for _, k := range f.Keys() {
		if err := checkScalar(k, f[k]); err != nil {
			return err
		}
		section, field, dotted := SplitKey(k)
		if !dotted {
			if !isFramework(k) {
				return fmt.Errorf("%w: unknown filter field %q", model.ErrValidation, k)
			}
			continue
		}
		if field == "" || !isMetadataSection(section) {
			return fmt.Errorf("%w: unknown filter field %q", model.ErrValidation, k)
		}
	}
	return nil
}

func checkScalar(key string, v any) error {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return nil
	}
	return fmt.Errorf("%w: filter %q must be a string, number or boolean", model.ErrValidation, key)
}

func isFramework(k string) bool {
	for _, f := range FrameworkFields {
		if f == k {
			return true
		}
	}
	return false
}

func isMetadataSection(s model.Section) bool {
	for _, m := range model.MetadataSections {
		if m == s {
			return true
		}
	}
	return false
}
