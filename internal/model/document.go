package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// Status is the lifecycle marker of a catalog entry.
type Status string

const (
	StatusInProgress Status = "InProgress"
	StatusAvailable  Status = "Available"
	StatusDeleted    Status = "Deleted"
)

// Section names a part of a document that keeps its own archive.
// Metadata sections use the same name as their JSON field.
type Section string

const (
	SectionFramework Section = "framework"
	SectionUser      Section = "userMetadata"
	SectionSite      Section = "siteMetadata"
	SectionTarget    Section = "targetMetadata"
	SectionSystem    Section = "systemMetadata"
)

// MetadataSections lists the key/value sections in storage order.
var MetadataSections = []Section{SectionUser, SectionSite, SectionTarget, SectionSystem}

// Fields is a free-form metadata section. Legal keys are decided by the
// validator governing the section.
type Fields map[string]any

// Clone returns a shallow copy. A nil receiver yields nil.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// TimestampPrecision is the finest instant every backend stores; BSON dates
// keep milliseconds.
const TimestampPrecision = time.Millisecond

// Stamp returns t in UTC at TimestampPrecision.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(TimestampPrecision)
}

// ArchiveEntry records the value a section held before one change.
type ArchiveEntry struct {
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	EditorID  string    `json:"editorId" bson:"editorId"`
	Comment   string    `json:"comment,omitempty" bson:"comment,omitempty"`
	Previous  Fields    `json:"previous" bson:"previous"`
}

// Document is one catalog entry ("metasheet").
type Document struct {
	DocID       string    `json:"docId" bson:"docId"`
	DocSetID    []string  `json:"docSetId" bson:"docSetId"`
	DisplayName string    `json:"displayName" bson:"displayName"`
	Status      Status    `json:"status" bson:"status"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`

	SiteClass   string `json:"siteClass" bson:"siteClass"`
	TargetClass string `json:"targetClass" bson:"targetClass"`
	SystemClass string `json:"systemClass,omitempty" bson:"systemClass,omitempty"`

	UserMetadata   Fields `json:"userMetadata" bson:"userMetadata"`
	SiteMetadata   Fields `json:"siteMetadata" bson:"siteMetadata"`
	TargetMetadata Fields `json:"targetMetadata" bson:"targetMetadata"`
	SystemMetadata Fields `json:"systemMetadata,omitempty" bson:"systemMetadata,omitempty"`

	FrameworkArchive      []ArchiveEntry `json:"frameworkArchive" bson:"frameworkArchive"`
	MetadataArchive       []ArchiveEntry `json:"metadataArchive" bson:"metadataArchive"`
	SiteMetadataArchive   []ArchiveEntry `json:"siteMetadataArchive" bson:"siteMetadataArchive"`
	TargetMetadataArchive []ArchiveEntry `json:"targetMetadataArchive" bson:"targetMetadataArchive"`
	SystemMetadataArchive []ArchiveEntry `json:"systemMetadataArchive,omitempty" bson:"systemMetadataArchive,omitempty"`
}

// Tenant returns siteMetadata.tenant, or "" when it is absent or not a string.
func (d *Document) Tenant() string {
	s, _ := d.SiteMetadata["tenant"].(string)
	return s
}

// Section returns the metadata stored under s.
func (d *Document) Section(s Section) Fields {
	switch s {
	case SectionUser:
		return d.UserMetadata
	case SectionSite:
		return d.SiteMetadata
	case SectionTarget:
		return d.TargetMetadata
	case SectionSystem:
		return d.SystemMetadata
	}
	return nil
}

// SetSection replaces the metadata stored under s.
func (d *Document) SetSection(s Section, f Fields) {
	switch s {
	case SectionUser:
		d.UserMetadata = f
	case SectionSite:
		d.SiteMetadata = f
	case SectionTarget:
		d.TargetMetadata = f
	case SectionSystem:
		d.SystemMetadata = f
	}
}

// Archive returns the archive list kept for s.
func (d *Document) Archive(s Section) []ArchiveEntry {
	switch s {
	case SectionFramework:
		return d.FrameworkArchive
	case SectionUser:
		return d.MetadataArchive
	case SectionSite:
		return d.SiteMetadataArchive
	case SectionTarget:
		return d.TargetMetadataArchive
	case SectionSystem:
		return d.SystemMetadataArchive
	}
	return nil
}

// SetArchive replaces the archive list kept for s.
func (d *Document) SetArchive(s Section, entries []ArchiveEntry) {
	switch s {
	case SectionFramework:
		d.FrameworkArchive = entries
	case SectionUser:
		d.MetadataArchive = entries
	case SectionSite:
		d.SiteMetadataArchive = entries
	case SectionTarget:
		d.TargetMetadataArchive = entries
	case SectionSystem:
		d.SystemMetadataArchive = entries
	}
}

// Normalize replaces nil collections with empty ones so every backend hands
// out the same shape, and stamps every instant at TimestampPrecision. The
// system section stays nil unless a system class is set.
func (d *Document) Normalize() {
	if !d.Timestamp.IsZero() {
		d.Timestamp = Stamp(d.Timestamp)
	}
	if d.DocSetID == nil {
		d.DocSetID = []string{}
	}
	for _, s := range MetadataSections {
		if s == SectionSystem && d.SystemClass == "" {
			continue
		}
		if d.Section(s) == nil {
			d.SetSection(s, Fields{})
		}
	}
	for _, s := range []Section{SectionFramework, SectionUser, SectionSite, SectionTarget, SectionSystem} {
		if s == SectionSystem && d.SystemClass == "" {
			continue
		}
		entries := d.Archive(s)
		if entries == nil {
			d.SetArchive(s, []ArchiveEntry{})
			continue
		}
		for i := range entries {
			entries[i].Timestamp = Stamp(entries[i].Timestamp)
		}
	}
}

// Apply merges p into d. Only the fields p sets are overwritten.
func (d *Document) Apply(p *Patch) {
	if p.DisplayName != nil {
		d.DisplayName = *p.DisplayName
	}
	if p.DocSetID != nil {
		d.DocSetID = append([]string{}, p.DocSetID...)
	}
	for _, s := range MetadataSections {
		if f := p.section(s); f != nil {
			d.SetSection(s, f.Clone())
		}
	}
	for _, s := range []Section{SectionFramework, SectionUser, SectionSite, SectionTarget, SectionSystem} {
		if a := p.archive(s); a != nil {
			d.SetArchive(s, append([]ArchiveEntry{}, a...))
		}
	}
	if !p.Timestamp.IsZero() {
		d.Timestamp = p.Timestamp
	}
}

// Equal reports whether a and b have the same JSON encoding. Values read back
// from different backends differ in Go type (int vs float64) but not in JSON.
func Equal(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
