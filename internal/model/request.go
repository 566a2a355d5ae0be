package model

import (
	"sort"
	"time"
)

// NotateRequest is the caller-supplied body of a create or update.
// A nil field is absent: on update it leaves the stored value alone.
type NotateRequest struct {
	DocID       string   `json:"docId,omitempty"`
	DocSetID    []string `json:"docSetId,omitempty"`
	DisplayName *string  `json:"displayName,omitempty"`

	SiteClass   string `json:"siteClass,omitempty"`
	TargetClass string `json:"targetClass,omitempty"`
	SystemClass string `json:"systemClass,omitempty"`

	UserMetadata   Fields `json:"userMetadata,omitempty"`
	SiteMetadata   Fields `json:"siteMetadata,omitempty"`
	TargetMetadata Fields `json:"targetMetadata,omitempty"`
	SystemMetadata Fields `json:"systemMetadata,omitempty"`

	ArchiveComment string `json:"archiveComment,omitempty"`
}

// Section returns the requested replacement for s, nil when absent.
func (r *NotateRequest) Section(s Section) Fields {
	switch s {
	case SectionUser:
		return r.UserMetadata
	case SectionSite:
		return r.SiteMetadata
	case SectionTarget:
		return r.TargetMetadata
	case SectionSystem:
		return r.SystemMetadata
	}
	return nil
}

// Patch is a partial document accumulated by an update. Archive lists are
// complete replacements (existing entries plus the appended one).
type Patch struct {
	DisplayName *string
	DocSetID    []string

	UserMetadata   Fields
	SiteMetadata   Fields
	TargetMetadata Fields
	SystemMetadata Fields

	FrameworkArchive      []ArchiveEntry
	MetadataArchive       []ArchiveEntry
	SiteMetadataArchive   []ArchiveEntry
	TargetMetadataArchive []ArchiveEntry
	SystemMetadataArchive []ArchiveEntry

	Timestamp time.Time

	// Editor and comment of the change; stored per version by backends
	// that do not keep archive lists.
	EditorID string
	Comment  string
}

func (p *Patch) section(s Section) Fields {
	switch s {
	case SectionUser:
		return p.UserMetadata
	case SectionSite:
		return p.SiteMetadata
	case SectionTarget:
		return p.TargetMetadata
	case SectionSystem:
		return p.SystemMetadata
	}
	return nil
}

func (p *Patch) archive(s Section) []ArchiveEntry {
	switch s {
	case SectionFramework:
		return p.FrameworkArchive
	case SectionUser:
		return p.MetadataArchive
	case SectionSite:
		return p.SiteMetadataArchive
	case SectionTarget:
		return p.TargetMetadataArchive
	case SectionSystem:
		return p.SystemMetadataArchive
	}
	return nil
}

// SetSection stages a replacement value for s.
func (p *Patch) SetSection(s Section, f Fields) {
	switch s {
	case SectionUser:
		p.UserMetadata = f
	case SectionSite:
		p.SiteMetadata = f
	case SectionTarget:
		p.TargetMetadata = f
	case SectionSystem:
		p.SystemMetadata = f
	}
}

// AppendArchive stages current's archive for s with entry appended.
func (p *Patch) AppendArchive(s Section, current *Document, entry ArchiveEntry) {
	list := p.archive(s)
	if list == nil {
		list = append([]ArchiveEntry{}, current.Archive(s)...)
	}
	list = append(list, entry)
	switch s {
	case SectionFramework:
		p.FrameworkArchive = list
	case SectionUser:
		p.MetadataArchive = list
	case SectionSite:
		p.SiteMetadataArchive = list
	case SectionTarget:
		p.TargetMetadataArchive = list
	case SectionSystem:
		p.SystemMetadataArchive = list
	}
}

// Changed lists the document fields the patch replaces, sorted.
func (p *Patch) Changed() []string {
	var out []string
	if p.DisplayName != nil {
		out = append(out, "displayName")
	}
	if p.DocSetID != nil {
		out = append(out, "docSetId")
	}
	for _, s := range MetadataSections {
		if p.section(s) != nil {
			out = append(out, string(s))
		}
	}
	sort.Strings(out)
	return out
}

// Empty reports whether the patch changes no document field.
func (p *Patch) Empty() bool {
	return len(p.Changed()) == 0
}

// Fields renders the patch as a flat field map keyed by document field name.
func (p *Patch) Fields() map[string]any {
	out := map[string]any{}
	if p.DisplayName != nil {
		out["displayName"] = *p.DisplayName
	}
	if p.DocSetID != nil {
		out["docSetId"] = p.DocSetID
	}
	for _, s := range MetadataSections {
		if f := p.section(s); f != nil {
			out[string(s)] = f
		}
	}
	archives := map[Section]string{
		SectionFramework: "frameworkArchive",
		SectionUser:      "metadataArchive",
		SectionSite:      "siteMetadataArchive",
		SectionTarget:    "targetMetadataArchive",
		SectionSystem:    "systemMetadataArchive",
	}
	for s, name := range archives {
		if a := p.archive(s); a != nil {
			out[name] = a
		}
	}
	if !p.Timestamp.IsZero() {
		out["timestamp"] = p.Timestamp
	}
	return out
}
