package validator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"metarepo/internal/model"
)

// policy is the key-set rule shared by the built-in validators.
type policy struct {
	kind     Kind
	allowed  []string
	required []string
	defaults model.Fields
	// updatable keys may be replaced on update; immutable keys are carried
	// over from the stored value and may only be resent unchanged.
	updatable []string
	immutable []string
	// tenant enables the membership check on siteMetadata-style tenants.
	tenant bool
	// stampUser records the creating principal under userId.
	stampUser bool
	enrich    func(ctx context.Context, f model.Fields) error
}

var _ Validator = (*policy)(nil)

func (p *policy) Validate(ctx context.Context, raw model.Fields, principal *model.Principal) (model.Fields, error) {
	if err := checkKeys(p.kind, raw, p.allowed); err != nil {
		return nil, err
	}
	out := raw.Clone()
	if out == nil {
		out = model.Fields{}
	}
	applyDefaults(out, p.defaults)
	if err := checkRequired(p.kind, out, p.required); err != nil {
		return nil, err
	}
	if p.tenant {
		if err := checkTenant(out, principal); err != nil {
			return nil, err
		}
	}
	if p.enrich != nil {
		if err := p.enrich(ctx, out); err != nil {
			return nil, err
		}
	}
	if p.stampUser {
		out["userId"] = principal.Username
	}
	return out, nil
}

func (p *policy) ApplyUpdate(_ context.Context, current *model.Document, req *model.NotateRequest, pending *model.Patch, tmpl model.ArchiveEntry) error {
	section := p.kind.Section()
	raw := req.Section(section)
	if raw == nil {
		return nil
	}
	stored := current.Section(section)

	if err := checkKeys(p.kind, raw, append(append([]string{}, p.updatable...), p.immutable...)); err != nil {
		return err
	}
	next := raw.Clone()
	for _, k := range p.immutable {
		old, had := stored[k]
		if v, sent := next[k]; sent && (!had || !model.Equal(v, old)) {
			return fmt.Errorf("%w: %s field %q cannot be changed", model.ErrValidation, p.kind, k)
		}
		if had {
			next[k] = old
		}
	}
	applyDefaults(next, p.defaults)
	if err := checkRequired(p.kind, next, p.required); err != nil {
		return err
	}
	if model.Equal(next, stored) {
		return nil
	}

	prev := stored.Clone()
	if prev == nil {
		prev = model.Fields{}
	}
	pending.SetSection(section, next)
	entry := tmpl
	entry.Previous = prev
	pending.AppendArchive(section, current, entry)
	return nil
}

func checkKeys(kind Kind, f model.Fields, allowed []string) error {
	var unexpected []string
	for k := range f {
		if !contains(allowed, k) {
			unexpected = append(unexpected, k)
		}
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return fmt.Errorf("%w: unexpected %s field(s): %s", model.ErrValidation, kind, strings.Join(unexpected, ", "))
	}
	return nil
}

func checkRequired(kind Kind, f model.Fields, required []string) error {
	var missing []string
	for _, k := range required {
		if v, ok := f[k]; !ok || v == nil {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s field(s): %s", model.ErrValidation, kind, strings.Join(missing, ", "))
	}
	return nil
}

func checkTenant(f model.Fields, principal *model.Principal) error {
	raw, ok := f["tenant"]
	if !ok {
		return nil
	}
	tenant, ok := raw.(string)
	if !ok || tenant == "" {
		return fmt.Errorf("%w: tenant must be a non-empty string", model.ErrValidation)
	}
	if principal == nil || !principal.InGroup(tenant, true) {
		return fmt.Errorf("%w: not a member of tenant %q", model.ErrAuthorization, tenant)
	}
	return nil
}

func applyDefaults(f, defaults model.Fields) {
	for k, v := range defaults {
		if _, ok := f[k]; !ok {
			f[k] = v
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
