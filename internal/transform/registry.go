package transform

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Registry holds every registered transformer, one ordered list per label
// and one label map per kind.
//
// Registration happens during a single-threaded setup phase. Once Seal is
// called (the Pipeline seals on construction) the maps are only read, so
// concurrent lookups need no locking.
type Registry struct {
	lists  [numKinds]map[Label][]*Holder
	units  map[string]struct{}
	sealed atomic.Bool
	logger *slog.Logger
}

// NewRegistry returns an empty registry. A nil logger uses slog.Default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		units:  make(map[string]struct{}),
		logger: logger.With("component", "transform.registry"),
	}
	for i := range r.lists {
		r.lists[i] = make(map[Label][]*Holder)
	}
	return r
}

// Add appends h to label's list after checking the label kind matches the
// node type h rewrites.
func (r *Registry) Add(label Label, h *Holder) error {
	if r.sealed.Load() {
		return fmt.Errorf("%w: cannot add %s", ErrSealed, label)
	}
	if err := checkTarget(label, h); err != nil {
		return err
	}
	r.logger.Debug("adding transformer", "transformer", h.String(), "target", label.String())
	r.units[label.Unit] = struct{}{}
	r.lists[label.Kind][label] = append(r.lists[label.Kind][label], h)
	return nil
}

func checkTarget(label Label, h *Holder) error {
	switch {
	case h.owner == nil || h.owner.Name() == "":
		return &ConfigError{Transformer: h.String(), Label: label, Reason: "no owning provider"}
	case !label.Kind.Valid():
		return &ConfigError{Transformer: h.String(), Label: label, Reason: "unknown kind"}
	case label.Unit == "":
		return &ConfigError{Transformer: h.String(), Label: label, Reason: "empty unit name"}
	case label.Kind.NodeType() != h.NodeType():
		return &ConfigError{
			Transformer: h.String(),
			Label:       label,
			Reason:      fmt.Sprintf("%s targets need a %s transformer, got %s", label.Kind, label.Kind.NodeType(), h.NodeType()),
		}
	case label.Kind.NodeType() == NodeUnit && (label.Member != "" || label.Signature != ""):
		return &ConfigError{Transformer: h.String(), Label: label, Reason: "unit targets carry no member"}
	case label.Kind.NodeType() != NodeUnit && label.Member == "":
		return &ConfigError{Transformer: h.String(), Label: label, Reason: "member target without a member name"}
	}
	return nil
}

// Register adds t for a single label.
func Register[N Node](r *Registry, label Label, t Transformer[N], owner Provider) error {
	return r.Add(label, Wrap(t, owner))
}

// RegisterTargets adds t for every label returned by its Targets method.
// All targets must share one kind matching the transformer's node type;
// otherwise nothing is registered and a *ConfigError is returned.
func RegisterTargets[N Node](r *Registry, t Transformer[N], owner Provider) error {
	h := Wrap(t, owner)
	targets := t.Targets()
	var seen *Kind
	for _, label := range targets {
		if seen != nil && label.Kind != *seen {
			return &ConfigError{Transformer: h.String(), Label: label, Reason: fmt.Sprintf("mixed target kinds %s and %s", *seen, label.Kind)}
		}
		if err := checkTarget(label, h); err != nil {
			return err
		}
		k := label.Kind
		seen = &k
	}
	for _, label := range targets {
		if err := r.Add(label, h); err != nil {
			return err
		}
	}
	return nil
}

// Seal ends the setup phase. Later Add calls fail with ErrSealed.
func (r *Registry) Seal() {
	if r.sealed.Swap(true) {
		return
	}
	r.logger.Debug("registry sealed",
		"units", len(r.units),
		KindPreUnit.String(), r.Len(KindPreUnit),
		KindUnit.String(), r.Len(KindUnit),
		KindField.String(), r.Len(KindField),
		KindMethod.String(), r.Len(KindMethod),
	)
}

// NeedsRewriting reports whether any transformer targets unit.
func (r *Registry) NeedsRewriting(unit string) bool {
	_, ok := r.units[unit]
	return ok
}

// Lookup returns a fresh working copy of the list registered for label.
func (r *Registry) Lookup(label Label) []*Holder {
	if !label.Kind.Valid() {
		return nil
	}
	list := r.lists[label.Kind][label]
	if len(list) == 0 {
		return nil
	}
	out := make([]*Holder, len(list))
	copy(out, list)
	return out
}

// UnitHolders looks up a unit-level kind for unit.
func (r *Registry) UnitHolders(unit string, kind Kind) []*Holder {
	return r.Lookup(Label{Unit: unit, Kind: kind})
}

func (r *Registry) FieldHolders(unit, field string) []*Holder {
	return r.Lookup(FieldLabel(unit, field))
}

func (r *Registry) MethodHolders(unit, method, signature string) []*Holder {
	return r.Lookup(MethodLabel(unit, method, signature))
}

// Len is the number of registrations of kind.
func (r *Registry) Len(kind Kind) int {
	if !kind.Valid() {
		return 0
	}
	n := 0
	for _, l := range r.lists[kind] {
		n += len(l)
	}
	return n
}
