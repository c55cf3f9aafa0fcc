package audit

import (
	"sort"
	"strings"
	"sync"
)

// ActivityType classifies an audit entry.
type ActivityType uint8

const (
	Plugin ActivityType = iota
	Transformer
	Reason
)

// Label is the short tag used in audit strings.
func (t ActivityType) Label() string {
	switch t {
	case Plugin:
		return "pl"
	case Transformer:
		return "xf"
	case Reason:
		return "re"
	}
	return "??"
}

// ParseActivityType maps a Label back to its type.
func ParseActivityType(label string) (ActivityType, bool) {
	switch label {
	case "pl":
		return Plugin, true
	case "xf":
		return Transformer, true
	case "re":
		return Reason, true
	}
	return 0, false
}

// Activity is one entry of a unit's trail.
type Activity struct {
	Type    ActivityType
	Context []string
}

// String renders "kind:ctx1:ctx2".
func (a Activity) String() string {
	return a.Type.Label() + ":" + strings.Join(a.Context, ":")
}

// Trail is the append-only, per-unit log of what happened during rewriting.
// It is safe for concurrent use across units.
type Trail struct {
	units sync.Map // string -> *entries
}

type entries struct {
	mu   sync.Mutex
	list []Activity
}

// NewTrail returns an empty trail.
func NewTrail() *Trail {
	return &Trail{}
}

func (t *Trail) entriesFor(unit string) *entries {
	if e, ok := t.units.Load(unit); ok {
		return e.(*entries)
	}
	e, _ := t.units.LoadOrStore(unit, &entries{})
	return e.(*entries)
}

// Record appends an activity for unit.
func (t *Trail) Record(unit string, a Activity) {
	e := t.entriesFor(unit)
	e.mu.Lock()
	e.list = append(e.list, a)
	e.mu.Unlock()
}

func (t *Trail) AddReason(unit, reason string) {
	t.Record(unit, Activity{Type: Reason, Context: []string{reason}})
}

// AddPlugin records that plugin changed unit during phase (a one letter tag).
func (t *Trail) AddPlugin(unit, plugin, phase string) {
	t.Record(unit, Activity{Type: Plugin, Context: []string{plugin, phase}})
}

// AddPluginCustom records plugin-supplied audit data.
func (t *Trail) AddPluginCustom(unit, plugin string, data ...string) {
	t.Record(unit, Activity{Type: Plugin, Context: append([]string{plugin}, data...)})
}

// AddTransformer records that a transformer owned by provider was applied.
func (t *Trail) AddTransformer(unit, provider string, labels ...string) {
	t.Record(unit, Activity{Type: Transformer, Context: append([]string{provider}, labels...)})
}

// ActivitiesFor returns a copy of the activities recorded so far for unit.
func (t *Trail) ActivitiesFor(unit string) []Activity {
	v, ok := t.units.Load(unit)
	if !ok {
		return nil
	}
	e := v.(*entries)
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Activity, len(e.list))
	copy(out, e.list)
	return out
}

// AuditString joins the unit's activities as "kind:ctx,kind:ctx".
func (t *Trail) AuditString(unit string) string {
	acts := t.ActivitiesFor(unit)
	parts := make([]string, len(acts))
	for i, a := range acts {
		parts[i] = a.String()
	}
	return strings.Join(parts, ",")
}

// Units lists every unit with at least one entry, sorted.
func (t *Trail) Units() []string {
	var out []string
	t.units.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	sort.Strings(out)
	return out
}

// Clear drops all entries. Intended for tests and administration only.
func (t *Trail) Clear() {
	t.units.Range(func(k, _ any) bool {
		t.units.Delete(k)
		return true
	})
}
