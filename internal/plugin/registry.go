package plugin

import (
	"errors"
	"fmt"
	"log/slog"

	"weaver/internal/audit"
	"weaver/internal/codec"
	"weaver/internal/ir"
)

var ErrDuplicate = errors.New("plugin already registered")

// Interested holds, per phase, the plugins that asked to see a unit.
type Interested struct {
	Before []Plugin
	After  []Plugin
}

// For returns the list for phase.
func (i Interested) For(phase Phase) []Plugin {
	if phase == Before {
		return i.Before
	}
	return i.After
}

func (i Interested) Empty() bool {
	return len(i.Before) == 0 && len(i.After) == 0
}

// Registry holds plugins by name. It is filled during setup and only read
// afterwards.
type Registry struct {
	plugins []Plugin
	byName  map[string]Plugin
	logger  *slog.Logger
}

type Option func(*Registry)

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byName: make(map[string]Plugin),
		logger: slog.Default().With("component", "plugin"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds p. Names must be unique.
func (r *Registry) Register(p Plugin) error {
	name := p.Name()
	if name == "" {
		return fmt.Errorf("plugin %T has no name", p)
	}
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.plugins = append(r.plugins, p)
	r.byName[name] = p
	r.logger.Debug("registered plugin", "plugin", name)
	return nil
}

func (r *Registry) Get(name string) (Plugin, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Names lists plugins in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.plugins))
	for i, p := range r.plugins {
		out[i] = p.Name()
	}
	return out
}

// Interested asks every plugin which phases it wants for unit. A phase
// listed twice counts once. The first time a plugin shows interest its
// audit callback is bound to trail.
func (r *Registry) Interested(unit string, empty bool, reason string, trail *audit.Trail) Interested {
	var out Interested
	for _, p := range r.plugins {
		bound := false
		var seen [2]bool
		for _, ph := range p.Phases(unit, empty, reason) {
			if (ph != Before && ph != After) || seen[ph] {
				continue
			}
			seen[ph] = true
			if ph == Before {
				out.Before = append(out.Before, p)
			} else {
				out.After = append(out.After, p)
			}
			if !bound {
				bound = true
				if b, ok := p.(AuditBinder); ok && trail != nil {
					name := p.Name()
					b.BindAudit(unit, func(data ...string) {
						trail.AddPluginCustom(unit, name, data...)
					})
				}
			}
		}
	}
	if !out.Empty() {
		r.logger.Debug("interested plugins", "unit", unit, "before", len(out.Before), "after", len(out.After))
	}
	return out
}

// Dispatch offers node to each plugin in list and ORs the flags of those
// that reported a change.
func (r *Registry) Dispatch(phase Phase, list []Plugin, node *ir.Unit, unit, reason string, trail *audit.Trail) codec.Flags {
	flags := codec.NoRewrite
	for _, p := range list {
		r.logger.Debug("offering unit to plugin", "plugin", p.Name(), "unit", unit, "phase", phase)
		pf := p.Process(phase, node, unit, reason)
		if pf == codec.NoRewrite {
			continue
		}
		if trail != nil {
			trail.AddPlugin(unit, p.Name(), phase.Letter())
		}
		r.logger.Debug("plugin rewrote unit", "plugin", p.Name(), "unit", unit, "flags", int(pf))
		flags |= pf
	}
	r.logger.Debug("final plugin flags", "unit", unit, "phase", phase, "flags", int(flags))
	return flags
}

// BroadcastResources hands resources to every plugin that consumes them.
func (r *Registry) BroadcastResources(resources []Resource) {
	for _, p := range r.plugins {
		if c, ok := p.(ResourceConsumer); ok {
			c.AddResources(resources)
		}
	}
}

// AnnounceLaunch tells every launch-aware plugin that units can now be
// fetched on demand through fetch.
func (r *Registry) AnnounceLaunch(fetch Fetcher) {
	for _, p := range r.plugins {
		if l, ok := p.(LaunchAware); ok {
			l.InitializeLaunch(fetch)
		}
	}
}
