package plugin

import (
	"weaver/internal/codec"
	"weaver/internal/ir"
)

// Phase is when a plugin sees a unit relative to the transformer votes.
type Phase uint8

const (
	Before Phase = iota
	After
)

func (p Phase) String() string {
	if p == Before {
		return "BEFORE"
	}
	return "AFTER"
}

// Letter is the one character tag written to the audit trail.
func (p Phase) Letter() string {
	return p.String()[:1]
}

// Plugin observes or mutates units outside of the voting system. Every
// interested plugin runs in each phase it asked for.
type Plugin interface {
	Name() string
	// Phases reports which phases the plugin wants for unit. empty is true
	// when the unit is being synthesized from nothing.
	Phases(unit string, empty bool, reason string) []Phase
	// Process may mutate node in place and returns the flags describing what
	// must be recomputed. node is never nil inside the pipeline.
	Process(phase Phase, node *ir.Unit, unit string, reason string) codec.Flags
}

// AuditBinder is implemented by plugins that want to append their own audit
// data for a unit they are interested in.
type AuditBinder interface {
	BindAudit(unit string, record func(data ...string))
}

// Resource is a discovered source of units handed to plugins once.
type Resource struct {
	Name string
	Path string
}

// ResourceConsumer receives the one-time resource broadcast.
type ResourceConsumer interface {
	AddResources(resources []Resource)
}

// Fetcher returns the transformed bytes of an arbitrary unit.
type Fetcher func(unit, reason string) ([]byte, error)

// LaunchAware is told once that the rewriting loader is active.
type LaunchAware interface {
	InitializeLaunch(fetch Fetcher)
}
