package transform

import (
	"testing"

	"github.com/stretchr/testify/require"

	"weaver/internal/audit"
	"weaver/internal/codec"
	"weaver/internal/ir"
	"weaver/internal/plugin"
)

// fixture carries the registries a test registers into before building a
// pipeline.
type fixture struct {
	registry *Registry
	plugins  *plugin.Registry
	trail    *audit.Trail
	codec    *codec.Binary
}

func newFixture() *fixture {
	return &fixture{
		registry: NewRegistry(nil),
		plugins:  plugin.NewRegistry(),
		trail:    audit.NewTrail(),
		codec:    codec.NewBinary(),
	}
}

func (f *fixture) pipeline(opts ...Option) *Pipeline {
	opts = append([]Option{WithTrail(f.trail), WithCodec(f.codec)}, opts...)
	return NewPipeline(f.registry, f.plugins, opts...)
}

func (f *fixture) encode(t *testing.T, u *ir.Unit) []byte {
	t.Helper()
	data, err := f.codec.Encode(u, codec.NoRewrite)
	require.NoError(t, err)
	return data
}

func (f *fixture) decode(t *testing.T, data []byte) *ir.Unit {
	t.Helper()
	u, err := f.codec.Decode(data)
	require.NoError(t, err)
	return u
}

func dummyUnit(name string) *ir.Unit {
	return &ir.Unit{
		Version: ir.DefaultVersion,
		Access:  ir.AccPublic,
		Name:    name,
		Super:   ir.RootUnit,
		Fields: []*ir.Field{
			{Access: ir.AccPrivate, Name: "field", Descriptor: "string"},
			{Access: ir.AccPublic, Name: "other", Descriptor: "int"},
		},
		Methods: []*ir.Method{
			{
				Access:     ir.AccPublic,
				Name:       "run",
				Descriptor: "()",
				Insns:      []ir.Insn{{Op: ir.OpReturn}},
			},
		},
	}
}

var svcA = ProviderName("svcA")

// scripted votes from a fixed script (the last vote repeats) and counts
// how often it was applied.
type scripted[N Node] struct {
	targets []Label
	votes   []Vote
	round   int
	applied int
	fn      func(N) N
	labels  []string
}

func (s *scripted[N]) Vote(*VotingContext) Vote {
	v := s.votes[min(s.round, len(s.votes)-1)]
	s.round++
	return v
}

func (s *scripted[N]) Apply(node N, _ *VotingContext) (N, error) {
	s.applied++
	if s.fn != nil {
		return s.fn(node), nil
	}
	return node, nil
}

func (s *scripted[N]) Targets() []Label { return s.targets }

func (s *scripted[N]) Labels() []string { return s.labels }

func unitVoter(unit string, votes ...Vote) *scripted[*ir.Unit] {
	return &scripted[*ir.Unit]{targets: []Label{UnitLabel(unit)}, votes: votes}
}

func preUnitVoter(unit string, votes ...Vote) *scripted[*ir.Unit] {
	return &scripted[*ir.Unit]{targets: []Label{PreUnitLabel(unit)}, votes: votes}
}

func fieldVoter(unit, field string, votes ...Vote) *scripted[*ir.Field] {
	return &scripted[*ir.Field]{targets: []Label{FieldLabel(unit, field)}, votes: votes}
}

// recordingPlugin reports fixed flags and remembers which phases ran.
type recordingPlugin struct {
	name   string
	phases []plugin.Phase
	flags  codec.Flags
	ran    []plugin.Phase
	mutate func(*ir.Unit)
}

func (p *recordingPlugin) Name() string { return p.name }

func (p *recordingPlugin) Phases(string, bool, string) []plugin.Phase { return p.phases }

func (p *recordingPlugin) Process(phase plugin.Phase, node *ir.Unit, _ string, _ string) codec.Flags {
	p.ran = append(p.ran, phase)
	if p.mutate != nil {
		p.mutate(node)
	}
	return p.flags
}
