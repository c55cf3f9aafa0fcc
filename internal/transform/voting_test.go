package transform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weaver/internal/audit"
	"weaver/internal/ir"
)

func holders[N Node](ts ...Transformer[N]) []*Holder {
	out := make([]*Holder, len(ts))
	for i, t := range ts {
		out[i] = Wrap(t, svcA)
	}
	return out
}

func TestVote_AllYesAppliedInOrder(t *testing.T) {
	var order []int
	mk := func(i int) *scripted[*ir.Unit] {
		return &scripted[*ir.Unit]{
			targets: []Label{UnitLabel("X")},
			votes:   []Vote{VoteYes},
			fn: func(u *ir.Unit) *ir.Unit {
				order = append(order, i)
				return u
			},
		}
	}
	ts := []*scripted[*ir.Unit]{mk(0), mk(1), mk(2), mk(3)}
	trail := audit.NewTrail()
	ctx := newVotingContext("X", nil, false, "test", trail)

	_, err := vote(holders[*ir.Unit](ts[0], ts[1], ts[2], ts[3]), KindUnit, dummyUnit("X"), ctx, trail)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 3}, order)
	for _, tr := range ts {
		assert.Equal(t, 1, tr.applied)
	}
	// N YES voters take exactly N rounds: the first has voted N times.
	assert.Equal(t, 4, ts[0].round)
	assert.Equal(t, 1, ts[3].round)
	assert.Len(t, trail.ActivitiesFor("X"), 4)
}

func TestVote_DeferWaitsForOthers(t *testing.T) {
	deferFirst := &scripted[*ir.Unit]{targets: []Label{UnitLabel("X")}, votes: []Vote{VoteDefer, VoteYes}}
	eager := unitVoter("X", VoteYes)
	ctx := newVotingContext("X", nil, false, "test", nil)

	_, err := vote(holders[*ir.Unit](deferFirst, eager), KindUnit, dummyUnit("X"), ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, deferFirst.applied)
	assert.Equal(t, 1, eager.applied)
}

func TestVote_NoVotersLeave(t *testing.T) {
	quitter := unitVoter("X", VoteNo)
	stayer := unitVoter("X", VoteYes)
	ctx := newVotingContext("X", nil, false, "test", nil)

	_, err := vote(holders[*ir.Unit](quitter, stayer), KindUnit, dummyUnit("X"), ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, quitter.round, "a NO voter is never asked again")
	assert.Zero(t, quitter.applied)
	assert.Equal(t, 1, stayer.applied)
}

func TestVote_Deadlock(t *testing.T) {
	a := unitVoter("X", VoteDefer)
	b := unitVoter("X", VoteDefer)
	ctx := newVotingContext("X", nil, false, "test", nil)

	_, err := vote(holders[*ir.Unit](a, b), KindUnit, dummyUnit("X"), ctx, nil)

	var deadlock *DeadlockError
	require.ErrorAs(t, err, &deadlock)
	assert.ErrorIs(t, err, ErrVoteDeadlock)
	assert.Equal(t, "X", deadlock.Unit)
	assert.Len(t, deadlock.Holders, 2)
	assert.Zero(t, a.applied+b.applied)
}

func TestVote_DeadlockAfterProgress(t *testing.T) {
	yes := unitVoter("X", VoteYes)
	stuck := unitVoter("X", VoteDefer)
	ctx := newVotingContext("X", nil, false, "test", nil)

	_, err := vote(holders[*ir.Unit](yes, stuck), KindUnit, dummyUnit("X"), ctx, nil)
	assert.ErrorIs(t, err, ErrVoteDeadlock)
	assert.Equal(t, 1, yes.applied)
}

func TestVote_RejectWinsOverYes(t *testing.T) {
	yes := unitVoter("X", VoteYes)
	veto := unitVoter("X", VoteReject)
	ctx := newVotingContext("X", nil, false, "test", nil)

	_, err := vote(holders[*ir.Unit](yes, veto), KindUnit, dummyUnit("X"), ctx, nil)

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.ErrorIs(t, err, ErrVoteRejected)
	assert.Zero(t, yes.applied)
}

func TestVote_UnknownVoteRejects(t *testing.T) {
	odd := unitVoter("X", Vote(42))
	ctx := newVotingContext("X", nil, false, "test", nil)

	_, err := vote(holders[*ir.Unit](odd), KindUnit, dummyUnit("X"), ctx, nil)
	assert.ErrorIs(t, err, ErrVoteRejected)
}

func TestVote_ApplyError(t *testing.T) {
	boom := errors.New("boom")
	h := Wrap[*ir.Unit](failing{err: boom}, svcA)
	ctx := newVotingContext("X", nil, false, "test", nil)

	_, err := vote([]*Holder{h}, KindUnit, dummyUnit("X"), ctx, nil)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "svcA/")
}

func TestVote_NilResult(t *testing.T) {
	tr := SimpleUnit("X", func(*ir.Unit) *ir.Unit { return nil })
	ctx := newVotingContext("X", nil, false, "test", nil)

	_, err := vote([]*Holder{Wrap(tr, svcA)}, KindUnit, dummyUnit("X"), ctx, nil)
	assert.ErrorIs(t, err, ErrNodeType)
}

func TestVote_ContextSeesCurrentNode(t *testing.T) {
	var seen []string
	peek := &peeker{seen: &seen}
	ctx := newVotingContext("X", nil, false, "test", nil)
	u := dummyUnit("X")

	_, err := vote([]*Holder{Wrap[*ir.Field](peek, svcA)}, KindField, u.Fields[0], ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"field"}, seen)
}

type failing struct{ err error }

func (f failing) Vote(*VotingContext) Vote { return VoteYes }

func (f failing) Apply(*ir.Unit, *VotingContext) (*ir.Unit, error) { return nil, f.err }

func (f failing) Targets() []Label { return []Label{UnitLabel("X")} }

// peeker votes YES only for private fields, remembering their names.
type peeker struct{ seen *[]string }

func (p *peeker) Vote(ctx *VotingContext) Vote {
	if ctx.MatchField(func(f *ir.Field) bool { return f.Access.Has(ir.AccPrivate) }) {
		f := ctx.Node().(*ir.Field)
		*p.seen = append(*p.seen, f.Name)
		return VoteYes
	}
	return VoteNo
}

func (p *peeker) Apply(f *ir.Field, _ *VotingContext) (*ir.Field, error) { return f, nil }

func (p *peeker) Targets() []Label { return []Label{FieldLabel("X", "field")} }

func TestVotingContext(t *testing.T) {
	trail := audit.NewTrail()
	trail.AddReason("X", "classloading")
	input := []byte("payload")
	ctx := newVotingContext("X", input, true, "classloading", trail)

	assert.Equal(t, "X", ctx.UnitName())
	assert.True(t, ctx.Exists())
	assert.Equal(t, "classloading", ctx.Reason())

	d := ctx.InitialDigest()
	require.Len(t, d, 32)
	d[0] ^= 0xff
	assert.NotEqual(t, d, ctx.InitialDigest(), "digest must be returned as a copy")

	trail.AddTransformer("X", "svcA", "default")
	acts := ctx.Activities()
	require.Len(t, acts, 2)
	assert.Equal(t, "xf:svcA:default", acts[1].String())

	m := &ir.Method{Name: "run", Insns: []ir.Insn{{Op: ir.OpLoad, Args: []string{"0"}}, {Op: ir.OpReturn}}}
	ctx.setNode(m)
	assert.True(t, ctx.MatchMethod(func(m *ir.Method) bool { return m.Name == "run" }))
	assert.False(t, ctx.MatchUnit(func(*ir.Unit) bool { return true }))
	assert.True(t, ctx.MatchInsn(func(_ int, in ir.Insn) bool { return in.Op == ir.OpReturn }))
	assert.False(t, ctx.MatchInsn(func(_ int, in ir.Insn) bool { return in.Op == ir.OpThrow }))
}
