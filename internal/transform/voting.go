package transform

import (
	"fmt"
	"slices"

	"weaver/internal/audit"
)

// ballot groups the holders of one round by how they voted, keeping the
// working-list order inside each group.
type ballot map[Vote][]*Holder

func gatherVotes(working []*Holder, ctx *VotingContext) ballot {
	b := make(ballot, 4)
	for _, h := range working {
		v := h.vote(ctx)
		if v > VoteReject {
			// an unknown vote cannot be honoured
			v = VoteReject
		}
		b[v] = append(b[v], h)
	}
	return b
}

// vote runs the cooperative voting rounds for one label over node and
// returns the node after every YES voter has been applied.
//
// Each round shrinks the working list (all NO voters, or the one applied YES
// voter) or fails, so the loop always terminates.
func vote(working []*Holder, kind Kind, node any, ctx *VotingContext, trail *audit.Trail) (any, error) {
	for len(working) > 0 {
		ctx.setNode(node)
		results := gatherVotes(working, ctx)

		if rejected := results[VoteReject]; len(rejected) > 0 {
			return nil, &RejectedError{Unit: ctx.UnitName(), Kind: kind, Holders: rejected}
		}

		if no := results[VoteNo]; len(no) > 0 {
			working = slices.DeleteFunc(working, func(h *Holder) bool {
				return slices.Contains(no, h)
			})
		}

		if yes := results[VoteYes]; len(yes) > 0 {
			chosen := yes[0]
			out, err := chosen.apply(node, ctx)
			if err != nil {
				return nil, fmt.Errorf("apply %s to %s %s: %w", chosen, ctx.UnitName(), kind, err)
			}
			node = out
			if trail != nil {
				trail.AddTransformer(ctx.UnitName(), chosen.Owner().Name(), chosen.Labels()...)
			}
			i := slices.Index(working, chosen)
			working = slices.Delete(working, i, i+1)
			continue
		}

		if deferred := results[VoteDefer]; len(deferred) > 0 {
			return nil, &DeadlockError{Unit: ctx.UnitName(), Kind: kind, Holders: deferred}
		}
	}
	return node, nil
}
