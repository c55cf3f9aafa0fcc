package transform

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrVoteRejected  = errors.New("transformer vote rejected")
	ErrVoteDeadlock  = errors.New("transformer vote deadlock")
	ErrInvalidTarget = errors.New("invalid transformer target")
	ErrNodeType      = errors.New("transformer node type mismatch")
	ErrSealed        = errors.New("registry is sealed")
)

// RejectedError is returned as soon as any transformer votes REJECT. The
// whole rewrite of the unit is abandoned.
type RejectedError struct {
	Unit    string
	Kind    Kind
	Holders []*Holder
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%v: %s %s rejected by %s", ErrVoteRejected, e.Unit, e.Kind, holderNames(e.Holders))
}

func (e *RejectedError) Is(target error) bool { return target == ErrVoteRejected }

// DeadlockError is returned when only DEFER votes remain in a round.
type DeadlockError struct {
	Unit    string
	Kind    Kind
	Holders []*Holder
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("%v: %s %s deferred by %s", ErrVoteDeadlock, e.Unit, e.Kind, holderNames(e.Holders))
}

func (e *DeadlockError) Is(target error) bool { return target == ErrVoteDeadlock }

// ConfigError reports a transformer whose targets disagree with the node
// type it rewrites. It is raised at registration time.
type ConfigError struct {
	Transformer string
	Label       Label
	Reason      string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v %s for transformer %s: %s", ErrInvalidTarget, e.Label.Kind, e.Transformer, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidTarget }

func holderNames(hs []*Holder) string {
	names := make([]string, len(hs))
	for i, h := range hs {
		names[i] = h.String()
	}
	return "[" + strings.Join(names, ", ") + "]"
}
