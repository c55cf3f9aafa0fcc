// Package rules builds transformers from declarative config entries.
package rules

import (
	"errors"
	"fmt"
	"strconv"

	"weaver/internal/config"
	"weaver/internal/ir"
	"weaver/internal/transform"
)

// Actions understood by Register.
const (
	PublicizeField  = "publicize_field"
	PublicizeMethod = "publicize_method"
	AddField        = "add_field"
	SetValue        = "set_value"
	RenameMethod    = "rename_method"
)

var ErrUnknownAction = errors.New("unknown rule action")

// rule is a transformer driven by one config entry.
type rule[N transform.Node] struct {
	target transform.Label
	label  string
	vote   func(*transform.VotingContext) transform.Vote
	apply  func(N) (N, error)
}

func (r *rule[N]) Vote(ctx *transform.VotingContext) transform.Vote {
	if r.vote == nil {
		return transform.VoteYes
	}
	return r.vote(ctx)
}

func (r *rule[N]) Apply(node N, _ *transform.VotingContext) (N, error) { return r.apply(node) }

func (r *rule[N]) Targets() []transform.Label { return []transform.Label{r.target} }

func (r *rule[N]) Labels() []string { return []string{r.label} }

func (r *rule[N]) String() string { return r.label + "@" + r.target.Unit }

// Register adds one transformer per rule, owned by the rule's provider.
func Register(reg *transform.Registry, rules []config.Rule) error {
	for i, r := range rules {
		if err := registerRule(reg, r); err != nil {
			return fmt.Errorf("rules[%d] (%s %s): %w", i, r.Action, r.Unit, err)
		}
	}
	return nil
}

func registerRule(reg *transform.Registry, r config.Rule) error {
	owner := transform.ProviderName(r.Provider)
	label := r.Label
	if label == "" {
		label = r.Action
	}

	switch r.Action {
	case PublicizeField:
		return transform.RegisterTargets(reg, &rule[*ir.Field]{
			target: transform.FieldLabel(r.Unit, r.Member),
			label:  label,
			apply: func(f *ir.Field) (*ir.Field, error) {
				f.Access = f.Access.WithVisibility(ir.AccPublic)
				return f, nil
			},
		}, owner)

	case SetValue:
		return transform.RegisterTargets(reg, &rule[*ir.Field]{
			target: transform.FieldLabel(r.Unit, r.Member),
			label:  label,
			apply: func(f *ir.Field) (*ir.Field, error) {
				v, err := parseValue(f.Descriptor, r.Value)
				if err != nil {
					return nil, err
				}
				f.Value = v
				return f, nil
			},
		}, owner)

	case AddField:
		if r.Member == "" {
			return fmt.Errorf("add_field needs a member name")
		}
		desc := r.Descriptor
		if desc == "" {
			desc = "string"
		}
		value, err := parseValue(desc, r.Value)
		if err != nil {
			return err
		}
		return transform.RegisterTargets(reg, &rule[*ir.Unit]{
			target: transform.UnitLabel(r.Unit),
			label:  label,
			vote: func(ctx *transform.VotingContext) transform.Vote {
				if ctx.MatchUnit(func(u *ir.Unit) bool { return u.Field(r.Member) != nil }) {
					return transform.VoteNo
				}
				return transform.VoteYes
			},
			apply: func(u *ir.Unit) (*ir.Unit, error) {
				u.Fields = append(u.Fields, &ir.Field{
					Access:     ir.AccPublic | ir.AccStatic,
					Name:       r.Member,
					Descriptor: desc,
					Value:      value,
				})
				return u, nil
			},
		}, owner)

	case PublicizeMethod:
		return transform.RegisterTargets(reg, &rule[*ir.Method]{
			target: transform.MethodLabel(r.Unit, r.Member, r.Signature),
			label:  label,
			apply: func(m *ir.Method) (*ir.Method, error) {
				m.Access = m.Access.WithVisibility(ir.AccPublic)
				return m, nil
			},
		}, owner)

	case RenameMethod:
		if r.To == "" {
			return fmt.Errorf("rename_method needs a target name")
		}
		return transform.RegisterTargets(reg, &rule[*ir.Method]{
			target: transform.MethodLabel(r.Unit, r.Member, r.Signature),
			label:  label,
			apply: func(m *ir.Method) (*ir.Method, error) {
				m.Name = r.To
				return m, nil
			},
		}, owner)
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, r.Action)
}

// parseValue converts a configured string to the field's descriptor type.
func parseValue(descriptor, raw string) (any, error) {
	switch descriptor {
	case "int", "int8", "int16", "int32", "int64":
		v, err := strconv.ParseInt(raw, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q for %s: %w", raw, descriptor, err)
		}
		return v, nil
	case "float32", "float64":
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q for %s: %w", raw, descriptor, err)
		}
		return v, nil
	case "bool":
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("value %q for %s: %w", raw, descriptor, err)
		}
		return v, nil
	}
	return raw, nil
}
