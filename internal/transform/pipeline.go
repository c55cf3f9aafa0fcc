package transform

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"weaver/internal/audit"
	"weaver/internal/codec"
	"weaver/internal/ir"
	"weaver/internal/plugin"
)

const (
	// ReasonClassloading marks a rewrite for an actual unit load.
	ReasonClassloading = "classloading"
	// ReasonComputingFrames marks a rewrite whose output only feeds frame
	// computation for another unit. It never forces ComputeFrames.
	ReasonComputingFrames = "computing_frames"

	tracerName = "weaver/transform"
)

// Pipeline drives one unit through plugins and transformer votes.
type Pipeline struct {
	registry *Registry
	plugins  *plugin.Registry
	trail    *audit.Trail
	codec    codec.Codec
	logger   *slog.Logger
	tracer   trace.Tracer
	dumpDir  string
}

type Option func(*Pipeline)

func WithTrail(t *audit.Trail) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.trail = t
		}
	}
}

func WithCodec(c codec.Codec) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.codec = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTracerProvider traces rewrites through tp instead of the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) {
		if tp != nil {
			p.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithDumpDir enables writing rewritten units to dir when the logger is
// at debug level and the reason is ReasonClassloading.
func WithDumpDir(dir string) Option {
	return func(p *Pipeline) { p.dumpDir = dir }
}

// NewPipeline builds a pipeline over the given registries and seals the
// transformer registry. plugins may be nil.
func NewPipeline(registry *Registry, plugins *plugin.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry: registry,
		plugins:  plugins,
		trail:    audit.NewTrail(),
		codec:    codec.NewBinary(),
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registry == nil {
		p.registry = NewRegistry(p.logger)
	}
	if p.plugins == nil {
		p.plugins = plugin.NewRegistry(plugin.WithLogger(p.logger))
	}
	p.logger = p.logger.With("component", "transform")
	p.registry.Seal()
	return p
}

func (p *Pipeline) Trail() *audit.Trail { return p.trail }

func (p *Pipeline) Plugins() *plugin.Registry { return p.plugins }

// Rewrite transforms input, the raw bytes of unit, and returns the new
// bytes. Empty input means the unit is defined from nothing. When nothing
// applies to unit the input slice itself is returned.
func (p *Pipeline) Rewrite(ctx context.Context, input []byte, unit, reason string) ([]byte, error) {
	empty := len(input) == 0
	interested := p.plugins.Interested(unit, empty, reason, p.trail)
	needsRewriting := p.registry.NeedsRewriting(unit)
	if !needsRewriting && interested.Empty() {
		return input, nil
	}

	ctx, span := p.tracer.Start(ctx, "transform.Rewrite", trace.WithAttributes(
		attribute.String("unit", unit),
		attribute.String("reason", reason),
		attribute.Bool("synthesized", empty),
	))
	defer span.End()

	out, err := p.rewrite(ctx, input, unit, reason, interested, needsRewriting)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rewrite failed")
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) rewrite(ctx context.Context, input []byte, unit, reason string, interested plugin.Interested, needsRewriting bool) ([]byte, error) {
	node, err := p.parseStage(input, unit)
	if err != nil {
		return nil, err
	}
	p.trail.AddReason(unit, reason)

	preFlags := p.plugins.Dispatch(plugin.Before, interested.Before, node, unit, reason, p.trail)
	if preFlags == codec.NoRewrite && !needsRewriting && len(interested.After) == 0 {
		return input, nil
	}

	if needsRewriting {
		vctx := newVotingContext(unit, input, len(input) > 0, reason, p.trail)
		node, err = p.voteStage(vctx, node)
		if err != nil {
			return nil, err
		}
	}

	postFlags := p.plugins.Dispatch(plugin.After, interested.After, node, unit, reason, p.trail)
	if preFlags == codec.NoRewrite && postFlags == codec.NoRewrite && !needsRewriting {
		return input, nil
	}

	flags := mergeFlags(preFlags, postFlags, needsRewriting, reason)
	out, err := p.codec.Encode(node, flags)
	if err != nil {
		return nil, fmt.Errorf("serialize %s: %w", unit, err)
	}
	if reason == ReasonClassloading {
		p.dump(ctx, unit, out)
	}
	return out, nil
}

func (p *Pipeline) parseStage(input []byte, unit string) (*ir.Unit, error) {
	if len(input) == 0 {
		return p.codec.Synthesize(unit), nil
	}
	node, err := p.codec.Decode(input)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", unit, err)
	}
	return node, nil
}

// voteStage runs the pre-unit round, one round per member in member order,
// then the unit round. The first failure abandons the unit.
func (p *Pipeline) voteStage(vctx *VotingContext, node *ir.Unit) (*ir.Unit, error) {
	unit := vctx.UnitName()

	node, err := voteNode(p.registry.UnitHolders(unit, KindPreUnit), KindPreUnit, node, vctx, p.trail)
	if err != nil {
		return nil, err
	}

	fields := make([]*ir.Field, 0, len(node.Fields))
	for i, f := range node.Fields {
		if f == nil {
			return nil, fmt.Errorf("%w: %s: field %d is nil", codec.ErrInvalidUnit, unit, i)
		}
		out, err := voteNode(p.registry.FieldHolders(unit, f.Name), KindField, f, vctx, p.trail)
		if err != nil {
			return nil, err
		}
		fields = append(fields, out)
	}

	methods := make([]*ir.Method, 0, len(node.Methods))
	for i, m := range node.Methods {
		if m == nil {
			return nil, fmt.Errorf("%w: %s: method %d is nil", codec.ErrInvalidUnit, unit, i)
		}
		out, err := voteNode(p.registry.MethodHolders(unit, m.Name, m.Descriptor), KindMethod, m, vctx, p.trail)
		if err != nil {
			return nil, err
		}
		methods = append(methods, out)
	}
	node.Fields = fields
	node.Methods = methods

	return voteNode(p.registry.UnitHolders(unit, KindUnit), KindUnit, node, vctx, p.trail)
}

// voteNode is the typed entry to vote.
func voteNode[N Node](working []*Holder, kind Kind, node N, vctx *VotingContext, trail *audit.Trail) (N, error) {
	if len(working) == 0 {
		return node, nil
	}
	out, err := vote(working, kind, node, vctx, trail)
	if err != nil {
		var zero N
		return zero, err
	}
	return out.(N), nil
}

// mergeFlags combines plugin flags. Any transformer activity forces full
// recomputation, except for rewrites that only feed frame computation.
func mergeFlags(pre, post codec.Flags, needsRewriting bool, reason string) codec.Flags {
	merged := pre | post
	if needsRewriting {
		merged = codec.ComputeFrames
	}
	if reason == ReasonComputingFrames {
		merged &^= codec.ComputeFrames
	}
	return merged
}

// dump writes out to the dump directory. Failures are logged only.
func (p *Pipeline) dump(ctx context.Context, unit string, out []byte) {
	if p.dumpDir == "" || !p.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	path, ok := dumpPath(p.dumpDir, unit)
	if !ok {
		p.logger.Warn("unit name escapes dump directory", "unit", unit, "dir", p.dumpDir)
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		p.logger.Warn("failed to create dump directory", "dir", filepath.Dir(path), "error", err)
		return
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		p.logger.Warn("failed to write unit dump", "unit", unit, "error", err)
		return
	}
	p.logger.Info("wrote unit dump", "unit", unit, "bytes", len(out), "path", path)
}

// dumpPath places unit under dir. It reports false when the cleaned path
// would leave dir.
func dumpPath(dir, unit string) (string, bool) {
	path := filepath.Join(dir, filepath.FromSlash(unit)+".unit")
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return path, true
}
