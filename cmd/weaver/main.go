package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"weaver/internal/codec"
	"weaver/internal/config"
	"weaver/internal/crawler"
	"weaver/internal/extractor"
	"weaver/internal/ir"
	"weaver/internal/loader"
	"weaver/internal/plugin"
	"weaver/internal/printer"
	"weaver/internal/rules"
	"weaver/internal/storage"
	"weaver/internal/telemetry"
	"weaver/internal/transform"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	rootCmd = &cobra.Command{
		Use:           "weaver",
		Short:         "Cooperative rewriting of structured code units",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	configPath string
	dbPath     string
	out        = printer.New()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to weaver.yaml or weaver.toml")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Path to the SQLite unit/audit database (overrides audit.db)")

	importCmd.Flags().StringP("out", "o", "", "Directory for the encoded units (defaults to source.root)")

	auditCmd.Flags().String("launch", "", "Launch id (defaults to the latest launch)")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(rewriteCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(auditCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, out.Error("Invalid configuration", err.Error(), map[string]string{"config": configPath})
	}
	if dbPath != "" {
		cfg.Audit.DB = dbPath
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := cfg.LogLevel()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// initStore opens the SQLite store named by audit.db.
func initStore(cfg *config.Config) (*storage.SQLiteStore, error) {
	store, err := storage.NewSQLiteStore(cfg.Audit.DB)
	if err != nil {
		return nil, out.Error("Failed to open database", err.Error(), map[string]string{"db": cfg.Audit.DB})
	}
	return store, nil
}

var importCmd = &cobra.Command{
	Use:   "import [dir]",
	Short: "Extract units from Go sources and store them as .unit files",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		root := cfg.Source.Root
		if len(args) > 0 {
			root = args[0]
		}
		outDir, _ := cmd.Flags().GetString("out")
		if outDir == "" {
			outDir = root
		}

		store, err := initStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ext, err := extractor.NewExtractor("go")
		if err != nil {
			return err
		}
		bin := codec.NewBinary()
		c := crawler.NewCrawler(ext, bin)

		out.Step("Scanning Go sources in %s", root)
		var stored []storage.StoredUnit
		var failed int
		err = c.ScanProject(root, func(u *ir.Unit) {
			data, err := bin.Encode(u, codec.ComputeFrames)
			if err != nil {
				out.Warning("skipping %s: %v", u.Name, err)
				failed++
				return
			}
			path := crawler.UnitPath(outDir, u.Name)
			if err := writeFile(path, data); err != nil {
				out.Warning("cannot write %s: %v", path, err)
				failed++
				return
			}
			sum := sha256.Sum256(data)
			stored = append(stored, storage.StoredUnit{
				Name:        u.Name,
				Source:      u.Source,
				ContentHash: hex.EncodeToString(sum[:]),
				Data:        data,
			})
		})
		if err != nil {
			return out.Error("Scan failed", err.Error(), map[string]string{"root": root})
		}

		if err := store.SaveUnits(cmd.Context(), stored); err != nil {
			return out.Error("Failed to store units", err.Error(), nil)
		}
		out.Success("Imported %d units into %s", len(stored), outDir)
		if failed > 0 {
			out.Warning("%d units were skipped", failed)
		}
		return nil
	},
}

var rewriteCmd = &cobra.Command{
	Use:   "rewrite",
	Short: "Rewrite every unit under source.root with the configured rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)
		ctx := cmd.Context()

		store, err := initStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		registry := transform.NewRegistry(logger)
		if err := rules.Register(registry, cfg.Rules); err != nil {
			return out.Error("Invalid rule", err.Error(), nil)
		}

		tp, shutdown, err := telemetry.Setup(ctx, "weaver", cfg.Trace.Endpoint)
		if err != nil {
			return out.Error("Failed to set up tracing", err.Error(), map[string]string{"endpoint": cfg.Trace.Endpoint})
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("trace shutdown failed", "error", err)
			}
		}()

		opts := []transform.Option{transform.WithLogger(logger), transform.WithTracerProvider(tp)}
		if cfg.Debug.Dump {
			opts = append(opts, transform.WithDumpDir(cfg.Debug.DumpDir))
		}
		pipeline := transform.NewPipeline(registry, plugin.NewRegistry(plugin.WithLogger(logger)), opts...)

		l := loader.New(pipeline,
			loader.WithLogger(logger),
			loader.WithStore(store),
			loader.WithWorkers(cfg.Workers),
			loader.WithRoot(cfg.Source.Root),
		)

		out.Step("Discovering units in %s", cfg.Source.Root)
		if err := l.Discover(crawler.NewCrawler(nil, nil), cfg.Source.Root); err != nil {
			return out.Error("Discovery failed", err.Error(), nil)
		}
		l.Start()

		var targets []string
		for _, r := range cfg.Rules {
			targets = append(targets, r.Unit)
		}

		out.Step("Rewriting %d units with %d workers", len(l.Units()), cfg.Workers)
		results, err := l.RewriteAll(ctx, targets...)
		if err != nil {
			return out.Error("Rewrite interrupted", err.Error(), nil)
		}

		var changed, failed int
		for _, r := range results {
			if r.Err != nil {
				if !errors.Is(r.Err, loader.ErrUnknownUnit) {
					out.Warning("%s: %v", r.Unit, r.Err)
					failed++
				}
				continue
			}
			if err := writeFile(crawler.UnitPath(cfg.Output.Dir, r.Unit), r.Data); err != nil {
				return out.Error("Failed to write output", err.Error(), map[string]string{"unit": r.Unit})
			}
			if r.Changed {
				changed++
			}
		}

		if err := l.PersistAudit(ctx); err != nil {
			return out.Error("Failed to save audit trail", err.Error(), nil)
		}

		out.Success("Rewrote %d units (%d changed) into %s", len(results)-failed, changed, cfg.Output.Dir)
		out.Info("Launch %s", l.ID())
		if failed > 0 {
			return out.Error(fmt.Sprintf("%d units failed", failed), "Their transformers rejected or could not agree on a rewrite.", nil)
		}
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [file.unit|unit]",
	Short: "Print a unit as YAML, from a file or from the database",
	Long:  "Without an argument, lists the units stored in the database.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return listStoredUnits(cmd.Context())
		}
		data, err := os.ReadFile(args[0])
		if errors.Is(err, os.ErrNotExist) {
			data, err = storedUnit(cmd.Context(), args[0])
		}
		if err != nil {
			return out.Error("Cannot read unit", err.Error(), map[string]string{"unit": args[0]})
		}

		u, err := codec.NewBinary().Decode(data)
		if err != nil {
			return out.Error("Not a unit", err.Error(), map[string]string{"unit": args[0]})
		}
		enc := yaml.NewEncoder(out.Out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(u)
	},
}

func listStoredUnits(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	names, err := store.ListUnits(ctx)
	if err != nil {
		return out.Error("Cannot list units", err.Error(), map[string]string{"db": cfg.Audit.DB})
	}
	for _, name := range names {
		out.Info("%s", name)
	}
	if len(names) == 0 {
		out.Warning("no units stored in %s", cfg.Audit.DB)
	}
	return nil
}

func storedUnit(ctx context.Context, name string) ([]byte, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := initStore(cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	u, err := store.GetUnit(ctx, name)
	if err != nil {
		return nil, err
	}
	return u.Data, nil
}

var auditCmd = &cobra.Command{
	Use:   "audit [unit]",
	Short: "Show the audit trail recorded by a rewrite launch",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := initStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		ctx := cmd.Context()

		launchID, _ := cmd.Flags().GetString("launch")
		if launchID == "" {
			latest, err := store.LatestLaunch(ctx)
			if err != nil {
				return out.Error("No launch recorded", err.Error(), map[string]string{"db": cfg.Audit.DB})
			}
			launchID = latest.ID
		}
		trail, err := store.LoadTrail(ctx, launchID)
		if err != nil {
			return out.Error("Cannot load audit trail", err.Error(), map[string]string{"launch": launchID})
		}

		units := trail.Units()
		if len(args) > 0 {
			units = []string{args[0]}
		}
		for _, unit := range units {
			out.Info("%s\t%s", unit, trail.AuditString(unit))
		}
		return nil
	},
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
