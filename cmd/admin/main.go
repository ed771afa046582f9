// Command admin runs operator procedures against the contribution store:
// schema migration, catalog seeding, snapshot rebuilds, contributor total
// backfills, stats exports and orphan blob collection.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/moracollect-api/internal/app"
	"github.com/noah-isme/moracollect-api/internal/service"
	"github.com/noah-isme/moracollect-api/migrations"
	"github.com/noah-isme/moracollect-api/pkg/config"
	"github.com/noah-isme/moracollect-api/pkg/database"
	"github.com/noah-isme/moracollect-api/pkg/logger"
)

const usage = `usage: admin <command> [flags]

commands:
  migrate            apply the embedded schema
  seed-catalog       load collections and items from JSON seed files
  rebuild-snapshots  recompute every listing snapshot from the counters
  backfill-totals    recount contributor totals from the ledger
  export-stats       render collection or item stats as csv or pdf
  gc-orphans         delete raw and derived blobs of unregistered submissions
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr, os.Args[1], os.Args[2:]); err != nil {
		logr.Error("command failed", zap.String("command", os.Args[1]), zap.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger, command string, args []string) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)

	switch command {
	case "migrate":
		if err := fs.Parse(args); err != nil {
			return err
		}
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		return migrations.Apply(ctx, db, logr)

	case "seed-catalog":
		collections := fs.String("collections", "seed/collections.json", "path to the collections seed file")
		items := fs.String("items", "seed/items.json", "path to the items seed file")
		prune := fs.Bool("prune", false, "delete collections and items absent from the seed")
		if err := fs.Parse(args); err != nil {
			return err
		}
		collectionsJSON, err := os.ReadFile(*collections)
		if err != nil {
			return err
		}
		itemsJSON, err := os.ReadFile(*items)
		if err != nil {
			return err
		}
		seed, err := service.DecodeCatalogSeed(collectionsJSON, itemsJSON)
		if err != nil {
			return err
		}
		return withApp(ctx, cfg, logr, func(a *app.App) (interface{}, error) {
			return a.Services.Catalog.Seed(ctx, seed, *prune)
		})

	case "rebuild-snapshots":
		if err := fs.Parse(args); err != nil {
			return err
		}
		return withApp(ctx, cfg, logr, func(a *app.App) (interface{}, error) {
			return a.Services.Snapshots.Rebuild(ctx)
		})

	case "backfill-totals":
		dryRun := fs.Bool("dry-run", false, "report deltas without writing")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return withApp(ctx, cfg, logr, func(a *app.App) (interface{}, error) {
			return a.Services.Backfill.Backfill(ctx, *dryRun)
		})

	case "export-stats":
		format := fs.String("format", "csv", "csv or pdf")
		collection := fs.String("collection", "", "export item stats of this collection instead of collection stats")
		out := fs.String("out", "", "output file (defaults to the suggested filename)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return withApp(ctx, cfg, logr, func(a *app.App) (interface{}, error) {
			export, err := a.Services.StatsExport.Export(ctx, *collection, *format)
			if err != nil {
				return nil, err
			}
			path := *out
			if path == "" {
				path = export.Filename
			}
			if err := os.WriteFile(path, export.Body, 0o644); err != nil {
				return nil, err
			}
			return map[string]interface{}{"file": path, "bytes": len(export.Body)}, nil
		})

	case "gc-orphans":
		dryRun := fs.Bool("dry-run", false, "list orphans without deleting them")
		grace := fs.Duration("grace", cfg.Maintenance.OrphanGracePeriod, "skip uploads younger than this")
		if err := fs.Parse(args); err != nil {
			return err
		}
		cfg.Maintenance.OrphanGracePeriod = *grace
		return withApp(ctx, cfg, logr, func(a *app.App) (interface{}, error) {
			return a.Services.OrphanGC.Collect(ctx, *dryRun)
		})

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// withApp wires the application, runs fn and prints its report as JSON.
func withApp(ctx context.Context, cfg *config.Config, logr *zap.Logger, fn func(a *app.App) (interface{}, error)) error {
	a, err := app.New(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	start := time.Now()
	report, err := fn(a)
	if err != nil {
		return err
	}
	logr.Info("command finished", zap.Duration("elapsed", time.Since(start)))
	return printJSON(os.Stdout, report)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
