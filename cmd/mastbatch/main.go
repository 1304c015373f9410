// Package main is the batch MAST orchestrator CLI: it loads a dataset,
// submits one remote differential-expression job per computation unit,
// collects the results and exports them to spreadsheets.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/batch-mast/orchestrator/internal/batch"
	"github.com/batch-mast/orchestrator/internal/blobstore"
	"github.com/batch-mast/orchestrator/internal/config"
	"github.com/batch-mast/orchestrator/internal/dataset"
	"github.com/batch-mast/orchestrator/internal/export"
	"github.com/batch-mast/orchestrator/internal/ledger"
	"github.com/batch-mast/orchestrator/internal/mast"
)

func main() {
	configPath := flag.String("config", "config/mastbatch.yaml", "Path to configuration file")
	matPath := flag.String("mat", "", "Path to counts matrix (TSV, cell index first)")
	obsPath := flag.String("obs", "", "Path to per-cell metadata (CSV, cell index first)")
	group := flag.String("group", "", "Grouping variable the model contrasts")
	keys := flag.String("keys", "", "Comma-separated obs columns staged as metadata")
	covs := flag.String("covs", "", "Covariate string, e.g. +age+batch")
	by := flag.String("by", "", "Optional stratifying variable")
	byGroups := flag.String("by-groups", "", "Comma-separated stratum groups (default: all levels of -by)")
	minPerc := flag.Float64("min-perc", 0, "Prevalence filter fraction (0 disables)")
	onTotal := flag.Bool("on-total", false, "Reference the prevalence filter to total cells")
	out := flag.String("out", "mast", "Output filename prefix")
	flag.Parse()

	if *matPath == "" || *obsPath == "" || *group == "" || *keys == "" {
		log.Fatal("flags -mat, -obs, -group and -keys are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	d, err := dataset.Load(*matPath, *obsPath)
	if err != nil {
		log.Fatalf("Failed to load dataset: %v", err)
	}
	log.Printf("Loaded dataset: %d cells, %d genes", d.NCells(), d.NGenes())

	store, cleanup, err := buildStore(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize blob store: %v", err)
	}
	defer cleanup()

	client, err := batch.NewHTTPClient(cfg.Batch.Endpoint)
	if err != nil {
		log.Fatalf("Failed to initialize batch client: %v", err)
	}

	var led *ledger.Ledger
	if cfg.Ledger.SQLitePath != "" {
		led, err = ledger.Open(cfg.Ledger.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to open run ledger: %v", err)
		}
		defer led.Close()
	}

	runner := mast.New(mast.Config{
		JobQueue:      cfg.Batch.JobQueue,
		JobDefinition: cfg.Batch.JobDefinition,
		Bucket:        cfg.Storage.Bucket,
		PollInterval:  cfg.Collect.PollInterval(),
		StatusWait:    cfg.Collect.StatusWait(),
		Jobs:          cfg.Collect.Jobs,
	}, store, client, led)

	opts := mast.RunOptions{
		Keys:       splitList(*keys),
		Group:      *group,
		Covariates: *covs,
		FDR:        cfg.Filter.FDR,
		LFC:        cfg.Filter.LFC,
		MinPerc:    *minPerc,
		OnTotal:    *onTotal,
	}
	if *by != "" {
		groups := splitList(*byGroups)
		if len(groups) == 0 {
			groups = levels(d, *by)
		}
		opts.Strata = []mast.Stratification{{By: *by, Groups: groups}}
	}

	// Remote jobs cannot be cancelled; an interrupt abandons collection and
	// the ledger keeps the unresolved submissions.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = runner.Run(ctx, d, opts, func(s mast.Stratum) error {
		name := *out
		if s.By != "" {
			name = name + "." + s.By
		}
		log.Printf("Collected %d group(s) for %q", len(s.Results), s.By)
		if err := export.WriteResults(s.Results, name+".xlsx"); err != nil {
			return err
		}
		return export.WriteTopHits(s.Top, name+".top.xlsx")
	})
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}
	log.Println("Done")
}

func buildStore(cfg config.StorageConfig) (blobstore.Store, func(), error) {
	var inner blobstore.Store
	switch cfg.Backend {
	case "redis":
		inner = blobstore.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), cfg.Bucket)
	default:
		inner = blobstore.NewFS(cfg.FSRoot, cfg.Bucket)
	}

	cached, err := blobstore.NewCached(inner, blobstore.CachedConfig{
		SizeMB: cfg.CacheSizeMB,
		TTL:    time.Duration(cfg.CacheTTLMinutes) * time.Minute,
	})
	if err != nil {
		return nil, nil, err
	}
	return cached, func() { cached.Close() }, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func levels(d *dataset.Dataset, col string) []string {
	counts := d.ValueCounts(col)
	out := make([]string, 0, len(counts))
	for v := range counts {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
