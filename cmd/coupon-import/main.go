// Command coupon-import loads partner coupon codes into the shop. Each input
// is a gzip file with one code per line; a code is imported when it appears
// in at least --min-files of the inputs.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/beauty-shop/internal/domain/coupon"
	"github.com/xenking/beauty-shop/internal/storage/postgres"
)

const batchSize = 1000

type options struct {
	pattern        string
	databaseURL    string
	minFiles       int
	capacity       uint
	defaultPercent string
	maxUses        int
	validFor       time.Duration
	dryRun         bool
}

func main() {
	var opts options

	flag.StringVar(&opts.pattern, "files", "data/coupons*.gz", "glob of gzip files with one coupon code per line")
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&opts.minFiles, "min-files", 2, "number of files a code must appear in")
	flag.UintVar(&opts.capacity, "bloom-capacity", 50_000_000, "expected codes per file")
	flag.StringVar(&opts.defaultPercent, "default-percent", "10", "percentage off for codes outside known campaigns")
	flag.IntVar(&opts.maxUses, "max-uses", 1, "uses allowed per code, 0 for unlimited")
	flag.DurationVar(&opts.validFor, "valid-for", 90*24*time.Hour, "validity window from now, 0 for no expiry")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "scan and report without writing")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" && !opts.dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, opts options) error {
	files, err := filepath.Glob(opts.pattern)
	if err != nil {
		return errors.Wrap(err, "match files")
	}
	if len(files) < opts.minFiles || opts.minFiles < 1 {
		return errors.Errorf("need at least %d files, matched %d", opts.minFiles, len(files))
	}
	percent, err := decimal.NewFromString(opts.defaultPercent)
	if err != nil {
		return errors.Wrap(err, "parse default percent")
	}

	codes, err := findSharedCodes(ctx, files, scanConfig{
		capacity: opts.capacity,
		fpr:      0.001,
		minFiles: opts.minFiles,
	})
	if err != nil {
		return errors.Wrap(err, "find shared codes")
	}
	slog.Info("shared codes found", slog.Int("count", len(codes)))

	settings := ruleSettings{
		defaultPercent: percent,
		maxUses:        opts.maxUses,
		validFor:       opts.validFor,
		now:            time.Now().UTC(),
	}
	rules := make([]coupon.Rule, 0, len(codes))
	for _, code := range codes {
		r := ruleFor(code, settings)
		if err := coupon.ValidateRule(&r); err != nil {
			return errors.Wrapf(err, "rule for %s", code)
		}
		rules = append(rules, r)
	}
	if opts.dryRun || len(rules) == 0 {
		slog.Info("nothing written", slog.Bool("dry_run", opts.dryRun))
		return nil
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewCouponRepository(pool)
	for start := 0; start < len(rules); start += batchSize {
		end := min(start+batchSize, len(rules))
		if err := repo.Upsert(ctx, rules[start:end]); err != nil {
			return errors.Wrap(err, "write coupons")
		}
		slog.Info("write progress", slog.Int("written", end), slog.Int("total", len(rules)))
	}
	return nil
}
