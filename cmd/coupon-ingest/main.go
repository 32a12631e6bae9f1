// Command coupon-ingest submits promo codes found in at least two of the
// couponbaseN.gz files. Every code enters the registry as a pending coupon
// with its own approval ticket.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/ticket"
	"github.com/xenking/storefront/internal/seed"
	"github.com/xenking/storefront/internal/storage/postgres"
)

const (
	bloomCapacity = 120_000_000
	bloomFPR      = 0.001
	numFiles      = 3
	progressEvery = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 10
	submitBatch   = 100
)

// codeRule is the discount a known code grants.
type codeRule struct {
	discountType coupon.DiscountType
	value        int64
	usageLimit   int
}

var codeRules = map[string]codeRule{
	"BIRTHDAY": {discountType: coupon.DiscountPercentage, value: 20, usageLimit: 1},
	"FIFTYOFF": {discountType: coupon.DiscountPercentage, value: 50},
	"SIXTYOFF": {discountType: coupon.DiscountPercentage, value: 60},
	"FREEZAAA": {discountType: coupon.DiscountPercentage, value: 100, usageLimit: 1},
	"GNULINUX": {discountType: coupon.DiscountPercentage, value: 15},
	"OVER9000": {discountType: coupon.DiscountFixed, value: 9},
	"HAPPYHRS": {discountType: coupon.DiscountPercentage, value: 18},
}

var defaultRule = codeRule{discountType: coupon.DiscountPercentage, value: 10}

func main() {
	var (
		dataDir     string
		databaseURL string
		createdBy   string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing couponbaseN.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&createdBy, "created-by", "coupon-ingest", "actor id recorded as creator of the coupons")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	if err := run(ctx, dataDir, databaseURL, createdBy); err != nil {
		lg.Fatal("Coupon ingest failed", zap.Error(err))
	}
	lg.Info("Coupon ingest completed")
}

func run(ctx context.Context, dataDir, databaseURL, createdBy string) error {
	lg := zctx.From(ctx)

	files := make([]string, numFiles)
	for i := range numFiles {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("couponbase%d.gz", i+1))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	codes, err := findCodes(ctx, files, bloomCapacity)
	if err != nil {
		return err
	}
	lg.Info("Codes found", zap.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL, postgres.PoolConfig{})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	tx, err := postgres.NewTransactor(pool, otel.GetTracerProvider(), otel.GetMeterProvider())
	if err != nil {
		return errors.Wrap(err, "create transactor")
	}
	registry := coupon.NewService(tx, postgres.NewCouponRepository(pool),
		ticket.NewService(tx, postgres.NewTicketRepository(pool)))

	return submit(ctx, registry, requestsFor(codes, createdBy))
}

// findCodes returns the codes present in at least two files, sorted.
func findCodes(ctx context.Context, files []string, capacity uint) ([]string, error) {
	lg := zctx.From(ctx)

	lg.Info("Pass 1: building bloom filters", zap.Int("files", len(files)))
	filters, err := buildBloomFilters(ctx, files, capacity)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	lg.Info("Pass 2: confirming candidates")
	codes, err := findValidCodes(ctx, files, filters)
	if err != nil {
		return nil, errors.Wrap(err, "find valid codes")
	}
	slices.Sort(codes)
	return codes, nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string, capacity uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, bloomFPR)
			var count uint64
			if err := streamGzFile(ctx, path, func(code string) {
				if !validLength(code) {
					return
				}
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					zctx.From(ctx).Info("Pass 1 progress", zap.Int("file", i+1), zap.Uint64("codes", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for file %d", i+1)
			}
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findValidCodes re-streams every file, marking codes that some other
// file's filter may contain, and keeps codes marked by two or more files.
func findValidCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]string, error) {
	results := make([]map[string]uint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			candidates := make(map[string]uint)
			fileBit := uint(1) << uint(i)
			if err := streamGzFile(ctx, path, func(code string) {
				if !validLength(code) {
					return
				}
				for j, f := range filters {
					if j != i && f.TestString(code) {
						candidates[code] |= fileBit
						return
					}
				}
			}); err != nil {
				return errors.Wrapf(err, "scan file %d for candidates", i+1)
			}
			zctx.From(ctx).Info("Pass 2 complete", zap.Int("file", i+1), zap.Int("candidates", len(candidates)))
			results[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, r := range results {
		for code, mask := range r {
			merged[code] |= mask
		}
	}

	var valid []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			valid = append(valid, code)
		}
	}
	return valid, nil
}

func validLength(code string) bool {
	return len(code) >= minCodeLen && len(code) <= maxCodeLen
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

func requestsFor(codes []string, createdBy string) []coupon.CreateRequest {
	reqs := make([]coupon.CreateRequest, len(codes))
	for i, code := range codes {
		rule, ok := codeRules[code]
		if !ok {
			rule = defaultRule
		}
		reqs[i] = coupon.CreateRequest{
			Code:          code,
			DiscountType:  rule.discountType,
			DiscountValue: decimal.NewFromInt(rule.value),
			UsageLimit:    rule.usageLimit,
			CreatedBy:     createdBy,
		}
	}
	return reqs
}

// submit registers reqs in batches, skipping codes already in the registry.
func submit(ctx context.Context, registry seed.CouponRegistry, reqs []coupon.CreateRequest) error {
	lg := zctx.From(ctx)
	var created int
	for batch := range slices.Chunk(reqs, submitBatch) {
		n, err := seed.SubmitCoupons(ctx, registry, batch)
		created += n
		if err != nil {
			return err
		}
		lg.Info("Submit progress", zap.Int("created", created), zap.Int("total", len(reqs)))
	}
	return nil
}
