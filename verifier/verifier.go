package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spacemeshos/packetcrypt/announce"
	"github.com/spacemeshos/packetcrypt/hash"
	"github.com/spacemeshos/packetcrypt/logging"
)

var ErrUnknownParent = errors.New("parent block is unknown")

var (
	annResultsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "packetcrypt",
		Subsystem: "verifier",
		Name:      "announcements_total",
		Help:      "Number of validated announcements by result",
	}, []string{"result"})

	blockResultsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "packetcrypt",
		Subsystem: "verifier",
		Name:      "blocks_total",
		Help:      "Number of validated blocks by result",
	}, []string{"result"})

	cacheHitsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "packetcrypt",
		Subsystem: "verifier",
		Name:      "announcement_cache_hits_total",
		Help:      "Number of announcement results served from the cache",
	})

	durationMetric = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "packetcrypt",
		Subsystem: "verifier",
		Name:      "validation_duration_seconds",
		Help:      "Duration of announcement and block validation",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
	}, []string{"kind"})
)

//go:generate mockgen -package mocks -destination ../mocks/block_hashes.go . BlockHashes

// BlockHashes resolves the hash of a block by its height.
type BlockHashes interface {
	BlockHash(ctx context.Context, height uint32) ([]byte, error)
}

type Config struct {
	CacheSize int `long:"cache-size" description:"Number of announcement validation results to cache"`
	Workers   int `long:"workers" description:"Number of announcements validated concurrently"`
}

func DefaultConfig() Config {
	return Config{
		CacheSize: 4096,
		Workers:   4,
	}
}

// Verifier validates announcements and blocks against a chain of known
// block hashes. Announcement results are cached since the same
// announcement shows up in many block candidates.
type Verifier struct {
	hashes  BlockHashes
	cache   *lru.Cache
	workers int
}

func New(hashes BlockHashes, cfg Config) (*Verifier, error) {
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating announcement cache: %w", err)
	}
	return &Verifier{
		hashes:  hashes,
		cache:   cache,
		workers: cfg.Workers,
	}, nil
}

func cacheKey(ann, parentHash []byte, version uint32) [32]byte {
	buf := make([]byte, 0, len(ann)+len(parentHash)+4)
	buf = append(buf, ann...)
	buf = append(buf, parentHash...)
	buf = append(buf, byte(version), byte(version>>8), byte(version>>16), byte(version>>24))
	return hash.Sum256(buf)
}

// ValidateAnnouncement validates ann in a block of proof version
// pcpVersion. The parent block hash is looked up by the height the
// announcement names.
func (v *Verifier) ValidateAnnouncement(ctx context.Context, ann []byte, pcpVersion uint32) (announce.Result, error) {
	if len(ann) != announce.Size {
		return 0, fmt.Errorf("%w: announcement is %d bytes", ErrBadLength, len(ann))
	}
	parentHeight := announce.Announcement(ann).ParentHeight()
	logger := logging.FromContext(ctx).With(zap.Uint32("parent_height", parentHeight))

	parentHash, err := v.hashes.BlockHash(ctx, parentHeight)
	if err != nil {
		return 0, fmt.Errorf("%w: height %d: %w", ErrUnknownParent, parentHeight, err)
	}

	key := cacheKey(ann, parentHash, pcpVersion)
	if cached, ok := v.cache.Get(key); ok {
		cacheHitsMetric.Inc()
		// SAFETY: only announce.Result values are inserted.
		res := cached.(announce.Result)
		logger.Debug("announcement result from cache", zap.Stringer("result", res))
		return res, nil
	}

	start := time.Now()
	res := announce.Validate(ann, parentHash, pcpVersion)
	durationMetric.WithLabelValues("announcement").Observe(time.Since(start).Seconds())
	annResultsMetric.WithLabelValues(res.String()).Inc()
	v.cache.Add(key, res)

	logger.Debug("validated announcement",
		zap.Stringer("result", res),
		zap.Uint8("version", announce.Announcement(ann).Version()),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

// ValidateAnnouncements validates a batch of announcements concurrently.
// Results of announcements that could not be validated are left zero and
// their errors are combined into the returned error.
func (v *Verifier) ValidateAnnouncements(ctx context.Context, anns [][]byte, pcpVersion uint32) ([]announce.Result, error) {
	results := make([]announce.Result, len(anns))
	errs := make([]error, len(anns))

	var eg errgroup.Group
	eg.SetLimit(v.workers)
	for i, ann := range anns {
		i, ann := i, ann
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			res, err := v.ValidateAnnouncement(ctx, ann, pcpVersion)
			if err != nil {
				errs[i] = fmt.Errorf("announcement %d: %w", i, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = eg.Wait()

	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return results, result.ErrorOrNil()
}

// ValidateBlock checks the proof carried by b with every announcement
// validated against its parent block. Announcements are validated
// concurrently; a parent block which can not be resolved makes its
// announcement invalid.
func (v *Verifier) ValidateBlock(ctx context.Context, b *Block) (Result, error) {
	if err := b.checkLengths(); err != nil {
		return 0, err
	}
	logger := logging.FromContext(ctx).With(zap.Uint32("height", b.Height))
	start := time.Now()

	var valid [NumAnns]bool
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(v.workers)
	for i, ann := range b.Anns {
		i, ann := i, ann
		if announce.Announcement(ann).ParentHeight() > b.Height {
			continue
		}
		eg.Go(func() error {
			res, err := v.ValidateAnnouncement(egCtx, ann, b.Version)
			switch {
			case egCtx.Err() != nil:
				return egCtx.Err()
			case err != nil:
				logger.Debug("announcement not validated", zap.Int("index", i), zap.Error(err))
			default:
				valid[i] = res == announce.ResultOK
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	res := validateBlock(b, func(i int, _ uint32) bool { return valid[i] })
	durationMetric.WithLabelValues("block").Observe(time.Since(start).Seconds())
	blockResultsMetric.WithLabelValues(res.name()).Inc()
	logger.Info("validated block",
		zap.Stringer("result", res),
		zap.Uint32("pcp_version", b.Version),
		zap.Uint64("ann_count", b.AnnCount),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}
