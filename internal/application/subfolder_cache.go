package application

import (
	"context"
	"strings"
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/logging"
	"github.com/bnema/primedictation-export/internal/ports"
)

const (
	DefaultSubfolderTTL   = 10 * time.Minute
	DefaultProbeRate      = rate.Limit(8)
	DefaultProbeBurst     = 4
	DefaultSubfolderLimit = 4096
	defaultBatchProbeSize = 40
	probeConcurrency      = 4
)

// subfolderHint is stored by value so a zero entry means "unknown".
type subfolderHint struct {
	known bool
	value bool
}

type SubfolderCacheOptions struct {
	TTL time.Duration
	// MaxEntries bounds the hints kept; the oldest are evicted first.
	MaxEntries int
	Limit      rate.Limit
	Burst      int
	Logger     logging.Logger
}

// SubfolderCache remembers whether folders have child folders. Entries are
// hints for the disclosure affordance only and may be stale. Concurrent
// probes for the same folder share one provider call. Hints expire after the
// TTL and the oldest are evicted once MaxEntries are held.
type SubfolderCache struct {
	prober  ports.SubfolderProber
	batch   ports.BatchSubfolderProber
	hints   *ttlworker.Cache[string, subfolderHint]
	group   singleflight.Group
	limiter *rate.Limiter
	log     logging.Logger

	mu         sync.Mutex
	order      []string
	known      map[string]struct{}
	maxEntries int
}

func NewSubfolderCache(prober ports.SubfolderProber, opts SubfolderCacheOptions) *SubfolderCache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultSubfolderTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultSubfolderLimit
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultProbeRate
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultProbeBurst
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	batch, _ := prober.(ports.BatchSubfolderProber)
	return &SubfolderCache{
		prober:  prober,
		batch:   batch,
		hints:   ttlworker.NewCache[string, subfolderHint](opts.TTL),
		limiter: rate.NewLimiter(opts.Limit, opts.Burst),
		log:     opts.Logger,

		known:      map[string]struct{}{},
		maxEntries: opts.MaxEntries,
	}
}

func cacheKey(ref domain.FolderRef) string {
	if ref.ID != "" {
		return ref.DriveID + "|" + ref.ID
	}
	return ref.DriveID + "|path:" + strings.ToLower(ref.Path)
}

// Lookup returns the cached hint for ref, if any.
func (c *SubfolderCache) Lookup(ref domain.FolderRef) (bool, bool) {
	hint := c.hints.Get(cacheKey(ref))
	return hint.value, hint.known
}

func (c *SubfolderCache) Store(ref domain.FolderRef, hasChildren bool) {
	key := cacheKey(ref)

	c.mu.Lock()
	if _, ok := c.known[key]; !ok {
		for len(c.order) >= c.maxEntries {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.known, oldest)
			c.hints.Delete(oldest)
		}
		c.known[key] = struct{}{}
		c.order = append(c.order, key)
	}
	c.mu.Unlock()

	c.hints.Set(key, subfolderHint{known: true, value: hasChildren})
}

// Probe answers has-children for ref from the cache or with one coalesced
// provider call. A failed probe answers true and is not cached so the
// affordance stays optimistic.
func (c *SubfolderCache) Probe(ctx context.Context, ref domain.FolderRef) bool {
	if value, ok := c.Lookup(ref); ok {
		return value
	}

	key := cacheKey(ref)
	result, err, _ := c.group.Do(key, func() (any, error) {
		if value, ok := c.Lookup(ref); ok {
			return value, nil
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		value, err := c.prober.HasSubfolders(ctx, ref)
		if err != nil {
			return nil, err
		}
		c.Store(ref, value)
		return value, nil
	})
	if err != nil {
		c.log.Warn(ctx, "subfolder probe failed; assuming children", "folder", ref.ID, "path", ref.Path, "error", err)
		return true
	}
	return result.(bool)
}

// ProbeMany fills the cache for refs that are not known yet, batching when
// the provider supports it. It returns the hints for every ref by key of
// FolderRef.ID.
func (c *SubfolderCache) ProbeMany(ctx context.Context, refs []domain.FolderRef) map[string]bool {
	result := make(map[string]bool, len(refs))
	missing := make([]domain.FolderRef, 0, len(refs))
	for _, ref := range refs {
		if value, ok := c.Lookup(ref); ok {
			result[ref.ID] = value
			continue
		}
		missing = append(missing, ref)
	}
	if len(missing) == 0 {
		return result
	}

	if c.batch != nil {
		for start := 0; start < len(missing); start += defaultBatchProbeSize {
			end := min(start+defaultBatchProbeSize, len(missing))
			chunk := missing[start:end]
			c.probeBatch(ctx, chunk, result)
		}
		return result
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(probeConcurrency)
	for _, ref := range missing {
		group.Go(func() error {
			value := c.Probe(groupCtx, ref)
			mu.Lock()
			result[ref.ID] = value
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()
	return result
}

func (c *SubfolderCache) probeBatch(ctx context.Context, refs []domain.FolderRef, result map[string]bool) {
	if err := c.limiter.Wait(ctx); err != nil {
		markOptimistic(refs, result)
		return
	}

	answers, err := c.batch.ParentsWithSubfolders(ctx, refs)
	if err != nil {
		c.log.Warn(ctx, "batched subfolder probe failed; assuming children", "folders", len(refs), "error", err)
		markOptimistic(refs, result)
		return
	}
	for _, ref := range refs {
		value := answers[ref.ID]
		c.Store(ref, value)
		result[ref.ID] = value
	}
}

// Reset drops every hint. It runs when a picker session starts.
func (c *SubfolderCache) Reset() {
	var keys []string
	_ = c.hints.Range(func(key string, _ subfolderHint) error {
		keys = append(keys, key)
		return nil
	})
	for _, key := range keys {
		c.hints.Delete(key)
	}

	c.mu.Lock()
	c.order = nil
	c.known = map[string]struct{}{}
	c.mu.Unlock()
}

func markOptimistic(refs []domain.FolderRef, result map[string]bool) {
	for _, ref := range refs {
		result[ref.ID] = true
	}
}
