package avatar

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"gitlab.com/vitalcare/api/wa-inbox-service/internal/model"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/observer"
	"gitlab.com/vitalcare/api/wa-inbox-service/pkg/logger"
	"gitlab.com/vitalcare/api/wa-inbox-service/pkg/utils"
)

const (
	// DefaultBatchSize is how many phones one worker task resolves.
	DefaultBatchSize = 5
	// DefaultFetchTimeout bounds a single profile picture request.
	DefaultFetchTimeout = 3 * time.Second
	// DefaultPoolSize is the worker pool capacity.
	DefaultPoolSize = 4
)

// Fetcher resolves a profile picture URL for one gateway chat ID. An empty
// URL with nil error means the contact has no picture.
type Fetcher interface {
	ProfilePicture(ctx context.Context, chatID string) (string, error)
}

// PatchFunc is invoked off the caller's goroutine whenever a URL resolves, so
// the owner of the live snapshot can patch the matching conversation.
type PatchFunc func(phone, url string)

// EnricherOptions tunes the background fetch behaviour. Zero values fall back
// to the package defaults.
type EnricherOptions struct {
	BatchSize    int
	FetchTimeout time.Duration
	PoolSize     int
}

// Enricher fills Conversation.AvatarURL from cache synchronously and resolves
// misses on a background pool. Failures are silent: a conversation without an
// avatar is fully functional.
type Enricher struct {
	cache        *Cache
	fetcher      Fetcher
	patch        PatchFunc
	pool         *ants.Pool
	batchSize    int
	fetchTimeout time.Duration

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewEnricher creates an Enricher backed by an ants pool. patch may be nil.
func NewEnricher(cache *Cache, fetcher Fetcher, patch PatchFunc, opts EnricherOptions) (*Enricher, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}

	pool, err := ants.NewPool(opts.PoolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	return &Enricher{
		cache:        cache,
		fetcher:      fetcher,
		patch:        patch,
		pool:         pool,
		batchSize:    opts.BatchSize,
		fetchTimeout: opts.FetchTimeout,
		inFlight:     make(map[string]struct{}),
	}, nil
}

// Enrich patches cached URLs into the top entries of convs in place and
// schedules background fetches for the misses. Only the first BatchSize
// conversations are considered per cycle, bounding request volume; deeper
// entries pick up their avatars over subsequent cycles as the roster reorders.
// It never blocks on network I/O; ctx bounds the scheduled fetches, not the
// call itself.
func (e *Enricher) Enrich(ctx context.Context, convs []model.Conversation) {
	var missing []string
	for i := range convs[:min(len(convs), e.batchSize)] {
		if convs[i].AvatarURL != "" {
			continue
		}
		if url, ok := e.cache.Get(convs[i].Phone); ok {
			convs[i].AvatarURL = url
			continue
		}
		if e.markInFlight(convs[i].Phone) {
			missing = append(missing, convs[i].Phone)
		}
	}
	if len(missing) == 0 {
		return
	}
	observer.SetAvatarQueueLength(len(missing))

	if err := e.pool.Submit(func() {
		e.fetchBatch(ctx, missing)
	}); err != nil {
		// Pool saturated or released; the next load cycle retries.
		for _, phone := range missing {
			e.clearInFlight(phone)
		}
		logger.FromContext(ctx).Debug("Avatar batch not scheduled", zap.Error(err))
	}
}

// Close releases the worker pool. Pending tasks are dropped.
func (e *Enricher) Close() {
	e.pool.Release()
}

func (e *Enricher) fetchBatch(ctx context.Context, phones []string) {
	defer utils.RecoverWithLog(ctx, "avatar fetch batch")

	for _, phone := range phones {
		e.fetchOne(ctx, phone)
		if ctx.Err() != nil {
			for _, rest := range phones {
				e.clearInFlight(rest)
			}
			return
		}
	}
}

func (e *Enricher) fetchOne(ctx context.Context, phone string) {
	defer e.clearInFlight(phone)

	fetchCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()

	url, err := e.fetcher.ProfilePicture(fetchCtx, phone)
	if err != nil {
		observer.IncAvatarFetch("error")
		logger.FromContext(ctx).Debug("Profile picture fetch failed",
			zap.String("phone", phone), zap.Error(err))
		return
	}

	e.cache.Set(phone, url)
	if url == "" {
		observer.IncAvatarFetch("empty")
		return
	}
	observer.IncAvatarFetch("success")
	if e.patch != nil {
		e.patch(phone, url)
	}
}

func (e *Enricher) markInFlight(phone string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.inFlight[phone]; ok {
		return false
	}
	e.inFlight[phone] = struct{}{}
	return true
}

func (e *Enricher) clearInFlight(phone string) {
	e.mu.Lock()
	delete(e.inFlight, phone)
	e.mu.Unlock()
}
