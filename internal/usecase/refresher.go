package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"gitlab.com/vitalcare/api/wa-inbox-service/internal/observer"
	"gitlab.com/vitalcare/api/wa-inbox-service/pkg/logger"
	"gitlab.com/vitalcare/api/wa-inbox-service/pkg/utils"
)

// Loader is the load side of the roster service.
type Loader interface {
	Load(ctx context.Context) error
}

// RefresherOptions tune the refresh cadence. Zero values fall back to the
// defaults.
type RefresherOptions struct {
	SearchDebounce time.Duration
	ChangeDebounce time.Duration
	PollInterval   time.Duration
}

const (
	defaultSearchDebounce = 300 * time.Millisecond
	defaultChangeDebounce = 2 * time.Second
	defaultPollInterval   = 2 * time.Minute
)

// Refresher serializes roster reloads. All triggers funnel into one goroutine:
// change feed nudges are debounced, manual refreshes cancel an in-flight load,
// and the poll tick is skipped while a load runs or a search is active.
type Refresher struct {
	loader    Loader
	companyID string

	searchDebounce time.Duration
	changeDebounce time.Duration
	pollInterval   time.Duration

	searchCh  chan string
	changeCh  chan struct{}
	refreshCh chan struct{}

	mu          sync.RWMutex
	activeQuery string

	wg sync.WaitGroup
}

// NewRefresher creates a refresher around a loader.
func NewRefresher(loader Loader, companyID string, opts RefresherOptions) *Refresher {
	if opts.SearchDebounce <= 0 {
		opts.SearchDebounce = defaultSearchDebounce
	}
	if opts.ChangeDebounce <= 0 {
		opts.ChangeDebounce = defaultChangeDebounce
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Refresher{
		loader:         loader,
		companyID:      companyID,
		searchDebounce: opts.SearchDebounce,
		changeDebounce: opts.ChangeDebounce,
		pollInterval:   opts.PollInterval,
		searchCh:       make(chan string, 1),
		changeCh:       make(chan struct{}, 1),
		refreshCh:      make(chan struct{}, 1),
	}
}

// Start runs the refresh loop until ctx is cancelled. The initial load fires
// immediately.
func (r *Refresher) Start(ctx context.Context) {
	r.wg.Add(1)
	utils.SafeGo(func() {
		defer r.wg.Done()
		r.run(ctx)
	}, nil)
}

// Wait blocks until the refresh loop has exited.
func (r *Refresher) Wait() {
	r.wg.Wait()
}

// NotifyChange signals that the change feed saw activity. Bursts collapse into
// one reload after the change debounce window.
func (r *Refresher) NotifyChange() {
	select {
	case r.changeCh <- struct{}{}:
	default:
	}
}

// Search registers search activity. The query becomes active after the search
// debounce window; an empty query clears it. Only the latest value is kept.
func (r *Refresher) Search(query string) {
	for {
		select {
		case r.searchCh <- query:
			return
		default:
			select {
			case <-r.searchCh:
			default:
			}
		}
	}
}

// TriggerRefresh requests an immediate reload, superseding any in-flight load.
func (r *Refresher) TriggerRefresh() {
	select {
	case r.refreshCh <- struct{}{}:
	default:
	}
}

// ActiveQuery returns the debounced search query, empty when none.
func (r *Refresher) ActiveQuery() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeQuery
}

func (r *Refresher) setActiveQuery(q string) {
	r.mu.Lock()
	r.activeQuery = q
	r.mu.Unlock()
}

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	return t
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func (r *Refresher) run(ctx context.Context) {
	log := logger.FromContext(ctx).With(zap.String("company_id", r.companyID))

	searchTimer := newStoppedTimer()
	changeTimer := newStoppedTimer()
	defer searchTimer.Stop()
	defer changeTimer.Stop()

	poll := time.NewTicker(r.pollInterval)
	defer poll.Stop()

	var (
		inFlight   bool
		cancelLoad context.CancelFunc
		loadDone   chan error
		pending    string
	)

	startLoad := func(source string) {
		if inFlight && cancelLoad != nil {
			// Supersede the running load
			cancelLoad()
		}
		loadCtx, cancel := context.WithCancel(ctx)
		cancelLoad = cancel
		done := make(chan error, 1)
		loadDone = done
		inFlight = true
		observer.IncRefreshTrigger(r.companyID, source)
		load := utils.WrapWithContextRecovery(r.loader.Load)
		utils.SafeGo(func() {
			done <- load(loadCtx)
		}, nil)
	}

	startLoad("startup")

	for {
		select {
		case <-ctx.Done():
			if cancelLoad != nil {
				cancelLoad()
			}
			log.Info("Refresher stopped")
			return

		case q := <-r.searchCh:
			pending = q
			resetTimer(searchTimer, r.searchDebounce)

		case <-searchTimer.C:
			if pending == r.ActiveQuery() {
				continue
			}
			r.setActiveQuery(pending)
			log.Debug("Search query settled", zap.String("query", pending))
			startLoad("search")

		case <-r.changeCh:
			resetTimer(changeTimer, r.changeDebounce)

		case <-changeTimer.C:
			startLoad("realtime")

		case <-r.refreshCh:
			startLoad("manual")

		case <-poll.C:
			// Poll yields to in-flight loads and active searches
			if inFlight || r.ActiveQuery() != "" {
				log.Debug("Poll tick skipped",
					zap.Bool("in_flight", inFlight),
					zap.String("active_query", r.ActiveQuery()))
				continue
			}
			startLoad("poll")

		case err := <-loadDone:
			inFlight = false
			if cancelLoad != nil {
				cancelLoad()
				cancelLoad = nil
			}
			loadDone = nil
			if err != nil && ctx.Err() == nil {
				log.Warn("Roster load finished with error", zap.Error(err))
			}
		}
	}
}
