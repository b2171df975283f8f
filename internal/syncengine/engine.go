package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/yourorg/mls-sync/internal/cache"
	"github.com/yourorg/mls-sync/internal/metrics"
	"github.com/yourorg/mls-sync/internal/store"
	"github.com/yourorg/mls-sync/mls"
)

// Client is the integration surface the engine pulls through. All rate
// limiting, retries and caching happen inside it.
type Client interface {
	SearchProperties(ctx context.Context, criteria *mls.SearchCriteria) (*mls.SearchResult, error)
	GetProperty(ctx context.Context, listingID string) (*mls.Property, error)
	RecordSync(t time.Time)
}

const (
	defaultInterval  = 15 * time.Minute
	defaultPageDelay = 500 * time.Millisecond
	defaultBatch     = 100
	maxPages         = 500
	queueDepth       = 32
	recentKeep       = 50
)

type Options struct {
	Client    Client
	Store     store.PropertyStore // optional
	Cache     cache.Cache
	TTL       mls.TTLPolicy
	Interval  time.Duration
	PageDelay time.Duration
	BatchSize int
	Log       zerolog.Logger
}

// Engine owns a single worker goroutine draining a FIFO job queue, plus a
// ticker that enqueues incremental syncs on a rolling watermark. One worker
// keeps provider pressure bounded and job effects ordered.
type Engine struct {
	client Client
	store  store.PropertyStore
	cache  cache.Cache
	ttl    mls.TTLPolicy
	log    zerolog.Logger

	interval time.Duration
	pager    *rate.Limiter
	batch    int

	jobs chan *Job

	mu        sync.Mutex
	byID      map[string]*Job
	recent    []*Job
	current   *Job
	watermark time.Time
	now       func() time.Time
}

func New(o Options) *Engine {
	if o.Interval <= 0 {
		o.Interval = defaultInterval
	}
	if o.PageDelay <= 0 {
		o.PageDelay = defaultPageDelay
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatch
	}
	if o.TTL == (mls.TTLPolicy{}) {
		o.TTL = mls.DefaultTTLPolicy()
	}
	return &Engine{
		client:   o.Client,
		store:    o.Store,
		cache:    o.Cache,
		ttl:      o.TTL,
		log:      o.Log,
		interval: o.Interval,
		pager:    rate.NewLimiter(rate.Every(o.PageDelay), 1),
		batch:    o.BatchSize,
		jobs:     make(chan *Job, queueDepth),
		byID:     make(map[string]*Job),
		now:      time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// ScheduleFullSync enqueues a full pull of everything matching criteria. A
// nil criteria pulls all non-terminal listings.
func (e *Engine) ScheduleFullSync(criteria *mls.SearchCriteria) (Job, error) {
	j := newJob(JobFull)
	j.Criteria = criteria
	return e.enqueue(j)
}

// ScheduleIncrementalSync enqueues a modified-since pull. A nil since falls
// back to the engine's rolling watermark.
func (e *Engine) ScheduleIncrementalSync(since *time.Time) (Job, error) {
	j := newJob(JobIncremental)
	j.Since = since
	return e.enqueue(j)
}

// SchedulePropertySync enqueues targeted refreshes of specific listings.
func (e *Engine) SchedulePropertySync(listingIDs []string) (Job, error) {
	if len(listingIDs) == 0 {
		return Job{}, errors.New("no listing ids given")
	}
	j := newJob(JobProperties)
	j.ListingIDs = listingIDs
	return e.enqueue(j)
}

// ScheduleSearchSync enqueues a one-off criteria-scoped pull.
func (e *Engine) ScheduleSearchSync(criteria *mls.SearchCriteria) (Job, error) {
	if criteria == nil {
		return Job{}, errors.New("criteria are required")
	}
	j := newJob(JobSearch)
	j.Criteria = criteria
	return e.enqueue(j)
}

func (e *Engine) enqueue(j *Job) (Job, error) {
	select {
	case e.jobs <- j:
	default:
		return Job{}, errors.New("sync queue is full")
	}
	e.mu.Lock()
	e.byID[j.ID] = j
	e.mu.Unlock()
	e.log.Info().Str("job_id", j.ID).Str("type", string(j.Type)).Msg("sync job scheduled")
	return *j, nil
}

// Job returns a snapshot of a scheduled job by id.
func (e *Engine) Job(id string) (Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.byID[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

type EngineStatus struct {
	Running    bool  `json:"running"`
	QueueDepth int   `json:"queue_depth"`
	Current    *Job  `json:"current,omitempty"`
	Recent     []Job `json:"recent"`
}

// Status snapshots the worker state and the recent job history.
func (e *Engine) Status() EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := EngineStatus{
		QueueDepth: len(e.jobs),
		Recent:     make([]Job, 0, len(e.recent)),
	}
	if e.current != nil {
		cp := *e.current
		st.Current = &cp
		st.Running = true
	}
	for i := len(e.recent) - 1; i >= 0; i-- {
		st.Recent = append(st.Recent, *e.recent[i])
	}
	return st
}

// Run drives the worker until ctx is canceled. The interval ticker feeds
// incremental jobs through the same queue user-scheduled jobs use.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.watermark.IsZero() {
		e.watermark = e.now().Add(-e.interval)
	}
	e.mu.Unlock()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.ScheduleIncrementalSync(nil); err != nil {
				e.log.Warn().Err(err).Msg("skipping scheduled incremental sync")
			}
		case j := <-e.jobs:
			e.runJob(ctx, j)
		}
	}
}

func (e *Engine) runJob(ctx context.Context, j *Job) {
	started := e.now().UTC()
	e.mu.Lock()
	j.Status = JobRunning
	j.StartedAt = &started
	e.current = j
	e.mu.Unlock()

	var err error
	switch j.Type {
	case JobFull:
		err = e.runPaged(ctx, j, e.fullCriteria(j))
	case JobIncremental:
		err = e.runIncremental(ctx, j, started)
	case JobSearch:
		err = e.runPaged(ctx, j, j.Criteria)
	case JobProperties:
		err = e.runTargeted(ctx, j)
	default:
		err = fmt.Errorf("unknown job type %q", j.Type)
	}

	finished := e.now().UTC()
	e.mu.Lock()
	j.FinishedAt = &finished
	if err != nil {
		j.Status = JobFailed
		j.Error = err.Error()
	} else {
		j.Status = JobCompleted
	}
	e.current = nil
	e.recent = append(e.recent, j)
	if len(e.recent) > recentKeep {
		drop := e.recent[0]
		e.recent = e.recent[1:]
		delete(e.byID, drop.ID)
	}
	e.mu.Unlock()

	metrics.SyncJobs.WithLabelValues(string(j.Type), string(j.Status)).Inc()
	evt := e.log.Info()
	if err != nil {
		evt = e.log.Error().Err(err)
	}
	evt.Str("job_id", j.ID).
		Str("type", string(j.Type)).
		Int("processed", j.RecordsProcessed).
		Int("added", j.RecordsAdded).
		Int("updated", j.RecordsUpdated).
		Int("skipped", j.RecordsSkipped).
		Dur("took", finished.Sub(started)).
		Msg("sync job finished")

	if err == nil {
		e.client.RecordSync(finished)
	}
}

func (e *Engine) fullCriteria(j *Job) *mls.SearchCriteria {
	if j.Criteria != nil {
		return j.Criteria
	}
	return &mls.SearchCriteria{
		Statuses: []mls.StandardStatus{
			mls.StatusActive, mls.StatusActiveUnderContract, mls.StatusPending, mls.StatusHold,
		},
	}
}

func (e *Engine) runIncremental(ctx context.Context, j *Job, started time.Time) error {
	since := j.Since
	if since == nil {
		e.mu.Lock()
		w := e.watermark
		e.mu.Unlock()
		since = &w
	}
	criteria := &mls.SearchCriteria{ModifiedSince: since}
	if j.Criteria != nil {
		cp := *j.Criteria
		cp.ModifiedSince = since
		criteria = &cp
	}
	e.bump(j, func(j *Job) { j.Since = since })
	if err := e.runPaged(ctx, j, criteria); err != nil {
		return err
	}
	// Advance only on success so missed windows are retried next tick.
	e.mu.Lock()
	if started.After(e.watermark) {
		e.watermark = started
	}
	e.mu.Unlock()
	return nil
}

// runPaged walks the search result pages, pacing page fetches and persisting
// each record. Record-level failures skip the record; page-level failures
// fail the job.
func (e *Engine) runPaged(ctx context.Context, j *Job, criteria *mls.SearchCriteria) error {
	base := mls.SearchCriteria{}
	if criteria != nil {
		base = *criteria
	}
	offset := 0
	for page := 1; ; page++ {
		if page > maxPages {
			return fmt.Errorf("PAGING_LIMIT: aborting after %d pages", maxPages)
		}
		if err := e.pager.Wait(ctx); err != nil {
			return err
		}
		c := base
		c.Limit = e.batch
		c.Offset = offset
		res, err := e.client.SearchProperties(ctx, &c)
		if err != nil {
			return err
		}
		for _, p := range res.Properties {
			e.persist(ctx, j, p)
		}
		if !res.HasMore {
			return nil
		}
		offset = res.NextOffset
	}
}

func (e *Engine) runTargeted(ctx context.Context, j *Job) error {
	for _, id := range j.ListingIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.pager.Wait(ctx); err != nil {
			return err
		}
		p, err := e.client.GetProperty(ctx, id)
		if err != nil {
			e.bump(j, func(j *Job) { j.RecordsSkipped++ })
			metrics.SyncRecords.WithLabelValues("skipped").Inc()
			e.log.Warn().Err(err).Str("listing_id", id).Msg("targeted sync skipping listing")
			continue
		}
		e.persist(ctx, j, p)
	}
	return nil
}

func (e *Engine) persist(ctx context.Context, j *Job, p *mls.Property) {
	key := "property:" + p.ListingID
	_, existed, _ := e.cache.GetStale(ctx, key)

	if b, err := json.Marshal(p); err == nil {
		_ = e.cache.Set(ctx, key, b, e.ttl.ForStatus(p.StandardStatus))
	}
	if e.store != nil {
		if err := e.store.Upsert(ctx, p, !existed); err != nil {
			e.bump(j, func(j *Job) {
				j.RecordsProcessed++
				j.RecordsSkipped++
			})
			metrics.SyncRecords.WithLabelValues("skipped").Inc()
			e.log.Warn().Err(err).Str("listing_id", p.ListingID).Msg("store upsert failed, skipping record")
			return
		}
	}
	e.bump(j, func(j *Job) {
		j.RecordsProcessed++
		if existed {
			j.RecordsUpdated++
		} else {
			j.RecordsAdded++
		}
	})
	metrics.SyncRecords.WithLabelValues("ok").Inc()
}

// bump mutates job fields under the engine lock. Status and Job snapshot a
// running job concurrently, so the worker never writes to it unlocked.
func (e *Engine) bump(j *Job, fn func(*Job)) {
	e.mu.Lock()
	fn(j)
	e.mu.Unlock()
}
