package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sifan077/PowerStash/internal/app/link"
	"github.com/sifan077/PowerStash/internal/app/model"
	"github.com/sifan077/PowerStash/internal/app/repository"
	"go.uber.org/zap"
)

const (
	defaultExpiryInterval   = 60 * time.Second
	defaultExpiryMinBackoff = 60 * time.Second
	defaultExpiryMaxBackoff = 300 * time.Second
	defaultExpiryPageSize   = 500
)

// ExpiryResult summarizes one scan.
type ExpiryResult struct {
	FilesDeleted   int
	BatchesDeleted int
	// Skipped counts records that were being delivered during the scan.
	Skipped  int
	Failed   int
	Duration time.Duration
}

// ExpiryOptions configures an ExpiryEngine. Zero values pick the defaults.
type ExpiryOptions struct {
	Interval   time.Duration
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// PageSize is how many due records are listed per query.
	PageSize int
	Now      Clock
	Sleep    Sleeper
	Events   EventSink
}

// ExpiryEngine periodically deletes files and batches whose delete time has
// passed. A network failure aborts the scan and the next one waits a
// doubling backoff; a clean scan returns to the nominal interval.
type ExpiryEngine struct {
	logger   *zap.Logger
	files    repository.FileRepository
	batches  repository.BatchRepository
	locks    *RecordLocks
	reaper   *reaper
	events   EventSink
	interval time.Duration
	backoff  *Backoff
	pageSize int
	now      Clock
	sleep    Sleeper

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewExpiryEngine creates a new expiry engine.
func NewExpiryEngine(
	logger *zap.Logger,
	messenger Messenger,
	files repository.FileRepository,
	batches repository.BatchRepository,
	locks *RecordLocks,
	opts ExpiryOptions,
) *ExpiryEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locks == nil {
		locks = NewRecordLocks()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultExpiryInterval
	}
	minBackoff := opts.MinBackoff
	if minBackoff <= 0 {
		minBackoff = defaultExpiryMinBackoff
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultExpiryMaxBackoff
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultExpiryPageSize
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	return &ExpiryEngine{
		logger:  logger.With(zap.String("component", "expiry")),
		files:   files,
		batches: batches,
		locks:   locks,
		reaper: &reaper{
			messenger: messenger,
			files:     files,
			batches:   batches,
			sleep:     sleep,
		},
		events:   opts.Events,
		interval: interval,
		backoff:  NewBackoff(minBackoff, maxBackoff),
		pageSize: pageSize,
		now:      now,
		sleep:    sleep,
	}
}

// Start begins the polling loop. It runs until Stop or ctx is cancelled.
func (e *ExpiryEngine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(runCtx, e.done)

	e.logger.Info("expiry engine started", zap.Duration("interval", e.interval))
}

// Stop ends the loop and waits for an in-flight scan to return.
func (e *ExpiryEngine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	e.logger.Info("expiry engine stopped")
}

func (e *ExpiryEngine) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		wait := e.interval
		if _, err := e.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			wait = e.backoff.Next()
			e.logger.Warn("expiry scan aborted, backing off",
				zap.Duration("backoff", wait),
				zap.Error(err),
			)
		} else {
			e.backoff.Reset()
		}

		if err := e.sleep(ctx, wait); err != nil {
			return
		}
	}
}

// RunOnce performs one scan. The returned error is set only when the scan
// was aborted by a listing or network failure; per-record problems are
// counted in the result.
func (e *ExpiryEngine) RunOnce(ctx context.Context) (*ExpiryResult, error) {
	start := time.Now()
	result := &ExpiryResult{}
	now := e.now().UTC()

	err := e.scan(ctx, now, result)

	result.Duration = time.Since(start)
	expiryScanDuration.Observe(result.Duration.Seconds())
	expiryDeletedTotal.WithLabelValues(string(link.KindFile)).Add(float64(result.FilesDeleted))
	expiryDeletedTotal.WithLabelValues(string(link.KindBatch)).Add(float64(result.BatchesDeleted))
	expiryFailuresTotal.Add(float64(result.Failed))

	if err != nil {
		expiryScansTotal.WithLabelValues("aborted").Inc()
		return result, err
	}
	expiryScansTotal.WithLabelValues("ok").Inc()

	if result.FilesDeleted+result.BatchesDeleted+result.Failed > 0 {
		e.logger.Info("expiry scan finished",
			zap.Int("files_deleted", result.FilesDeleted),
			zap.Int("batches_deleted", result.BatchesDeleted),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
			zap.Duration("duration", result.Duration),
		)
	}
	return result, nil
}

// scan walks every due record in id order, one page at a time. Skipped and
// failed records stay due, so the cursor moves past them instead of
// relisting from the start.
func (e *ExpiryEngine) scan(ctx context.Context, now time.Time, result *ExpiryResult) error {
	var after uint64
	for {
		files, err := e.files.ListDue(ctx, now, after, e.pageSize)
		if err != nil {
			return fmt.Errorf("list due files: %w", err)
		}
		for i := range files {
			if err := e.expireFile(ctx, &files[i], result); err != nil {
				return err
			}
			after = files[i].ID
		}
		if len(files) < e.pageSize {
			break
		}
	}

	after = 0
	for {
		batches, err := e.batches.ListDue(ctx, now, after, e.pageSize)
		if err != nil {
			return fmt.Errorf("list due batches: %w", err)
		}
		for i := range batches {
			if err := e.expireBatch(ctx, &batches[i], result); err != nil {
				return err
			}
			after = batches[i].ID
		}
		if len(batches) < e.pageSize {
			break
		}
	}
	return nil
}

func (e *ExpiryEngine) expireFile(ctx context.Context, file *model.FileRecord, result *ExpiryResult) error {
	unlock, ok := e.locks.TryLock(link.KindFile, file.ID)
	if !ok {
		result.Skipped++
		return nil
	}
	defer unlock()

	return e.settle(ctx, e.reaper.removeFile(ctx, file), link.KindFile, file.ID, result)
}

func (e *ExpiryEngine) expireBatch(ctx context.Context, batch *model.BatchRecord, result *ExpiryResult) error {
	unlock, ok := e.locks.TryLock(link.KindBatch, batch.ID)
	if !ok {
		result.Skipped++
		return nil
	}
	defer unlock()

	return e.settle(ctx, e.reaper.removeBatch(ctx, batch), link.KindBatch, batch.ID, result)
}

// settle books the outcome of one removal and decides whether the scan
// continues.
func (e *ExpiryEngine) settle(ctx context.Context, err error, kind link.Kind, id uint64, result *ExpiryResult) error {
	if err == nil {
		if kind == link.KindFile {
			result.FilesDeleted++
		} else {
			result.BatchesDeleted++
		}
		emit(ctx, e.events, e.logger, &model.DeliveryEvent{
			Kind:      model.DeliveryKindExpired,
			RecordID:  id,
			Timestamp: e.now().UTC(),
		})
		return nil
	}

	if IsTransient(err) || ctx.Err() != nil {
		return fmt.Errorf("expire %s %d: %w", kind, id, err)
	}

	result.Failed++
	e.logger.Error("failed to expire record",
		zap.String("kind", string(kind)),
		zap.Uint64("id", id),
		zap.Error(err),
	)
	return nil
}
