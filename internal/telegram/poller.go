package telegram

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sifan077/PowerStash/internal/app/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultPollTimeout = 60

// UpdateSource is the long-poll side of the Bot API.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset, timeout int) ([]tgbotapi.Update, error)
}

// UpdateHandler processes one update.
type UpdateHandler func(ctx context.Context, update tgbotapi.Update)

// PollerOptions configures a Poller. Zero values pick the defaults.
type PollerOptions struct {
	Timeout      int
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	Sleep        service.Sleeper
}

// laneKey groups updates that must be handled in order: everything from one
// user, or a lone update that has no sender.
type laneKey struct {
	userID   int64
	updateID int
}

// Poller long-polls for updates and hands each user's updates to a lane of
// their own. A lane runs its updates one at a time in arrival order; lanes of
// different users never wait for each other. A lane's goroutine exits once
// its queue is empty.
type Poller struct {
	logger  *zap.Logger
	source  UpdateSource
	handle  UpdateHandler
	timeout int
	backoff *service.Backoff
	sleep   service.Sleeper

	mu    sync.Mutex
	lanes map[laneKey][]tgbotapi.Update
}

func NewPoller(logger *zap.Logger, source UpdateSource, handle UpdateHandler, opts PollerOptions) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	minWait := opts.ReconnectMin
	if minWait <= 0 {
		minWait = 5 * time.Second
	}
	maxWait := opts.ReconnectMax
	if maxWait <= 0 {
		maxWait = 300 * time.Second
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = service.SleepContext
	}
	return &Poller{
		logger:  logger.With(zap.String("component", "poller")),
		source:  source,
		handle:  handle,
		timeout: timeout,
		backoff: service.NewBackoff(minWait, maxWait),
		sleep:   sleep,
		lanes:   make(map[laneKey][]tgbotapi.Update),
	}
}

// Run polls until ctx is cancelled, then waits for busy lanes to drain.
func (p *Poller) Run(ctx context.Context) error {
	var g errgroup.Group
	p.poll(ctx, &g)
	return g.Wait()
}

func (p *Poller) poll(ctx context.Context, g *errgroup.Group) {
	p.logger.Info("polling for updates")
	offset := 0
	for ctx.Err() == nil {
		updates, err := p.source.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := p.backoff.Next()
			p.logger.Warn("getUpdates failed, reconnecting", zap.Duration("wait", wait), zap.Error(err))
			if p.sleep(ctx, wait) != nil {
				return
			}
			continue
		}
		p.backoff.Reset()

		for _, update := range updates {
			offset = update.UpdateID + 1
			p.enqueue(ctx, g, update)
		}
	}
}

// enqueue appends update to its lane and starts the lane if it was idle.
func (p *Poller) enqueue(ctx context.Context, g *errgroup.Group, update tgbotapi.Update) {
	key := laneFor(update)

	p.mu.Lock()
	queue, running := p.lanes[key]
	p.lanes[key] = append(queue, update)
	p.mu.Unlock()

	if !running {
		g.Go(func() error {
			p.drain(ctx, key)
			return nil
		})
	}
}

func (p *Poller) drain(ctx context.Context, key laneKey) {
	for {
		p.mu.Lock()
		queue := p.lanes[key]
		if len(queue) == 0 {
			delete(p.lanes, key)
			p.mu.Unlock()
			return
		}
		next := queue[0]
		p.lanes[key] = queue[1:]
		p.mu.Unlock()

		p.handle(ctx, next)
	}
}

// activeLanes reports how many lanes currently have a goroutine.
func (p *Poller) activeLanes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lanes)
}

func laneFor(update tgbotapi.Update) laneKey {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return laneKey{userID: update.Message.From.ID}
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return laneKey{userID: update.CallbackQuery.From.ID}
	default:
		return laneKey{updateID: update.UpdateID}
	}
}
