package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sifan077/PowerStash/internal/app/link"
	"github.com/sifan077/PowerStash/internal/app/model"
	"github.com/sifan077/PowerStash/internal/app/repository"
	"go.uber.org/zap"
)

const (
	singleFileAttempts = 3
	batchItemAttempts  = 2

	defaultBatchDelay  = 500 * time.Millisecond
	defaultRetryDelay  = 2 * time.Second
	defaultSearchLimit = 10
)

// DeliveryOutcome says how a link or search resolution ended.
type DeliveryOutcome string

const (
	OutcomeDelivered DeliveryOutcome = "delivered"
	OutcomeFailed    DeliveryOutcome = "failed"
	OutcomeNotFound  DeliveryOutcome = "not_found"
	OutcomeExpired   DeliveryOutcome = "expired"
	OutcomeInvalid   DeliveryOutcome = "invalid"
	OutcomeBanned    DeliveryOutcome = "banned"
	OutcomeThrottled DeliveryOutcome = "throttled"
	OutcomeNoResults DeliveryOutcome = "no_results"
	OutcomeChoices   DeliveryOutcome = "choices"
)

// DeliveryResult reports what was replayed to the requester.
type DeliveryResult struct {
	Outcome   DeliveryOutcome
	Kind      link.Kind
	RecordID  uint64
	Name      string
	Delivered int
	Failed    int
	// Err is the last copy error when Outcome is OutcomeFailed.
	Err error
}

// DeliveryRequest identifies who opened which link.
type DeliveryRequest struct {
	UserID int64
	ChatID int64
	Token  string
	// OnBatchStart, when set, runs once before the first message of a batch
	// is copied.
	OnBatchStart func(batch *model.BatchRecord)
	// OnFileStart, when set, runs before a single file is copied.
	OnFileStart func(file *model.FileRecord)
}

// SearchResult is the answer to a keyword query.
type SearchResult struct {
	Outcome DeliveryOutcome
	// Matches holds the list shown for OutcomeChoices.
	Matches  []model.SearchPost
	Delivery *DeliveryResult
}

// DeliveryDeps groups dependencies of the DeliveryService.
type DeliveryDeps struct {
	Logger      *zap.Logger
	Messenger   Messenger
	Files       repository.FileRepository
	Batches     repository.BatchRepository
	Users       repository.UserRepository
	Posts       repository.SearchPostRepository
	Locks       *RecordLocks
	Filter      *LinkFilter
	Flood       *FloodGuard
	Events      EventSink
	BatchDelay  time.Duration
	RetryDelay  time.Duration
	SearchLimit int
	Now         Clock
	Sleep       Sleeper
}

// DeliveryService resolves tokens and search queries into copies of stored
// messages.
type DeliveryService struct {
	logger      *zap.Logger
	messenger   Messenger
	files       repository.FileRepository
	batches     repository.BatchRepository
	users       repository.UserRepository
	posts       repository.SearchPostRepository
	locks       *RecordLocks
	filter      *LinkFilter
	flood       *FloodGuard
	events      EventSink
	reaper      *reaper
	batchDelay  time.Duration
	retryDelay  time.Duration
	searchLimit int
	now         Clock
	sleep       Sleeper
}

func NewDeliveryService(deps DeliveryDeps) *DeliveryService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locks := deps.Locks
	if locks == nil {
		locks = NewRecordLocks()
	}
	batchDelay := deps.BatchDelay
	if batchDelay <= 0 {
		batchDelay = defaultBatchDelay
	}
	retryDelay := deps.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	searchLimit := deps.SearchLimit
	if searchLimit <= 0 {
		searchLimit = defaultSearchLimit
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	return &DeliveryService{
		logger:    logger.With(zap.String("component", "delivery")),
		messenger: deps.Messenger,
		files:     deps.Files,
		batches:   deps.Batches,
		users:     deps.Users,
		posts:     deps.Posts,
		locks:     locks,
		filter:    deps.Filter,
		flood:     deps.Flood,
		events:    deps.Events,
		reaper: &reaper{
			messenger: deps.Messenger,
			files:     deps.Files,
			batches:   deps.Batches,
			sleep:     sleep,
		},
		batchDelay:  batchDelay,
		retryDelay:  retryDelay,
		searchLimit: searchLimit,
		now:         now,
		sleep:       sleep,
	}
}

// ResolveToken answers a /start <token> request. Banned users are turned
// away before the token is even looked at.
func (s *DeliveryService) ResolveToken(ctx context.Context, req DeliveryRequest) (*DeliveryResult, error) {
	banned, err := s.isBanned(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if banned {
		return s.finish(&DeliveryResult{Outcome: OutcomeBanned}), nil
	}
	if !s.flood.Allow(ctx, req.UserID) {
		return s.finish(&DeliveryResult{Outcome: OutcomeThrottled}), nil
	}

	ref, err := link.Decode(req.Token)
	if err != nil {
		return s.finish(&DeliveryResult{Outcome: OutcomeInvalid}), nil
	}
	if !s.filter.MaybeExists(ref.Kind, ref.ID) {
		return s.finish(&DeliveryResult{Outcome: OutcomeNotFound, Kind: ref.Kind, RecordID: ref.ID}), nil
	}

	var result *DeliveryResult
	switch ref.Kind {
	case link.KindFile:
		result, err = s.deliverFile(ctx, req, ref.ID)
	case link.KindBatch:
		result, err = s.deliverBatch(ctx, req, ref.ID)
	default:
		return s.finish(&DeliveryResult{Outcome: OutcomeInvalid}), nil
	}
	if err != nil {
		return nil, err
	}
	return s.finish(result), nil
}

func (s *DeliveryService) deliverFile(ctx context.Context, req DeliveryRequest, id uint64) (*DeliveryResult, error) {
	unlock := s.locks.RLock(link.KindFile, id)
	defer unlock()

	result := &DeliveryResult{Kind: link.KindFile, RecordID: id}

	file, err := s.files.GetByID(ctx, id)
	if errors.Is(err, repository.ErrFileNotFound) {
		result.Outcome = OutcomeNotFound
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load file: %w", err)
	}
	result.Name = file.Name

	if file.IsExpired(s.now()) {
		unlock()
		s.expireNow(link.KindFile, id, func() error { return s.reaper.removeFile(ctx, file) })
		result.Outcome = OutcomeExpired
		return result, nil
	}

	if req.OnFileStart != nil {
		req.OnFileStart(file)
	}

	policy := RetryPolicy{Attempts: singleFileAttempts, Delay: s.retryDelay, Sleep: s.sleep}
	err = policy.Do(ctx, func(ctx context.Context) error {
		_, err := s.messenger.CopyMessage(ctx, req.ChatID, file.StorageChannelID, file.StorageMessageID)
		return err
	})
	if err != nil {
		s.logger.Warn("file copy failed", zap.Uint64("file_id", id), zap.Int64("user_id", req.UserID), zap.Error(err))
		deliveryItemsTotal.WithLabelValues("failed").Inc()
		result.Outcome = OutcomeFailed
		result.Failed = 1
		result.Err = err
	} else {
		deliveryItemsTotal.WithLabelValues("delivered").Inc()
		result.Outcome = OutcomeDelivered
		result.Delivered = 1
	}

	s.publish(ctx, model.DeliveryKindFile, id, req.UserID, result)
	return result, nil
}

func (s *DeliveryService) deliverBatch(ctx context.Context, req DeliveryRequest, id uint64) (*DeliveryResult, error) {
	unlock := s.locks.RLock(link.KindBatch, id)
	defer unlock()

	result := &DeliveryResult{Kind: link.KindBatch, RecordID: id}

	batch, err := s.batches.GetByID(ctx, id)
	if errors.Is(err, repository.ErrBatchNotFound) {
		result.Outcome = OutcomeNotFound
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load batch: %w", err)
	}
	result.Name = batch.Name

	if batch.IsExpired(s.now()) {
		unlock()
		s.expireNow(link.KindBatch, id, func() error { return s.reaper.removeBatch(ctx, batch) })
		result.Outcome = OutcomeExpired
		return result, nil
	}

	if req.OnBatchStart != nil {
		req.OnBatchStart(batch)
	}

	policy := RetryPolicy{Attempts: batchItemAttempts, Delay: s.retryDelay, Sleep: s.sleep}
	ids := batch.MessageIDs()
	for i, messageID := range ids {
		err := policy.Do(ctx, func(ctx context.Context) error {
			_, err := s.messenger.CopyMessage(ctx, req.ChatID, batch.StorageChannelID, messageID)
			return err
		})
		if err != nil {
			result.Failed++
			deliveryItemsTotal.WithLabelValues("failed").Inc()
			s.logger.Debug("batch item copy failed",
				zap.Uint64("batch_id", id),
				zap.Int("message_id", messageID),
				zap.Error(err),
			)
		} else {
			result.Delivered++
			deliveryItemsTotal.WithLabelValues("delivered").Inc()
		}

		if ctx.Err() != nil {
			result.Failed += len(ids) - i - 1
			break
		}
		if i < len(ids)-1 {
			if err := s.sleep(ctx, s.batchDelay); err != nil {
				result.Failed += len(ids) - i - 1
				break
			}
		}
	}

	result.Outcome = OutcomeDelivered
	s.publish(ctx, model.DeliveryKindBatch, id, req.UserID, result)
	return result, nil
}

// expireNow removes an expired record right away unless another delivery
// still holds it; the expiry engine picks up whatever is left.
func (s *DeliveryService) expireNow(kind link.Kind, id uint64, remove func() error) {
	unlock, ok := s.locks.TryLock(kind, id)
	if !ok {
		return
	}
	defer unlock()
	if err := remove(); err != nil {
		s.logger.Warn("eager expiry left record for the engine",
			zap.String("kind", string(kind)), zap.Uint64("record_id", id), zap.Error(err))
	}
}

// FindPosts returns up to the configured limit of posts matching query, in
// storage order.
func (s *DeliveryService) FindPosts(ctx context.Context, query string) ([]model.SearchPost, error) {
	posts, err := s.posts.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	matches := make([]model.SearchPost, 0, s.searchLimit)
	for i := range posts {
		if !posts[i].Matches(query) {
			continue
		}
		matches = append(matches, posts[i])
		if len(matches) == s.searchLimit {
			break
		}
	}
	return matches, nil
}

// Search runs a keyword query. One match is delivered at once; several are
// returned for the user to pick from.
func (s *DeliveryService) Search(ctx context.Context, userID, chatID int64, query string) (*SearchResult, error) {
	banned, err := s.isBanned(ctx, userID)
	if err != nil {
		return nil, err
	}
	if banned {
		return &SearchResult{Outcome: OutcomeBanned}, nil
	}

	matches, err := s.FindPosts(ctx, query)
	if err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		searchQueriesTotal.WithLabelValues("none").Inc()
		return &SearchResult{Outcome: OutcomeNoResults}, nil
	case 1:
		searchQueriesTotal.WithLabelValues("single").Inc()
		delivery := s.copyPost(ctx, userID, chatID, &matches[0])
		return &SearchResult{Outcome: delivery.Outcome, Matches: matches, Delivery: delivery}, nil
	default:
		searchQueriesTotal.WithLabelValues("list").Inc()
		return &SearchResult{Outcome: OutcomeChoices, Matches: matches}, nil
	}
}

// DeliverPost sends one search post, used when the user picks it from a list.
func (s *DeliveryService) DeliverPost(ctx context.Context, userID, chatID int64, postID uint64) (*DeliveryResult, error) {
	banned, err := s.isBanned(ctx, userID)
	if err != nil {
		return nil, err
	}
	if banned {
		return s.finishAs(model.DeliveryKindPost, &DeliveryResult{Outcome: OutcomeBanned}), nil
	}

	post, err := s.posts.GetByID(ctx, postID)
	if errors.Is(err, repository.ErrPostNotFound) {
		return s.finishAs(model.DeliveryKindPost, &DeliveryResult{Outcome: OutcomeNotFound, RecordID: postID}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load post: %w", err)
	}
	return s.copyPost(ctx, userID, chatID, post), nil
}

func (s *DeliveryService) copyPost(ctx context.Context, userID, chatID int64, post *model.SearchPost) *DeliveryResult {
	result := &DeliveryResult{RecordID: post.ID, Name: post.Title}

	policy := RetryPolicy{Attempts: singleFileAttempts, Delay: s.retryDelay, Sleep: s.sleep}
	err := policy.Do(ctx, func(ctx context.Context) error {
		_, err := s.messenger.CopyMessage(ctx, chatID, post.StorageChannelID, post.StorageMessageID)
		return err
	})
	if err != nil {
		s.logger.Warn("post copy failed", zap.Uint64("post_id", post.ID), zap.Error(err))
		result.Outcome = OutcomeFailed
		result.Failed = 1
		result.Err = err
	} else {
		result.Outcome = OutcomeDelivered
		result.Delivered = 1
	}

	s.publish(ctx, model.DeliveryKindPost, post.ID, userID, result)
	return s.finishAs(model.DeliveryKindPost, result)
}

func (s *DeliveryService) isBanned(ctx context.Context, userID int64) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load user: %w", err)
	}
	return user.Banned, nil
}

func (s *DeliveryService) publish(ctx context.Context, kind string, recordID uint64, userID int64, result *DeliveryResult) {
	emit(ctx, s.events, s.logger, &model.DeliveryEvent{
		Kind:      kind,
		RecordID:  recordID,
		UserID:    userID,
		Delivered: result.Delivered,
		Failed:    result.Failed,
		Timestamp: s.now().UTC(),
	})
}

func (s *DeliveryService) finish(result *DeliveryResult) *DeliveryResult {
	kind := string(result.Kind)
	if kind == "" {
		kind = "unknown"
	}
	return s.finishAs(kind, result)
}

func (s *DeliveryService) finishAs(kind string, result *DeliveryResult) *DeliveryResult {
	deliveriesTotal.WithLabelValues(kind, string(result.Outcome)).Inc()
	return result
}
