package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sifan077/PowerStash/internal/app/link"
	"github.com/sifan077/PowerStash/internal/app/model"
	"github.com/sifan077/PowerStash/internal/app/repository"
	"github.com/sifan077/PowerStash/internal/app/service"
	"go.uber.org/zap"
)

const recentPostsLimit = 20

// RouterDeps groups what the Router needs.
type RouterDeps struct {
	Logger    *zap.Logger
	Transport Transport
	IsAdmin   func(int64) bool
	Admins    []int64
	Users     *service.UserService
	Delivery  *service.DeliveryService
	Uploads   *service.UploadService
	Batches   *service.BatchService
	Posts     *service.PostService
	Broadcast *service.BroadcastService
	Stats     *service.StatsService
	Sessions  *service.SessionTracker
	Now       service.Clock
}

type commandFunc func(ctx context.Context, msg *tgbotapi.Message, args string)

type command struct {
	adminOnly bool
	run       commandFunc
}

// Router turns updates into service calls and replies. Every failure ends
// up as text for the user; nothing escapes Handle.
type Router struct {
	logger    *zap.Logger
	transport Transport
	isAdmin   func(int64) bool
	admins    []int64
	users     *service.UserService
	delivery  *service.DeliveryService
	uploads   *service.UploadService
	batches   *service.BatchService
	posts     *service.PostService
	broadcast *service.BroadcastService
	stats     *service.StatsService
	sessions  *service.SessionTracker
	now       service.Clock
	commands  map[string]command
}

func NewRouter(deps RouterDeps) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	isAdmin := deps.IsAdmin
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	r := &Router{
		logger:    logger.With(zap.String("component", "router")),
		transport: deps.Transport,
		isAdmin:   isAdmin,
		admins:    deps.Admins,
		users:     deps.Users,
		delivery:  deps.Delivery,
		uploads:   deps.Uploads,
		batches:   deps.Batches,
		posts:     deps.Posts,
		broadcast: deps.Broadcast,
		stats:     deps.Stats,
		sessions:  deps.Sessions,
		now:       now,
	}
	r.commands = map[string]command{
		"start":      {run: r.cmdStart},
		"help":       {run: r.cmdHelp},
		"search":     {run: r.cmdSearch},
		"cancel":     {run: r.cmdCancel},
		"startbatch": {adminOnly: true, run: r.cmdStartBatch},
		"endbatch":   {adminOnly: true, run: r.cmdEndBatch},
		"newbatch":   {adminOnly: true, run: r.cmdNewBatch},
		"ban":        {adminOnly: true, run: r.cmdBan},
		"unban":      {adminOnly: true, run: r.cmdUnban},
		"user":       {adminOnly: true, run: r.cmdUser},
		"addpost":    {adminOnly: true, run: r.cmdAddPost},
		"delpost":    {adminOnly: true, run: r.cmdDelPost},
		"posts":      {adminOnly: true, run: r.cmdPosts},
		"broadcast":  {adminOnly: true, run: r.cmdBroadcast},
		"stats":      {adminOnly: true, run: r.cmdStats},
	}
	return r
}

// Handle processes one update. Panics are logged and swallowed.
func (r *Router) Handle(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("update handler panicked",
				zap.Int("update_id", update.UpdateID),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
		}
	}()

	switch {
	case update.Message != nil:
		r.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		r.handleCallback(ctx, update.CallbackQuery)
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
		return
	}
	userID, chatID := msg.From.ID, msg.Chat.ID
	r.register(ctx, msg.From)

	admin := r.isAdmin(userID)
	if !admin && r.banned(ctx, userID) {
		r.reply(ctx, chatID, textBanned, nil)
		return
	}

	if msg.IsCommand() {
		r.handleCommand(ctx, msg, admin)
		return
	}
	if r.handlePending(ctx, msg, admin) {
		return
	}
	if hasMedia(msg) {
		r.handleMedia(ctx, msg, admin)
		return
	}
	if r.sessions.Get(userID).Kind == service.ActionAwaitingDeleteTime {
		r.reply(ctx, chatID, "⏳ Pick a delete time with the buttons above, or /cancel.", nil)
		return
	}
	r.reply(ctx, chatID, textUnknown, nil)
}

func (r *Router) handleCommand(ctx context.Context, msg *tgbotapi.Message, admin bool) {
	name := strings.ToLower(msg.Command())
	cmd, ok := r.commands[name]
	if !ok {
		r.reply(ctx, msg.Chat.ID, textUnknown, nil)
		return
	}
	if cmd.adminOnly && !admin {
		r.reply(ctx, msg.Chat.ID, textAdminOnly, nil)
		return
	}
	r.logger.Debug("command", zap.String("name", name), zap.Int64("user_id", msg.From.ID))
	cmd.run(ctx, msg, strings.TrimSpace(msg.CommandArguments()))
}

// handlePending consumes msg as the answer to a pending prompt.
func (r *Router) handlePending(ctx context.Context, msg *tgbotapi.Message, admin bool) bool {
	userID, chatID := msg.From.ID, msg.Chat.ID

	switch r.sessions.Get(userID).Kind {
	case service.ActionAwaitingSearch:
		if strings.TrimSpace(msg.Text) == "" {
			return false
		}
		r.sessions.Take(userID, service.ActionAwaitingSearch)
		r.runSearch(ctx, userID, chatID, msg.Text)
		return true

	case service.ActionAwaitingBroadcast:
		if !admin {
			r.sessions.Clear(userID)
			return false
		}
		r.sessions.Take(userID, service.ActionAwaitingBroadcast)
		r.prepareBroadcast(ctx, userID, chatID, service.BroadcastDraft{SourceChatID: chatID, MessageID: msg.MessageID})
		return true
	}
	return false
}

func (r *Router) handleMedia(ctx context.Context, msg *tgbotapi.Message, admin bool) {
	userID, chatID := msg.From.ID, msg.Chat.ID
	if !admin {
		r.reply(ctx, chatID, textAccessDenied, nil)
		return
	}

	media, ok := describeMedia(msg)
	if !ok {
		r.reply(ctx, chatID, textUnsupported, nil)
		return
	}

	session, err := r.batches.AppendToBatch(ctx, userID, chatID, msg.MessageID)
	switch {
	case err == nil:
		r.reply(ctx, chatID, batchAppendedText(session), nil)
		return
	case !errors.Is(err, service.ErrNoBatchSession):
		r.logger.Error("failed to append to batch", zap.Int64("admin_id", userID), zap.Error(err))
		r.reply(ctx, chatID, "❌ Failed to add the file to the batch: "+html.EscapeString(err.Error()), nil)
		return
	}

	// A newer upload replaces one still waiting for its delete time.
	r.sessions.Set(userID, service.AwaitingDeleteTime(service.PendingUpload{
		ChatID:    chatID,
		MessageID: msg.MessageID,
		Media:     media,
	}))
	r.reply(ctx, chatID, ttlPromptText(media), ttlKeyboard(msg.MessageID))
}

func (r *Router) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
		r.answer(ctx, cq.ID, "")
		return
	}
	userID := cq.From.ID
	chatID, messageID := cq.Message.Chat.ID, cq.Message.MessageID
	data := cq.Data
	admin := r.isAdmin(userID)

	if !admin && r.banned(ctx, userID) {
		r.answer(ctx, cq.ID, textBanned)
		return
	}
	if isAdminCallback(data) && !admin {
		r.answer(ctx, cq.ID, "❌ Admins only")
		return
	}
	r.answer(ctx, cq.ID, "")

	switch {
	case data == cbHelp:
		r.edit(ctx, chatID, messageID, textHelp, backKeyboard)
	case data == cbAbout:
		r.edit(ctx, chatID, messageID, textAbout, backKeyboard)
	case data == cbContact:
		r.edit(ctx, chatID, messageID, contactText(r.admins), backKeyboard)
	case data == cbBatchHelp:
		r.edit(ctx, chatID, messageID, textBatchHelp, backKeyboard)
	case data == cbUserMgmt:
		r.edit(ctx, chatID, messageID, textUserMgmt, backKeyboard)
	case data == cbSettings:
		r.edit(ctx, chatID, messageID, textSettings, backKeyboard)
	case data == cbStats:
		r.edit(ctx, chatID, messageID, r.statsOrError(ctx), backKeyboard)
	case data == cbBack:
		text, kb := r.menu(ctx, cq.From, admin)
		r.edit(ctx, chatID, messageID, text, kb)
	case data == cbSearch:
		r.sessions.Set(userID, service.AwaitingSearch())
		r.reply(ctx, chatID, textSearchPrompt, nil)
	case data == cbBroadcast:
		r.sessions.Set(userID, service.AwaitingBroadcast())
		r.reply(ctx, chatID, textBroadcastAsk, nil)
	case data == cbBroadcastConfirm:
		r.confirmBroadcast(ctx, userID, chatID, messageID)
	case data == cbBroadcastCancel:
		r.sessions.Take(userID, service.ActionBroadcastConfirm)
		r.edit(ctx, chatID, messageID, textBroadcastOff, nil)
	case strings.HasPrefix(data, cbTTLPrefix):
		r.finalizeUpload(ctx, userID, chatID, messageID, data)
	case strings.HasPrefix(data, cbPostPrefix):
		r.pickPost(ctx, userID, chatID, data)
	default:
		r.logger.Debug("unknown callback", zap.String("data", data))
	}
}

func isAdminCallback(data string) bool {
	switch data {
	case cbStats, cbBatchHelp, cbUserMgmt, cbSettings, cbBroadcast, cbBroadcastConfirm, cbBroadcastCancel:
		return true
	}
	return strings.HasPrefix(data, cbTTLPrefix)
}

func (r *Router) finalizeUpload(ctx context.Context, userID, chatID int64, promptID int, data string) {
	minutes, sourceID, ok := parseTTLData(data)
	if !ok {
		r.edit(ctx, chatID, promptID, textUploadGone, nil)
		return
	}
	pending := r.sessions.Get(userID)
	if pending.Kind != service.ActionAwaitingDeleteTime || pending.Upload == nil || pending.Upload.MessageID != sourceID {
		r.edit(ctx, chatID, promptID, textUploadGone, nil)
		return
	}
	action, ok := r.sessions.Take(userID, service.ActionAwaitingDeleteTime)
	if !ok {
		r.edit(ctx, chatID, promptID, textUploadGone, nil)
		return
	}

	res, err := r.uploads.Finalize(ctx, userID, *action.Upload, minutes)
	if errors.Is(err, service.ErrBatchInProgress) {
		r.sessions.Set(userID, action)
		r.edit(ctx, chatID, promptID, textStorageBusy, ttlKeyboard(action.Upload.MessageID))
		return
	}
	if err != nil {
		r.logger.Error("failed to store upload", zap.Int64("admin_id", userID), zap.Error(err))
		r.edit(ctx, chatID, promptID, "❌ Failed to save file: "+html.EscapeString(err.Error()), nil)
		return
	}
	r.edit(ctx, chatID, promptID, uploadDoneText(res, r.now()), linkKeyboard("🚀 Open link", res.Link))
}

func (r *Router) pickPost(ctx context.Context, userID, chatID int64, data string) {
	postID, ok := parsePostData(data)
	if !ok {
		return
	}
	res, err := r.delivery.DeliverPost(ctx, userID, chatID, postID)
	if err != nil {
		r.logger.Error("failed to deliver post", zap.Uint64("post_id", postID), zap.Error(err))
		r.reply(ctx, chatID, textInternalError, nil)
		return
	}
	r.replyDelivery(ctx, chatID, res)
}

func (r *Router) confirmBroadcast(ctx context.Context, adminID, chatID int64, promptID int) {
	action, ok := r.sessions.Take(adminID, service.ActionBroadcastConfirm)
	if !ok || action.Broadcast == nil {
		r.edit(ctx, chatID, promptID, "⌛ This broadcast has expired. Start again with /broadcast.", nil)
		return
	}
	draft := *action.Broadcast

	r.edit(ctx, chatID, promptID, fmt.Sprintf("📢 Broadcasting to %d users…", len(draft.Recipients)), nil)
	res, err := r.broadcast.Send(ctx, adminID, draft)
	if err != nil {
		r.logger.Error("broadcast failed", zap.Int64("admin_id", adminID), zap.Error(err))
		r.edit(ctx, chatID, promptID, "❌ Broadcast failed: "+html.EscapeString(err.Error()), nil)
		return
	}
	r.edit(ctx, chatID, promptID, broadcastDoneText(res), nil)
}

func (r *Router) prepareBroadcast(ctx context.Context, adminID, chatID int64, draft service.BroadcastDraft) {
	draft, err := r.broadcast.Prepare(ctx, draft)
	if errors.Is(err, service.ErrNoRecipients) {
		r.reply(ctx, chatID, textNoRecipients, nil)
		return
	}
	if err != nil {
		r.logger.Error("failed to prepare broadcast", zap.Error(err))
		r.reply(ctx, chatID, textInternalError, nil)
		return
	}
	r.sessions.Set(adminID, service.BroadcastConfirm(draft))
	r.reply(ctx, chatID, broadcastConfirmText(draft), broadcastConfirmKeyboard())
}

func (r *Router) runSearch(ctx context.Context, userID, chatID int64, query string) {
	res, err := r.delivery.Search(ctx, userID, chatID, query)
	if err != nil {
		r.logger.Error("search failed", zap.String("query", query), zap.Error(err))
		r.reply(ctx, chatID, textInternalError, nil)
		return
	}
	switch res.Outcome {
	case service.OutcomeBanned:
		r.reply(ctx, chatID, textBanned, nil)
	case service.OutcomeNoResults:
		r.reply(ctx, chatID, textNoResults, nil)
	case service.OutcomeChoices:
		r.reply(ctx, chatID, searchChoicesText(query, res.Matches), searchResultsKeyboard(res.Matches))
	default:
		if res.Delivery != nil {
			r.replyDelivery(ctx, chatID, res.Delivery)
		}
	}
}

// replyDelivery tells the user how a delivery ended. A search post that
// arrived speaks for itself.
func (r *Router) replyDelivery(ctx context.Context, chatID int64, res *service.DeliveryResult) {
	switch res.Outcome {
	case service.OutcomeBanned:
		r.reply(ctx, chatID, textBanned, nil)
	case service.OutcomeThrottled:
		r.reply(ctx, chatID, textThrottled, nil)
	case service.OutcomeInvalid:
		r.reply(ctx, chatID, textInvalidLink, nil)
	case service.OutcomeNotFound:
		if res.Kind == link.KindBatch {
			r.reply(ctx, chatID, textBatchNotFound, nil)
		} else {
			r.reply(ctx, chatID, textFileNotFound, nil)
		}
	case service.OutcomeExpired:
		r.reply(ctx, chatID, textExpired, nil)
	case service.OutcomeFailed:
		r.reply(ctx, chatID, deliveryFailedText(orDefault(res.Name, "The file")), nil)
	case service.OutcomeDelivered:
		switch res.Kind {
		case link.KindBatch:
			r.reply(ctx, chatID, batchSummaryText(res), nil)
		case link.KindFile:
			r.reply(ctx, chatID, fileCompleteText(res.Name), nil)
		}
	}
}

func (r *Router) cmdStart(ctx context.Context, msg *tgbotapi.Message, args string) {
	chatID := msg.Chat.ID
	if args == "" {
		text, kb := r.menu(ctx, msg.From, r.isAdmin(msg.From.ID))
		r.reply(ctx, chatID, text, kb)
		return
	}

	res, err := r.delivery.ResolveToken(ctx, service.DeliveryRequest{
		UserID: msg.From.ID,
		ChatID: chatID,
		Token:  args,
		OnBatchStart: func(batch *model.BatchRecord) {
			r.reply(ctx, chatID, downloadStartText(batch), nil)
		},
		OnFileStart: func(file *model.FileRecord) {
			r.reply(ctx, chatID, fileDownloadingText(file), nil)
		},
	})
	if err != nil {
		r.logger.Error("failed to resolve link", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		r.reply(ctx, chatID, textInternalError, nil)
		return
	}
	r.replyDelivery(ctx, chatID, res)
}

func (r *Router) cmdHelp(ctx context.Context, msg *tgbotapi.Message, _ string) {
	text := textHelp
	if r.isAdmin(msg.From.ID) {
		text += "\n\n" + textBatchHelp + "\n\n" + textUserMgmt + "\n\n" + textSettings
	}
	r.reply(ctx, msg.Chat.ID, text, nil)
}

func (r *Router) cmdSearch(ctx context.Context, msg *tgbotapi.Message, args string) {
	if args == "" {
		r.sessions.Set(msg.From.ID, service.AwaitingSearch())
		r.reply(ctx, msg.Chat.ID, textSearchPrompt, nil)
		return
	}
	r.runSearch(ctx, msg.From.ID, msg.Chat.ID, args)
}

func (r *Router) cmdCancel(ctx context.Context, msg *tgbotapi.Message, _ string) {
	userID := msg.From.ID
	cleared := r.sessions.Clear(userID)
	if r.isAdmin(userID) {
		dropped, err := r.batches.CancelBatch(ctx, userID)
		if err != nil {
			r.logger.Error("failed to cancel batch session", zap.Int64("admin_id", userID), zap.Error(err))
		}
		cleared = cleared || dropped
	}
	if cleared {
		r.reply(ctx, msg.Chat.ID, textCancelled, nil)
		return
	}
	r.reply(ctx, msg.Chat.ID, textNothingToStop, nil)
}

func (r *Router) cmdStartBatch(ctx context.Context, msg *tgbotapi.Message, args string) {
	chatID := msg.Chat.ID
	rawTTL, name, _ := strings.Cut(args, " ")
	ttl, err := strconv.Atoi(rawTTL)
	if err != nil || ttl < 0 {
		r.reply(ctx, chatID, usageStartBatch, nil)
		return
	}

	session, err := r.batches.StartBatch(ctx, msg.From.ID, name, ttl)
	switch {
	case errors.Is(err, service.ErrBatchSessionActive):
		r.reply(ctx, chatID, "❌ You already have an active batch session. Finish it with /endbatch or drop it with /cancel.", nil)
	case err != nil:
		r.logger.Error("failed to start batch", zap.Int64("admin_id", msg.From.ID), zap.Error(err))
		r.reply(ctx, chatID, textInternalError, nil)
	default:
		r.reply(ctx, chatID, batchStartedText(session), nil)
	}
}

func (r *Router) cmdEndBatch(ctx context.Context, msg *tgbotapi.Message, _ string) {
	chatID := msg.Chat.ID
	res, err := r.batches.EndBatch(ctx, msg.From.ID)
	switch {
	case errors.Is(err, service.ErrNoBatchSession):
		r.reply(ctx, chatID, "❌ No active batch session found.", nil)
	case errors.Is(err, service.ErrEmptyBatch):
		r.reply(ctx, chatID, "❌ The batch is empty. Send some files first, or /cancel.", nil)
	case err != nil:
		r.logger.Error("failed to end batch", zap.Int64("admin_id", msg.From.ID), zap.Error(err))
		r.reply(ctx, chatID, textInternalError, nil)
	default:
		r.reply(ctx, chatID, batchDoneText(res, r.now()), linkKeyboard("🚀 Open Batch Link", res.Link))
	}
}

func (r *Router) cmdNewBatch(ctx context.Context, msg *tgbotapi.Message, args string) {
	chatID := msg.Chat.ID
	fields := strings.Fields(args)
	if len(fields) < 3 {
		r.reply(ctx, chatID, usageNewBatch, nil)
		return
	}
	nums := make([]int, 3)
	for i := range nums {
		n, err := strconv.Atoi(fields[i])
		if err != nil {
			r.reply(ctx, chatID, "❌ Please provide valid message IDs and minutes (numbers only).", nil)
			return
		}
		nums[i] = n
	}
	name := strings.Join(fields[3:], " ")

	res, err := r.batches.NewBatch(ctx, msg.From.ID, nums[0], nums[1], nums[2], name)
	switch {
	case errors.Is(err, service.ErrInvalidRange):
		r.reply(ctx, chatID, "❌ Message IDs must be positive and the start must not be after the end.", nil)
	case errors.Is(err, service.ErrBatchTooLarge), errors.Is(err, service.ErrInvalidTTL):
		r.reply(ctx, chatID, "❌ "+html.EscapeString(err.Error()), nil)
	case err != nil:
		r.logger.Error("failed to create batch", zap.Int64("admin_id", msg.From.ID), zap.Error(err))
		r.reply(ctx, chatID, textInternalError, nil)
	default:
		r.reply(ctx, chatID, batchDoneText(res, r.now()), linkKeyboard("🚀 Open Batch Link", res.Link))
	}
}

func (r *Router) cmdBan(ctx context.Context, msg *tgbotapi.Message, args string) {
	id, ok := r.userIDArg(ctx, msg, "ban", args)
	if !ok {
		return
	}
	err := r.users.Ban(ctx, id)
	switch {
	case errors.Is(err, service.ErrCannotBanAdmin):
		r.reply(ctx, msg.Chat.ID, "❌ Admins cannot be banned.", nil)
	case errors.Is(err, repository.ErrUserNotFound):
		r.reply(ctx, msg.Chat.ID, "❌ User not found.", nil)
	case err != nil:
		r.logger.Error("failed to ban user", zap.Int64("user_id", id), zap.Error(err))
		r.reply(ctx, msg.Chat.ID, textInternalError, nil)
	default:
		r.reply(ctx, msg.Chat.ID, fmt.Sprintf("🚫 User <code>%d</code> banned.", id), nil)
	}
}

func (r *Router) cmdUnban(ctx context.Context, msg *tgbotapi.Message, args string) {
	id, ok := r.userIDArg(ctx, msg, "unban", args)
	if !ok {
		return
	}
	err := r.users.Unban(ctx, id)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		r.reply(ctx, msg.Chat.ID, "❌ User not found.", nil)
	case err != nil:
		r.logger.Error("failed to unban user", zap.Int64("user_id", id), zap.Error(err))
		r.reply(ctx, msg.Chat.ID, textInternalError, nil)
	default:
		r.reply(ctx, msg.Chat.ID, fmt.Sprintf("✅ User <code>%d</code> unbanned.", id), nil)
	}
}

func (r *Router) cmdUser(ctx context.Context, msg *tgbotapi.Message, args string) {
	id, ok := r.userIDArg(ctx, msg, "user", args)
	if !ok {
		return
	}
	user, err := r.users.Info(ctx, id)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		r.reply(ctx, msg.Chat.ID, "❌ User not found.", nil)
	case err != nil:
		r.logger.Error("failed to load user", zap.Int64("user_id", id), zap.Error(err))
		r.reply(ctx, msg.Chat.ID, textInternalError, nil)
	default:
		r.reply(ctx, msg.Chat.ID, userInfoText(user, r.now()), nil)
	}
}

func (r *Router) userIDArg(ctx context.Context, msg *tgbotapi.Message, name, args string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil || id == 0 {
		r.reply(ctx, msg.Chat.ID, fmt.Sprintf(usageUserID, name), nil)
		return 0, false
	}
	return id, true
}

func (r *Router) cmdAddPost(ctx context.Context, msg *tgbotapi.Message, args string) {
	chatID := msg.Chat.ID
	source := msg.ReplyToMessage
	if source == nil || source.ForwardDate == 0 {
		r.reply(ctx, chatID, usageAddPost, nil)
		return
	}
	title, keywords, _ := strings.Cut(args, "|")

	post, err := r.posts.AddPost(ctx, service.PostInput{
		Title:           title,
		Keywords:        keywords,
		AddedBy:         msg.From.ID,
		SourceChatID:    chatID,
		SourceMessageID: source.MessageID,
	})
	switch {
	case errors.Is(err, service.ErrEmptyTitle):
		r.reply(ctx, chatID, usageAddPost, nil)
	case errors.Is(err, service.ErrBatchInProgress):
		r.reply(ctx, chatID, textStorageBusy, nil)
	case err != nil:
		r.logger.Error("failed to add post", zap.Error(err))
		r.reply(ctx, chatID, "❌ Failed to save post: "+html.EscapeString(err.Error()), nil)
	default:
		r.reply(ctx, chatID, postAddedText(post), nil)
	}
}

func (r *Router) cmdDelPost(ctx context.Context, msg *tgbotapi.Message, args string) {
	chatID := msg.Chat.ID
	id, err := strconv.ParseUint(strings.TrimSpace(args), 10, 64)
	if err != nil || id == 0 {
		r.reply(ctx, chatID, usageDelPost, nil)
		return
	}
	post, err := r.posts.DeletePost(ctx, id)
	switch {
	case errors.Is(err, repository.ErrPostNotFound):
		r.reply(ctx, chatID, "❌ Post not found.", nil)
	case err != nil:
		r.logger.Error("failed to delete post", zap.Uint64("post_id", id), zap.Error(err))
		r.reply(ctx, chatID, textInternalError, nil)
	default:
		r.reply(ctx, chatID, fmt.Sprintf("🗑 Post #%d <b>%s</b> deleted.", post.ID, html.EscapeString(post.Title)), nil)
	}
}

func (r *Router) cmdPosts(ctx context.Context, msg *tgbotapi.Message, _ string) {
	posts, err := r.posts.ListPosts(ctx, recentPostsLimit)
	if err != nil {
		r.logger.Error("failed to list posts", zap.Error(err))
		r.reply(ctx, msg.Chat.ID, textInternalError, nil)
		return
	}
	r.reply(ctx, msg.Chat.ID, postListText(posts, r.now()), nil)
}

func (r *Router) cmdBroadcast(ctx context.Context, msg *tgbotapi.Message, args string) {
	if args == "" {
		r.sessions.Set(msg.From.ID, service.AwaitingBroadcast())
		r.reply(ctx, msg.Chat.ID, textBroadcastAsk, nil)
		return
	}
	r.prepareBroadcast(ctx, msg.From.ID, msg.Chat.ID, service.BroadcastDraft{
		SourceChatID: msg.Chat.ID,
		Text:         html.EscapeString(args),
	})
}

func (r *Router) cmdStats(ctx context.Context, msg *tgbotapi.Message, _ string) {
	r.reply(ctx, msg.Chat.ID, r.statsOrError(ctx), nil)
}

func (r *Router) statsOrError(ctx context.Context) string {
	stats, err := r.stats.Collect(ctx)
	if err != nil {
		r.logger.Error("failed to collect stats", zap.Error(err))
		return textInternalError
	}
	return statsText(stats)
}

func (r *Router) menu(ctx context.Context, user *tgbotapi.User, admin bool) (string, service.Keyboard) {
	if !admin {
		return userMenuText(user.FirstName), userMenuKeyboard()
	}
	stats, err := r.stats.Collect(ctx)
	if err != nil {
		r.logger.Warn("menu stats unavailable", zap.Error(err))
	}
	return adminMenuText(user.FirstName, stats), adminMenuKeyboard()
}

func (r *Router) register(ctx context.Context, user *tgbotapi.User) {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	created, err := r.users.Register(ctx, user.ID, name, user.UserName)
	if err != nil {
		r.logger.Warn("failed to register user", zap.Int64("user_id", user.ID), zap.Error(err))
		return
	}
	if created {
		r.logger.Info("new user", zap.Int64("user_id", user.ID))
	}
}

func (r *Router) banned(ctx context.Context, userID int64) bool {
	user, err := r.users.Info(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			r.logger.Warn("ban check failed", zap.Int64("user_id", userID), zap.Error(err))
		}
		return false
	}
	return user.Banned
}

func (r *Router) reply(ctx context.Context, chatID int64, text string, kb service.Keyboard) {
	if _, err := r.transport.SendText(ctx, chatID, text, kb); err != nil {
		r.logger.Warn("failed to send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (r *Router) edit(ctx context.Context, chatID int64, messageID int, text string, kb service.Keyboard) {
	if err := r.transport.EditText(ctx, chatID, messageID, text, kb); err != nil {
		r.logger.Warn("failed to edit message", zap.Int64("chat_id", chatID), zap.Int("message_id", messageID), zap.Error(err))
	}
}

func (r *Router) answer(ctx context.Context, callbackID, text string) {
	if err := r.transport.AnswerCallback(ctx, callbackID, text); err != nil {
		r.logger.Debug("failed to answer callback", zap.Error(err))
	}
}
