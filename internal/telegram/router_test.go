package telegram

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sifan077/PowerStash/internal/app/link"
	"github.com/sifan077/PowerStash/internal/app/model"
	"github.com/sifan077/PowerStash/internal/app/repository"
	"github.com/sifan077/PowerStash/internal/app/service"
	"github.com/sifan077/PowerStash/internal/infra/postgres"
	"github.com/sifan077/PowerStash/internal/infra/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAdmin   int64 = 1
	testUser    int64 = 500
	testStorage int64 = -1001
)

type sent struct {
	chatID int64
	text   string
	kb     service.Keyboard
}

type relay struct {
	to, from  int64
	messageID int
	// textsBefore is how many texts had been sent when a copy was made.
	textsBefore int
}

// fakeTransport records everything the router sends. Message ids are
// assigned per chat, like Telegram does.
type fakeTransport struct {
	mu       sync.Mutex
	lastID   map[int64]int
	texts    []sent
	edits    []sent
	answers  []string
	copies   []relay
	forwards []relay
}

func (f *fakeTransport) SendText(ctx context.Context, chatID int64, text string, kb service.Keyboard) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, sent{chatID: chatID, text: text, kb: kb})
	return f.assign(chatID), nil
}

func (f *fakeTransport) CopyMessage(ctx context.Context, to, from int64, messageID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies = append(f.copies, relay{to: to, from: from, messageID: messageID, textsBefore: len(f.texts)})
	return f.assign(to), nil
}

func (f *fakeTransport) ForwardMessage(ctx context.Context, to, from int64, messageID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forwards = append(f.forwards, relay{to: to, from: from, messageID: messageID})
	return f.assign(to), nil
}

func (f *fakeTransport) assign(chatID int64) int {
	if f.lastID == nil {
		f.lastID = make(map[int64]int)
	}
	f.lastID[chatID]++
	return f.lastID[chatID]
}

func (f *fakeTransport) DeleteMessages(ctx context.Context, chatID int64, ids []int) error {
	return nil
}

func (f *fakeTransport) EditText(ctx context.Context, chatID int64, messageID int, text string, kb service.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sent{chatID: chatID, text: text, kb: kb})
	return nil
}

func (f *fakeTransport) AnswerCallback(ctx context.Context, callbackID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeTransport) lastText(t *testing.T) sent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.texts)
	return f.texts[len(f.texts)-1]
}

func (f *fakeTransport) lastEdit(t *testing.T) sent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.edits)
	return f.edits[len(f.edits)-1]
}

type routerFixture struct {
	transport *fakeTransport
	router    *Router
	filter    *service.LinkFilter
	users     repository.UserRepository
	files     repository.FileRepository
	posts     repository.SearchPostRepository
	sessions  *service.SessionTracker
	now       time.Time
	nextMsg   int
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, postgres.AutoMigrate(context.Background(), db,
		&model.FileRecord{},
		&model.BatchRecord{},
		&model.User{},
		&model.SearchPost{},
		&model.BatchUploadSession{},
		&model.DeliveryEvent{},
	))

	f := &routerFixture{
		transport: &fakeTransport{},
		users:     repository.NewUserRepository(db),
		files:     repository.NewFileRepository(db),
		posts:     repository.NewSearchPostRepository(db),
		sessions:  service.NewSessionTracker(100, time.Minute),
		now:       time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		nextMsg:   10,
	}
	batches := repository.NewBatchRepository(db)
	clock := func() time.Time { return f.now }
	noSleep := func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	isAdmin := func(id int64) bool { return id == testAdmin }

	filter := service.NewLinkFilter(1000)
	f.filter = filter
	sessionRepo := repository.NewBatchSessionRepository(db)
	storage := service.StorageDeps{
		Messenger:        f.transport,
		Gate:             service.NewStorageGate(sessionRepo),
		Filter:           filter,
		Links:            service.Links{Host: "t.me", BotUsername: "stash_bot"},
		StorageChannelID: testStorage,
		Now:              clock,
		Sleep:            noSleep,
	}
	users := service.NewUserService(f.users, isAdmin, clock)

	f.router = NewRouter(RouterDeps{
		Transport: f.transport,
		IsAdmin:   isAdmin,
		Admins:    []int64{testAdmin},
		Users:     users,
		Delivery: service.NewDeliveryService(service.DeliveryDeps{
			Messenger: f.transport,
			Files:     f.files,
			Batches:   batches,
			Users:     f.users,
			Posts:     f.posts,
			Filter:    filter,
			Now:       clock,
			Sleep:     noSleep,
		}),
		Uploads:   service.NewUploadService(storage, f.files),
		Batches:   service.NewBatchService(storage, batches, sessionRepo, 1000),
		Posts:     service.NewPostService(storage, f.posts),
		Broadcast: service.NewBroadcastService(nil, f.transport, users, service.BroadcastOptions{Now: clock, Sleep: noSleep}),
		Stats:     service.NewStatsService(f.files, batches, f.users, nil),
		Sessions:  f.sessions,
		Now:       clock,
	})
	return f
}

func (f *routerFixture) message(from int64, text string) *tgbotapi.Message {
	f.nextMsg++
	msg := &tgbotapi.Message{
		MessageID: f.nextMsg,
		From:      &tgbotapi.User{ID: from, FirstName: "Tester"},
		Chat:      &tgbotapi.Chat{ID: from, Type: "private"},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return msg
}

func (f *routerFixture) send(msg *tgbotapi.Message) {
	f.router.Handle(context.Background(), tgbotapi.Update{Message: msg})
}

func (f *routerFixture) say(from int64, text string) {
	f.send(f.message(from, text))
}

func (f *routerFixture) press(from int64, promptID int, data string) {
	f.router.Handle(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: from},
		Message: &tgbotapi.Message{MessageID: promptID, Chat: &tgbotapi.Chat{ID: from, Type: "private"}},
		Data:    data,
	}})
}

func startToken(t *testing.T, kb service.Keyboard) string {
	t.Helper()
	require.NotEmpty(t, kb)
	u, err := url.Parse(kb[0][0].URL)
	require.NoError(t, err)
	return u.Query().Get("start")
}

func TestRouter_UploadWithDeleteTimeThenDeliver(t *testing.T) {
	f := newRouterFixture(t)

	upload := f.message(testAdmin, "")
	upload.Document = &tgbotapi.Document{FileID: "BQACAgQAAxkBAAIC", FileName: "Movie.mkv", FileSize: 3 << 20}
	f.send(upload)

	prompt := f.transport.lastText(t)
	assert.Contains(t, prompt.text, "Movie.mkv")
	assert.Contains(t, prompt.text, "3.0 MiB")
	require.Len(t, prompt.kb, 2)
	assert.Equal(t, service.ActionAwaitingDeleteTime, f.sessions.Get(testAdmin).Kind)

	f.press(testAdmin, 77, prompt.kb[0][1].Data) // 1 hour

	done := f.transport.lastEdit(t)
	assert.Contains(t, done.text, "File Uploaded Successfully")
	assert.Contains(t, done.text, "2024-06-01 10:00 UTC")
	require.Len(t, f.transport.forwards, 1)
	assert.Equal(t, relay{to: testStorage, from: testAdmin, messageID: upload.MessageID}, f.transport.forwards[0])
	assert.Equal(t, service.ActionNone, f.sessions.Get(testAdmin).Kind)

	token := startToken(t, done.kb)
	sentBefore := len(f.transport.texts)
	f.say(testUser, "/start "+token)
	require.Len(t, f.transport.copies, 1)
	assert.Equal(t, testUser, f.transport.copies[0].to)
	assert.Equal(t, testStorage, f.transport.copies[0].from)

	// One note before the copy, one after it.
	notes := f.transport.texts[sentBefore:]
	require.Len(t, notes, 2)
	assert.Equal(t, sentBefore+1, f.transport.copies[0].textsBefore)
	assert.Equal(t, testUser, notes[0].chatID)
	assert.Contains(t, notes[0].text, "Downloading File")
	assert.Contains(t, notes[0].text, "Movie.mkv")
	assert.Contains(t, notes[0].text, "Document")
	assert.Contains(t, notes[1].text, "Download Complete")
	assert.Contains(t, notes[1].text, "Movie.mkv")

	// Pressing the same button again finds nothing pending.
	f.press(testAdmin, 77, prompt.kb[0][1].Data)
	assert.Equal(t, textUploadGone, f.transport.lastEdit(t).text)
	assert.Len(t, f.transport.forwards, 1)
}

func TestRouter_BannedUserGetsNoticeOnly(t *testing.T) {
	f := newRouterFixture(t)

	file := &model.FileRecord{
		StorageChannelID: testStorage,
		StorageMessageID: 5,
		Name:             "a.pdf",
		Type:             "Document",
		UploaderID:       testAdmin,
		UploadedAt:       f.now,
	}
	require.NoError(t, f.files.Create(context.Background(), file))
	f.filter.Add(link.KindFile, file.ID)

	f.say(testUser, "/start")
	f.say(testAdmin, "/ban 500")
	assert.Contains(t, f.transport.lastText(t).text, "banned")

	f.say(testUser, "/start "+link.Encode(link.KindFile, file.ID))
	assert.Equal(t, textBanned, f.transport.lastText(t).text)
	assert.Empty(t, f.transport.copies)

	f.say(testAdmin, "/unban 500")
	f.say(testUser, "/start "+link.Encode(link.KindFile, file.ID))
	assert.Len(t, f.transport.copies, 1)
}

func TestRouter_AdminOnlySurface(t *testing.T) {
	f := newRouterFixture(t)

	f.say(testUser, "/newbatch 1 5 0")
	assert.Equal(t, textAdminOnly, f.transport.lastText(t).text)

	upload := f.message(testUser, "")
	upload.Photo = []tgbotapi.PhotoSize{{FileID: "photo-file-id"}}
	f.send(upload)
	assert.Equal(t, textAccessDenied, f.transport.lastText(t).text)
	assert.Empty(t, f.transport.forwards)

	f.press(testUser, 3, cbStats)
	assert.Equal(t, []string{"❌ Admins only"}, f.transport.answers)
	assert.Empty(t, f.transport.edits)

	f.say(testAdmin, "/ban 1")
	assert.Equal(t, "❌ Admins cannot be banned.", f.transport.lastText(t).text)
}

func TestRouter_InvalidAndMissingLinks(t *testing.T) {
	f := newRouterFixture(t)

	f.say(testUser, "/start not-a-token")
	assert.Equal(t, textInvalidLink, f.transport.lastText(t).text)

	f.say(testUser, "/start "+link.Encode(link.KindBatch, 99))
	assert.Equal(t, textBatchNotFound, f.transport.lastText(t).text)
}

func TestRouter_BatchSession(t *testing.T) {
	f := newRouterFixture(t)

	f.say(testAdmin, "/startbatch")
	assert.Equal(t, usageStartBatch, f.transport.lastText(t).text)

	f.say(testAdmin, "/startbatch 0 Summer Pack")
	assert.Contains(t, f.transport.lastText(t).text, "Summer Pack")

	for i := 0; i < 2; i++ {
		doc := f.message(testAdmin, "")
		doc.Document = &tgbotapi.Document{FileID: "doc-file-id", FileName: "part.zip"}
		f.send(doc)
	}
	assert.Contains(t, f.transport.lastText(t).text, "2 files so far")
	assert.Equal(t, service.ActionNone, f.sessions.Get(testAdmin).Kind, "batch uploads skip the delete-time prompt")

	f.say(testAdmin, "/endbatch")
	done := f.transport.lastText(t)
	assert.Contains(t, done.text, "Batch Created Successfully")
	assert.Contains(t, done.text, "<b>Files:</b> 2 files")

	f.say(testUser, "/start "+startToken(t, done.kb))
	assert.Len(t, f.transport.copies, 2)
	summary := f.transport.lastText(t).text
	assert.Contains(t, summary, "<b>Downloaded:</b> 2 files")
	assert.Contains(t, summary, "<b>Failed:</b> 0 files")

	f.say(testAdmin, "/endbatch")
	assert.Equal(t, "❌ No active batch session found.", f.transport.lastText(t).text)
}

func TestRouter_UploadWaitsForOpenBatch(t *testing.T) {
	f := newRouterFixture(t)

	upload := f.message(testAdmin, "")
	upload.Document = &tgbotapi.Document{FileID: "single-file-id", FileName: "Single.pdf"}
	f.send(upload)
	prompt := f.transport.lastText(t)

	f.say(testAdmin, "/startbatch 0 Pack")
	part := f.message(testAdmin, "")
	part.Document = &tgbotapi.Document{FileID: "part-file-id", FileName: "part.zip"}
	f.send(part)
	require.Len(t, f.transport.forwards, 1)

	f.press(testAdmin, 77, prompt.kb[0][0].Data)
	busy := f.transport.lastEdit(t)
	assert.Equal(t, textStorageBusy, busy.text)
	assert.Equal(t, prompt.kb, busy.kb)
	assert.Len(t, f.transport.forwards, 1, "the single upload waits")
	assert.Equal(t, service.ActionAwaitingDeleteTime, f.sessions.Get(testAdmin).Kind)

	f.say(testAdmin, "/endbatch")
	assert.Contains(t, f.transport.lastText(t).text, "Batch Created Successfully")

	f.press(testAdmin, 77, prompt.kb[0][0].Data)
	assert.Contains(t, f.transport.lastEdit(t).text, "File Uploaded Successfully")
	assert.Len(t, f.transport.forwards, 2)
}

func TestRouter_NewBatchUsage(t *testing.T) {
	f := newRouterFixture(t)

	f.say(testAdmin, "/newbatch 100")
	assert.Equal(t, usageNewBatch, f.transport.lastText(t).text)

	f.say(testAdmin, "/newbatch 105 100 0")
	assert.Contains(t, f.transport.lastText(t).text, "must not be after the end")

	f.say(testAdmin, "/newbatch 100 105 0 MyPack")
	done := f.transport.lastText(t)
	assert.Contains(t, done.text, "MyPack")
	assert.Contains(t, done.text, "6 files")
}

func TestRouter_SearchFlow(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	for _, p := range []model.SearchPost{
		{Title: "Avengers Endgame", KeywordText: "avengers, marvel", StorageMessageID: 40},
		{Title: "Captain America", KeywordText: "captain, marvel", StorageMessageID: 41},
	} {
		p.StorageChannelID = testStorage
		p.AddedBy = testAdmin
		p.AddedAt = f.now
		require.NoError(t, f.posts.Create(ctx, &p))
	}

	f.press(testUser, 8, cbSearch)
	assert.Equal(t, textSearchPrompt, f.transport.lastText(t).text)
	assert.Equal(t, service.ActionAwaitingSearch, f.sessions.Get(testUser).Kind)

	f.say(testUser, "Avengers")
	require.Len(t, f.transport.copies, 1)
	assert.Equal(t, 40, f.transport.copies[0].messageID)
	assert.Equal(t, service.ActionNone, f.sessions.Get(testUser).Kind)

	f.say(testUser, "/search marvel")
	list := f.transport.lastText(t)
	assert.Contains(t, list.text, "2 results")
	require.Len(t, list.kb, 2)

	f.press(testUser, 9, list.kb[1][0].Data)
	require.Len(t, f.transport.copies, 2)
	assert.Equal(t, 41, f.transport.copies[1].messageID)

	f.say(testUser, "/search star wars")
	assert.Equal(t, textNoResults, f.transport.lastText(t).text)
}

func TestRouter_BroadcastFlow(t *testing.T) {
	f := newRouterFixture(t)

	for _, id := range []int64{600, 601} {
		f.say(id, "/start")
	}

	f.say(testAdmin, "/broadcast New <files> today")
	confirm := f.transport.lastText(t)
	assert.Contains(t, confirm.text, "New &lt;files&gt; today")
	assert.Contains(t, confirm.text, "<b>Recipients:</b> 3 users")
	require.Len(t, confirm.kb, 2)

	before := len(f.transport.texts)
	f.press(testAdmin, 50, cbBroadcastConfirm)

	f.transport.mu.Lock()
	delivered := f.transport.texts[before:]
	f.transport.mu.Unlock()
	require.Len(t, delivered, 3)
	for _, s := range delivered {
		assert.Equal(t, "New &lt;files&gt; today", s.text)
	}
	assert.Contains(t, f.transport.lastEdit(t).text, "✅ Sent: 3")

	// A second press finds no draft.
	f.press(testAdmin, 50, cbBroadcastConfirm)
	assert.Contains(t, f.transport.lastEdit(t).text, "expired")
}

func TestRouter_BroadcastMediaAndCancel(t *testing.T) {
	f := newRouterFixture(t)
	f.say(600, "/start")

	f.say(testAdmin, "/broadcast")
	assert.Equal(t, service.ActionAwaitingBroadcast, f.sessions.Get(testAdmin).Kind)

	photo := f.message(testAdmin, "")
	photo.Photo = []tgbotapi.PhotoSize{{FileID: "photo-file-id"}}
	f.send(photo)
	assert.Equal(t, service.ActionBroadcastConfirm, f.sessions.Get(testAdmin).Kind)
	assert.Empty(t, f.transport.forwards, "broadcast payload must not be stored as an upload")

	f.press(testAdmin, 51, cbBroadcastCancel)
	assert.Equal(t, textBroadcastOff, f.transport.lastEdit(t).text)
	assert.Equal(t, service.ActionNone, f.sessions.Get(testAdmin).Kind)
	assert.Empty(t, f.transport.copies)
}

func TestRouter_CancelClearsPendingAction(t *testing.T) {
	f := newRouterFixture(t)

	f.say(testUser, "/cancel")
	assert.Equal(t, textNothingToStop, f.transport.lastText(t).text)

	f.say(testUser, "/search")
	f.say(testUser, "/cancel")
	assert.Equal(t, textCancelled, f.transport.lastText(t).text)
	assert.Equal(t, service.ActionNone, f.sessions.Get(testUser).Kind)
}

func TestRouter_MenusAndUserInfo(t *testing.T) {
	f := newRouterFixture(t)

	f.say(testUser, "/start")
	menu := f.transport.lastText(t)
	assert.Contains(t, menu.text, "Welcome Tester")
	assert.Equal(t, userMenuKeyboard(), menu.kb)

	f.say(testAdmin, "/start")
	admin := f.transport.lastText(t)
	assert.Contains(t, admin.text, "Admin Panel")
	assert.Contains(t, admin.text, "Users: <code>2</code>")

	f.press(testUser, 4, cbHelp)
	assert.Equal(t, textHelp, f.transport.lastEdit(t).text)

	f.say(testAdmin, "/user 500")
	assert.Contains(t, f.transport.lastText(t).text, "<code>500</code>")

	f.say(testAdmin, "/user 404")
	assert.Equal(t, "❌ User not found.", f.transport.lastText(t).text)

	f.say(testAdmin, "/stats")
	assert.Contains(t, f.transport.lastText(t).text, "<b>Total Users:</b> 2")
}

func TestRouter_AddAndDeletePost(t *testing.T) {
	f := newRouterFixture(t)

	f.say(testAdmin, "/addpost Dune | dune, spice")
	assert.Equal(t, usageAddPost, f.transport.lastText(t).text)

	source := f.message(testAdmin, "")
	source.ForwardDate = 1717230000
	cmd := f.message(testAdmin, "/addpost Dune | dune, spice")
	cmd.ReplyToMessage = source
	f.send(cmd)
	assert.Contains(t, f.transport.lastText(t).text, "Post #1 <b>Dune</b> added")

	posts, err := f.posts.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "dune, spice", posts[0].KeywordText)

	f.say(testAdmin, "/posts")
	assert.Contains(t, f.transport.lastText(t).text, "#1 <b>Dune</b>")

	f.say(testAdmin, "/delpost 1")
	assert.Contains(t, f.transport.lastText(t).text, "deleted")
	f.say(testAdmin, "/delpost 1")
	assert.Equal(t, "❌ Post not found.", f.transport.lastText(t).text)
}

func TestRouter_IgnoresGroupChats(t *testing.T) {
	f := newRouterFixture(t)
	msg := f.message(testUser, "/start")
	msg.Chat.Type = "group"
	f.send(msg)
	assert.Empty(t, f.transport.texts)
}
