package telegram

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ykvlv/levelbot/internal/cooldown"
	"github.com/ykvlv/levelbot/internal/domain"
	"github.com/ykvlv/levelbot/internal/progression"
	"github.com/ykvlv/levelbot/internal/secret"
	"github.com/ykvlv/levelbot/internal/store"
)

const (
	alice int64 = 111
	mallo int64 = 222
	admin int64 = 333
)

// fakeBot records everything the router sends.
type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeBot) last() string {
	t := f.texts()
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

func (f *fakeBot) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type harness struct {
	bot      *fakeBot
	router   *Router
	repo     *store.SQLiteRepo
	progress *progression.Service
	advance  func(time.Duration)
}

func newHarness(t *testing.T, opts ...func(*Options)) *harness {
	t.Helper()
	repo, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	box, err := secret.New("test-key")
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	log := zap.NewNop()
	progress := progression.NewService(repo, log, 100)

	o := Options{
		Prefix:      "/",
		BotUsername: "LevelBot",
		DevEnabled:  true,
		DevUsers:    []int64{admin},
	}
	for _, fn := range opts {
		fn(&o)
	}

	bot := &fakeBot{}
	r := NewRouter(bot, log, Deps{
		Notes:     repo,
		KV:        repo,
		Progress:  progress,
		Cooldowns: cooldown.New[int64](time.Minute, clock),
		Secrets:   box,
	}, o)
	return &harness{bot: bot, router: r, repo: repo, progress: progress, advance: clock.Advance}
}

func textUpdate(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: userID, UserName: fmt.Sprintf("user%d", userID)},
		Chat:      &tgbotapi.Chat{ID: -100},
		Text:      text,
	}}
}

func (h *harness) say(userID int64, text string) {
	h.router.HandleUpdate(context.Background(), textUpdate(userID, text))
}

func (h *harness) register(t *testing.T, userID int64) {
	t.Helper()
	_, err := h.progress.Register(context.Background(), userID, fmt.Sprintf("user%d", userID))
	require.NoError(t, err)
}

func (h *harness) user(t *testing.T, userID int64) *domain.User {
	t.Helper()
	u, err := h.progress.Profile(context.Background(), userID)
	require.NoError(t, err)
	return u
}

// --- Routing ---

func TestPing(t *testing.T) {
	h := newHarness(t)
	h.say(alice, "/ping")
	assert.Equal(t, []string{"pong"}, h.bot.texts())

	sent := h.bot.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(-100), sent.ChatID)
	assert.Equal(t, 10, sent.ReplyToMessageID)
}

func TestMentionSuffixIsStripped(t *testing.T) {
	h := newHarness(t)
	h.say(alice, "/ping@LevelBot")
	h.say(alice, "/ping@OtherBot")
	assert.Equal(t, []string{"pong"}, h.bot.texts())
}

func TestUnknownAndEmptyCommandsAreIgnored(t *testing.T) {
	h := newHarness(t)
	h.say(alice, "/frobnicate now")
	h.say(alice, "/")
	h.say(alice, "/   ")
	h.say(alice, "/PING") // keywords are case-sensitive
	assert.Zero(t, h.bot.count())
}

func TestBotsAreIgnored(t *testing.T) {
	h := newHarness(t)
	upd := textUpdate(alice, "/ping")
	upd.Message.From.IsBot = true
	h.router.HandleUpdate(context.Background(), upd)
	assert.Zero(t, h.bot.count())
}

func TestHelp_DevLinesOnlyForDevUsers(t *testing.T) {
	h := newHarness(t)
	h.say(alice, "/help")
	assert.Contains(t, h.bot.last(), "/note -t <title> -c <content> - saves a new note")
	assert.NotContains(t, h.bot.last(), "dev +xp")

	h.say(admin, "/help")
	assert.Contains(t, h.bot.last(), "/dev +xp <amount>")
}

// --- Users ---

func TestNewUserAndProfile(t *testing.T) {
	h := newHarness(t)

	h.say(alice, "/user")
	assert.Equal(t, "[NOT_FOUND] User not found", h.bot.last())

	h.say(alice, "/newuser")
	assert.Equal(t, "User created successfully", h.bot.last())

	h.say(alice, "/newuser")
	assert.Equal(t, "[CONFLICT] A user with this id already exists", h.bot.last())

	h.say(alice, "/user")
	assert.Equal(t, "user111 - [Level 1 - 0 XP]", h.bot.last())
}

func TestNewUser_FallsBackToFirstName(t *testing.T) {
	h := newHarness(t)
	upd := textUpdate(alice, "/newuser")
	upd.Message.From.UserName = ""
	upd.Message.From.FirstName = "Alice"
	h.router.HandleUpdate(context.Background(), upd)

	assert.Equal(t, "Alice", h.user(t, alice).Username)
}

// --- Passive XP ---

func TestPassiveXP_HundredthMessageLevelsUp(t *testing.T) {
	h := newHarness(t)
	h.register(t, alice)

	for i := 0; i < 99; i++ {
		h.say(alice, fmt.Sprintf("hello %d", i))
		h.advance(time.Minute)
	}
	assert.Zero(t, h.bot.count())
	assert.Equal(t, int64(1), h.user(t, alice).Level)

	h.say(alice, "one more")
	assert.Equal(t, "🎉 Leveled up to level 2", h.bot.last())

	u := h.user(t, alice)
	assert.Equal(t, "100", u.XP.String())
	assert.Equal(t, int64(2), u.Level)
}

func TestPassiveXP_Cooldown(t *testing.T) {
	h := newHarness(t)
	h.register(t, alice)

	h.say(alice, "a")
	h.say(alice, "b")
	h.advance(59 * time.Second)
	h.say(alice, "c")
	assert.Equal(t, "1", h.user(t, alice).XP.String())

	h.advance(time.Second)
	h.say(alice, "d")
	assert.Equal(t, "2", h.user(t, alice).XP.String())
}

func TestPassiveXP_CommandsDoNotEarnXP(t *testing.T) {
	h := newHarness(t)
	h.register(t, alice)

	h.say(alice, "/ping")
	h.say(alice, "/unknown")
	assert.Equal(t, "0", h.user(t, alice).XP.String())
}

func TestPassiveXP_UnregisteredUserIsSilent(t *testing.T) {
	h := newHarness(t)
	h.say(mallo, "hi there")
	assert.Zero(t, h.bot.count())
	assert.True(t, h.router.deps.Cooldowns.IsActive(mallo))
}

// --- Key/value ---

func TestSetGet(t *testing.T) {
	h := newHarness(t)
	h.register(t, alice)

	h.say(alice, "/get color")
	assert.Equal(t, "color not found", h.bot.last())

	h.say(alice, "/set color red")
	assert.Equal(t, "color was set", h.bot.last())
	h.say(alice, "/get color")
	assert.Equal(t, "red", h.bot.last())
}

func TestSetGet_Encrypted(t *testing.T) {
	h := newHarness(t)
	h.register(t, alice)

	h.say(alice, "/set pin 1234 -e")
	assert.Equal(t, "pin was set", h.bot.last())

	kv, err := h.repo.GetKV(context.Background(), h.user(t, alice).ID, "pin")
	require.NoError(t, err)
	assert.True(t, kv.Encrypted)
	assert.NotEqual(t, "1234", kv.Value)

	h.say(alice, "/get pin")
	assert.Equal(t, "1234", h.bot.last())
}

func TestSetGet_Usage(t *testing.T) {
	h := newHarness(t)
	h.register(t, alice)

	for _, in := range []string{"/set", "/set k", "/set k v extra", "/set k v -x", "/set k v -e junk", "/set -e k v"} {
		h.say(alice, in)
		assert.Equal(t, "Usage: /set <key> <value> {-e}", h.bot.last(), in)
	}
	for _, in := range []string{"/get", "/get a b"} {
		h.say(alice, in)
		assert.Equal(t, "Usage: /get <key>", h.bot.last(), in)
	}
}

func TestSet_Unregistered(t *testing.T) {
	h := newHarness(t)
	h.say(mallo, "/set a b")
	assert.Equal(t, "[NOT_FOUND] User not found", h.bot.last())
}

// --- Notes ---

func TestNoteLifecycle(t *testing.T) {
	h := newHarness(t)
	h.register(t, alice)

	h.say(alice, `/note -t Shopping List -c milk\neggs`)
	assert.Equal(t, "Created new note!", h.bot.last())

	h.say(alice, "/note -t Shopping List -c again")
	assert.Equal(t, "[CONFLICT] A note with this title already exists", h.bot.last())

	h.say(alice, "/notes Shopping List")
	assert.Equal(t, "📝 Shopping List\n\nmilk\neggs", h.bot.last())

	h.say(alice, "/note -d Shopping List")
	assert.Equal(t, "Note deleted!", h.bot.last())

	h.say(alice, "/notes Shopping List")
	assert.Equal(t, "[NOT_FOUND] Note not found", h.bot.last())

	h.say(alice, "/note -d Shopping List")
	assert.Equal(t, "[NOT_FOUND] Note not found", h.bot.last())
}

func TestNote_Usage(t *testing.T) {
	h := newHarness(t)
	h.register(t, alice)

	for _, in := range []string{"/note", "/note -t only title", "/note -c only body", "/note -t -c body", "/note title -c body"} {
		h.say(alice, in)
		assert.Equal(t, "Usage: /note -t <title> -c <content>", h.bot.last(), in)
	}
	h.say(alice, "/note -d")
	assert.Equal(t, "Usage: /note -d <title>", h.bot.last())
}

func TestNotes_Empty(t *testing.T) {
	h := newHarness(t)
	h.register(t, alice)
	h.say(alice, "/notes")
	assert.Equal(t, "You have no notes yet.", h.bot.last())
}

func TestNotes_Pagination(t *testing.T) {
	h := newHarness(t)
	h.register(t, alice)
	for i := 1; i <= 12; i++ {
		h.say(alice, fmt.Sprintf("/note -t n%02d -c this content is definitely longer than twenty", i))
	}

	h.say(alice, "/notes")
	first := h.bot.sent[len(h.bot.sent)-1].(tgbotapi.MessageConfig)
	assert.Contains(t, first.Text, "Your Notes (Page 1/2)")
	assert.Contains(t, first.Text, "• n12\n  this content is defi…")
	assert.NotContains(t, first.Text, "n02")

	kb, ok := first.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 1)
	require.Len(t, kb.InlineKeyboard[0], 1)
	next := kb.InlineKeyboard[0][0]
	assert.Equal(t, "notes:111:2", *next.CallbackData)

	// someone else pressing the button gets told off
	h.router.HandleUpdate(context.Background(), callbackUpdate(mallo, *next.CallbackData))
	before := h.bot.count()
	require.Len(t, h.bot.requests, 1)
	assert.Equal(t, textNotOwner, h.bot.requests[0].(tgbotapi.CallbackConfig).Text)

	h.router.HandleUpdate(context.Background(), callbackUpdate(alice, *next.CallbackData))
	require.Equal(t, before+1, h.bot.count())
	edit := h.bot.sent[len(h.bot.sent)-1].(tgbotapi.EditMessageTextConfig)
	assert.Contains(t, edit.Text, "Your Notes (Page 2/2)")
	assert.Contains(t, edit.Text, "n01")
	require.NotNil(t, edit.ReplyMarkup)
	assert.Equal(t, "notes:111:1", *edit.ReplyMarkup.InlineKeyboard[0][0].CallbackData)
}

func callbackUpdate(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{MessageID: 77, Chat: &tgbotapi.Chat{ID: -100}},
		Data:    data,
	}}
}

func TestParseNotesCallback(t *testing.T) {
	owner, page, ok := parseNotesCallback(notesCallbackData(42, 3))
	require.True(t, ok)
	assert.Equal(t, int64(42), owner)
	assert.Equal(t, 3, page)

	for _, bad := range []string{"", "notes:", "notes:1", "notes:x:1", "notes:1:0", "other:1:1"} {
		_, _, ok := parseNotesCallback(bad)
		assert.False(t, ok, bad)
	}
}

// --- Dev ---

func TestDev_DeniedForOthers(t *testing.T) {
	h := newHarness(t)
	h.register(t, mallo)

	h.say(mallo, "/dev +xp 5000")
	h.say(mallo, "/dev =level 9")
	assert.Zero(t, h.bot.count())

	u := h.user(t, mallo)
	assert.Equal(t, int64(1), u.Level)
	assert.Equal(t, "0", u.XP.String())
}

func TestDev_DeniedInProduction(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.DevEnabled = false })
	h.register(t, admin)

	h.say(admin, "/dev =level 9")
	assert.Zero(t, h.bot.count())
	assert.Equal(t, int64(1), h.user(t, admin).Level)
}

func TestDev_AddXP_MultiLevel(t *testing.T) {
	h := newHarness(t)
	h.register(t, admin)

	h.say(admin, "/dev +xp 1600")
	assert.Equal(t, "🎉 Leveled up to level 5", h.bot.last())

	h.say(admin, "/dev +xp 1")
	assert.Equal(t, "Added 1 xp to user333", h.bot.last())
}

func TestDev_SetLevelAndXP(t *testing.T) {
	h := newHarness(t)
	h.register(t, admin)

	h.say(admin, "/dev =level 5")
	assert.Equal(t, "Set level for user333 to 5 (1600 xp)", h.bot.last())
	assert.Equal(t, domain.XPForLevel(5, 100).String(), h.user(t, admin).XP.String())

	h.say(admin, "/dev =xp 99999999999999999999999")
	u := h.user(t, admin)
	assert.Equal(t, "99999999999999999999999", u.XP.String())
	assert.Equal(t, domain.LevelFromXP(u.XP, 100), u.Level)

	h.say(admin, "/dev +level")
	assert.Equal(t, fmt.Sprintf("🎉 Leveled up to level %d", u.Level+1), h.bot.last())
}

func TestDev_ValidationRepliesWithUsage(t *testing.T) {
	h := newHarness(t)
	h.register(t, admin)

	cases := map[string]string{
		"/dev +xp":      "Usage: /dev +xp <amount>",
		"/dev +xp -5":   "Usage: /dev +xp <amount>",
		"/dev +xp 1 2":  "Usage: /dev +xp <amount>",
		"/dev =xp abc":  "Usage: /dev =xp <number>",
		"/dev =level 0": "Usage: /dev =level <number>",
		"/dev =level x": "Usage: /dev =level <number>",
		"/dev +level 3": "Usage: /dev +level",
	}
	for in, want := range cases {
		h.say(admin, in)
		assert.Equal(t, want, h.bot.last(), in)
	}

	u := h.user(t, admin)
	assert.Equal(t, int64(1), u.Level)
	assert.Equal(t, "0", u.XP.String())
}

func TestDev_UnknownSubcommandIgnored(t *testing.T) {
	h := newHarness(t)
	h.register(t, admin)

	h.say(admin, "/dev")
	h.say(admin, "/dev reboot")
	assert.Zero(t, h.bot.count())
}
