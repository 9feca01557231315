package telegram

import (
	"context"
	"math/big"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ykvlv/levelbot/internal/apperr"
	"github.com/ykvlv/levelbot/internal/cooldown"
	"github.com/ykvlv/levelbot/internal/domain"
	"github.com/ykvlv/levelbot/internal/progression"
	"github.com/ykvlv/levelbot/internal/secret"
	"github.com/ykvlv/levelbot/internal/store"
)

// Sender is the part of *tgbotapi.BotAPI the router talks to.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Deps are the services a Router dispatches to.
type Deps struct {
	Notes     store.NoteRepo
	KV        store.KVRepo
	Progress  *progression.Service
	Cooldowns *cooldown.Tracker[int64]
	Secrets   *secret.Box
}

// Options control command parsing and dev access.
type Options struct {
	Prefix      string
	BotUsername string  // "@name" suffix accepted on keywords
	DevEnabled  bool    // false in production
	DevUsers    []int64 // Telegram user ids allowed to run dev commands
}

// incoming is the sender-side view of a message a handler replies to.
type incoming struct {
	ChatID    int64
	MessageID int
	UserID    int64
	Username  string
}

type handlerFunc func(ctx context.Context, in *incoming, args []string)

// Router turns Telegram updates into passive XP grants and command calls.
type Router struct {
	bot  Sender
	log  *zap.Logger
	deps Deps
	opts Options

	devUsers map[int64]struct{}
	commands map[string]handlerFunc
	dev      map[string]handlerFunc
}

// NewRouter creates a new Telegram router.
func NewRouter(bot Sender, log *zap.Logger, deps Deps, opts Options) *Router {
	r := &Router{
		bot:      bot,
		log:      log,
		deps:     deps,
		opts:     opts,
		devUsers: make(map[int64]struct{}, len(opts.DevUsers)),
	}
	for _, id := range opts.DevUsers {
		r.devUsers[id] = struct{}{}
	}
	r.commands = map[string]handlerFunc{
		"ping":    r.handlePing,
		"help":    r.handleHelp,
		"user":    r.handleUser,
		"newuser": r.handleNewUser,
		"set":     r.handleSet,
		"get":     r.handleGet,
		"note":    r.handleNote,
		"notes":   r.handleNotes,
		"dev":     r.handleDev,
	}
	r.dev = map[string]handlerFunc{
		"+xp":    r.handleDevAddXP,
		"=xp":    r.handleDevSetXP,
		"=level": r.handleDevSetLevel,
		"+level": r.handleDevNextLevel,
	}
	return r
}

// HandleUpdate routes a single update to the appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.Message != nil:
		r.handleMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		r.handleCallback(ctx, upd.CallbackQuery)
	}
}

// handleMessage is the ingress for every chat message: plain text earns XP,
// prefixed text is a command.
func (r *Router) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.IsBot || msg.Chat == nil {
		return
	}
	in := &incoming{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		UserID:    msg.From.ID,
		Username:  displayName(msg.From),
	}

	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, r.opts.Prefix) {
		r.grantPassiveXP(ctx, in)
		return
	}

	keyword, args := domain.SplitCommand(strings.TrimPrefix(text, r.opts.Prefix))
	if keyword == "" {
		return
	}
	r.dispatch(ctx, r.commands, in, r.stripMention(keyword), args)
}

// grantPassiveXP awards one XP unless the sender is cooling down. Senders
// without a profile are skipped but still put on cooldown.
func (r *Router) grantPassiveXP(ctx context.Context, in *incoming) {
	cd := r.deps.Cooldowns
	if cd.IsActive(in.UserID) {
		return
	}
	defer cd.Arm(in.UserID)

	res, err := r.deps.Progress.IncrementXP(ctx, in.UserID, big.NewInt(1))
	switch {
	case apperr.Is(err, apperr.CodeNotFound):
		r.log.Debug("passive xp for unregistered user", zap.Int64("userID", in.UserID))
	case err != nil:
		r.log.Error("passive xp failed", zap.Error(err), zap.Int64("userID", in.UserID))
	case res.LeveledUp:
		r.reply(in, levelUpText(res.Level))
	}
}

// dispatch runs the handler for keyword. Unknown keywords are not commands
// and are ignored.
func (r *Router) dispatch(ctx context.Context, table map[string]handlerFunc, in *incoming, keyword string, args []string) {
	h, ok := table[keyword]
	if !ok {
		return
	}
	r.log.Debug("command",
		zap.String("keyword", keyword),
		zap.Int("args", len(args)),
		zap.Int64("userID", in.UserID),
	)
	h(ctx, in, args)
}

// stripMention turns "notes@my_bot" into "notes" for this bot's name.
func (r *Router) stripMention(keyword string) string {
	name, mention, ok := strings.Cut(keyword, "@")
	if ok && r.opts.BotUsername != "" && strings.EqualFold(mention, r.opts.BotUsername) {
		return name
	}
	return keyword
}

// devAllowed reports whether userID may use dev commands here.
func (r *Router) devAllowed(userID int64) bool {
	if !r.opts.DevEnabled {
		return false
	}
	_, ok := r.devUsers[userID]
	return ok
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// --- Generic helpers ---

func (r *Router) reply(in *incoming, text string) {
	msg := tgbotapi.NewMessage(in.ChatID, text)
	msg.ReplyToMessageID = in.MessageID
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Warn("reply failed", zap.Error(err), zap.Int64("chatID", in.ChatID))
	}
}

func (r *Router) replyUsage(in *incoming, u usage) {
	r.reply(in, "Usage: "+u.Usage(r.opts.Prefix))
}

// replyErr reports a classified error to the user; anything unclassified is
// logged and answered with fallback.
func (r *Router) replyErr(in *incoming, err error, fallback string) {
	if apperr.CodeOf(err) == apperr.CodeInternal {
		r.log.Error(fallback, zap.Error(err), zap.Int64("userID", in.UserID))
	}
	r.reply(in, apperr.UserMessage(err, fallback))
}

func (r *Router) answerCallback(id, text string) {
	if _, err := r.bot.Request(tgbotapi.NewCallback(id, text)); err != nil {
		r.log.Warn("answer callback failed", zap.Error(err))
	}
}
