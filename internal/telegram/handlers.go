package telegram

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ykvlv/levelbot/internal/apperr"
	"github.com/ykvlv/levelbot/internal/domain"
)

// owner resolves the sender's profile; notes and key/values hang off its id.
func (r *Router) owner(ctx context.Context, in *incoming) (*domain.User, error) {
	return r.deps.Progress.Profile(ctx, in.UserID)
}

// --- Core commands ---

func (r *Router) handlePing(_ context.Context, in *incoming, _ []string) {
	r.reply(in, textPong)
}

func (r *Router) handleHelp(_ context.Context, in *incoming, _ []string) {
	r.reply(in, helpText(r.opts.Prefix, r.devAllowed(in.UserID)))
}

func (r *Router) handleUser(ctx context.Context, in *incoming, _ []string) {
	u, err := r.deps.Progress.Profile(ctx, in.UserID)
	if err != nil {
		r.replyErr(in, err, "Error fetching user")
		return
	}
	r.reply(in, profileText(u))
}

func (r *Router) handleNewUser(ctx context.Context, in *incoming, _ []string) {
	if _, err := r.deps.Progress.Register(ctx, in.UserID, in.Username); err != nil {
		r.replyErr(in, err, "Error creating user")
		return
	}
	r.reply(in, textUserCreated)
}

// --- Key/value ---

func (r *Router) handleSet(ctx context.Context, in *incoming, args []string) {
	pos := domain.Positionals(args)
	if len(pos) != 2 {
		r.replyUsage(in, usageSet)
		return
	}
	flags := domain.ParseArgs(args[len(pos):])
	for name, vals := range flags {
		if name != "e" || len(vals) > 0 {
			r.replyUsage(in, usageSet)
			return
		}
	}
	key, value := pos[0], pos[1]
	encrypt := flags.Has("e")

	u, err := r.owner(ctx, in)
	if err != nil {
		r.replyErr(in, err, "Error saving value")
		return
	}
	if encrypt {
		if value, err = r.deps.Secrets.Encrypt(value); err != nil {
			r.replyErr(in, err, "Error saving value")
			return
		}
	}
	if err := r.deps.KV.SetKV(ctx, &domain.KeyValue{
		UserID: u.ID, Key: key, Value: value, Encrypted: encrypt,
	}); err != nil {
		r.replyErr(in, err, "Error saving value")
		return
	}
	r.reply(in, key+" was set")
}

func (r *Router) handleGet(ctx context.Context, in *incoming, args []string) {
	if len(args) != 1 {
		r.replyUsage(in, usageGet)
		return
	}
	key := args[0]

	u, err := r.owner(ctx, in)
	if err != nil {
		r.replyErr(in, err, "Error reading value")
		return
	}
	kv, err := r.deps.KV.GetKV(ctx, u.ID, key)
	if apperr.Is(err, apperr.CodeNotFound) {
		r.reply(in, key+" not found")
		return
	}
	if err != nil {
		r.replyErr(in, err, "Error reading value")
		return
	}
	value := kv.Value
	if kv.Encrypted {
		if value, err = r.deps.Secrets.Decrypt(kv.Value); err != nil {
			r.replyErr(in, err, "Error reading value")
			return
		}
	}
	r.reply(in, value)
}

// --- Notes ---

func (r *Router) handleNote(ctx context.Context, in *incoming, args []string) {
	if len(args) > 0 && args[0] == "-d" {
		title := strings.Join(args[1:], " ")
		if title == "" {
			r.replyUsage(in, usageNoteDel)
			return
		}
		r.deleteNote(ctx, in, title)
		return
	}

	params := domain.ParseArgs(args)
	title := strings.TrimSpace(params.Join("t"))
	content := strings.TrimSpace(params.Join("c"))
	if title == "" || content == "" {
		r.replyUsage(in, usageNote)
		return
	}

	u, err := r.owner(ctx, in)
	if err != nil {
		r.replyErr(in, err, "Error creating note")
		return
	}
	if err := r.deps.Notes.CreateNote(ctx, &domain.Note{
		UserID: u.ID, Title: title, Content: content,
	}); err != nil {
		r.replyErr(in, err, "Error creating note")
		return
	}
	r.reply(in, textNoteCreated)
}

func (r *Router) deleteNote(ctx context.Context, in *incoming, title string) {
	u, err := r.owner(ctx, in)
	if err != nil {
		r.replyErr(in, err, "Error deleting note")
		return
	}
	if err := r.deps.Notes.DeleteNote(ctx, u.ID, title); err != nil {
		r.replyErr(in, err, "Error deleting note")
		return
	}
	r.reply(in, textNoteDeleted)
}

func (r *Router) handleNotes(ctx context.Context, in *incoming, args []string) {
	u, err := r.owner(ctx, in)
	if err != nil {
		r.replyErr(in, err, "Error fetching notes")
		return
	}
	if len(args) == 0 {
		r.sendNotesPage(ctx, in, u)
		return
	}

	title := strings.Join(args, " ")
	n, err := r.deps.Notes.GetNote(ctx, u.ID, title)
	if err != nil {
		r.replyErr(in, err, "Error fetching note")
		return
	}
	r.reply(in, "📝 "+n.Title+"\n\n"+noteBody(n.Content))
}

// --- Dev namespace ---

// handleDev checks access once, then re-dispatches the remaining tokens
// against the dev table. Denied calls are logged and get no reply.
func (r *Router) handleDev(ctx context.Context, in *incoming, args []string) {
	if !r.devAllowed(in.UserID) {
		err := apperr.Forbidden("dev command denied")
		r.log.Warn("dev access denied",
			zap.Error(err),
			zap.Int64("userID", in.UserID),
			zap.Bool("devEnabled", r.opts.DevEnabled),
		)
		return
	}
	if len(args) == 0 {
		return
	}
	r.dispatch(ctx, r.dev, in, args[0], args[1:])
}

func (r *Router) handleDevAddXP(ctx context.Context, in *incoming, args []string) {
	if len(args) != 1 {
		r.replyUsage(in, usageDevAddXP)
		return
	}
	amount, err := domain.ParseXP(args[0])
	if err != nil {
		r.replyUsage(in, usageDevAddXP)
		return
	}
	res, err := r.deps.Progress.IncrementXP(ctx, in.UserID, amount)
	if err != nil {
		r.replyErr(in, err, "Error adding xp")
		return
	}
	if res.LeveledUp {
		r.reply(in, levelUpText(res.Level))
		return
	}
	r.reply(in, fmt.Sprintf("Added %s xp to %s", amount.String(), in.Username))
}

func (r *Router) handleDevSetXP(ctx context.Context, in *incoming, args []string) {
	if len(args) != 1 {
		r.replyUsage(in, usageDevSetXP)
		return
	}
	xp, err := domain.ParseXP(args[0])
	if err != nil {
		r.replyUsage(in, usageDevSetXP)
		return
	}
	u, err := r.deps.Progress.SetXP(ctx, in.UserID, xp)
	if err != nil {
		r.replyErr(in, err, "Error setting xp")
		return
	}
	r.reply(in, fmt.Sprintf("Set xp for %s to %s (level %d)", in.Username, u.XP.String(), u.Level))
}

func (r *Router) handleDevSetLevel(ctx context.Context, in *incoming, args []string) {
	if len(args) != 1 {
		r.replyUsage(in, usageDevSetLvl)
		return
	}
	level, err := domain.ParseLevel(args[0])
	if err != nil {
		r.replyUsage(in, usageDevSetLvl)
		return
	}
	u, err := r.deps.Progress.SetLevel(ctx, in.UserID, level)
	if err != nil {
		r.replyErr(in, err, "Error setting level")
		return
	}
	r.reply(in, fmt.Sprintf("Set level for %s to %d (%s xp)", in.Username, u.Level, u.XP.String()))
}

func (r *Router) handleDevNextLevel(ctx context.Context, in *incoming, args []string) {
	if len(args) != 0 {
		r.replyUsage(in, usageDevNextLvl)
		return
	}
	level, err := r.deps.Progress.IncrementLevel(ctx, in.UserID)
	if err != nil {
		r.replyErr(in, err, "Error raising level")
		return
	}
	r.reply(in, levelUpText(level))
}
