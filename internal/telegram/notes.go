package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ykvlv/levelbot/internal/domain"
)

const notesCallbackPrefix = "notes:"

// notesCallbackData encodes a page request: "notes:<ownerTelegramID>:<page>".
func notesCallbackData(owner int64, page int) string {
	return fmt.Sprintf("%s%d:%d", notesCallbackPrefix, owner, page)
}

func parseNotesCallback(data string) (owner int64, page int, ok bool) {
	rest, found := strings.CutPrefix(data, notesCallbackPrefix)
	if !found {
		return 0, 0, false
	}
	ownerStr, pageStr, found := strings.Cut(rest, ":")
	if !found {
		return 0, 0, false
	}
	owner, err := strconv.ParseInt(ownerStr, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	page, err = strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		return 0, 0, false
	}
	return owner, page, true
}

// notesPage loads one page of u's notes. page is clamped to the valid range.
func (r *Router) notesPage(ctx context.Context, u *domain.User, page int) (string, *tgbotapi.InlineKeyboardMarkup, error) {
	count, err := r.deps.Notes.CountNotes(ctx, u.ID)
	if err != nil {
		return "", nil, err
	}
	if count == 0 {
		return textNoNotes, nil, nil
	}
	maxPage := (count + notesPageSize - 1) / notesPageSize
	page = min(max(page, 1), maxPage)

	notes, err := r.deps.Notes.ListNotes(ctx, u.ID, page, notesPageSize)
	if err != nil {
		return "", nil, err
	}
	return notesPageText(notes, page, maxPage), notesKeyboard(u.ExternalID, page, maxPage), nil
}

func (r *Router) sendNotesPage(ctx context.Context, in *incoming, u *domain.User) {
	text, kb, err := r.notesPage(ctx, u, 1)
	if err != nil {
		r.replyErr(in, err, "Error fetching notes")
		return
	}
	msg := tgbotapi.NewMessage(in.ChatID, text)
	msg.ReplyToMessageID = in.MessageID
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Warn("send notes failed", zap.Error(err), zap.Int64("chatID", in.ChatID))
	}
}

// handleCallback serves inline button presses. Only the notes pager uses them.
func (r *Router) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	owner, page, ok := parseNotesCallback(cb.Data)
	if !ok || cb.Message == nil || cb.Message.Chat == nil || cb.From == nil {
		// Unknown callback: ignore silently
		return
	}
	if cb.From.ID != owner {
		r.answerCallback(cb.ID, textNotOwner)
		return
	}
	r.answerCallback(cb.ID, "")

	u, err := r.deps.Progress.Profile(ctx, owner)
	if err != nil {
		r.log.Warn("notes page: owner lookup failed", zap.Error(err), zap.Int64("userID", owner))
		return
	}
	text, kb, err := r.notesPage(ctx, u, page)
	if err != nil {
		r.log.Error("notes page failed", zap.Error(err), zap.Int64("userID", owner))
		return
	}

	var edit tgbotapi.EditMessageTextConfig
	if kb != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(cb.Message.Chat.ID, cb.Message.MessageID, text, *kb)
	} else {
		edit = tgbotapi.NewEditMessageText(cb.Message.Chat.ID, cb.Message.MessageID, text)
	}
	if _, err := r.bot.Send(edit); err != nil {
		r.log.Warn("edit notes failed", zap.Error(err), zap.Int64("userID", owner))
	}
}
