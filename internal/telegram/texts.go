package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ykvlv/levelbot/internal/domain"
)

// usage is a help literal of the form "<syntax> - <description>".
type usage struct {
	syntax string
	desc   string
}

// Usage returns the syntax part, prefixed.
func (u usage) Usage(prefix string) string { return prefix + u.syntax }

// Help returns the full literal, prefixed.
func (u usage) Help(prefix string) string { return prefix + u.syntax + " - " + u.desc }

var (
	usagePing    = usage{"ping", "returns pong"}
	usageHelp    = usage{"help", "lists commands"}
	usageNewUser = usage{"newuser", "creates your profile from your Telegram account"}
	usageUser    = usage{"user", "returns your profile"}
	usageSet     = usage{"set <key> <value> {-e}", "sets a key to a value with optional encrypt flag (key and value must be one word)"}
	usageGet     = usage{"get <key>", "returns the value set for a key"}
	usageNote    = usage{"note -t <title> -c <content>", "saves a new note"}
	usageNoteDel = usage{"note -d <title>", "deletes an existing note"}
	usageNotes   = usage{"notes", "lists your notes (content shortened)"}
	usageNotesT  = usage{"notes <title>", "returns the note with that title"}

	usageDevAddXP   = usage{"dev +xp <amount>", "adds xp to you"}
	usageDevSetXP   = usage{"dev =xp <number>", "sets your xp"}
	usageDevSetLvl  = usage{"dev =level <number>", "sets your level"}
	usageDevNextLvl = usage{"dev +level", "moves you to the next level"}
)

var publicUsages = []usage{
	usagePing, usageHelp, usageNewUser, usageUser, usageSet, usageGet,
	usageNote, usageNoteDel, usageNotes, usageNotesT,
}

var devUsages = []usage{usageDevAddXP, usageDevSetXP, usageDevSetLvl, usageDevNextLvl}

func helpText(prefix string, withDev bool) string {
	var b strings.Builder
	b.WriteString("📖 Commands:\n")
	list := publicUsages
	if withDev {
		list = append(append([]usage{}, publicUsages...), devUsages...)
	}
	for _, u := range list {
		b.WriteString("• ")
		b.WriteString(u.Help(prefix))
		b.WriteByte('\n')
	}
	return b.String()
}

const (
	textPong        = "pong"
	textUserCreated = "User created successfully"
	textNoteCreated = "Created new note!"
	textNoteDeleted = "Note deleted!"
	textNoNotes     = "You have no notes yet."
	textNotOwner    = "These notes belong to someone else."
	levelUpFmt      = "🎉 Leveled up to level %d"
	profileFmt      = "%s - [Level %d - %s XP]"

	notesPageSize   = 10
	notePreviewRune = 20
)

func levelUpText(level int64) string { return fmt.Sprintf(levelUpFmt, level) }

func profileText(u *domain.User) string {
	return fmt.Sprintf(profileFmt, u.Username, u.Level, u.XP.String())
}

// notePreview shortens content to notePreviewRune runes.
func notePreview(content string) string {
	r := []rune(content)
	if len(r) > notePreviewRune {
		return string(r[:notePreviewRune]) + "…"
	}
	return content
}

// noteBody restores escaped line breaks typed into a single-line command.
func noteBody(content string) string {
	return strings.ReplaceAll(content, `\n`, "\n")
}

func notesPageText(notes []domain.Note, page, maxPage int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🗒 Your Notes (Page %d/%d)\n", page, maxPage)
	for _, n := range notes {
		fmt.Fprintf(&b, "\n• %s\n  %s", n.Title, notePreview(n.Content))
	}
	return b.String()
}

// notesKeyboard builds ◀️/▶️ buttons; nil when there is only one page.
func notesKeyboard(owner int64, page, maxPage int) *tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	if page > 1 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("◀️ Previous", notesCallbackData(owner, page-1)))
	}
	if page < maxPage {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("Next ▶️", notesCallbackData(owner, page+1)))
	}
	if len(row) == 0 {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(row)
	return &kb
}
