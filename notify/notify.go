// Package notify talks to Telegram: it posts run summaries and answers a
// small set of chat commands.
package notify

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"celeb-dna-collector/pipeline"
)

// maxMessageLen is Telegram's limit for a single message.
const maxMessageLen = 4096

// Sender sends Telegram messages. *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Deps holds the optional hooks behind chat commands.
type Deps struct {
	// Trigger starts a run in the background; it reports false when a run
	// is already in progress.
	Trigger func() bool
	// Subjects lists the catalogue for /subjects.
	Subjects []pipeline.Subject
	// SaveChatID persists the chat registered with /start.
	SaveChatID func(chatID int64) error
}

// Bot sends summaries to one chat and handles commands from it.
type Bot struct {
	sender Sender
	deps   Deps

	mu     sync.RWMutex
	chatID int64
	last   *pipeline.Summary
}

// New creates a Bot. chatID may be 0 until a user sends /start.
func New(sender Sender, chatID int64, deps Deps) *Bot {
	return &Bot{sender: sender, chatID: chatID, deps: deps}
}

// ChatID returns the chat summaries are sent to.
func (b *Bot) ChatID() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.chatID
}

// NotifyRun remembers s for /status and sends it to the registered chat,
// returning the Telegram message ID. With no chat registered it does nothing.
func (b *Bot) NotifyRun(s *pipeline.Summary) (int, error) {
	b.mu.Lock()
	b.last = s
	chatID := b.chatID
	b.mu.Unlock()

	if chatID == 0 {
		slog.Warn("no Telegram chat registered, skipping run summary", "run_id", s.RunID)
		return 0, nil
	}

	id, err := b.sendHTML(chatID, FormatSummary(s))
	if err != nil {
		return 0, fmt.Errorf("sending run summary: %w", err)
	}

	slog.Info("run summary sent", "chat_id", chatID, "msg_id", id, "run_id", s.RunID)
	return id, nil
}

func (b *Bot) sendHTML(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	sent, err := b.sender.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// FormatSummary renders s as Telegram HTML.
func FormatSummary(s *pipeline.Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "💄 <b>Makeup DNA run</b> <code>%s</code>\n", escapeHTML(s.RunID))
	fmt.Fprintf(&b, "%d/%d subjects succeeded in %s\n\n", s.Succeeded, s.Total, s.Duration().Round(time.Second))

	for _, r := range s.Results {
		line := fmt.Sprintf("%s <b>%s</b> %d/%d frames",
			statusIcon(r.Status), escapeHTML(r.SubjectName), r.FramesAnalyzed, r.TotalFrames)
		if r.Uploaded {
			line += " ☁️"
		}
		if r.Err != nil {
			line += "\n<i>" + escapeHTML(r.Err.Error()) + "</i>"
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return truncateMessage(strings.TrimRight(b.String(), "\n"))
}

func statusIcon(status string) string {
	switch status {
	case pipeline.StatusOK:
		return "✅"
	case pipeline.StatusNoData:
		return "⚠️"
	default:
		return "❌"
	}
}

// escapeHTML escapes characters that are special in Telegram HTML.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

func truncateMessage(text string) string {
	const ellipsis = "\n…"
	if len(text) <= maxMessageLen {
		return text
	}
	n := maxMessageLen - len(ellipsis)
	// Back up to a rune boundary.
	for n > 0 && (text[n]&0xC0) == 0x80 {
		n--
	}
	return text[:n] + ellipsis
}
