package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Listen handles updates until ctx is canceled or updates is closed.
func (b *Bot) Listen(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(u)
		}
	}
}

func (b *Bot) handleUpdate(u tgbotapi.Update) {
	if u.Message == nil || u.Message.Chat == nil {
		return
	}
	b.handleMessage(u.Message.Chat.ID, u.Message.Text)
}

func (b *Bot) handleMessage(chatID int64, text string) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return
	}

	// "/run@my_bot" in group chats.
	command, _, _ := strings.Cut(parts[0], "@")

	if command == "/start" {
		b.handleStart(chatID)
		return
	}

	// Everything else is reserved for the registered chat.
	if registered := b.ChatID(); registered == 0 || registered != chatID {
		return
	}

	switch command {
	case "/run":
		b.handleRun(chatID)
	case "/status":
		b.handleStatus(chatID)
	case "/subjects":
		b.handleSubjects(chatID)
	}
}

func (b *Bot) handleStart(chatID int64) {
	b.mu.Lock()
	if b.chatID != 0 && b.chatID != chatID {
		b.mu.Unlock()
		slog.Warn("ignoring /start from unregistered chat", "chat_id", chatID)
		return
	}
	b.chatID = chatID
	b.mu.Unlock()

	if b.deps.SaveChatID != nil {
		if err := b.deps.SaveChatID(chatID); err != nil {
			slog.Error("failed to save chat_id", "error", err)
		}
	}

	msg := "Makeup DNA collector is ready.\n\n" +
		"Available commands:\n" +
		"/run - Start a collection run now\n" +
		"/status - Show the last run summary\n" +
		"/subjects - List the subject catalogue"

	b.reply(chatID, msg)
	slog.Info("chat registered", "chat_id", chatID)
}

func (b *Bot) handleRun(chatID int64) {
	if b.deps.Trigger == nil {
		b.reply(chatID, "Runs cannot be started from chat.")
		return
	}
	if !b.deps.Trigger() {
		b.reply(chatID, "A run is already in progress.")
		return
	}
	b.reply(chatID, "Run started.")
}

func (b *Bot) handleStatus(chatID int64) {
	b.mu.RLock()
	last := b.last
	b.mu.RUnlock()

	if last == nil {
		b.reply(chatID, "No runs yet.")
		return
	}
	b.reply(chatID, FormatSummary(last))
}

func (b *Bot) handleSubjects(chatID int64) {
	if len(b.deps.Subjects) == 0 {
		b.reply(chatID, "No subjects configured.")
		return
	}

	var sb strings.Builder
	sb.WriteString("<b>Subjects</b>\n")
	for _, s := range b.deps.Subjects {
		fmt.Fprintf(&sb, "• <code>%s</code> %s", escapeHTML(s.ID), escapeHTML(s.Name))
		if s.Category != "" {
			fmt.Fprintf(&sb, " (%s)", escapeHTML(s.Category))
		}
		sb.WriteString("\n")
	}
	b.reply(chatID, truncateMessage(strings.TrimRight(sb.String(), "\n")))
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.sendHTML(chatID, text); err != nil {
		slog.Error("failed to send reply", "chat_id", chatID, "error", err)
	}
}
