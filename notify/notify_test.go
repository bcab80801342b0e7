package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"celeb-dna-collector/pipeline"
)

// --- Mock implementations ---

type sentMessage struct {
	ChatID    int64
	Text      string
	ParseMode string
}

type mockSender struct {
	mu       sync.Mutex
	messages []sentMessage
	err      error
	nextID   int
}

func (m *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return tgbotapi.Message{}, m.err
	}
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable")
	}
	m.messages = append(m.messages, sentMessage{ChatID: msg.ChatID, Text: msg.Text, ParseMode: msg.ParseMode})
	m.nextID++
	return tgbotapi.Message{MessageID: 100 + m.nextID}, nil
}

func (m *mockSender) last() sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return sentMessage{}
	}
	return m.messages[len(m.messages)-1]
}

func (m *mockSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func testSummary() *pipeline.Summary {
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	return &pipeline.Summary{
		RunID:      "run-7",
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Succeeded:  1,
		Total:      2,
		Results: []pipeline.SubjectResult{
			{SubjectID: "jennie", SubjectName: "Jennie Kim", Status: pipeline.StatusOK, FramesAnalyzed: 8, TotalFrames: 9, Uploaded: true},
			{SubjectID: "suzy", SubjectName: "Bae <Suzy>", Status: pipeline.StatusNoData, Err: errors.New("no data: no frames")},
		},
	}
}

func textUpdate(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: text}}
}

// --- Tests ---

func TestFormatSummary(t *testing.T) {
	text := FormatSummary(testSummary())

	assert.Contains(t, text, "<code>run-7</code>")
	assert.Contains(t, text, "1/2 subjects succeeded in 1m30s")
	assert.Contains(t, text, "✅ <b>Jennie Kim</b> 8/9 frames ☁️")
	assert.Contains(t, text, "⚠️ <b>Bae &lt;Suzy&gt;</b> 0/0 frames")
	assert.Contains(t, text, "<i>no data: no frames</i>")
	assert.False(t, strings.HasSuffix(text, "\n"))
}

func TestFormatSummary_Truncates(t *testing.T) {
	s := testSummary()
	for i := 0; i < 300; i++ {
		s.Results = append(s.Results, pipeline.SubjectResult{SubjectName: "ß subject with a long name", Status: pipeline.StatusError})
	}

	text := FormatSummary(s)
	assert.LessOrEqual(t, len(text), maxMessageLen)
	assert.True(t, strings.HasSuffix(text, "…"))
	assert.True(t, strings.ToValidUTF8(text, "?") == text, "no split runes")
}

func TestEscapeHTML(t *testing.T) {
	assert.Equal(t, "a &amp; b &lt;c&gt;", escapeHTML("a & b <c>"))
}

func TestNotifyRun(t *testing.T) {
	sender := &mockSender{}
	b := New(sender, 42, Deps{})

	id, err := b.NotifyRun(testSummary())
	require.NoError(t, err)
	assert.Equal(t, 101, id)

	msg := sender.last()
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	assert.Contains(t, msg.Text, "run-7")
}

func TestNotifyRun_NoChat(t *testing.T) {
	sender := &mockSender{}
	b := New(sender, 0, Deps{})

	id, err := b.NotifyRun(testSummary())
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.Zero(t, sender.count())
}

func TestNotifyRun_Error(t *testing.T) {
	b := New(&mockSender{err: errors.New("forbidden")}, 42, Deps{})

	_, err := b.NotifyRun(testSummary())
	assert.ErrorContains(t, err, "forbidden")
}

func TestHandleStart(t *testing.T) {
	sender := &mockSender{}
	var saved int64
	b := New(sender, 0, Deps{SaveChatID: func(id int64) error { saved = id; return nil }})

	b.handleUpdate(textUpdate(555, "/start"))

	assert.Equal(t, int64(555), b.ChatID())
	assert.Equal(t, int64(555), saved)
	assert.Equal(t, int64(555), sender.last().ChatID)
	assert.Contains(t, sender.last().Text, "/run")

	t.Run("another chat cannot take over", func(t *testing.T) {
		b.handleUpdate(textUpdate(999, "/start"))
		assert.Equal(t, int64(555), b.ChatID())
	})
}

func TestHandleRun(t *testing.T) {
	sender := &mockSender{}
	started := 0
	busy := false
	b := New(sender, 42, Deps{Trigger: func() bool {
		if busy {
			return false
		}
		started++
		busy = true
		return true
	}})

	b.handleUpdate(textUpdate(42, "/run"))
	assert.Equal(t, 1, started)
	assert.Equal(t, "Run started.", sender.last().Text)

	b.handleUpdate(textUpdate(42, "/run@dna_bot"))
	assert.Equal(t, 1, started)
	assert.Equal(t, "A run is already in progress.", sender.last().Text)
}

func TestHandleRun_NoTrigger(t *testing.T) {
	sender := &mockSender{}
	b := New(sender, 42, Deps{})

	b.handleUpdate(textUpdate(42, "/run"))
	assert.Equal(t, "Runs cannot be started from chat.", sender.last().Text)
}

func TestHandleStatus(t *testing.T) {
	sender := &mockSender{}
	b := New(sender, 42, Deps{})

	b.handleUpdate(textUpdate(42, "/status"))
	assert.Equal(t, "No runs yet.", sender.last().Text)

	_, err := b.NotifyRun(testSummary())
	require.NoError(t, err)

	b.handleUpdate(textUpdate(42, "/status"))
	assert.Contains(t, sender.last().Text, "run-7")
}

func TestHandleSubjects(t *testing.T) {
	sender := &mockSender{}
	b := New(sender, 42, Deps{Subjects: []pipeline.Subject{
		{ID: "jennie", Name: "Jennie Kim", Category: "kpop_idol"},
		{ID: "taylor", Name: "Taylor Swift"},
	}})

	b.handleUpdate(textUpdate(42, "/subjects"))

	text := sender.last().Text
	assert.Contains(t, text, "<code>jennie</code> Jennie Kim (kpop_idol)")
	assert.Contains(t, text, "<code>taylor</code> Taylor Swift")
}

func TestHandleMessage_Ignored(t *testing.T) {
	sender := &mockSender{}
	b := New(sender, 42, Deps{Trigger: func() bool { t.Fatal("must not trigger"); return false }})

	// Not the registered chat.
	b.handleUpdate(textUpdate(7, "/run"))
	b.handleUpdate(textUpdate(42, ""))
	b.handleUpdate(textUpdate(42, "/unknown"))
	b.handleUpdate(tgbotapi.Update{UpdateID: 1})
	assert.Zero(t, sender.count())
}

func TestListen(t *testing.T) {
	sender := &mockSender{}
	b := New(sender, 42, Deps{})

	updates := make(chan tgbotapi.Update, 2)
	updates <- textUpdate(42, "/status")
	updates <- textUpdate(42, "/subjects")
	close(updates)

	done := make(chan struct{})
	go func() {
		b.Listen(context.Background(), updates)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after channel close")
	}
	assert.Equal(t, 2, sender.count())
}

func TestListen_ContextCancel(t *testing.T) {
	b := New(&mockSender{}, 42, Deps{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		b.Listen(ctx, make(chan tgbotapi.Update))
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}
}
