package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-bot/internal/conversation"
	"health-bot/internal/records"
	"health-bot/internal/records/schema"
	"health-bot/internal/session"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, f.err
}

func (f *fakeSender) last() tgbotapi.MessageConfig { return f.sent[len(f.sent)-1] }

type fakeUpdates struct {
	ch      chan tgbotapi.Update
	stopped bool
}

func (f *fakeUpdates) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return f.ch }
func (f *fakeUpdates) StopReceivingUpdates()                                         { f.stopped = true }

func ageKind() *conversation.Kind {
	return &conversation.Kind{
		Name:     "age",
		Triggers: []string{"Age", "/age"},
		Steps: []conversation.Step{
			{Field: "age", Prompt: conversation.Say("How old are you?"), Validate: conversation.Integer()},
		},
		AbortText: "Numbers only.",
		Complete: func(_ context.Context, _ int64, rec records.Record) (string, error) {
			age, _ := rec.Int("age")
			if age > 150 {
				return "", errors.New("implausible")
			}
			return "Noted.", nil
		},
	}
}

func newTestBot(t *testing.T, admin int64) (*Bot, *fakeSender, *records.Store) {
	t.Helper()
	st, err := records.Open(context.Background(), records.MemoryPath, schema.Tables())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	fs := &fakeSender{}
	out := &Presenter{s: fs, parseMode: "HTML"}
	coord, err := conversation.New(session.NewStore(time.Minute), out, ageKind())
	require.NoError(t, err)

	b := newBot(out, coord, st, admin)
	b.now = func() time.Time { return time.Date(2024, 1, 15, 21, 0, 0, 0, time.UTC) }
	return b, fs, st
}

func textMsg(user int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{From: &tgbotapi.User{ID: user}, Chat: &tgbotapi.Chat{ID: user}, Text: text}
}

func commandMsg(user int64, cmd string) *tgbotapi.Message {
	m := textMsg(user, cmd)
	m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	return m
}

func TestStart_SendsGreetingWithMenu(t *testing.T) {
	b, fs, _ := newTestBot(t, 0)
	b.handleIncomingMessage(context.Background(), commandMsg(5, "/start"))

	require.Len(t, fs.sent, 1)
	out := fs.last()
	assert.Equal(t, int64(5), out.ChatID)
	assert.Equal(t, greetingText, out.Text)
	kb, ok := out.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.Keyboard, 1)
	var labels []string
	for _, btn := range kb.Keyboard[0] {
		labels = append(labels, btn.Text)
	}
	assert.Equal(t, menuLabels, labels)
}

func TestConversationThroughBot(t *testing.T) {
	b, fs, _ := newTestBot(t, 0)
	ctx := context.Background()

	b.handleIncomingMessage(ctx, textMsg(7, "Age"))
	assert.Equal(t, "How old are you?", fs.last().Text)
	assert.Equal(t, "HTML", fs.last().ParseMode)
	_, removes := fs.last().ReplyMarkup.(tgbotapi.ReplyKeyboardRemove)
	assert.True(t, removes)

	b.handleIncomingMessage(ctx, textMsg(7, "33"))
	assert.Equal(t, "Noted.", fs.last().Text)

	b.handleIncomingMessage(ctx, textMsg(7, "33"))
	assert.Equal(t, "Error , unrecognized message : 33", fs.last().Text)
}

func TestUnrecognizedMessage_IsEscaped(t *testing.T) {
	b, fs, _ := newTestBot(t, 0)
	b.handleIncomingMessage(context.Background(), textMsg(8, "<b>hi</b>"))
	assert.Equal(t, "Error , unrecognized message : &lt;b&gt;hi&lt;/b&gt;", fs.last().Text)
}

func TestCancel(t *testing.T) {
	b, fs, _ := newTestBot(t, 0)
	ctx := context.Background()

	b.handleIncomingMessage(ctx, commandMsg(9, "/cancel"))
	assert.Equal(t, nothingToCancel, fs.last().Text)

	b.handleIncomingMessage(ctx, commandMsg(9, "/age"))
	b.handleIncomingMessage(ctx, commandMsg(9, "/cancel"))
	assert.Equal(t, cancelledText, fs.last().Text)

	b.handleIncomingMessage(ctx, textMsg(9, "40"))
	assert.Contains(t, fs.last().Text, "unrecognized message")
}

func TestTerminalFailureIsReported(t *testing.T) {
	b, fs, _ := newTestBot(t, 0)
	ctx := context.Background()

	b.handleIncomingMessage(ctx, textMsg(10, "Age"))
	b.handleIncomingMessage(ctx, textMsg(10, "400"))
	assert.Equal(t, "Something went wrong. Please start again.", fs.last().Text)
}

func TestInfo(t *testing.T) {
	b, fs, st := newTestBot(t, 0)
	ctx := context.Background()
	_, err := st.Insert(ctx, "users", records.NewRecord("username", "a", "email", "a@x.com", "age", 20, "balance", 1000))
	require.NoError(t, err)

	b.handleIncomingMessage(ctx, textMsg(11, "Info"))
	assert.Contains(t, fs.last().Text, "Пользователей: 1")
	assert.Contains(t, fs.last().Text, "Общий баланс: $1000")

	b.handleIncomingMessage(ctx, commandMsg(11, "/info"))
	assert.Len(t, fs.sent, 2)
}

func TestReport_AdminOnly(t *testing.T) {
	b, fs, _ := newTestBot(t, 99)
	ctx := context.Background()

	b.handleIncomingMessage(ctx, commandMsg(12, "/report"))
	assert.Equal(t, adminOnlyText, fs.last().Text)

	b.handleIncomingMessage(ctx, commandMsg(99, "/report"))
	assert.Equal(t, int64(99), fs.last().ChatID)
	assert.Contains(t, fs.last().Text, "Ежедневный отчёт")
	assert.Contains(t, fs.last().Text, "2024-01-15")
}

func TestSendReport_NoAdmin(t *testing.T) {
	b, fs, _ := newTestBot(t, 0)
	require.NoError(t, b.SendReport(context.Background()))
	assert.Empty(t, fs.sent)
}

func TestSendReport_PropagatesSendError(t *testing.T) {
	b, fs, _ := newTestBot(t, 1)
	fs.err = errors.New("blocked by user")
	assert.Error(t, b.SendReport(context.Background()))
}

func TestPresenter_PromptKeyboard(t *testing.T) {
	fs := &fakeSender{}
	p := &Presenter{s: fs}
	require.NoError(t, p.SendPrompt(context.Background(), 3, "Pick", []string{"A & B", "C"}))

	out := fs.last()
	assert.Equal(t, "Pick", out.Text)
	assert.Empty(t, out.ParseMode)
	kb, ok := out.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.True(t, kb.OneTimeKeyboard)
	require.Len(t, kb.Keyboard, 2)
	assert.Equal(t, "A & B", kb.Keyboard[0][0].Text)
}

func TestStart_StopsOnCancel(t *testing.T) {
	b, fs, _ := newTestBot(t, 0)
	src := &fakeUpdates{ch: make(chan tgbotapi.Update, 1)}
	b.updates = src
	src.ch <- tgbotapi.Update{Message: commandMsg(4, "/start")}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(src.ch) == 0 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
	assert.True(t, src.stopped)
	assert.Len(t, fs.sent, 1)
}
