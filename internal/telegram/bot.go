package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"health-bot/internal/report"
)

const (
	greetingText     = "Привет! Я бот помогающий твоему здоровью."
	cancelledText    = "Диалог отменён."
	nothingToCancel  = "Нет активного диалога."
	adminOnlyText    = "❌ Команда доступна только администратору."
	infoFailedText   = "Не удалось получить статистику, попробуйте позже."
	unrecognizedText = "Error , unrecognized message : %s"
)

var menuLabels = []string{"Calories", "Buy", "Info", "Registration"}

// dialogs is the conversation side the bot routes free text to.
type dialogs interface {
	Handle(ctx context.Context, userID int64, text string) (bool, error)
	Cancel(userID int64) bool
}

type Bot struct {
	updates     updateSource
	out         *Presenter
	conv        dialogs
	stats       report.Source
	adminUserID int64
	now         func() time.Time
	logger      zerolog.Logger
}

func New(api *tgbotapi.BotAPI, out *Presenter, conv dialogs, stats report.Source, adminUserID int64) *Bot {
	b := newBot(out, conv, stats, adminUserID)
	b.updates = api
	return b
}

func newBot(out *Presenter, conv dialogs, stats report.Source, adminUserID int64) *Bot {
	return &Bot{
		out:         out,
		conv:        conv,
		stats:       stats,
		adminUserID: adminUserID,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      log.With().Str("component", "telegram").Logger(),
	}
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.updates.GetUpdatesChan(u)
	b.logger.Info().Msg("polling for updates")

	for {
		select {
		case <-ctx.Done():
			b.updates.StopReceivingUpdates()
			b.logger.Info().Msg("polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				b.handleIncomingMessage(ctx, update.Message)
			}
		}
	}
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	userID := msg.From.ID
	b.logger.Debug().Int64("user", userID).Str("username", msg.From.UserName).Str("text", msg.Text).Msg("incoming message")

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.send(userID, b.out.sendMarkup(userID, greetingText, mainMenu()))
			return
		case "cancel":
			text := nothingToCancel
			if b.conv.Cancel(userID) {
				text = cancelledText
			}
			b.send(userID, b.out.SendText(ctx, userID, text))
			return
		case "info":
			b.handleInfo(ctx, userID)
			return
		case "report":
			b.handleReportCommand(ctx, userID)
			return
		}
	}

	text := strings.TrimSpace(msg.Text)
	if text == "Info" {
		b.handleInfo(ctx, userID)
		return
	}

	handled, err := b.conv.Handle(ctx, userID, text)
	if err != nil {
		b.logger.Error().Err(err).Int64("user", userID).Msg("conversation failed")
	}
	if handled {
		return
	}
	b.send(userID, b.out.SendText(ctx, userID, fmt.Sprintf(unrecognizedText, msg.Text)))
}

func (b *Bot) handleInfo(ctx context.Context, userID int64) {
	stats, err := report.Collect(ctx, b.stats, b.now())
	if err != nil {
		b.logger.Error().Err(err).Msg("collect stats")
		b.send(userID, b.out.SendText(ctx, userID, infoFailedText))
		return
	}
	b.send(userID, b.out.SendText(ctx, userID, stats.Text()))
}

// handleReportCommand обрабатывает команду /report (только для админа)
func (b *Bot) handleReportCommand(ctx context.Context, userID int64) {
	if b.adminUserID == 0 || userID != b.adminUserID {
		b.send(userID, b.out.SendText(ctx, userID, adminOnlyText))
		return
	}
	if err := b.SendReport(ctx); err != nil {
		b.logger.Error().Err(err).Msg("report failed")
	}
}

// SendReport delivers the current stats to the admin. Without an admin
// configured it does nothing.
func (b *Bot) SendReport(ctx context.Context) error {
	if b.adminUserID == 0 {
		return nil
	}
	stats, err := report.Collect(ctx, b.stats, b.now())
	if err != nil {
		return err
	}
	return b.out.SendText(ctx, b.adminUserID, "📊 Ежедневный отчёт\n\n"+stats.Text())
}

func (b *Bot) send(userID int64, err error) {
	if err != nil {
		b.logger.Error().Err(err).Int64("user", userID).Msg("failed to send message")
	}
}

func mainMenu() tgbotapi.ReplyKeyboardMarkup {
	row := make([]tgbotapi.KeyboardButton, 0, len(menuLabels))
	for _, l := range menuLabels {
		row = append(row, tgbotapi.NewKeyboardButton(l))
	}
	return tgbotapi.NewReplyKeyboard(row)
}
