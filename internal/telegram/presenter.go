package telegram

import (
	"context"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Presenter renders conversation output as Telegram messages. Replies go to
// the chat with the same id as the user, which holds for private chats.
type Presenter struct {
	s         sender
	parseMode string
}

func NewPresenter(api *tgbotapi.BotAPI, parseMode string) *Presenter {
	return &Presenter{s: botAPISender{api: api}, parseMode: parseMode}
}

// SendText sends plain text and removes any reply keyboard left by a
// previous prompt.
func (p *Presenter) SendText(_ context.Context, userID int64, text string) error {
	msg := p.message(userID, text)
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	_, err := p.s.Send(msg)
	return err
}

// SendPrompt sends text with a one-time reply keyboard, one button per
// option.
func (p *Presenter) SendPrompt(_ context.Context, userID int64, text string, options []string) error {
	msg := p.message(userID, text)
	if len(options) > 0 {
		kb := keyboard(options...)
		kb.OneTimeKeyboard = true
		msg.ReplyMarkup = kb
	}
	_, err := p.s.Send(msg)
	return err
}

func (p *Presenter) sendMarkup(userID int64, text string, markup any) error {
	msg := p.message(userID, text)
	msg.ReplyMarkup = markup
	_, err := p.s.Send(msg)
	return err
}

func (p *Presenter) message(chatID int64, text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, text)
	if p.parseMode != "" {
		msg.ParseMode = p.parseMode
		if strings.EqualFold(p.parseMode, tgbotapi.ModeHTML) {
			msg.Text = html.EscapeString(text)
		}
	}
	return msg
}

func keyboard(labels ...string) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(labels))
	for _, l := range labels {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(l)))
	}
	return tgbotapi.NewReplyKeyboard(rows...)
}
