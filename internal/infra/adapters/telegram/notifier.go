package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"opsvision/internal/domain/model"
	"opsvision/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*TelegramNotifier)(nil)

const maxPreview = 600

// sender is the part of tgbotapi.BotAPI the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts a short summary of each finished analysis to one chat.
type TelegramNotifier struct {
	bot    sender
	chatID int64
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	if token == "" || chatID == 0 {
		return nil, errors.New("telegram token and chat id are required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, job *model.AnalysisJob) error {
	if job == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, FormatJob(job))
	msg.DisableWebPagePreview = true
	_, err := n.bot.Send(msg)
	return err
}

// FormatJob renders the plain-text notification body.
func FormatJob(job *model.AnalysisJob) string {
	var b strings.Builder
	switch job.Status {
	case model.AnalysisStatusCompleted:
		fmt.Fprintf(&b, "✅ Analysis %s (%s) completed", job.ID, job.Mode)
	case model.AnalysisStatusFailed:
		fmt.Fprintf(&b, "❌ Analysis %s (%s) failed", job.ID, job.Mode)
	default:
		fmt.Fprintf(&b, "ℹ️ Analysis %s (%s) is %s", job.ID, job.Mode, job.Status)
	}

	if job.Status == model.AnalysisStatusFailed && job.LastError != "" {
		b.WriteString("\n")
		b.WriteString(truncate(job.LastError, maxPreview))
		return b.String()
	}
	if job.Result == nil {
		return b.String()
	}
	if len(job.Result.Events) > 0 {
		fmt.Fprintf(&b, "\n%d events", len(job.Result.Events))
		for i, e := range job.Result.Events {
			if i == 3 {
				b.WriteString("\n…")
				break
			}
			fmt.Fprintf(&b, "\n%s-%s %s", e.Start, e.End, truncate(e.Description, 120))
		}
		return b.String()
	}
	if job.Result.Text != "" {
		b.WriteString("\n")
		b.WriteString(truncate(job.Result.Text, maxPreview))
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
