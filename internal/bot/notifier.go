package bot

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"todo-planner/internal/service"
)

// Sender is the part of the Telegram API the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier delivers reminders and daily reports to one chat.
type Notifier struct {
	api    Sender
	chatID int64
}

func NewNotifier(api Sender, chatID int64) *Notifier {
	return &Notifier{api: api, chatID: chatID}
}

// Permission is granted once a target chat is configured. Without one there
// is nobody to deliver to.
func (n *Notifier) Permission(context.Context) service.Permission {
	if !n.ready() {
		return service.PermissionUnsupported
	}
	return service.PermissionGranted
}

func (n *Notifier) ready() bool {
	return n.api != nil && n.chatID != 0
}

func (n *Notifier) Notify(_ context.Context, msg service.Notification) error {
	if !n.ready() {
		return fmt.Errorf("notify %s: no chat configured", msg.Tag)
	}
	out := tgbotapi.NewMessage(n.chatID, renderNotification(msg))
	out.ParseMode = tgbotapi.ModeHTML
	if _, err := n.api.Send(out); err != nil {
		return fmt.Errorf("notify %s: %w", msg.Tag, err)
	}
	return nil
}

func renderNotification(msg service.Notification) string {
	if strings.HasPrefix(msg.Tag, service.DailyTagPrefix) {
		return msg.Body
	}
	text := "🔔 <b>" + html.EscapeString(msg.Title) + "</b>"
	if msg.Body != "" {
		text += "\n⏰ " + html.EscapeString(msg.Body)
	}
	return text
}
