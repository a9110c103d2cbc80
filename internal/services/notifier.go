package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/irfndi/cryptopulse/internal/models"
	"github.com/sirupsen/logrus"
)

// Notifier is told about ingestion runs that ended without usable data.
type Notifier interface {
	NotifyIngestionFailure(ctx context.Context, result models.IngestionResult) error
}

// NoopNotifier discards notifications.
type NoopNotifier struct{}

func (NoopNotifier) NotifyIngestionFailure(context.Context, models.IngestionResult) error {
	return nil
}

// TelegramSender is the part of the Telegram bot API used for alerts.
type TelegramSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// TelegramNotifier posts failure alerts to an operations chat.
type TelegramNotifier struct {
	sender TelegramSender
	chatID int64
	logger *logrus.Logger
}

// NewTelegramNotifier creates a notifier backed by the Telegram Bot API
func NewTelegramNotifier(token string, chatID int64, logger *logrus.Logger) (*TelegramNotifier, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram bot token and chat id are required")
	}
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewTelegramNotifierWithSender(b, chatID, logger), nil
}

// NewTelegramNotifierWithSender creates a notifier around an existing sender
func NewTelegramNotifierWithSender(sender TelegramSender, chatID int64, logger *logrus.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		sender: sender,
		chatID: chatID,
		logger: logger,
	}
}

// NotifyIngestionFailure sends a short summary of a failed run
func (n *TelegramNotifier) NotifyIngestionFailure(ctx context.Context, result models.IngestionResult) error {
	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   formatFailureMessage(result),
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}

	n.logger.WithField("run_id", result.RunID).Info("Ingestion failure notification sent")
	return nil
}

func formatFailureMessage(result models.IngestionResult) string {
	var b strings.Builder
	b.WriteString("Crypto ingestion failed\n")
	fmt.Fprintf(&b, "Run: %s\n", result.RunID)
	fmt.Fprintf(&b, "Attempts: %d, API calls: %d, batches committed: %d\n", result.Attempts, result.APICalls, result.BatchesCommitted)
	if result.Error != nil {
		fmt.Fprintf(&b, "Kind: %s\n", result.Error.Kind)
		if result.Error.HTTPStatus != 0 {
			fmt.Fprintf(&b, "Status: %d\n", result.Error.HTTPStatus)
		}
		fmt.Fprintf(&b, "Error: %s", result.Error.Message)
	}
	return b.String()
}
