// Package telegram is a secondary chat surface: messages from Telegram
// users flow through the same conversation orchestrator as the HTTP
// API, keyed by the Telegram account id.
package telegram

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/persona-gateway/internal/chat"
	"go.uber.org/zap"
)

type Bot struct {
	api          *tgbotapi.BotAPI
	orchestrator *chat.Orchestrator
	logger       *zap.Logger
}

func New(token string, orchestrator *chat.Orchestrator, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		api:          api,
		orchestrator: orchestrator,
		logger:       logger,
	}, nil
}

func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	userID := strconv.FormatInt(message.From.ID, 10)

	reply, err := b.orchestrator.HandleTurn(ctx, userID, message.Text)
	if err != nil {
		b.logger.Error("Failed to handle turn",
			zap.Error(err),
			zap.String("user_id", userID))
		b.sendMessage(message.Chat.ID, "Sorry, I couldn't process your message. Please try again.")
		return
	}
	if reply == "" {
		reply = "I could not find a suitable answer."
	}

	b.sendMessage(message.Chat.ID, reply)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
