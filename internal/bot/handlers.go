package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// handleMessage processes a single message
func (b *Bot) handleMessage(message *tgbotapi.Message) {
	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage", zap.Any("panic", r))
			b.reply(message.Chat.ID, "An error occurred while processing your request. Please try again.")
		}
	}()

	userID := message.From.ID
	ctx := context.Background()

	// Any command cancels an ongoing conversation
	if state, ok := b.state(userID); ok {
		if !message.IsCommand() {
			b.handleConversation(ctx, message, state)
			return
		}
		b.clearState(userID)
	}

	if !message.IsCommand() {
		b.reply(message.Chat.ID, "Use /start to see the menu.")
		return
	}

	switch message.Command() {
	case "start", "menu":
		b.handleStart(message.Chat.ID)
	case "checkout":
		b.handleCheckoutStart(ctx, userID, message.Chat.ID)
	case "return":
		b.handleReturnTransferMenu(ctx, message.Chat.ID)
	case "transfer":
		b.handleTransferStart(ctx, userID, message.Chat.ID)
	case "status":
		b.handleStatus(ctx, message.Chat.ID)
	case "history":
		b.handleHistory(ctx, message.Chat.ID)
	case "cancel":
		b.reply(message.Chat.ID, "Cancelled.")
	default:
		b.reply(message.Chat.ID, "Unknown command. Use /start to see available commands.")
	}
}

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleCallbackQuery", zap.Any("panic", r))
		}
	}()

	// Answer the callback query to remove loading state
	if b.out != nil {
		if _, err := b.out.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
			b.logger.Warn("Failed to answer callback query", zap.Error(err))
		}
	}

	if query.Message == nil || query.Message.Chat == nil {
		return
	}

	userID := query.From.ID
	chatID := query.Message.Chat.ID
	ctx := context.Background()

	data := query.Data
	switch {
	case strings.HasPrefix(data, "menu:"):
		b.clearState(userID)
		b.handleMenuCallback(ctx, userID, chatID, strings.TrimPrefix(data, "menu:"))
	case strings.HasPrefix(data, "action:"):
		b.clearState(userID)
		b.handleActionCallback(ctx, userID, chatID, strings.TrimPrefix(data, "action:"))
	}
}
