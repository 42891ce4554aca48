package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"lending/internal/ledger"
)

// handleConversation processes multi-step conversations
func (b *Bot) handleConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	userID := message.From.ID

	switch state.Command {
	case convCheckout:
		b.handleCheckoutConversation(ctx, message, state)
	case convTransfer:
		b.handleTransferConversation(ctx, message, state)
	default:
		state.Step = -1
	}

	// Clean up completed conversations
	if state.Step == -1 {
		b.clearState(userID)
	}
}

// handleCheckoutConversation takes the borrower's name
func (b *Bot) handleCheckoutConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	name := strings.TrimSpace(message.Text)
	asset := b.ledger.AssetName()

	err := b.ledger.CheckoutAvailable(ctx, name)
	if errors.Is(err, ledger.ErrEmptyName) {
		// Keep waiting for a usable name
		b.reply(message.Chat.ID, "Borrower name is required! Enter the borrower's name:")
		return
	}
	if err != nil {
		b.logger.Warn("Checkout failed",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID),
			zap.String("holder", name),
		)
		b.reply(message.Chat.ID, errorText(asset, err))
	} else {
		b.reply(message.Chat.ID, fmt.Sprintf("✅ %s checked out by %s", asset, name))
	}

	state.Step = -1 // Mark conversation as complete
}

// handleTransferConversation takes the new borrower's name
func (b *Bot) handleTransferConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	to := strings.TrimSpace(message.Text)
	asset := b.ledger.AssetName()

	from, err := b.ledger.TransferActive(ctx, to)
	if errors.Is(err, ledger.ErrEmptyName) {
		b.reply(message.Chat.ID, "New borrower name is required! Enter the new borrower's name:")
		return
	}
	if err != nil {
		b.logger.Warn("Transfer failed",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID),
			zap.String("to", to),
		)
		b.reply(message.Chat.ID, errorText(asset, err))
	} else {
		b.reply(message.Chat.ID, fmt.Sprintf("🔁 %s transferred from %s to %s", asset, from, to))
	}

	state.Step = -1
}
