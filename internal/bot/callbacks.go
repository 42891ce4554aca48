package bot

import (
	"context"

	"go.uber.org/zap"
)

// handleMenuCallback dispatches a main menu button
func (b *Bot) handleMenuCallback(ctx context.Context, userID, chatID int64, mode string) {
	switch mode {
	case "checkout":
		b.handleCheckoutStart(ctx, userID, chatID)
	case "return_transfer":
		b.handleReturnTransferMenu(ctx, chatID)
	case "status":
		b.handleStatus(ctx, chatID)
	case "history":
		b.handleHistory(ctx, chatID)
	default:
		b.logger.Debug("Unknown menu callback", zap.String("mode", mode))
	}
}

// handleActionCallback processes the return/transfer choice
func (b *Bot) handleActionCallback(ctx context.Context, userID, chatID int64, action string) {
	switch action {
	case "return":
		b.handleReturn(ctx, chatID)
	case "transfer":
		b.handleTransferStart(ctx, userID, chatID)
	default:
		b.logger.Debug("Unknown action callback", zap.String("action", action))
	}
}
