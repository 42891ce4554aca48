package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// handleStart shows the welcome message and the main menu
func (b *Bot) handleStart(chatID int64) {
	text := fmt.Sprintf(`📱 %s lending tracker

Available commands:
/checkout - Check out the %s
/return - Return or transfer it
/transfer - Transfer it to another borrower
/status - Who has it now
/history - All transactions`, b.ledger.AssetName(), b.ledger.AssetName())

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = mainMenuKeyboard()
	b.sendMessage(msg)
}

// handleCheckoutStart starts the checkout conversation when the asset is available
func (b *Bot) handleCheckoutStart(ctx context.Context, userID, chatID int64) {
	active, ok, err := b.ledger.Status(ctx)
	if err != nil {
		b.reply(chatID, errorText(b.ledger.AssetName(), err))
		return
	}
	if ok {
		b.reply(chatID, heldText(b.ledger.AssetName(), active.HolderName))
		return
	}

	b.setState(userID, &ConversationState{Command: convCheckout, Step: 1})
	b.reply(chatID, "📑 Enter the borrower's name:")
}

// handleReturnTransferMenu shows the current holder with return and transfer actions
func (b *Bot) handleReturnTransferMenu(ctx context.Context, chatID int64) {
	active, ok, err := b.ledger.Status(ctx)
	if err != nil {
		b.reply(chatID, errorText(b.ledger.AssetName(), err))
		return
	}
	if !ok {
		b.reply(chatID, availableText(b.ledger.AssetName()))
		return
	}

	text := fmt.Sprintf("🔄 %s is currently checked out by %s", b.ledger.AssetName(), active.HolderName)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("↩️ Return to stock", "action:return"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔁 Transfer to another borrower", "action:transfer"),
		),
	)
	b.sendMessage(msg)
}

// handleTransferStart starts the transfer conversation when the asset is held
func (b *Bot) handleTransferStart(ctx context.Context, userID, chatID int64) {
	active, ok, err := b.ledger.Status(ctx)
	if err != nil {
		b.reply(chatID, errorText(b.ledger.AssetName(), err))
		return
	}
	if !ok {
		b.reply(chatID, availableText(b.ledger.AssetName()))
		return
	}

	b.setState(userID, &ConversationState{Command: convTransfer, Step: 1})
	b.reply(chatID, fmt.Sprintf("🔁 %s holds it now. Enter the new borrower's name:", active.HolderName))
}

// handleReturn returns the asset on behalf of the current holder
func (b *Bot) handleReturn(ctx context.Context, chatID int64) {
	holder, err := b.ledger.ReturnActive(ctx)
	if err != nil {
		b.logger.Warn("Return failed", zap.Error(err), zap.Int64("chat_id", chatID))
		b.reply(chatID, errorText(b.ledger.AssetName(), err))
		return
	}
	b.reply(chatID, fmt.Sprintf("🔄 %s returned by %s", b.ledger.AssetName(), holder))
}

// handleStatus shows who holds the asset
func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	active, ok, err := b.ledger.Status(ctx)
	if err != nil {
		b.reply(chatID, errorText(b.ledger.AssetName(), err))
		return
	}
	b.reply(chatID, statusText(b.ledger.AssetName(), active, ok))
}

// handleHistory lists every transaction
func (b *Bot) handleHistory(ctx context.Context, chatID int64) {
	records, err := b.ledger.Records(ctx)
	if err != nil {
		b.reply(chatID, errorText(b.ledger.AssetName(), err))
		return
	}
	for _, text := range historyMessages(b.ledger.AssetName(), records) {
		b.reply(chatID, text)
	}
}

func mainMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📑 Checkout", "menu:checkout"),
			tgbotapi.NewInlineKeyboardButtonData("🔄 Return / Transfer", "menu:return_transfer"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📋 View Status", "menu:status"),
			tgbotapi.NewInlineKeyboardButtonData("📜 History", "menu:history"),
		),
	)
}
