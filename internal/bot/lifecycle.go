package bot

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

var errNoAPI = errors.New("telegram API is not configured")

// Run long-polls Telegram until ctx is cancelled
func (b *Bot) Run(ctx context.Context) error {
	if b.api == nil {
		return errNoAPI
	}

	// A webhook left over from an earlier deploy blocks getUpdates
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		b.logger.Warn("Failed to delete webhook", zap.Error(err))
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	updates := b.api.GetUpdatesChan(cfg)

	b.logger.Info("Polling for updates", zap.String("asset", b.ledger.AssetName()))

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		b.HandleWebhookUpdate(update)
	}
	return nil
}

// RegisterWebhook points Telegram at baseURL + "/telegram-webhook"
func (b *Bot) RegisterWebhook(baseURL string) error {
	if b.api == nil {
		return errNoAPI
	}

	wh, err := tgbotapi.NewWebhook(baseURL + "/telegram-webhook")
	if err != nil {
		return err
	}
	wh.MaxConnections = 40

	if _, err := b.api.Request(wh); err != nil {
		b.logger.Error("Failed to set webhook", zap.Error(err), zap.String("webhook_url", baseURL))
		return err
	}

	info, err := b.api.GetWebhookInfo()
	if err != nil {
		b.logger.Warn("Failed to get webhook info", zap.Error(err))
		return nil
	}
	b.logger.Info("Webhook registered",
		zap.String("url", info.URL),
		zap.Int("pending_updates", info.PendingUpdateCount),
	)
	return nil
}

// HandleWebhookUpdate dispatches one update from either polling or the webhook endpoint
func (b *Bot) HandleWebhookUpdate(update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		msg := update.Message
		if !b.allowed(msg.From, zap.String("text", msg.Text)) {
			b.reply(msg.Chat.ID, "Sorry, you are not authorized to use this bot.")
			return
		}
		defer b.lockUser(msg.From.ID)()
		b.handleMessage(msg)

	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		query := update.CallbackQuery
		if !b.allowed(query.From, zap.String("callback_data", query.Data)) {
			return
		}
		defer b.lockUser(query.From.ID)()
		b.handleCallbackQuery(query)
	}
}

func (b *Bot) allowed(user *tgbotapi.User, detail zap.Field) bool {
	if b.allowedUsers[user.ID] {
		return true
	}
	b.logger.Warn("Unauthorized access attempt",
		zap.Int64("user_id", user.ID),
		zap.String("username", user.UserName),
		detail,
	)
	return false
}
