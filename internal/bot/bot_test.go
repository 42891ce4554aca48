package bot

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lending/internal/ledger"
	"lending/internal/models"
	"lending/internal/storage/stubs"
)

// fakeSender records outgoing messages instead of calling Telegram
type fakeSender struct {
	mu       sync.Mutex
	messages []tgbotapi.MessageConfig
	requests int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.messages = append(f.messages, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.messages, "expected a message to be sent")
	return f.messages[len(f.messages)-1]
}

const (
	testUserID = int64(123)
	testChatID = int64(456)
)

type fixedClock struct{}

func (fixedClock) Now() time.Time {
	return time.Date(2024, 3, 1, 14, 5, 0, 0, time.Local)
}

type seqIDs struct{ n int }

func (g *seqIDs) New() string {
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

func newTestBot(t *testing.T) (*Bot, *fakeSender, *stubs.MockDB) {
	t.Helper()
	db := stubs.NewMockDB()
	l := ledger.New(db, zap.NewNop(), ledger.WithClock(fixedClock{}), ledger.WithIDGenerator(&seqIDs{}))
	out := &fakeSender{}
	return newBot(out, l, []int64{testUserID}, zap.NewNop()), out, db
}

func command(userID int64, cmd string) tgbotapi.Update {
	text := "/" + cmd
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: userID},
		Chat:     &tgbotapi.Chat{ID: testChatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}}
}

func text(userID int64, s string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: testChatID},
		Text: s,
	}}
}

func callback(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: testChatID}},
		Data:    data,
	}}
}

func held(holder string) models.LoanRecord {
	return models.LoanRecord{
		ID:            "seed-" + holder,
		HolderName:    holder,
		AssetName:     models.DefaultAssetName,
		CheckoutTime:  "2024-02-01 10:00",
		ReturnTime:    models.NoValue,
		Status:        models.StatusCheckedOut,
		TransferredTo: models.NoValue,
	}
}

func TestBot_UnauthorizedUser(t *testing.T) {
	b, out, db := newTestBot(t)

	b.HandleWebhookUpdate(command(999, "status"))

	assert.Equal(t, "Sorry, you are not authorized to use this bot.", out.last(t).Text)
	assert.Equal(t, 0, db.Calls())
}

func TestBot_UnauthorizedCallbackIgnored(t *testing.T) {
	b, out, db := newTestBot(t)

	b.HandleWebhookUpdate(callback(999, "menu:status"))

	assert.Empty(t, out.messages)
	assert.Equal(t, 0, out.requests)
	assert.Equal(t, 0, db.Calls())
}

func TestBot_StartShowsMenu(t *testing.T) {
	b, out, _ := newTestBot(t)

	b.HandleWebhookUpdate(command(testUserID, "start"))

	msg := out.last(t)
	assert.Contains(t, msg.Text, "iPhone 13 lending tracker")
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 2)
	assert.Equal(t, "menu:checkout", *markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "menu:history", *markup.InlineKeyboard[1][1].CallbackData)
}

func TestBot_CheckoutConversation(t *testing.T) {
	b, out, db := newTestBot(t)

	b.HandleWebhookUpdate(command(testUserID, "checkout"))
	state, ok := b.state(testUserID)
	require.True(t, ok)
	assert.Equal(t, convCheckout, state.Command)
	assert.Equal(t, "📑 Enter the borrower's name:", out.last(t).Text)

	b.HandleWebhookUpdate(text(testUserID, "  Budi  "))

	assert.Equal(t, "✅ iPhone 13 checked out by Budi", out.last(t).Text)
	_, ok = b.state(testUserID)
	assert.False(t, ok, "conversation should be finished")

	records, err := db.ListRecords(t.Context())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Budi", records[0].HolderName)
	assert.Equal(t, models.StatusCheckedOut, records[0].Status)
	assert.Equal(t, "2024-03-01 14:05", records[0].CheckoutTime)
}

func TestBot_CheckoutEmptyNameKeepsWaiting(t *testing.T) {
	b, out, db := newTestBot(t)

	b.HandleWebhookUpdate(command(testUserID, "checkout"))
	b.HandleWebhookUpdate(text(testUserID, "   "))

	assert.Equal(t, "Borrower name is required! Enter the borrower's name:", out.last(t).Text)
	_, ok := b.state(testUserID)
	assert.True(t, ok)

	records, err := db.ListRecords(t.Context())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestBot_CheckoutWhenHeld(t *testing.T) {
	b, out, db := newTestBot(t)
	db.Seed(held("Ani"))

	b.HandleWebhookUpdate(callback(testUserID, "menu:checkout"))

	assert.Equal(t, "❌ iPhone 13 is currently checked out by Ani", out.last(t).Text)
	assert.Equal(t, 1, out.requests, "callback should be answered")
	_, ok := b.state(testUserID)
	assert.False(t, ok)
}

func TestBot_CheckoutRaceReportsHolder(t *testing.T) {
	b, out, db := newTestBot(t)

	b.HandleWebhookUpdate(command(testUserID, "checkout"))
	// Someone else checks out while the name is being typed
	db.Seed(held("Citra"))
	b.HandleWebhookUpdate(text(testUserID, "Budi"))

	assert.Equal(t, "❌ iPhone 13 is currently checked out by Citra", out.last(t).Text)
	records, err := db.ListRecords(t.Context())
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestBot_ReturnFlow(t *testing.T) {
	b, out, db := newTestBot(t)
	db.Seed(held("Ani"))

	b.HandleWebhookUpdate(command(testUserID, "return"))
	msg := out.last(t)
	assert.Equal(t, "🔄 iPhone 13 is currently checked out by Ani", msg.Text)
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, "action:return", *markup.InlineKeyboard[0][0].CallbackData)

	b.HandleWebhookUpdate(callback(testUserID, "action:return"))
	assert.Equal(t, "🔄 iPhone 13 returned by Ani", out.last(t).Text)

	records, err := db.ListRecords(t.Context())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.StatusReturned, records[0].Status)
	assert.Equal(t, "2024-03-01 14:05", records[0].ReturnTime)
	assert.Equal(t, models.NoValue, records[0].TransferredTo)
}

func TestBot_ReturnWhenAvailable(t *testing.T) {
	b, out, _ := newTestBot(t)

	b.HandleWebhookUpdate(callback(testUserID, "menu:return_transfer"))
	assert.Equal(t, "✅ iPhone 13 is available", out.last(t).Text)

	b.HandleWebhookUpdate(callback(testUserID, "action:return"))
	assert.Equal(t, "✅ iPhone 13 is available", out.last(t).Text)
}

func TestBot_TransferConversation(t *testing.T) {
	b, out, db := newTestBot(t)
	db.Seed(held("Ani"))

	b.HandleWebhookUpdate(callback(testUserID, "action:transfer"))
	assert.Equal(t, "🔁 Ani holds it now. Enter the new borrower's name:", out.last(t).Text)

	b.HandleWebhookUpdate(text(testUserID, "Budi"))
	assert.Equal(t, "🔁 iPhone 13 transferred from Ani to Budi", out.last(t).Text)

	records, err := db.ListRecords(t.Context())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.StatusTransferred, records[0].Status)
	assert.Equal(t, "Budi", records[0].TransferredTo)
	assert.Equal(t, "Budi", records[1].HolderName)
	assert.Equal(t, models.StatusCheckedOut, records[1].Status)
}

func TestBot_CommandInterruptsConversation(t *testing.T) {
	b, out, db := newTestBot(t)

	b.HandleWebhookUpdate(command(testUserID, "checkout"))
	b.HandleWebhookUpdate(command(testUserID, "status"))

	assert.Equal(t, "✅ iPhone 13 is available", out.last(t).Text)
	_, ok := b.state(testUserID)
	assert.False(t, ok)

	b.HandleWebhookUpdate(text(testUserID, "Budi"))
	assert.Equal(t, "Use /start to see the menu.", out.last(t).Text)
	records, err := db.ListRecords(t.Context())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestBot_StatusWhenHeld(t *testing.T) {
	b, out, db := newTestBot(t)
	db.Seed(held("Ani"))

	b.HandleWebhookUpdate(callback(testUserID, "menu:status"))

	assert.Equal(t, "❌ iPhone 13 is currently checked out by Ani\nSince: 2024-02-01 10:00", out.last(t).Text)
}

func TestBot_History(t *testing.T) {
	b, out, db := newTestBot(t)

	b.HandleWebhookUpdate(command(testUserID, "history"))
	assert.Equal(t, "No transactions yet.", out.last(t).Text)

	first := held("Ani")
	first.Status = models.StatusTransferred
	first.ReturnTime = "2024-02-02 09:00"
	first.TransferredTo = "Budi"
	db.Seed(first, held("Budi"))

	b.HandleWebhookUpdate(callback(testUserID, "menu:history"))
	got := out.last(t).Text
	assert.Contains(t, got, "1. Ani - Transferred")
	assert.Contains(t, got, "To: Budi")
	assert.Contains(t, got, "2. Budi - CheckedOut")
}

func TestBot_HistorySplitsLongLedger(t *testing.T) {
	b, out, db := newTestBot(t)

	for i := 1; i <= 60; i++ {
		r := held(fmt.Sprintf("Borrower number %02d from the second floor office", i))
		r.Status = models.StatusTransferred
		r.ReturnTime = "2024-02-02 09:00"
		r.TransferredTo = fmt.Sprintf("Borrower number %02d from the third floor office", i+1)
		db.Seed(r)
	}

	b.HandleWebhookUpdate(command(testUserID, "history"))

	require.Greater(t, len(out.messages), 1, "history should span several messages")
	var all strings.Builder
	for _, msg := range out.messages {
		assert.LessOrEqual(t, len(msg.Text), maxMessageLen)
		assert.Equal(t, testChatID, msg.ChatID)
		all.WriteString(msg.Text)
	}
	for i := 1; i <= 60; i++ {
		assert.Contains(t, all.String(), fmt.Sprintf("%d. Borrower number %02d ", i, i))
	}
}

func TestHistoryMessages_OversizedEntry(t *testing.T) {
	r := held(strings.Repeat("é", 3000))

	messages := historyMessages("iPhone 13", []models.LoanRecord{r})

	for _, m := range messages {
		assert.LessOrEqual(t, len(m), maxMessageLen)
		assert.True(t, utf8.ValidString(m))
	}
}

func TestBot_ConcurrentUpdatesFromOneUser(t *testing.T) {
	b, _, db := newTestBot(t)

	b.HandleWebhookUpdate(command(testUserID, "checkout"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.HandleWebhookUpdate(text(testUserID, fmt.Sprintf("Budi %d", i)))
		}(i)
	}
	wg.Wait()

	records, err := db.ListRecords(t.Context())
	require.NoError(t, err)
	assert.Len(t, records, 1, "only the first reply completes the conversation")
	_, ok := b.state(testUserID)
	assert.False(t, ok)
}

func TestBot_StoreFailure(t *testing.T) {
	b, out, db := newTestBot(t)
	db.ListErr = errors.New("connection refused")

	b.HandleWebhookUpdate(command(testUserID, "status"))

	assert.Contains(t, out.last(t).Text, "connection refused")
}

func TestBot_UnknownCommand(t *testing.T) {
	b, out, _ := newTestBot(t)

	b.HandleWebhookUpdate(command(testUserID, "foo"))

	assert.Equal(t, "Unknown command. Use /start to see available commands.", out.last(t).Text)
}

func TestErrorText(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"held", &ledger.AlreadyCheckedOutError{Holder: "Ani"}, "❌ Pixel is currently checked out by Ani"},
		{"not checked out", ledger.ErrNotCheckedOut, "✅ Pixel is available"},
		{"empty name", ledger.ErrEmptyName, "Borrower name is required!"},
		{"store", &ledger.StoreError{Op: "list", Err: errors.New("boom")}, "Error: store list failed: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorText("Pixel", tt.err))
		})
	}
}
