package bot

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"lending/internal/ledger"
	"lending/internal/models"
)

func availableText(asset string) string {
	return fmt.Sprintf("✅ %s is available", asset)
}

func heldText(asset, holder string) string {
	return fmt.Sprintf("❌ %s is currently checked out by %s", asset, holder)
}

// statusText renders the View Status mode
func statusText(asset string, active models.LoanRecord, ok bool) string {
	if !ok {
		return availableText(asset)
	}
	return fmt.Sprintf("%s\nSince: %s", heldText(asset, active.HolderName), active.CheckoutTime)
}

// maxMessageLen is Telegram's text limit. Byte length never undercounts it.
const maxMessageLen = 4096

// historyMessages renders every record in store order, split into messages
// that each fit in one Telegram message
func historyMessages(asset string, records []models.LoanRecord) []string {
	if len(records) == 0 {
		return []string{"No transactions yet."}
	}

	var (
		messages []string
		text     strings.Builder
	)
	text.WriteString(fmt.Sprintf("📜 %s loan history (%d)\n\n", asset, len(records)))
	for i, r := range records {
		entry := truncate(historyEntry(i+1, r), maxMessageLen)
		if text.Len()+len(entry) > maxMessageLen {
			messages = append(messages, text.String())
			text.Reset()
		}
		text.WriteString(entry)
	}
	return append(messages, text.String())
}

func historyEntry(n int, r models.LoanRecord) string {
	var entry strings.Builder
	entry.WriteString(fmt.Sprintf("%d. %s - %s\n", n, r.HolderName, r.Status))
	entry.WriteString(fmt.Sprintf("   Out: %s  Back: %s", r.CheckoutTime, r.ReturnTime))
	if r.TransferredTo != models.NoValue && r.TransferredTo != "" {
		entry.WriteString(fmt.Sprintf("  To: %s", r.TransferredTo))
	}
	entry.WriteString("\n")
	return entry.String()
}

// truncate cuts s to at most limit bytes on a rune boundary
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// errorText turns a ledger error into a chat reply
func errorText(asset string, err error) string {
	var held *ledger.AlreadyCheckedOutError
	switch {
	case errors.As(err, &held):
		return heldText(asset, held.Holder)
	case errors.Is(err, ledger.ErrNotCheckedOut):
		return availableText(asset)
	case errors.Is(err, ledger.ErrEmptyName):
		return "Borrower name is required!"
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
