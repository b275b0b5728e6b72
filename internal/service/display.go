package service

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/models"
)

var channelCodes = map[models.PaymentMethod]string{
	models.PaymentCash:     "E",
	models.PaymentTransfer: "A",
	models.PaymentCard:     "T",
}

// CampusLetter is the upper-cased first letter of the campus name.
func CampusLetter(name string) string {
	for _, r := range strings.TrimSpace(name) {
		return string(unicode.ToUpper(r))
	}
	return ""
}

// FormatFolio renders the folio shown on receipts. It only reads the stored
// numbering and never fails: unpaid or unnumbered rows render as "".
func FormatFolio(txn *models.Transaction, campusName string, card *models.Card) string {
	letter := CampusLetter(campusName)

	general := ""
	if txn.FolioNew != "" {
		general = letter + txn.FolioNew
	}

	code, ok := channelCodes[txn.PaymentMethod]
	if !ok || !ShouldUseSpecificCounter(txn.PaymentMethod, card) {
		return general
	}

	if v := txn.Specific(txn.PaymentMethod); v != nil {
		return fmt.Sprintf("%s%s%04d", letter, code, *v)
	}
	return general
}
