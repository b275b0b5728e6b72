package models

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places money columns keep.
const AmountScale = 2

// ValidAmount reports whether d is a positive amount that fits the money
// columns without rounding.
func ValidAmount(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(d.Round(AmountScale))
}

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentCard     PaymentMethod = "card"
)

// Valid reports whether new transactions may use the method. Legacy rows can
// carry other values; they are stored but never numbered per channel.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentTransfer, PaymentCard:
		return true
	}
	return false
}

// Scheme tells which numbering a transaction's folio belongs to.
type Scheme string

const (
	// SchemeNone: unpaid, nothing assigned.
	SchemeNone Scheme = "none"
	// SchemeGeneral: legacy folio plus the folio_new prefix, shown as folio_new.
	SchemeGeneral Scheme = "general"
	// SchemeChannel: a per-channel counter in one of the specific columns.
	SchemeChannel Scheme = "channel"
)

// Numbering is the folio state of a transaction. The legacy folio and prefix
// exist for every paid row; at most one specific counter is set, and only
// when Scheme is SchemeChannel.
type Numbering struct {
	Scheme   Scheme `json:"folio_scheme"`
	Folio    string `json:"folio,omitempty"`
	FolioNew string `json:"folio_new,omitempty"`
	Cash     *int64 `json:"folio_cash,omitempty"`
	Transfer *int64 `json:"folio_transfer,omitempty"`
	Card     *int64 `json:"folio_card,omitempty"`
}

// Specific returns the counter stored for the method's column.
func (n Numbering) Specific(method PaymentMethod) *int64 {
	switch method {
	case PaymentCash:
		return n.Cash
	case PaymentTransfer:
		return n.Transfer
	case PaymentCard:
		return n.Card
	}
	return nil
}

// SetSpecific stores value in the method's column and clears the other two.
func (n *Numbering) SetSpecific(method PaymentMethod, value int64) {
	n.ClearSpecific()
	v := value
	switch method {
	case PaymentCash:
		n.Cash = &v
	case PaymentTransfer:
		n.Transfer = &v
	case PaymentCard:
		n.Card = &v
	default:
		return
	}
	n.Scheme = SchemeChannel
}

// ClearSpecific drops all three channel counters.
func (n *Numbering) ClearSpecific() {
	n.Cash = nil
	n.Transfer = nil
	n.Card = nil
	if n.Scheme == SchemeChannel {
		n.Scheme = SchemeGeneral
	}
}

// Clear resets the numbering to the unpaid state.
func (n *Numbering) Clear() {
	*n = Numbering{Scheme: SchemeNone}
}

// LegacyValue parses the legacy folio. Garbage counts as absent.
func (n Numbering) LegacyValue() (int64, bool) {
	return ParseFolio(n.Folio)
}

// ParseFolio reads a stored folio value, treating blanks, non-numeric text
// and non-positive numbers as no value.
func ParseFolio(raw string) (int64, bool) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// Transaction is one financial movement of a campus.
type Transaction struct {
	ID            string          `json:"id" db:"id"`
	CampusID      int64           `json:"campus_id" db:"campus_id"`
	DebtID        *string         `json:"debt_id,omitempty" db:"debt_id"`
	CardID        *int64          `json:"card_id,omitempty" db:"card_id"`
	PaymentMethod PaymentMethod   `json:"payment_method" db:"payment_method"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Paid          bool            `json:"paid" db:"paid"`
	PaymentDate   *time.Time      `json:"payment_date,omitempty" db:"payment_date"`
	Notes         string          `json:"notes,omitempty" db:"notes"`
	Numbering
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// DisplayFolio is computed on read, never stored.
	DisplayFolio string `json:"display_folio,omitempty" db:"-"`
}

// CreateTransactionRequest for recording a movement. Paid defaults to true.
type CreateTransactionRequest struct {
	CampusID      int64           `json:"campus_id"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	CardID        *int64          `json:"card_id"`
	Amount        decimal.Decimal `json:"amount"`
	DebtID        *string         `json:"debt_id"`
	Paid          *bool           `json:"paid"`
	PaymentDate   *time.Time      `json:"payment_date"`
	Notes         string          `json:"notes"`

	IdempotencyKey string `json:"-"`
}

// UpdateTransactionRequest carries only the fields being changed. ClearCard
// and ClearDebt detach the card or debt.
type UpdateTransactionRequest struct {
	PaymentMethod *PaymentMethod   `json:"payment_method"`
	CardID        *int64           `json:"card_id"`
	ClearCard     bool             `json:"clear_card"`
	Amount        *decimal.Decimal `json:"amount"`
	Paid          *bool            `json:"paid"`
	PaymentDate   *time.Time       `json:"payment_date"`
	DebtID        *string          `json:"debt_id"`
	ClearDebt     bool             `json:"clear_debt"`
	Notes         *string          `json:"notes"`
}

// Card is a configured payment account or device.
type Card struct {
	ID          int64         `json:"id" db:"id"`
	CampusID    int64         `json:"campus_id" db:"campus_id"`
	Name        string        `json:"name" db:"name"`
	ChannelHint PaymentMethod `json:"channel_hint" db:"channel_hint"`
	SAT         bool          `json:"sat" db:"sat"`
}

// Campus is the owning scope of transactions and folio sequences.
type Campus struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}
