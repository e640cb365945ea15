package domain

import "time"

type InvoiceStatus string

const (
	StatusNew            InvoiceStatus = "NEW"
	StatusPaymentWaiting InvoiceStatus = "PAYMENT_WAITING"
	StatusShipping       InvoiceStatus = "SHIPPING"
	StatusDone           InvoiceStatus = "DONE"
	StatusAbort          InvoiceStatus = "ABORT"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case StatusNew, StatusPaymentWaiting, StatusShipping, StatusDone, StatusAbort:
		return true
	}
	return false
}

// Terminal statuses accept no further transitions.
func (s InvoiceStatus) Terminal() bool {
	return s == StatusDone || s == StatusAbort
}

type PaymentMethod string

const (
	PaymentNone    PaymentMethod = "NONE"
	PaymentCOD     PaymentMethod = "COD"
	PaymentBanking PaymentMethod = "BANKING"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentNone, PaymentCOD, PaymentBanking:
		return true
	}
	return false
}

// SettlementRequired reports whether moving an invoice from prev to next
// crosses the paid boundary and therefore must commit the stock decrement.
func SettlementRequired(prev, next InvoiceStatus) bool {
	return (prev == StatusNew || prev == StatusPaymentWaiting) &&
		(next == StatusShipping || next == StatusDone)
}

// Invoice is an append-only order record. Rows are created once and then
// mutated only through guarded status transitions; they are never deleted.
type Invoice struct {
	InvoiceID     string
	Status        InvoiceStatus
	Payment       PaymentMethod
	PaymentID     string // gateway transaction reference, empty until confirmed
	UserID        string
	UserName      string
	Email         string
	PhoneNumber   string
	Province      string
	District      string
	Ward          string
	DetailAddress string
	Note          string
	ShippingFee   int64
	StockSettled  bool
	CreatedAt     time.Time
	DoneAt        *time.Time
	Lines         []InvoiceLine
}

// InvoiceLine is a price-point-in-time snapshot of one ordered item.
// Quantity is the quantity the shopper requested, not remaining stock.
// Once persisted the pricing fields never change, even if the catalog does.
type InvoiceLine struct {
	InvoiceID    string
	ProductID    string
	ItemID       string
	ProductName  string
	ProductCode  string
	Color        string
	Storage      string
	CategoryName string
	ProviderName string
	Thumbnail    string
	Quantity     int
	Price        int64
	Discount     float64 // percent, 0..100
}

// Subtotal applies the line discount: quantity * (1 - discount/100) * price.
func (l InvoiceLine) Subtotal() float64 {
	return float64(l.Quantity) * (1 - l.Discount/100) * float64(l.Price)
}

// InvoiceAmount is the total payable for a line set, truncated to a whole
// currency unit as the gateway protocol requires.
func InvoiceAmount(lines []InvoiceLine) int64 {
	var total float64
	for _, l := range lines {
		total += l.Subtotal()
	}
	return int64(total)
}
