package domain

// LineRequest identifies one requested order line.
type LineRequest struct {
	ProductID string `json:"productID"`
	ItemID    string `json:"itemID"`
	Quantity  int    `json:"quantity"`
}

// StockItem is the catalog's view of one sellable item, joined with the
// denormalized display fields that get copied onto invoice lines.
type StockItem struct {
	ItemID       string
	ProductID    string
	ProductName  string
	ProductCode  string
	Color        string
	Storage      string
	CategoryName string
	ProviderName string
	Thumbnail    string
	Quantity     int
	Price        int64
	Discount     float64
}

// OrderSnapshot is the validated, priced line set for one order, keyed by
// itemID. Quantity holds the requested quantity substituted in place of the
// remaining stock. It lives in memory only; invoice lines are built from it.
type OrderSnapshot map[string]StockItem

// InvoiceLines materializes the snapshot into immutable invoice lines.
func (s OrderSnapshot) InvoiceLines(invoiceID string) []InvoiceLine {
	lines := make([]InvoiceLine, 0, len(s))
	for _, item := range s {
		lines = append(lines, InvoiceLine{
			InvoiceID:    invoiceID,
			ProductID:    item.ProductID,
			ItemID:       item.ItemID,
			ProductName:  item.ProductName,
			ProductCode:  item.ProductCode,
			Color:        item.Color,
			Storage:      item.Storage,
			CategoryName: item.CategoryName,
			ProviderName: item.ProviderName,
			Thumbnail:    item.Thumbnail,
			Quantity:     item.Quantity,
			Price:        item.Price,
			Discount:     item.Discount,
		})
	}
	return lines
}

// LineRequests converts persisted invoice lines back into the request shape
// used for pre-settlement re-validation.
func LineRequests(lines []InvoiceLine) []LineRequest {
	reqs := make([]LineRequest, 0, len(lines))
	for _, l := range lines {
		reqs = append(reqs, LineRequest{
			ProductID: l.ProductID,
			ItemID:    l.ItemID,
			Quantity:  l.Quantity,
		})
	}
	return reqs
}

type User struct {
	UserID   string
	UserName string
}
