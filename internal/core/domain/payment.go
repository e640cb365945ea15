package domain

// PaymentIntent is what the gateway hands back after a create-order call.
// Nothing of it is persisted; the shopper is redirected to OrderURL and the
// gateway echoes AppTransID in its callback.
type PaymentIntent struct {
	AppTransID string
	OrderURL   string
	Amount     int64
}

// PaymentCallback carries the fields recovered from a verified callback body.
type PaymentCallback struct {
	InvoiceID string
	PaymentID string // the gateway's app_trans_id
}

// CallbackResult is the structured body the gateway expects on every callback,
// success or not. return_code: 1 success, -1 bad mac, 0 internal failure.
type CallbackResult struct {
	ReturnCode    int    `json:"return_code"`
	ReturnMessage string `json:"return_message"`
}

type InvoiceEventType string

const (
	EventInvoiceCreated InvoiceEventType = "invoice:new"
	EventInvoiceStatus  InvoiceEventType = "invoice:update-status"
)

// InvoiceEvent is a fire-and-forget notification for the real-time broadcast
// subsystem. Delivery failure must never block or fail the pipeline.
type InvoiceEvent struct {
	Type      InvoiceEventType `json:"type"`
	InvoiceID string           `json:"invoiceID"`
	UserID    string           `json:"userID,omitempty"`
	Status    InvoiceStatus    `json:"status,omitempty"`
}
