// Package gateway implements the ZaloPay-style signed payment protocol:
// outbound create-order requests signed with key1 and inbound callbacks
// authenticated with key2.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ghshop/storefront/internal/config"
	"github.com/ghshop/storefront/internal/core/domain"
)

// paymentOrder mirrors the gateway's create-order request fields.
type paymentOrder struct {
	AppID       int
	AppTransID  string
	AppUser     string
	AppTime     int64 // epoch milliseconds
	Item        string
	EmbedData   string
	Amount      int64
	Description string
	BankCode    string
	CallbackURL string
	Mac         string
}

type createOrderResponse struct {
	ReturnCode    int    `json:"return_code"`
	ReturnMessage string `json:"return_message"`
	OrderURL      string `json:"order_url"`
}

// callbackData is the JSON the gateway embeds in the callback's data field.
type callbackData struct {
	AppTransID string `json:"app_trans_id"`
	Item       string `json:"item"`
}

type ZaloPay struct {
	cfg    config.GatewayConfig
	client *http.Client

	// overridable for deterministic tests
	now     func() time.Time
	randInt func() int
}

func New(cfg config.GatewayConfig, client *http.Client) *ZaloPay {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ZaloPay{
		cfg:     cfg,
		client:  client,
		now:     time.Now,
		randInt: func() int { return rand.Intn(1000000) },
	}
}

// buildOrder assembles and signs a payment order for the invoice. The amount
// is computed server-side from the invoice lines; the mac covers
// app_id|app_trans_id|app_user|amount|app_time|embed_data|item with key1.
func (z *ZaloPay) buildOrder(inv *domain.Invoice) (paymentOrder, error) {
	embed, err := json.Marshal(map[string]string{"redirecturl": z.cfg.RedirectURL})
	if err != nil {
		return paymentOrder{}, fmt.Errorf("marshal embed_data: %w", err)
	}
	item, err := json.Marshal([]string{inv.InvoiceID})
	if err != nil {
		return paymentOrder{}, fmt.Errorf("marshal item: %w", err)
	}

	now := z.now()
	order := paymentOrder{
		AppID:       z.cfg.AppID,
		AppTransID:  fmt.Sprintf("%s_%06d", now.Format("060102"), z.randInt()),
		AppUser:     inv.UserID,
		AppTime:     now.UnixMilli(),
		Item:        string(item),
		EmbedData:   string(embed),
		Amount:      domain.InvoiceAmount(inv.Lines),
		Description: fmt.Sprintf("GH Shop - Payment for the order #%s", inv.InvoiceID),
		BankCode:    "",
		CallbackURL: z.cfg.CallbackURL,
	}

	payload := strings.Join([]string{
		strconv.Itoa(order.AppID),
		order.AppTransID,
		order.AppUser,
		strconv.FormatInt(order.Amount, 10),
		strconv.FormatInt(order.AppTime, 10),
		order.EmbedData,
		order.Item,
	}, "|")
	order.Mac = signHex(payload, z.cfg.Key1)

	return order, nil
}

func (z *ZaloPay) CreateOrder(ctx context.Context, inv *domain.Invoice) (*domain.PaymentIntent, error) {
	order, err := z.buildOrder(inv)
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"app_id":       {strconv.Itoa(order.AppID)},
		"app_trans_id": {order.AppTransID},
		"app_user":     {order.AppUser},
		"app_time":     {strconv.FormatInt(order.AppTime, 10)},
		"item":         {order.Item},
		"embed_data":   {order.EmbedData},
		"amount":       {strconv.FormatInt(order.Amount, 10)},
		"description":  {order.Description},
		"bank_code":    {order.BankCode},
		"callback_url": {order.CallbackURL},
		"mac":          {order.Mac},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.cfg.Endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrGatewayCall, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := z.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayCall, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: gateway returned HTTP %d", domain.ErrGatewayCall, resp.StatusCode)
	}

	var body createOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrGatewayCall, err)
	}
	if body.ReturnCode != 1 {
		return nil, fmt.Errorf("%w: %s", domain.ErrGatewayCall, body.ReturnMessage)
	}

	return &domain.PaymentIntent{
		AppTransID: order.AppTransID,
		OrderURL:   body.OrderURL,
		Amount:     order.Amount,
	}, nil
}

// VerifyCallback recomputes HMAC-SHA256(data, key2) and compares it to the
// supplied mac in constant time.
func (z *ZaloPay) VerifyCallback(data, mac string) bool {
	expected := signHex(data, z.cfg.Key2)
	return hmac.Equal([]byte(expected), []byte(mac))
}

func (z *ZaloPay) DecodeCallback(data string) (*domain.PaymentCallback, error) {
	var cb callbackData
	if err := json.Unmarshal([]byte(data), &cb); err != nil {
		return nil, fmt.Errorf("decode callback data: %w", err)
	}

	var items []string
	if err := json.Unmarshal([]byte(cb.Item), &items); err != nil {
		return nil, fmt.Errorf("decode callback item: %w", err)
	}
	if len(items) == 0 || items[0] == "" {
		return nil, fmt.Errorf("callback item holds no invoiceID")
	}

	return &domain.PaymentCallback{
		InvoiceID: items[0],
		PaymentID: cb.AppTransID,
	}, nil
}

func signHex(payload, key string) string {
	h := hmac.New(sha256.New, []byte(key))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
