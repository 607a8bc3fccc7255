// Package pagbank предоставляет клиент платёжного шлюза PagBank.
package pagbank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// StatusPaid — статус оплаченного платежа в нотификациях шлюза.
const StatusPaid = "PAID"

// Amount описывает денежную сумму в сентаво.
type Amount struct {
	Value int64 `json:"value"`
}

// Phone описывает телефон покупателя в формате шлюза.
type Phone struct {
	Country string `json:"country"`
	Area    string `json:"area"`
	Number  string `json:"number"`
}

// Customer описывает покупателя, обязательного для создания заказа.
type Customer struct {
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	TaxID  string  `json:"tax_id"`
	Phones []Phone `json:"phones,omitempty"`
}

// Item описывает позицию заказа.
type Item struct {
	ReferenceID string `json:"reference_id"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	UnitAmount  int64  `json:"unit_amount"`
}

// PaymentMethod описывает способ оплаты платежа.
type PaymentMethod struct {
	Type string `json:"type"`
}

// Charge описывает один платёж в составе заказа.
type Charge struct {
	ReferenceID   string        `json:"reference_id"`
	Description   string        `json:"description"`
	Amount        Amount        `json:"amount"`
	PaymentMethod PaymentMethod `json:"payment_method"`
}

// QRCode описывает запрос на выпуск QR-кода PIX.
type QRCode struct {
	Amount Amount `json:"amount"`
}

// OrderRequest — тело запроса создания заказа в шлюзе.
type OrderRequest struct {
	ReferenceID      string   `json:"reference_id"`
	Customer         Customer `json:"customer"`
	Items            []Item   `json:"items"`
	Charges          []Charge `json:"charges"`
	QRCodes          []QRCode `json:"qr_codes"`
	NotificationURLs []string `json:"notification_urls"`
}

// Link описывает ссылку в ответе шлюза.
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// QRCodeResponse содержит выпущенный QR-код PIX.
type QRCodeResponse struct {
	Text  string `json:"text"`
	Links []Link `json:"links"`
}

// OrderResponse — ответ шлюза на создание заказа.
type OrderResponse struct {
	ID      string           `json:"id"`
	QRCodes []QRCodeResponse `json:"qr_codes"`
}

// NotificationCharge описывает один платёж в теле вебхука шлюза.
type NotificationCharge struct {
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
	Amount      Amount `json:"amount"`
}

// Notification — тело асинхронного вебхука шлюза.
type Notification struct {
	Charges []NotificationCharge `json:"charges"`
}

// Client инкапсулирует HTTP-взаимодействие с PagBank.
type Client struct {
	baseURL    string
	token      string
	httpClient *retryablehttp.Client
}

// NewClient создаёт клиент шлюза по указанному адресу и токену приложения.
// Транспорт повторяет запросы при сетевых сбоях и ответах 5xx.
func NewClient(baseURL, token string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: rc,
	}
}

// CreateOrder создаёт заказ с PIX-платежом и возвращает выпущенный QR-код.
func (c *Client) CreateOrder(ctx context.Context, order OrderRequest) (*OrderResponse, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("pagbank client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	body, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, base+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var result OrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &result, nil
}
