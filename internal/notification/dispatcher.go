// Package notification предоставляет клиент провайдера push-уведомлений.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Dispatcher инкапсулирует HTTP-взаимодействие с провайдером push-уведомлений.
// Отправка best-effort: запросы не повторяются, чтобы не дублировать уведомления.
type Dispatcher struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewDispatcher создаёт клиент провайдера по указанному адресу и ключу API.
func NewDispatcher(baseURL, apiKey string) *Dispatcher {
	return &Dispatcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type sendRequest struct {
	Tokens []string `json:"tokens"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
}

type sendResponse struct {
	InvalidTokens []string `json:"invalid_tokens"`
}

// Send доставляет сообщение на указанные токены устройств и возвращает токены,
// которые провайдер признал недействительными.
func (d *Dispatcher) Send(ctx context.Context, tokens []string, title, body string) ([]string, error) {
	if d == nil || d.baseURL == "" {
		return nil, fmt.Errorf("push dispatcher not configured")
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	base := d.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	payload, err := json.Marshal(sendRequest{
		Tokens: tokens,
		Title:  title,
		Body:   body,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return result.InvalidTokens, nil
}
