package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"trade_core/internal/models"
)

const baseURL = "https://www.okx.com"

// Client — REST-клиент OKX, сконфигурированный под креды одной джобы.
type Client struct {
	http *http.Client

	apiKey    string
	apiSecret string
	passph    string
}

func NewClient(creds models.BrokerCredentials, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		apiKey:    creds.APIKey,
		apiSecret: creds.APISecret,
		passph:    creds.Passphrase,
	}
}

func (c *Client) sign(ts, method, requestPath, body string) string {
	msg := ts + method + requestPath + body
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(msg))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (c *Client) signedRequest(ctx context.Context, method, requestPath, body string) (*http.Request, error) {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+requestPath, rd)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("OK-ACCESS-KEY", c.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", c.sign(ts, method, requestPath, body))
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.passph)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// classifyHTTP — сетевые проблемы и 5xx/429 ретраятся, остальное — нет.
func classifyHTTP(op string, status int, body []byte) error {
	if status == http.StatusTooManyRequests || status/100 == 5 {
		return models.NewError(models.ErrKindBrokerTransient,
			fmt.Sprintf("%s http %d: %s", op, status, string(body)))
	}
	return models.NewError(models.ErrKindBrokerRejected,
		fmt.Sprintf("%s http %d: %s", op, status, string(body)))
}

func transportErr(op string, err error) error {
	return models.WrapError(models.ErrKindBrokerTransient, err, op+" do")
}

func rejectf(format string, args ...any) error {
	return models.NewError(models.ErrKindBrokerRejected, fmt.Sprintf(format, args...))
}

func formatSize(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
