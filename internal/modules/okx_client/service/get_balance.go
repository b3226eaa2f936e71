package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"trade_core/internal/models"
)

func (c *Client) GetBalance(ctx context.Context, ccy string) (models.Balance, error) {
	if ccy == "" {
		ccy = "USDT"
	}
	requestPath := "/api/v5/account/balance?ccy=" + url.QueryEscape(ccy)

	req, err := c.signedRequest(ctx, http.MethodGet, requestPath, "")
	if err != nil {
		return models.Balance{}, rejectf("GetBalance: %v", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return models.Balance{}, transportErr("GetBalance", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return models.Balance{}, classifyHTTP("GetBalance", resp.StatusCode, data)
	}

	var r balanceResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return models.Balance{}, rejectf("GetBalance decode: %v", err)
	}
	if r.Code != "0" {
		return models.Balance{}, rejectf("GetBalance error: code=%s msg=%s", r.Code, r.Msg)
	}

	for _, d := range r.Data {
		for _, det := range d.Details {
			if !strings.EqualFold(det.Ccy, ccy) {
				continue
			}
			avail, _ := strconv.ParseFloat(det.AvailBal, 64)
			eq, _ := strconv.ParseFloat(det.Eq, 64)
			return models.Balance{Currency: ccy, Available: avail, Equity: eq}, nil
		}
	}
	return models.Balance{}, rejectf("GetBalance: ccy %s not found", ccy)
}
