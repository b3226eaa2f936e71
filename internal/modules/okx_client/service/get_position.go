package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"trade_core/internal/models"
)

// GetPosition возвращает живую позицию по инструменту или nil, если её нет.
func (c *Client) GetPosition(ctx context.Context, instID string) (*models.BrokerPosition, error) {
	requestPath := "/api/v5/account/positions?instId=" + url.QueryEscape(instID)

	req, err := c.signedRequest(ctx, http.MethodGet, requestPath, "")
	if err != nil {
		return nil, rejectf("GetPosition: %v", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportErr("GetPosition", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, classifyHTTP("GetPosition", resp.StatusCode, data)
	}

	var r positionsResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, rejectf("GetPosition decode: %v", err)
	}
	if r.Code != "0" {
		return nil, rejectf("GetPosition error: code=%s msg=%s", r.Code, r.Msg)
	}

	for _, d := range r.Data {
		pos, _ := strconv.ParseFloat(d.Pos, 64)
		if pos == 0 {
			continue
		}

		avgPx, _ := strconv.ParseFloat(d.AvgPx, 64)
		markPx, _ := strconv.ParseFloat(d.MarkPx, 64)
		upl, _ := strconv.ParseFloat(d.Upl, 64)

		side := models.SideBuy
		if d.PosSide == "short" || pos < 0 {
			side = models.SideSell
		}
		if pos < 0 {
			pos = -pos
		}

		return &models.BrokerPosition{
			Instrument: d.InstID,
			Side:       side,
			Size:       pos,
			EntryPrice: avgPx,
			MarkPrice:  markPx,
			UnrealPnl:  upl,
		}, nil
	}
	return nil, nil
}
