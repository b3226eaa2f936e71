package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"trade_core/internal/models"
)

// GetOpenOrders собирает живые ордера: обычные pending плюс conditional-algo.
// Для вызывающего это один список — роль ноги восстанавливается по label.
func (c *Client) GetOpenOrders(ctx context.Context, instID string) ([]models.Order, error) {
	regular, err := c.pendingOrders(ctx, instID)
	if err != nil {
		return nil, err
	}
	algos, err := c.pendingAlgos(ctx, instID)
	if err != nil {
		return nil, err
	}
	return append(regular, algos...), nil
}

func (c *Client) pendingOrders(ctx context.Context, instID string) ([]models.Order, error) {
	requestPath := "/api/v5/trade/orders-pending?instType=SWAP"
	if instID != "" {
		requestPath += "&instId=" + url.QueryEscape(instID)
	}

	req, err := c.signedRequest(ctx, http.MethodGet, requestPath, "")
	if err != nil {
		return nil, rejectf("GetOpenOrders: %v", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportErr("GetOpenOrders", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, classifyHTTP("GetOpenOrders", resp.StatusCode, data)
	}

	var r struct {
		Code string         `json:"code"`
		Msg  string         `json:"msg"`
		Data []pendingOrder `json:"data"`
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, rejectf("GetOpenOrders decode: %v", err)
	}
	if r.Code != "0" {
		return nil, rejectf("GetOpenOrders error: code=%s msg=%s", r.Code, r.Msg)
	}

	out := make([]models.Order, 0, len(r.Data))
	for _, d := range r.Data {
		sz, _ := strconv.ParseFloat(d.Sz, 64)
		px, _ := strconv.ParseFloat(d.Px, 64)
		out = append(out, models.Order{
			OrderID:    d.OrdID,
			Instrument: d.InstID,
			Side:       sideFromOKX(d.Side),
			Type:       models.OrderType(d.OrdType),
			Amount:     sz,
			Price:      px,
			Label:      d.Tag,
			ReduceOnly: d.ReduceOnly == "true",
			Status:     stateFromOKX(d.State),
			CreatedAt:  timeFromMillis(d.CTime),
		})
	}
	return out, nil
}

func (c *Client) pendingAlgos(ctx context.Context, instID string) ([]models.Order, error) {
	requestPath := "/api/v5/trade/orders-algo-pending?ordType=conditional"
	if instID != "" {
		requestPath += "&instId=" + url.QueryEscape(instID)
	}

	req, err := c.signedRequest(ctx, http.MethodGet, requestPath, "")
	if err != nil {
		return nil, rejectf("GetOpenOrders: %v", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportErr("GetOpenOrders", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, classifyHTTP("GetOpenOrders", resp.StatusCode, data)
	}

	var r struct {
		Code string        `json:"code"`
		Msg  string        `json:"msg"`
		Data []pendingAlgo `json:"data"`
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, rejectf("GetOpenOrders decode: %v", err)
	}
	if r.Code != "0" {
		return nil, rejectf("GetOpenOrders algo error: code=%s msg=%s", r.Code, r.Msg)
	}

	out := make([]models.Order, 0, len(r.Data))
	for _, d := range r.Data {
		sz, _ := strconv.ParseFloat(d.Sz, 64)

		// conditional-ноги всегда reduce-only в нашей схеме
		typ := models.OrderStopMarket
		px, _ := strconv.ParseFloat(d.SlTriggerPx, 64)
		if d.TpTriggerPx != "" {
			typ = models.OrderTakeProfit
			px, _ = strconv.ParseFloat(d.TpTriggerPx, 64)
		}

		out = append(out, models.Order{
			OrderID:    d.AlgoID,
			Instrument: d.InstID,
			Side:       sideFromOKX(d.Side),
			Type:       typ,
			Amount:     sz,
			Price:      px,
			Label:      d.Tag,
			ReduceOnly: true,
			Status:     stateFromOKX(d.State),
			CreatedAt:  timeFromMillis(d.CTime),
		})
	}
	return out, nil
}

func sideFromOKX(s string) models.Side {
	if s == "buy" {
		return models.SideBuy
	}
	return models.SideSell
}

func stateFromOKX(s string) models.OrderStatus {
	switch s {
	case "live", "effective":
		return models.OrderStatusLive
	case "partially_filled":
		return models.OrderStatusPartiallyFilled
	case "filled":
		return models.OrderStatusFilled
	case "canceled":
		return models.OrderStatusCanceled
	default:
		return models.OrderStatusLive
	}
}

func timeFromMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
