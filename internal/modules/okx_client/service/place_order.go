package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"trade_core/internal/broker"
	"trade_core/internal/models"

	"github.com/bytedance/sonic"
)

// PlaceOrder выставляет один ордер. Маркет/лимит идут в /trade/order,
// защитные (stop/tp) — в /trade/order-algo как conditional. Label кладём
// в tag: по нему потом матчим ноги группы.
func (c *Client) PlaceOrder(ctx context.Context, req broker.OrderRequest) (*models.Order, error) {
	if req.Amount <= 0 {
		return nil, rejectf("PlaceOrder: size <= 0")
	}

	switch req.Type {
	case models.OrderMarket, models.OrderLimit:
		return c.placeRegular(ctx, req)
	case models.OrderStopMarket, models.OrderTakeProfit:
		return c.placeConditional(ctx, req)
	default:
		return nil, rejectf("PlaceOrder: unsupported type %q", req.Type)
	}
}

func (c *Client) placeRegular(ctx context.Context, req broker.OrderRequest) (*models.Order, error) {
	body := map[string]any{
		"instId":  req.Instrument,
		"tdMode":  "cross",
		"side":    strings.ToLower(string(req.Side)),
		"ordType": string(req.Type),
		"sz":      formatSize(req.Amount),
		"tag":     req.Label,
	}
	if req.Type == models.OrderLimit {
		body["px"] = formatPrice(req.Price)
	}
	if req.ReduceOnly {
		body["reduceOnly"] = true
	}

	payload, err := sonic.Marshal(body)
	if err != nil {
		return nil, rejectf("PlaceOrder marshal: %v", err)
	}

	const requestPath = "/api/v5/trade/order"

	httpReq, err := c.signedRequest(ctx, http.MethodPost, requestPath, string(payload))
	if err != nil {
		return nil, rejectf("PlaceOrder: %v", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, transportErr("PlaceOrder", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, classifyHTTP("PlaceOrder", resp.StatusCode, data)
	}

	var r orderAckResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, rejectf("PlaceOrder decode: %v; body=%s", err, string(data))
	}

	// детальный статус
	if len(r.Data) > 0 && r.Data[0].SCode != "0" {
		return nil, rejectf("PlaceOrder rejected: sCode=%s sMsg=%s", r.Data[0].SCode, r.Data[0].SMsg)
	}
	// общий код
	if r.Code != "0" {
		return nil, rejectf("PlaceOrder error: code=%s msg=%s", r.Code, r.Msg)
	}
	if len(r.Data) == 0 || r.Data[0].OrdID == "" {
		return nil, rejectf("PlaceOrder: empty ordId RAW=%s", string(data))
	}

	status := models.OrderStatusLive
	if req.Type == models.OrderMarket {
		// принятый маркет считаем исполненным; pending-лимиты разбирает реконсиляция
		status = models.OrderStatusFilled
	}

	return &models.Order{
		OrderID:    r.Data[0].OrdID,
		Instrument: req.Instrument,
		Side:       req.Side,
		Type:       req.Type,
		Amount:     req.Amount,
		Price:      req.Price,
		Label:      req.Label,
		ReduceOnly: req.ReduceOnly,
		Status:     status,
		CreatedAt:  time.Now(),
	}, nil
}

func (c *Client) placeConditional(ctx context.Context, req broker.OrderRequest) (*models.Order, error) {
	if req.Price <= 0 {
		return nil, rejectf("PlaceOrder: triggerPx <= 0")
	}

	body := map[string]string{
		"instId":  req.Instrument,
		"tdMode":  "cross",
		"side":    strings.ToLower(string(req.Side)),
		"ordType": "conditional",
		"sz":      formatSize(req.Amount),
		"tag":     req.Label,
	}
	if req.ReduceOnly {
		body["reduceOnly"] = "true"
	}

	if req.Type == models.OrderTakeProfit {
		body["tpTriggerPx"] = formatPrice(req.Price)
		body["tpOrdPx"] = "-1"
		body["tpTriggerPxType"] = "last"
	} else {
		body["slTriggerPx"] = formatPrice(req.Price)
		body["slOrdPx"] = "-1"
		body["slTriggerPxType"] = "last"
	}

	payload, err := sonic.Marshal(body)
	if err != nil {
		return nil, rejectf("PlaceOrder marshal: %v", err)
	}

	const requestPath = "/api/v5/trade/order-algo"

	httpReq, err := c.signedRequest(ctx, http.MethodPost, requestPath, string(payload))
	if err != nil {
		return nil, rejectf("PlaceOrder: %v", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, transportErr("PlaceOrder", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, classifyHTTP("PlaceOrder", resp.StatusCode, data)
	}

	var r algoAckResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, rejectf("PlaceOrder decode: %v; body=%s", err, string(data))
	}

	if len(r.Data) > 0 && r.Data[0].SCode != "0" {
		return nil, rejectf("PlaceOrder algo rejected: sCode=%s sMsg=%s", r.Data[0].SCode, r.Data[0].SMsg)
	}
	if r.Code != "0" {
		return nil, rejectf("PlaceOrder algo error: code=%s msg=%s", r.Code, r.Msg)
	}
	if len(r.Data) == 0 || r.Data[0].AlgoID == "" {
		return nil, rejectf("PlaceOrder: empty algoId RAW=%s", string(data))
	}

	return &models.Order{
		OrderID:    r.Data[0].AlgoID,
		Instrument: req.Instrument,
		Side:       req.Side,
		Type:       req.Type,
		Amount:     req.Amount,
		Price:      req.Price,
		Label:      req.Label,
		ReduceOnly: req.ReduceOnly,
		Status:     models.OrderStatusLive,
		CreatedAt:  time.Now(),
	}, nil
}
