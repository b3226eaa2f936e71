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

func (c *Client) GetOrder(ctx context.Context, instID, orderID string) (*models.Order, error) {
	requestPath := "/api/v5/trade/order?instId=" + url.QueryEscape(instID) +
		"&ordId=" + url.QueryEscape(orderID)

	req, err := c.signedRequest(ctx, http.MethodGet, requestPath, "")
	if err != nil {
		return nil, rejectf("GetOrder: %v", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportErr("GetOrder", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, classifyHTTP("GetOrder", resp.StatusCode, data)
	}

	var r struct {
		Code string         `json:"code"`
		Msg  string         `json:"msg"`
		Data []pendingOrder `json:"data"`
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, rejectf("GetOrder decode: %v", err)
	}
	if r.Code != "0" {
		return nil, rejectf("GetOrder error: code=%s msg=%s", r.Code, r.Msg)
	}
	if len(r.Data) == 0 {
		return nil, rejectf("GetOrder: order %s not found", orderID)
	}

	d := r.Data[0]
	sz, _ := strconv.ParseFloat(d.Sz, 64)
	px, _ := strconv.ParseFloat(d.Px, 64)

	return &models.Order{
		OrderID:    d.OrdID,
		Instrument: d.InstID,
		Side:       sideFromOKX(strings.ToLower(d.Side)),
		Type:       models.OrderType(d.OrdType),
		Amount:     sz,
		Price:      px,
		Label:      d.Tag,
		ReduceOnly: d.ReduceOnly == "true",
		Status:     stateFromOKX(d.State),
		CreatedAt:  timeFromMillis(d.CTime),
	}, nil
}
