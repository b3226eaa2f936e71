package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"trade_core/internal/models"

	"github.com/bytedance/sonic"
)

// CancelOrder снимает ордер. Сначала пробуем обычный cancel-order; если биржа
// его не знает (нога SL/TP живёт как algo-ордер) — cancel-algos.
func (c *Client) CancelOrder(ctx context.Context, instID, orderID string) error {
	err := c.cancelRegular(ctx, instID, orderID)
	if err == nil {
		return nil
	}
	if models.KindOf(err) == models.ErrKindBrokerTransient {
		return err
	}
	return c.cancelAlgo(ctx, instID, orderID)
}

func (c *Client) cancelRegular(ctx context.Context, instID, orderID string) error {
	body := map[string]string{"instId": instID, "ordId": orderID}
	payload, _ := sonic.Marshal(body)

	const requestPath = "/api/v5/trade/cancel-order"

	req, err := c.signedRequest(ctx, http.MethodPost, requestPath, string(payload))
	if err != nil {
		return rejectf("CancelOrder: %v", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportErr("CancelOrder", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return classifyHTTP("CancelOrder", resp.StatusCode, data)
	}

	var r orderAckResponse
	_ = json.Unmarshal(data, &r)

	if r.Code != "0" {
		return rejectf("CancelOrder error: code=%s msg=%s RAW=%s", r.Code, r.Msg, string(data))
	}
	if len(r.Data) == 0 || r.Data[0].SCode != "0" {
		return rejectf("CancelOrder reject RAW=%s", string(data))
	}
	return nil
}

func (c *Client) cancelAlgo(ctx context.Context, instID, algoID string) error {
	body := []map[string]string{{"instId": instID, "algoId": algoID}}
	payload, _ := sonic.Marshal(body)

	const requestPath = "/api/v5/trade/cancel-algos"

	req, err := c.signedRequest(ctx, http.MethodPost, requestPath, string(payload))
	if err != nil {
		return rejectf("CancelOrder: %v", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportErr("CancelOrder", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return classifyHTTP("CancelOrder", resp.StatusCode, data)
	}

	var r algoAckResponse
	_ = json.Unmarshal(data, &r)

	if r.Code != "0" {
		return rejectf("CancelOrder algo error: code=%s msg=%s RAW=%s", r.Code, r.Msg, string(data))
	}
	if len(r.Data) == 0 || r.Data[0].SCode != "0" {
		return rejectf("CancelOrder algo reject RAW=%s", string(data))
	}
	return nil
}

// CancelAllOrders снимает все живые ордера по инструменту, включая algo-ноги.
func (c *Client) CancelAllOrders(ctx context.Context, instID string) error {
	orders, err := c.GetOpenOrders(ctx, instID)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if err := c.CancelOrder(ctx, instID, o.OrderID); err != nil {
			return err
		}
	}
	return nil
}
