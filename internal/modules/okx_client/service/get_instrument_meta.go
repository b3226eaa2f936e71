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

func (c *Client) GetInstrumentMeta(ctx context.Context, instID string) (models.Instrument, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		baseURL+"/api/v5/public/instruments?instType=SWAP&instId="+url.QueryEscape(instID),
		nil,
	)
	if err != nil {
		return models.Instrument{}, rejectf("GetInstrumentMeta: %v", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return models.Instrument{}, transportErr("GetInstrumentMeta", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return models.Instrument{}, classifyHTTP("GetInstrumentMeta", resp.StatusCode, data)
	}

	var payload instrumentResponse
	if err := json.Unmarshal(data, &payload); err != nil {
		return models.Instrument{}, rejectf("GetInstrumentMeta decode: %v", err)
	}
	if payload.Code != "0" {
		return models.Instrument{}, rejectf("GetInstrumentMeta error %s: %s", payload.Code, payload.Msg)
	}
	if len(payload.Data) == 0 {
		return models.Instrument{}, rejectf("instrument %s not found", instID)
	}

	inst := payload.Data[0]
	if inst.State != "" && inst.State != "live" {
		return models.Instrument{}, rejectf("instrument %s not live: state=%s", instID, inst.State)
	}

	parsePos := func(name, s string) (float64, error) {
		if s == "" {
			return 0, rejectf("%s empty", name)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			return 0, rejectf("%s parse: %v (%q)", name, err, s)
		}
		return v, nil
	}

	lotSz, err := parsePos("lotSz", inst.LotSz)
	if err != nil {
		return models.Instrument{}, err
	}
	minSz, err := parsePos("minSz", inst.MinSz)
	if err != nil {
		return models.Instrument{}, err
	}
	tickSz, err := parsePos("tickSz", inst.TickSz)
	if err != nil {
		return models.Instrument{}, err
	}
	ctValBase, err := parsePos("ctVal", inst.CtVal)
	if err != nil {
		return models.Instrument{}, err
	}

	ctMult := 1.0
	if inst.CtMult != "" {
		if v, e := strconv.ParseFloat(inst.CtMult, 64); e == nil && v > 0 {
			ctMult = v
		}
	}

	var maxMktSz float64
	if inst.MaxMktSz != "" {
		maxMktSz, _ = strconv.ParseFloat(inst.MaxMktSz, 64)
	}

	lastPx, err := c.getLastPrice(ctx, instID)
	if err != nil {
		return models.Instrument{}, err
	}
	if lastPx <= 0 {
		return models.Instrument{}, rejectf("lastPx <= 0: %.10f", lastPx)
	}

	return models.Instrument{
		InstID:   inst.InstID,
		LastPx:   lastPx,
		LotSz:    lotSz,
		MinSz:    minSz,
		TickSz:   tickSz,
		CtVal:    ctValBase * ctMult,
		MaxMktSz: maxMktSz,
	}, nil
}

func (c *Client) getLastPrice(ctx context.Context, instID string) (float64, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		baseURL+"/api/v5/market/ticker?instId="+url.QueryEscape(instID),
		nil,
	)
	if err != nil {
		return 0, rejectf("ticker: %v", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, transportErr("ticker", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return 0, classifyHTTP("ticker", resp.StatusCode, data)
	}

	var r tickerResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return 0, rejectf("ticker decode: %v", err)
	}
	if r.Code != "0" || len(r.Data) == 0 {
		return 0, rejectf("ticker error: code=%s msg=%s", r.Code, r.Msg)
	}

	px, _ := strconv.ParseFloat(r.Data[0].Last, 64)
	return px, nil
}
