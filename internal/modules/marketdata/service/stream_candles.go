package service

import (
	"context"
	"strconv"
	"time"

	"trade_core/internal/models"
	"trade_core/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const wsURL = "wss://ws.okx.com:8443/ws/v5/business"

// Streamer — публичный WebSocket-поток закрытых свечей. Один коннект на
// таймфрейм с пачкой инструментов в args.
type Streamer struct {
	dialer *websocket.Dialer
}

func NewStreamer() *Streamer {
	return &Streamer{dialer: &websocket.Dialer{}}
}

// StreamCandles отдаёт только закрытые свечи (confirm=1). Реконнект с
// паузой в секунду — поток живёт, пока жив ctx.
func (s *Streamer) StreamCandles(ctx context.Context, instIDs []string, timeframe string) <-chan models.CandleTick {
	ch := make(chan models.CandleTick)

	go func() {
		defer close(ch)
		if len(instIDs) == 0 {
			return
		}

		channel := "candle" + timeframe
		tfDur, _ := time.ParseDuration(timeframe)

		args := make([]map[string]string, 0, len(instIDs))
		for _, id := range instIDs {
			args = append(args, map[string]string{"channel": channel, "instId": id})
		}

		for {
			logger.Info("ws connect %s, %d instruments", channel, len(instIDs))
			conn, _, err := s.dialer.Dial(wsURL, nil)
			if err != nil {
				logger.Warn("ws dial %s: %v", channel, err)
				if !sleepCtx(ctx, time.Second) {
					return
				}
				continue
			}

			if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": args}); err != nil {
				logger.Warn("ws subscribe %s: %v", channel, err)
				_ = conn.Close()
				continue
			}

			// keepalive ping каждые 20s, иначе биржа рвёт коннект
			stopPing := make(chan struct{})
			go func() {
				t := time.NewTicker(20 * time.Second)
				defer t.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-stopPing:
						return
					case <-t.C:
						_ = conn.WriteJSON(map[string]string{"op": "ping"})
					}
				}
			}()

			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					logger.Warn("ws read %s: %v", channel, err)
					_ = conn.Close()
					close(stopPing)
					break
				}

				var frame struct {
					Arg struct {
						Channel string `json:"channel"`
						InstID  string `json:"instId"`
					} `json:"arg"`
					Data [][]string `json:"data"`
				}
				if err := sonic.Unmarshal(msg, &frame); err != nil {
					continue
				}
				if frame.Arg.Channel != channel || len(frame.Data) == 0 {
					continue
				}

				for _, row := range frame.Data {
					tick, ok := parseCandleRow(frame.Arg.InstID, timeframe, tfDur, row)
					if !ok {
						continue
					}
					select {
					case ch <- tick:
					case <-ctx.Done():
						_ = conn.Close()
						return
					}
				}
			}

			if !sleepCtx(ctx, time.Second) {
				return
			}
		}
	}()

	return ch
}

// parseCandleRow: [ts, o, h, l, c, vol, ..., confirm]; confirm всегда
// последним элементом.
func parseCandleRow(instID, tf string, tfDur time.Duration, row []string) (models.CandleTick, bool) {
	if len(row) < 6 || row[len(row)-1] != "1" {
		return models.CandleTick{}, false
	}

	tsMs, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return models.CandleTick{}, false
	}

	open, err1 := strconv.ParseFloat(row[1], 64)
	high, err2 := strconv.ParseFloat(row[2], 64)
	low, err3 := strconv.ParseFloat(row[3], 64)
	closePx, err4 := strconv.ParseFloat(row[4], 64)
	vol, err5 := strconv.ParseFloat(row[5], 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || closePx <= 0 {
		return models.CandleTick{}, false
	}

	start := time.UnixMilli(tsMs)
	return models.CandleTick{
		InstID: instID,
		TF:     tf,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePx,
		Volume: vol,
		Start:  start,
		End:    start.Add(tfDur),
	}, true
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
