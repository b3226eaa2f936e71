package service

import (
	"testing"

	"trade_core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tick(px float64) models.CandleTick {
	return models.CandleTick{InstID: "BTC-USDT-SWAP", TF: "15m", Close: px}
}

func TestEMASource_NoSignalDuringWarmup(t *testing.T) {
	e := NewEMASource(3, 6)
	for i := 0; i < 6; i++ {
		assert.Nil(t, e.OnTick(tick(100+float64(i)*50)))
	}
}

func TestEMASource_CrossBothWays(t *testing.T) {
	e := NewEMASource(3, 6)

	// прогрев на ровном рынке
	for i := 0; i < 10; i++ {
		e.OnTick(tick(100))
	}

	// резкий рост — короткая EMA уходит выше длинной
	var buy *models.Signal
	for i := 0; i < 20 && buy == nil; i++ {
		buy = e.OnTick(tick(150 + float64(i)*10))
	}
	require.NotNil(t, buy)
	assert.Equal(t, models.SideBuy, buy.Side)
	assert.Equal(t, "ema_cross", buy.Strategy)

	// продолжение роста кросс не повторяет
	assert.Nil(t, e.OnTick(tick(500)))

	// обвал — обратное пересечение
	var sell *models.Signal
	for i := 0; i < 30 && sell == nil; i++ {
		sell = e.OnTick(tick(300 - float64(i)*10))
	}
	require.NotNil(t, sell)
	assert.Equal(t, models.SideSell, sell.Side)
}
