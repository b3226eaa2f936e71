package service

import "trade_core/internal/broker"

var _ broker.Broker = (*Client)(nil)
