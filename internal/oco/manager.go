package oco

import (
	"sync"
	"time"

	"trade_core/internal/broker"
)

// GroupState — линейный, нереентерабельный автомат одной группы.
type GroupState uint8

const (
	StateIdle GroupState = iota
	StateEntryPlacing
	StateEntryPlaced
	StateProtectionPlacing
	StateProtected
	StateRollingBack
	StateFailed
)

func (s GroupState) String() string {
	switch s {
	case StateEntryPlacing:
		return "entry_placing"
	case StateEntryPlaced:
		return "entry_placed"
	case StateProtectionPlacing:
		return "protection_placing"
	case StateProtected:
		return "protected"
	case StateRollingBack:
		return "rolling_back"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

type EventType string

const (
	EventGroupPlaced    EventType = "group_placed"
	EventGroupFailed    EventType = "group_failed"
	EventOrphanCanceled EventType = "orphan_canceled"
	EventFlattened      EventType = "flattened"
)

// Event — явный канал между менеджером ордеров и контрольным циклом воркера
// (вместо колбэков: воркер сам селектит на Events()).
type Event struct {
	Type       EventType
	TxID       string
	Instrument string
	OrderID    string
	Err        error
}

type Config struct {
	GroupTimeout      time.Duration // таймаут всей группы целиком
	ScanInterval      time.Duration // период скана осиротевших ордеров
	BrokerCallTimeout time.Duration
	Retries           int // ретраи transient-ошибок на ногу
}

func (c *Config) withDefaults() {
	if c.GroupTimeout <= 0 {
		c.GroupTimeout = 5 * time.Second
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = 60 * time.Second
	}
	if c.BrokerCallTimeout <= 0 {
		c.BrokerCallTimeout = 3 * time.Second
	}
	if c.Retries <= 0 {
		c.Retries = 3
	}
}

// Manager выставляет связанные группы ордеров (entry + SL + TP) атомарно:
// либо все три ноги, либо откат и ошибка. Один менеджер на воркера.
type Manager struct {
	b   broker.Broker
	cfg Config

	mu       sync.Mutex
	inflight map[string]struct{} // txID групп в окне размещения/отката

	events chan Event
}

func NewManager(b broker.Broker, cfg Config) *Manager {
	cfg.withDefaults()
	return &Manager{
		b:        b,
		cfg:      cfg,
		inflight: make(map[string]struct{}),
		events:   make(chan Event, 16),
	}
}

// Events — канал событий менеджера; читает владеющий воркер.
func (m *Manager) Events() <-chan Event {
	return m.events
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		// воркер не успевает читать — событие не критично для корректности
	}
}

func (m *Manager) markInflight(txID string) {
	m.mu.Lock()
	m.inflight[txID] = struct{}{}
	m.mu.Unlock()
}

func (m *Manager) unmarkInflight(txID string) {
	m.mu.Lock()
	delete(m.inflight, txID)
	m.mu.Unlock()
}

func (m *Manager) isInflight(txID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inflight[txID]
	return ok
}
