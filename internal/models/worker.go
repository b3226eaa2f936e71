package models

import "time"

type WorkerStatus string

const (
	WorkerStarting WorkerStatus = "starting"
	WorkerRunning  WorkerStatus = "running"
	WorkerStopping WorkerStatus = "stopping"
	WorkerStopped  WorkerStatus = "stopped"
	WorkerCrashed  WorkerStatus = "crashed"
)

// WorkerInstance — наблюдаемое состояние воркера. Один воркер = одна джоба.
type WorkerInstance struct {
	WorkerID   string
	JobID      string
	UserID     int64
	StrategyID string

	Status        WorkerStatus
	StartedAt     time.Time
	StoppedAt     *time.Time
	RestartCount  int
	LastHeartbeat *time.Time
}

// WorkerView — снэпшот для статусных запросов (без указателей наружу).
type WorkerView struct {
	WorkerID     string       `json:"worker_id"`
	JobID        string       `json:"job_id"`
	StrategyID   string       `json:"strategy_id"`
	Status       WorkerStatus `json:"status"`
	StartedAt    time.Time    `json:"started_at"`
	RestartCount int          `json:"restart_count"`
}
