package models

import "time"

type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobStopped JobStatus = "stopped"
	JobFailed  JobStatus = "failed"
	JobCrashed JobStatus = "crashed"
)

// IsTerminal — терминальные статусы храним для аудита, не удаляем.
func (s JobStatus) IsTerminal() bool {
	return s == JobStopped || s == JobFailed || s == JobCrashed
}

// RunnerJob — заявка на запуск воркера. Владелец — очередь оркестратора.
type RunnerJob struct {
	JobID      string
	UserID     int64
	StrategyID string
	BrokerID   string

	Credentials BrokerCredentials
	Config      RunnerConfig

	CreatedAt time.Time
	Status    JobStatus

	// причина терминального статуса (entitlement/validation/transient)
	Reason string
}

type BrokerCredentials struct {
	APIKey     string `json:"api_key"`
	APISecret  string `json:"api_secret"`
	Passphrase string `json:"passphrase"`
}

type QueueStats struct {
	Queued  int `json:"queued"`
	Running int `json:"running"`
	Stopped int `json:"stopped"`
	Failed  int `json:"failed"`
	Crashed int `json:"crashed"`
}
