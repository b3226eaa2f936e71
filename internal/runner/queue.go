package runner

import (
	"sync"
	"time"

	"trade_core/internal/models"

	"github.com/google/uuid"
)

// JobQueue — FIFO очередь заявок. Терминальные джобы не удаляются:
// они остаются в map для аудита и статусных запросов.
type JobQueue struct {
	mu    sync.RWMutex
	jobs  map[string]*models.RunnerJob
	order []string // jobID в порядке постановки, только queued
}

func NewJobQueue() *JobQueue {
	return &JobQueue{jobs: make(map[string]*models.RunnerJob)}
}

// Enqueue регистрирует заявку и возвращает jobID сразу: допуск асинхронный,
// исполнение начнёт drain-цикл.
func (q *JobQueue) Enqueue(job *models.RunnerJob) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	job.Status = models.JobQueued
	job.CreatedAt = time.Now()

	q.jobs[job.JobID] = job
	q.order = append(q.order, job.JobID)
	return job.JobID
}

// DequeueNext снимает первую queued джобу. nil — очередь пуста.
func (q *JobQueue) DequeueNext() *models.RunnerJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.order) > 0 {
		id := q.order[0]
		q.order = q.order[1:]

		job, ok := q.jobs[id]
		if !ok || job.Status != models.JobQueued {
			continue
		}
		return job
	}
	return nil
}

func (q *JobQueue) Get(jobID string) (*models.RunnerJob, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	j, ok := q.jobs[jobID]
	return j, ok
}

// SetStatus переводит джобу в новый статус с причиной.
func (q *JobQueue) SetStatus(jobID string, st models.JobStatus, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j, ok := q.jobs[jobID]; ok {
		j.Status = st
		j.Reason = reason
	}
}

func (q *JobQueue) Stats() models.QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var st models.QueueStats
	for _, j := range q.jobs {
		switch j.Status {
		case models.JobQueued:
			st.Queued++
		case models.JobRunning:
			st.Running++
		case models.JobStopped:
			st.Stopped++
		case models.JobFailed:
			st.Failed++
		case models.JobCrashed:
			st.Crashed++
		}
	}
	return st
}
