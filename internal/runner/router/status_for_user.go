package router

import (
	"context"
	"sort"

	"trade_core/internal/models"
)

type UserStatus struct {
	Workers    []models.WorkerView `json:"workers"`
	QueueStats models.QueueStats   `json:"queue_stats"`
}

// StatusForUser — снэпшот воркеров пользователя и агрегаты очереди.
// Только чтение, писателей не блокирует.
func (r *Router) StatusForUser(_ context.Context, userID int64) UserStatus {
	r.mu.RLock()
	views := make([]models.WorkerView, 0)
	for _, s := range r.workers {
		if s.Job.UserID == userID {
			views = append(views, s.View())
		}
	}
	r.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool {
		return views[i].StartedAt.Before(views[j].StartedAt)
	})

	return UserStatus{
		Workers:    views,
		QueueStats: r.queue.Stats(),
	}
}
