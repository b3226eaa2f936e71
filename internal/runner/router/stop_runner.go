package router

import (
	"context"
	"fmt"

	"trade_core/internal/models"
	"trade_core/pkg/logger"

	"github.com/opentracing/opentracing-go"
)

// StopRunner останавливает воркер. Проверка владения — до любой мутации.
// flatten=true дополнительно закрывает открытую позицию перед остановкой.
// Возвращает, была ли позиция закрыта.
func (r *Router) StopRunner(ctx context.Context, userID int64, workerID string, flatten bool) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "router.stop_runner")
	defer span.Finish()

	sess, ok := r.getWorker(workerID)
	if !ok {
		return false, models.NewError(models.ErrKindValidation, fmt.Sprintf("worker %s not found", workerID))
	}
	if sess.Job.UserID != userID {
		return false, models.NewError(models.ErrKindValidation,
			fmt.Sprintf("worker %s is not owned by user %d", workerID, userID))
	}

	// 1. Сигналим циклу и ждём завершения текущей oco-группы
	sess.Stop()

	// 2. Опциональный flatten — уже после того, как воркер перестал
	// порождать новые сделки
	flattened := false
	if flatten && sess.HasPosition() {
		if err := sess.Flatten(ctx); err != nil {
			logger.Error("stop: flatten worker %s: %v", workerID, err)
			return false, err
		}
		flattened = true
	}

	r.queue.SetStatus(sess.Job.JobID, models.JobStopped, "stopped by user")
	logger.Info("worker %s stopped by user %d (flattened=%v)", workerID, userID, flattened)
	return flattened, nil
}
