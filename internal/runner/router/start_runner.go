package router

import (
	"context"

	"trade_core/internal/models"
	"trade_core/pkg/logger"

	"github.com/opentracing/opentracing-go"
)

type StartRequest struct {
	UserID      int64
	StrategyID  string
	BrokerID    string
	Credentials models.BrokerCredentials
	Config      models.RunnerConfig
}

// StartRunner — асинхронный допуск: проверка тарифа, постановка в очередь,
// jobID сразу наружу. Саму джобу заберёт drain-цикл.
func (r *Router) StartRunner(ctx context.Context, req StartRequest) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "router.start_runner")
	defer span.Finish()
	span.SetTag("user_id", req.UserID)

	// 1. Валидация на границе — дальше конфиг считается корректным
	if req.UserID <= 0 {
		return "", models.NewError(models.ErrKindValidation, "user_id <= 0")
	}
	if req.Credentials.APIKey == "" || req.Credentials.APISecret == "" {
		return "", models.NewError(models.ErrKindValidation, "broker credentials are empty")
	}
	if err := req.Config.Validate(); err != nil {
		return "", err
	}

	// 2. Допуск по тарифу
	if err := r.ents.Admit(ctx, req.UserID, r.activeWorkers(req.UserID)); err != nil {
		return "", err
	}

	// 3. В очередь
	jobID := r.queue.Enqueue(&models.RunnerJob{
		UserID:      req.UserID,
		StrategyID:  req.StrategyID,
		BrokerID:    req.BrokerID,
		Credentials: req.Credentials,
		Config:      req.Config,
	})

	logger.Info("job %s queued: user=%d %s %s", jobID, req.UserID, req.Config.Instrument, req.StrategyID)
	return jobID, nil
}
