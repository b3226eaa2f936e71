package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trade_core/internal/models"
	"trade_core/pkg/db"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
)

// Positions — одна запись на ключ (user, job). Ключ — джоба, а не
// воркер: id воркера меняется при рестарте, запись должна его пережить. Сама позиция лежит
// jsonb-блобом: читает её только реконсиляция на старте воркера, по полям
// внутри никто не ищет.
type Positions struct {
	db db.TxManager
}

func NewPositions(txm db.TxManager) *Positions {
	return &Positions{db: txm}
}

const positionsSchema = `
CREATE TABLE IF NOT EXISTS positions (
	user_id    BIGINT      NOT NULL,
	job_id     TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, job_id)
)`

func (p *Positions) Migrate(ctx context.Context) error {
	return p.db.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, positionsSchema)
		return err
	})
}

// Save пишется на каждой мутации позиции владеющим воркером.
func (p *Positions) Save(ctx context.Context, userID int64, jobID string, pos *models.Position) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Positions.Save: %w", err)
		}
	}()

	data, err := sonic.Marshal(pos)
	if err != nil {
		return err
	}
	return p.db.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO positions (user_id, job_id, data, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, job_id)
			DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
			userID, jobID, data, time.Now().UTC())
		return err
	})
}

// Get возвращает (nil, nil) при отсутствии записи: для реконсиляции это
// штатный случай, не ошибка.
func (p *Positions) Get(ctx context.Context, userID int64, jobID string) (pos *models.Position, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Positions.Get: %w", err)
		}
	}()

	var data []byte
	err = p.db.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`SELECT data FROM positions WHERE user_id = $1 AND job_id = $2`,
			userID, jobID).Scan(&data)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	pos = &models.Position{}
	if err = sonic.Unmarshal(data, pos); err != nil {
		return nil, err
	}
	return pos, nil
}

func (p *Positions) Delete(ctx context.Context, userID int64, jobID string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Positions.Delete: %w", err)
		}
	}()
	return p.db.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`DELETE FROM positions WHERE user_id = $1 AND job_id = $2`,
			userID, jobID)
		return err
	})
}
