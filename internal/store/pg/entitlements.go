package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trade_core/internal/models"
	"trade_core/pkg/db"

	"github.com/jackc/pgx/v5"
)

// Entitlements — тарифы пользователей. Запись создаётся лениво (free) при
// первой проверке, апгрейды пишутся сюда же.
type Entitlements struct {
	db db.TxManager
}

func NewEntitlements(txm db.TxManager) *Entitlements {
	return &Entitlements{db: txm}
}

const entitlementsSchema = `
CREATE TABLE IF NOT EXISTS entitlements (
	user_id     BIGINT PRIMARY KEY,
	tier        TEXT        NOT NULL,
	max_workers INT         NOT NULL,
	expires_at  TIMESTAMPTZ,
	is_active   BOOLEAN     NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
)`

func (e *Entitlements) Migrate(ctx context.Context) error {
	return e.db.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, entitlementsSchema)
		return err
	})
}

func (e *Entitlements) Upsert(ctx context.Context, ent *models.Entitlement) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Entitlements.Upsert: %w", err)
		}
	}()
	return e.db.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO entitlements (user_id, tier, max_workers, expires_at, is_active, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id)
			DO UPDATE SET tier = EXCLUDED.tier, max_workers = EXCLUDED.max_workers,
			              expires_at = EXCLUDED.expires_at, is_active = EXCLUDED.is_active,
			              updated_at = EXCLUDED.updated_at`,
			ent.UserID, string(ent.Tier), ent.MaxWorkers, ent.ExpiresAt, ent.IsActive, time.Now().UTC())
		return err
	})
}

// Get возвращает (nil, nil), если записи нет — решение про lazy init
// принимает сервис, не хранилище.
func (e *Entitlements) Get(ctx context.Context, userID int64) (ent *models.Entitlement, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Entitlements.Get: %w", err)
		}
	}()

	ent = &models.Entitlement{}
	var tier string
	err = e.db.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`SELECT user_id, tier, max_workers, expires_at, is_active
			 FROM entitlements WHERE user_id = $1`, userID).
			Scan(&ent.UserID, &tier, &ent.MaxWorkers, &ent.ExpiresAt, &ent.IsActive)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ent.Tier = models.Tier(tier)
	return ent, nil
}

// ListExpired — кандидаты периодического свипа на даунгрейд до free.
func (e *Entitlements) ListExpired(ctx context.Context, now time.Time) (out []*models.Entitlement, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Entitlements.ListExpired: %w", err)
		}
	}()

	err = e.db.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT user_id, tier, max_workers, expires_at, is_active
			FROM entitlements
			WHERE expires_at IS NOT NULL AND expires_at < $1 AND tier <> 'free'`, now)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			ent := &models.Entitlement{}
			var tier string
			if err := rows.Scan(&ent.UserID, &tier, &ent.MaxWorkers, &ent.ExpiresAt, &ent.IsActive); err != nil {
				return err
			}
			ent.Tier = models.Tier(tier)
			out = append(out, ent)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
