package main

import (
	"context"
	"fmt"
	"time"

	pgstore "trade_core/internal/store/pg"
	"trade_core/pkg/db"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Утилита накатывает схему хранилищ (positions, entitlements).
// DSN берётся из DATABASE_DSN либо из configs/migrate.yaml (ключ db_dsn).
func run() error {
	viper.SetConfigName("migrate")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AutomaticEnv()
	_ = viper.BindEnv("db_dsn", "DATABASE_DSN")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.Wrap(err, "read config")
		}
		// файла может не быть — тогда хватит и env
	}

	dsn := viper.GetString("db_dsn")
	if dsn == "" {
		return errors.New("db_dsn is empty (set DATABASE_DSN or configs/migrate.yaml)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, db.PoolConfig{DSN: dsn})
	if err != nil {
		return errors.Wrap(err, "connect")
	}
	defer pool.Close()

	txm := db.NewPgTxManager(pool)

	if err := pgstore.NewPositions(txm).Migrate(ctx); err != nil {
		return errors.Wrap(err, "migrate positions")
	}
	if err := pgstore.NewEntitlements(txm).Migrate(ctx); err != nil {
		return errors.Wrap(err, "migrate entitlements")
	}

	fmt.Println("migrations applied")
	return nil
}

func main() {
	if err := run(); err != nil {
		panic(err)
	}
}
