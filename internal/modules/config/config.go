package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
)

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB      string `yaml:"db_dsn"`
	Service struct {
		Host       string `yaml:"host"`
		HealthAddr string `yaml:"health_addr"`
		LogLevel   string `yaml:"log_level"`
	} `yaml:"service"`
	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`

	// Оркестратор
	DrainInterval       time.Duration `yaml:"drain_interval"`        // тик разбора очереди
	HealthCheckInterval time.Duration `yaml:"health_check_interval"` // тик supervision-цикла
	RestartCap          int           `yaml:"restart_cap"`           // жёсткий потолок авторестартов

	// OCO
	GroupTimeout       time.Duration `yaml:"group_timeout"`        // таймаут всей группы
	OrphanScanInterval time.Duration `yaml:"orphan_scan_interval"` // скан осиротевших ордеров
	BrokerCallTimeout  time.Duration `yaml:"broker_call_timeout"`  // таймаут одного вызова брокера
	BrokerRetries      int           `yaml:"broker_retries"`       // ретраи transient-ошибок

	// Дефолты риска для джоб без явного конфига
	// Сколько от депозита мы готовы потерять по СТОПУ, а не по ликвидации
	DefaultRiskPct      float64 `yaml:"risk_pct"`       // например 1.0 => 1% equity
	DefaultStopPct      float64 `yaml:"stop_pct"`       // расстояние до SL от цены, напр. 0.5 => 0.5%
	DefaultTakeProfitRR float64 `yaml:"take_profit_rr"` // например 3.0 => TP = 3R
	DefaultMaxLeverage  float64 `yaml:"max_leverage"`
	SoftLeverageWarn    float64 `yaml:"soft_leverage_warn"` // мягкий порог: варнинг, не отказ

	// Дефолты стратегии
	DefaultTimeframe string
	DefaultEMAShort  int
	DefaultEMALong   int

	DefaultMaxOpenPositions  int
	DefaultCooldownPerSymbol time.Duration

	SignalQueueMax int

	// Инструменты, по которым поднимается стрим свечей
	WatchInstruments []string `yaml:"watch_instruments"`
}

func NewConfig() (*Config, error) {
	config := Config{
		DrainInterval:       durationFromEnv("DRAIN_INTERVAL", "2s"),
		HealthCheckInterval: durationFromEnv("HEALTH_CHECK_INTERVAL", "15s"),
		RestartCap:          intFromEnv("RESTART_CAP", 3),

		GroupTimeout:       durationFromEnv("GROUP_TIMEOUT", "5s"),
		OrphanScanInterval: durationFromEnv("ORPHAN_SCAN_INTERVAL", "60s"),
		BrokerCallTimeout:  durationFromEnv("BROKER_CALL_TIMEOUT", "3s"),
		BrokerRetries:      intFromEnv("BROKER_RETRIES", 3),

		DefaultRiskPct:      floatFromEnv("RISK_PCT", 1.0),
		DefaultStopPct:      floatFromEnv("STOP_PCT", 0.5),
		DefaultTakeProfitRR: floatFromEnv("TAKE_PROFIT_RR", 3.0),
		DefaultMaxLeverage:  floatFromEnv("MAX_LEVERAGE", 20),
		SoftLeverageWarn:    floatFromEnv("SOFT_LEVERAGE_WARN", 10),

		DefaultTimeframe: getenvDefault("TIMEFRAME", "15m"),
		DefaultEMAShort:  intFromEnv("EMA_SHORT", 9),
		DefaultEMALong:   intFromEnv("EMA_LONG", 21),

		DefaultMaxOpenPositions:  intFromEnv("MAX_OPEN_POSITIONS", 10),
		DefaultCooldownPerSymbol: durationFromEnv("COOLDOWN_PER_SYMBOL", "60s"),

		SignalQueueMax: intFromEnv("SIGNAL_QUEUE_MAX", 64),
	}

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}

	if config.Service.HealthAddr == "" {
		config.Service.HealthAddr = ":8080"
	}
	if config.Service.LogLevel == "" {
		config.Service.LogLevel = "info"
	}
	if len(config.WatchInstruments) == 0 {
		config.WatchInstruments = strings.Split(getenvDefault("WATCH_INSTRUMENTS", "BTC-USDT-SWAP"), ",")
	}

	return &config, nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
