package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"pwsrelay/internal/modules/weather/engine"
	"pwsrelay/internal/wunderground"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	Driver          string
	DSN             string
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SQLLog          bool

	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string

	// Location is the station's time zone; daily rain resets at its midnight.
	Location *time.Location
	Engine   engine.Config

	WUEnabled         bool
	WUURL             string
	WUCredentialsFile string
	WUStation         string
	WURTFreq          int
	WUTimeout         time.Duration

	Retention         time.Duration
	RetentionInterval time.Duration
}

// LoadDotEnv loads path into the environment if it exists. Variables
// already set win.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func LoadFromEnv() (Config, error) {
	appEnv := env("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(env("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	driver := env("DB_DRIVER", "sqlite3")
	switch driver {
	case "sqlite3", "postgres":
	default:
		return Config{}, fmt.Errorf("invalid DB_DRIVER %q (allowed: sqlite3, postgres)", driver)
	}
	dsn := env("DB_DSN", "")
	if driver == "postgres" && dsn == "" {
		return Config{}, errors.New("DB_DSN is required when DB_DRIVER=postgres")
	}

	maxOpenConns, err := envInt("DB_MAX_OPEN_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := envInt("DB_MAX_IDLE_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := envDuration("DB_CONN_MAX_LIFETIME", 0)
	if err != nil {
		return Config{}, err
	}
	sqlLog, err := envBool("SQL_LOG", false)
	if err != nil {
		return Config{}, err
	}

	mqttPort, err := envInt("MQTT_PORT", 1883)
	if err != nil {
		return Config{}, err
	}
	if mqttPort <= 0 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %d (must be 1-65535)", mqttPort)
	}
	clientID := env("MQTT_CLIENT_ID", "")
	if clientID == "" {
		clientID = "pwsrelay-" + uuid.NewString()
	}

	tzName := env("STATION_TIMEZONE", "Local")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return Config{}, fmt.Errorf("invalid STATION_TIMEZONE %q: %w", tzName, err)
	}

	engineCfg := engine.DefaultConfig()
	if engineCfg.SamplesPerHour, err = envInt("SAMPLES_PER_HOUR", engineCfg.SamplesPerHour); err != nil {
		return Config{}, err
	}
	if engineCfg.WindVectors, err = envInt("WIND_VECTORS", engineCfg.WindVectors); err != nil {
		return Config{}, err
	}
	if engineCfg.MinimumWindSpeed, err = envFloat("MIN_WIND_SPEED_MPH", engineCfg.MinimumWindSpeed); err != nil {
		return Config{}, err
	}
	if err := engineCfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("engine config: %w", err)
	}

	wuEnabled, err := envBool("WU_ENABLED", false)
	if err != nil {
		return Config{}, err
	}
	rtFreq, err := envInt("WU_RTFREQ", 48)
	if err != nil {
		return Config{}, err
	}
	wuTimeout, err := envDuration("WU_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}

	retention, err := envDuration("RETENTION", 30*24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	retentionInterval, err := envDuration("RETENTION_INTERVAL", time.Hour)
	if err != nil {
		return Config{}, err
	}
	if retentionInterval < time.Minute {
		return Config{}, fmt.Errorf("invalid RETENTION_INTERVAL %s (must be >= 1m)", retentionInterval)
	}

	return Config{
		AppEnv:   appEnv,
		LogLevel: level,
		HTTPAddr: env("HTTP_ADDR", ":8080"),

		Driver:          driver,
		DSN:             dsn,
		Path:            env("SQLITE_PATH", "data/pwsrelay.db"),
		MaxOpenConns:    maxOpenConns,
		MaxIdleConns:    maxIdleConns,
		ConnMaxLifetime: connMaxLifetime,
		SQLLog:          sqlLog,

		MQTTBroker:   env("MQTT_BROKER", "localhost"),
		MQTTPort:     mqttPort,
		MQTTClientID: clientID,
		MQTTTopic:    env("MQTT_TOPIC", "stations/+/raw"),

		Location: loc,
		Engine:   engineCfg,

		WUEnabled:         wuEnabled,
		WUURL:             env("WU_URL", wunderground.DefaultURL),
		WUCredentialsFile: env("WU_CREDENTIALS_FILE", "wunderground_creds.txt"),
		WUStation:         env("WU_STATION", "home"),
		WURTFreq:          rtFreq,
		WUTimeout:         wuTimeout,

		Retention:         retention,
		RetentionInterval: retentionInterval,
	}, nil
}

func env(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return f, nil
}

func envBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
