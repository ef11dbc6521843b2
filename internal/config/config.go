package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUsage is returned when the positional arguments are wrong.
var ErrUsage = errors.New("invalid number of arguments")

// RunConfig captures everything one batch run needs. The two paths come from
// the command line; everything else is optional and read from the
// environment with defaults that reproduce the plain file-to-file job.
type RunConfig struct {
	InputPath  string
	OutputPath string

	ActiveWindowHours int64
	DistanceKm        float64
	CooldownHours     int64

	PGDSN         string
	RunMigrations bool

	KafkaBrokers []string
	KafkaTopic   string

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	PushgatewayURL string

	LogLevel string
}

func defaultRunConfig() RunConfig {
	return RunConfig{
		ActiveWindowHours: 6,
		DistanceKm:        0.15,
		CooldownHours:     24,
		KafkaTopic:        "encounters",
		RedisGeoKey:       "users_geo",
		LogLevel:          "info",
	}
}

// Load builds a RunConfig from positional args and an environment lookup,
// normally os.Getenv.
func Load(args []string, getenv func(string) string) (RunConfig, error) {
	cfg := defaultRunConfig()
	if len(args) != 2 {
		return cfg, ErrUsage
	}
	cfg.InputPath = args[0]
	cfg.OutputPath = args[1]

	var errs []error
	env := envReader{getenv: getenv, errs: &errs}

	env.setInt64(&cfg.ActiveWindowHours, "ENCOUNTER_ACTIVE_WINDOW_HOURS")
	env.setFloat(&cfg.DistanceKm, "ENCOUNTER_DISTANCE_KM")
	env.setInt64(&cfg.CooldownHours, "ENCOUNTER_COOLDOWN_HOURS")

	cfg.PGDSN = getenv("PG_DSN")
	cfg.RunMigrations = strings.EqualFold(getenv("MIGRATE"), "true")

	if brokers := getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	env.setString(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.RedisAddr = strings.TrimSpace(getenv("REDIS_ADDR"))
	cfg.RedisPassword = getenv("REDIS_PASSWORD")
	env.setString(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	cfg.PushgatewayURL = strings.TrimSpace(getenv("PUSHGATEWAY_URL"))

	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.ActiveWindowHours <= 0 {
		errs = append(errs, fmt.Errorf("ENCOUNTER_ACTIVE_WINDOW_HOURS must be > 0"))
	}
	if cfg.DistanceKm <= 0 {
		errs = append(errs, fmt.Errorf("ENCOUNTER_DISTANCE_KM must be > 0"))
	}
	if cfg.CooldownHours < 0 {
		errs = append(errs, fmt.Errorf("ENCOUNTER_COOLDOWN_HOURS must be >= 0"))
	}

	return cfg, errors.Join(errs...)
}

type envReader struct {
	getenv func(string) string
	errs   *[]error
}

func (e envReader) setFloat(target *float64, key string) {
	if v := e.getenv(key); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			*e.errs = append(*e.errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func (e envReader) setInt64(target *int64, key string) {
	if v := e.getenv(key); v != "" {
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			*e.errs = append(*e.errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func (e envReader) setString(target *string, key string) {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
