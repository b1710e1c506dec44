package config

import (
	"os"
	"strconv"
	"strings"
)

// App holds process-level settings read from the environment, in addition to
// the borrowing rule table.
type App struct {
	ServerAddr  string
	DatabaseURL string

	// RedisAddr enables the Redis event publisher when non-empty; without it
	// the engine runs with a no-op notification sink.
	RedisAddr     string
	RedisPassword string
	EventChannel  string

	// WebOrigins feeds the CORS allow-list.
	WebOrigins []string

	Rules Rules
}

// Load reads the process configuration from environment variables. Values the
// rule table exposes as env overrides are parsed here so the Rules value stays
// immutable afterwards.
func Load() App {
	cfg := App{
		ServerAddr:    get("SERVER_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		EventChannel:  get("EVENT_CHANNEL", "labloan.events"),
		Rules:         DefaultRules(),
	}

	for _, o := range strings.Split(os.Getenv("WEB_ORIGINS"), ",") {
		if s := strings.TrimSpace(o); s != "" {
			cfg.WebOrigins = append(cfg.WebOrigins, s)
		}
	}

	if n, ok := getInt("DEFAULT_DAILY_RATE"); ok {
		cfg.Rules.DefaultDailyRate = n
	}
	if n, ok := getInt("AUTO_APPROVE_MAX_ACTIVE"); ok {
		cfg.Rules.AutoApproveMaxActive = n
	}
	if n, ok := getInt("DEFAULT_BORROW_CAP"); ok {
		cfg.Rules.DefaultBorrowCap = n
	}

	return cfg
}

func get(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
