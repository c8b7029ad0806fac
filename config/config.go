package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/yeremiapane/order-relay/utils"
)

// DefaultPollInterval is the fallback resync period used by every board.
const DefaultPollInterval = 60 * time.Second

// Config holds the relay server configuration.
type Config struct {
	Port        string
	GinMode     string
	GoEnv       string
	LogLevel    string
	DBDriver    string
	DatabaseURL string
	JWTSecret   string
	RabbitMQURL string
	Exchange    string
	CORSOrigins []string
}

// BoardConfig holds the configuration of a headless kitchen/cashier board.
type BoardConfig struct {
	Viewport      string
	APIURL        string
	SocketURL     string
	RestaurantID  uint
	ActorID       uint
	Token         string
	PollInterval  time.Duration
	HTTPTimeout   time.Duration
	LogLevel      string
	Sound         bool
	Desktop       bool
	SpeechCommand string
}

// loadEnvFiles tries .env.<GO_ENV> first, then .env. Missing files are fine,
// the environment may be set directly.
func loadEnvFiles() {
	env := getEnv("GO_ENV", "development")
	envFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envFile); err != nil {
		if err := godotenv.Load(); err != nil {
			utils.InfoLogger.Debug("No .env file found, using system environment variables")
		}
	} else {
		utils.InfoLogger.Printf("Loaded configuration from %s", envFile)
	}
}

// Load loads the relay configuration from the environment.
func Load() (*Config, error) {
	loadEnvFiles()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		GoEnv:       getEnv("GO_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DBDriver:    getEnv("DB_DRIVER", "mysql"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		RabbitMQURL: getEnv("RABBITMQ_URL", ""),
		Exchange:    getEnv("RABBITMQ_EXCHANGE", "orders.events"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.JWTSecret == "" && c.IsProduction() {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// LoadBoard loads the configuration of a board client.
func LoadBoard() (*BoardConfig, error) {
	loadEnvFiles()

	cfg := &BoardConfig{
		Viewport:      getEnv("BOARD_VIEWPORT", "kitchen"),
		APIURL:        getEnv("API_URL", "http://localhost:8080"),
		SocketURL:     getEnv("SOCKET_URL", "ws://localhost:8080/ws"),
		Token:         getEnv("BOARD_TOKEN", ""),
		PollInterval:  getDuration("POLL_INTERVAL", DefaultPollInterval),
		HTTPTimeout:   getDuration("HTTP_TIMEOUT", 10*time.Second),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Sound:         getBool("BOARD_SOUND", true),
		Desktop:       getBool("BOARD_DESKTOP_NOTIFY", false),
		SpeechCommand: getEnv("BOARD_SPEECH_COMMAND", ""),
	}

	var err error
	if cfg.RestaurantID, err = getUint("RESTAURANT_ID"); err != nil {
		return nil, err
	}
	if cfg.ActorID, err = getUint("ACTOR_ID"); err != nil {
		return nil, err
	}
	if cfg.Viewport != "kitchen" && cfg.Viewport != "cashier" {
		return nil, fmt.Errorf("BOARD_VIEWPORT must be kitchen or cashier, got %q", cfg.Viewport)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("BOARD_TOKEN is required")
	}
	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		utils.ErrorLogger.Warnf("Invalid %s=%q, using %s", key, v, def)
		return def
	}
	return d
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getUint(key string) (uint, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return uint(n), nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
