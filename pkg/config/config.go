package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds environment-driven settings for the portfolio core.
type Config struct {
	Port     string
	Language string

	// Database
	DBPath string

	// Market data
	BinanceTestnet  bool
	QuoteCacheTTL   time.Duration
	QuoteStaleBound time.Duration // how old a cached quote may be when upstreams fail
	QuoteTimeout    time.Duration
	UseMockProvider bool
	PollSymbols     []string
	PollInterval    time.Duration

	// Alerts
	AlertCheckInterval time.Duration

	// Notifications
	NotifyWebhookURL string

	// Reinvestment
	ReinvestMinProfit float64
	ReinvestCooldown  time.Duration

	// Auth
	JWTSecret string

	// Seed data
	SymbolsFile string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:               getEnv("PORT", "8080"),
		Language:           getEnv("LANGUAGE", "en"),
		DBPath:             getEnv("DB_PATH", "./data/portfolio.db"),
		BinanceTestnet:     getEnv("BINANCE_TESTNET", "false") == "true",
		QuoteCacheTTL:      getEnvDuration("QUOTE_CACHE_TTL", 30*time.Second),
		QuoteStaleBound:    getEnvDuration("QUOTE_STALE_BOUND", 5*time.Minute),
		QuoteTimeout:       getEnvDuration("QUOTE_TIMEOUT", 10*time.Second),
		UseMockProvider:    getEnv("USE_MOCK_PROVIDER", "false") == "true",
		PollSymbols:        splitAndTrim(getEnv("POLL_SYMBOLS", "BTC,ETH")),
		PollInterval:       getEnvDuration("POLL_INTERVAL", time.Minute),
		AlertCheckInterval: getEnvDuration("ALERT_CHECK_INTERVAL", time.Minute),
		NotifyWebhookURL:   os.Getenv("NOTIFY_WEBHOOK_URL"),
		ReinvestMinProfit:  getEnvFloat("REINVEST_MIN_PROFIT", 50),
		ReinvestCooldown:   getEnvDuration("REINVEST_COOLDOWN", time.Hour),
		JWTSecret:          getEnv("JWT_SECRET", "dev-secret"),
		SymbolsFile:        getEnv("SYMBOLS_FILE", "symbols.yaml"),
	}, nil
}

// SymbolSeed describes one cryptocurrency row seeded from the symbols file.
type SymbolSeed struct {
	Symbol string `yaml:"symbol"`
	Name   string `yaml:"name"`
}

type symbolsFile struct {
	Cryptocurrencies []SymbolSeed `yaml:"cryptocurrencies"`
}

// LoadSymbols parses the YAML seed file listing supported cryptocurrencies.
func LoadSymbols(path string) ([]SymbolSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read symbols file: %w", err)
	}
	var f symbolsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse symbols file: %w", err)
	}
	out := make([]SymbolSeed, 0, len(f.Cryptocurrencies))
	for _, s := range f.Cryptocurrencies {
		sym := strings.ToUpper(strings.TrimSpace(s.Symbol))
		if sym == "" {
			continue
		}
		out = append(out, SymbolSeed{Symbol: sym, Name: strings.TrimSpace(s.Name)})
	}
	return out, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, strings.ToUpper(t))
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Bare numbers are treated as seconds.
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
