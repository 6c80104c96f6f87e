// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"tally/internal/core"
	"tally/internal/log"
)

const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Config struct {
	// HTTP server
	Port       string
	UserHeader string

	// Storage
	DataBackend  string
	SQLiteDBPath string

	// AMQP, publishing is disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string
	// Consume the exchange to drop cached overviews changed by other instances
	AMQPCacheInvalidation bool

	// Budgets, the file wins over the inline JSON
	CategoryBudgets     string
	CategoryBudgetsFile string

	// Listing and import
	DefaultPageSize      int
	MaxUploadBytes       int64
	ImportRatePerMinute  int
	ImportCheckPersisted bool

	// Dashboard cache
	SummaryCacheSize int
	SummaryCacheTTL  time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port:       getEnv("PORT", "8081"),
		UserHeader: getEnv("USER_ID_HEADER", "X-User-ID"),

		DataBackend:  getEnv("DATA_BACKEND", BackendSQLite),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/tally.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "tally"),

		AMQPCacheInvalidation: getEnvBool("AMQP_CACHE_INVALIDATION", false),

		CategoryBudgets:     getEnv("CATEGORY_BUDGETS", ""),
		CategoryBudgetsFile: getEnv("CATEGORY_BUDGETS_FILE", ""),

		DefaultPageSize:      getEnvInt("DEFAULT_PAGE_SIZE", 20),
		MaxUploadBytes:       int64(getEnvInt("MAX_UPLOAD_BYTES", 5<<20)),
		ImportRatePerMinute:  getEnvInt("IMPORT_RATE_PER_MINUTE", 10),
		ImportCheckPersisted: getEnvBool("IMPORT_CHECK_PERSISTED", false),

		SummaryCacheSize: getEnvInt("SUMMARY_CACHE_SIZE", 200),
		SummaryCacheTTL:  getEnvDuration("SUMMARY_CACHE_TTL", 5*time.Minute),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if strings.TrimSpace(c.UserHeader) == "" {
		errs = append(errs, "user id header name cannot be empty")
	}

	switch c.DataBackend {
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of [%s %s]", c.DataBackend, BackendSQLite, BackendMemory))
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL: %v", err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.AMQPCacheInvalidation && c.AMQPURL == "" {
		errs = append(errs, "AMQP cache invalidation requires AMQP_URL")
	}

	if _, err := c.Budgets(); err != nil {
		errs = append(errs, err.Error())
	}

	if c.DefaultPageSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid default page size %d: must be at least 1", c.DefaultPageSize))
	}
	if c.MaxUploadBytes < 1 {
		errs = append(errs, fmt.Sprintf("invalid max upload bytes %d: must be at least 1", c.MaxUploadBytes))
	}
	if c.ImportRatePerMinute < 1 {
		errs = append(errs, fmt.Sprintf("invalid import rate %d: must be at least 1 per minute", c.ImportRatePerMinute))
	}
	if c.SummaryCacheSize < 0 {
		errs = append(errs, fmt.Sprintf("invalid summary cache size %d: must not be negative", c.SummaryCacheSize))
	}
	if c.SummaryCacheTTL < 0 {
		errs = append(errs, fmt.Sprintf("invalid summary cache TTL %v: must not be negative", c.SummaryCacheTTL))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err.Error())
	}
	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		errs = append(errs, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// Budgets returns the default budget table with any configured overrides
// applied. Overrides keep the default ordering.
func (c *Config) Budgets() (core.BudgetTable, error) {
	raw := c.CategoryBudgets
	source := "CATEGORY_BUDGETS"
	if c.CategoryBudgetsFile != "" {
		data, err := os.ReadFile(c.CategoryBudgetsFile)
		if err != nil {
			return core.BudgetTable{}, fmt.Errorf("read budgets file: %w", err)
		}
		raw = string(data)
		source = c.CategoryBudgetsFile
	}
	if strings.TrimSpace(raw) == "" {
		return core.DefaultBudgetTable(), nil
	}

	overrides, err := parseBudgets(raw)
	if err != nil {
		return core.BudgetTable{}, fmt.Errorf("invalid budgets in %s: %w", source, err)
	}

	entries := core.DefaultBudgetTable().Entries()
	for i, b := range entries {
		if amount, ok := overrides[b.Category]; ok {
			entries[i].Amount = amount
		}
	}
	table, err := core.NewBudgetTable(entries)
	if err != nil {
		return core.BudgetTable{}, fmt.Errorf("invalid budgets in %s: %w", source, err)
	}
	return table, nil
}

// parseBudgets reads a category → amount mapping. YAML is a superset of
// JSON so one decoder serves both forms.
func parseBudgets(raw string) (map[string]decimal.Decimal, error) {
	var doc map[string]string
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]decimal.Decimal, len(doc))
	for _, k := range keys {
		category, err := core.ParseCategory(k)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", k, err)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(doc[k]))
		if err != nil {
			return nil, fmt.Errorf("budget for %s: %q is not a number", category, doc[k])
		}
		if !amount.IsPositive() {
			return nil, fmt.Errorf("budget for %s must be positive, got %s", category, amount)
		}
		if _, dup := out[category]; dup {
			return nil, fmt.Errorf("duplicate budget for %s", category)
		}
		out[category] = amount
	}
	return out, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
