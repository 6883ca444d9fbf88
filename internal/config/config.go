package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID   string
	GoogleTemplatesSheet  string
	GoogleLedgerSheet     string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string

	// Scheduler
	ProcessInterval time.Duration
	ItemTimeout     time.Duration
	BatchTimeout    time.Duration
	CacheTTL        time.Duration

	// Worker
	SyncBatchSize int

	// Backend selection
	DataBackend string
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8082"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/scadenze.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "scadenze"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "sync_entries"),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleTemplatesSheet:  getEnv("GOOGLE_TEMPLATES_SHEET", "Templates"),
		GoogleLedgerSheet:     getEnv("GOOGLE_LEDGER_SHEET", "Ledger"),
		GoogleCredentialsFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleCredentialsJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		ProcessInterval: getEnvDuration("PROCESS_INTERVAL", time.Hour),
		ItemTimeout:     getEnvDuration("ITEM_TIMEOUT", 30*time.Second),
		BatchTimeout:    getEnvDuration("BATCH_TIMEOUT", 10*time.Minute),
		CacheTTL:        getEnvDuration("TEMPLATE_CACHE_TTL", time.Minute),

		SyncBatchSize: getEnvInt("SYNC_BATCH_SIZE", 50),

		DataBackend: getEnv("DATA_BACKEND", "sqlite"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DataBackend {
	case "sqlite", "sheets", "memory":
	default:
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of [sqlite sheets memory]", c.DataBackend))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.DataBackend == "sheets" {
		if c.GoogleSpreadsheetID == "" {
			errs = append(errs, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleCredentialsFile == "" && c.GoogleCredentialsJSON == "" &&
			os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
			errs = append(errs, "service account credentials are required when using sheets backend")
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.ProcessInterval < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid process interval %v: must be at least 1 minute", c.ProcessInterval))
	}
	if c.ItemTimeout < time.Second {
		errs = append(errs, fmt.Sprintf("invalid item timeout %v: must be at least 1 second", c.ItemTimeout))
	}
	if c.BatchTimeout < c.ItemTimeout {
		errs = append(errs, fmt.Sprintf("invalid batch timeout %v: must not be shorter than the item timeout %v", c.BatchTimeout, c.ItemTimeout))
	}

	if c.SyncBatchSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errs = append(errs, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
