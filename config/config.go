package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort                  = "8080"
	defaultDatabasePath          = "images.db"
	defaultScanPageSize          = 1000
	defaultExistenceBatchSize    = 500
	defaultWriteBatchSize        = 500
	defaultDestructiveDelayMS    = 100
	defaultReportSampleSize      = 10
	defaultRepairIDLimit         = 100
	defaultDetectorConcurrency   = 1
	defaultRecognitionTimeoutSec = 30
	defaultDBLogLevel            = "warn"
)

type Config struct {
	// database path
	DatabasePath string
	DBLogLevel   string

	// http server
	Port               string
	CORSAllowedOrigins []string

	// scan and write batching
	ScanPageSize          int           // rows per paginated read
	ExistenceBatchSize    int           // ids per existence check round-trip
	WriteBatchSize        int           // rows per repair write round-trip
	DestructiveBatchDelay time.Duration // pause between delete batches

	// report shaping
	ReportSampleSize int // max sample rows per violation category
	RepairIDLimit    int // max ids returned by a repair

	// number of detectors the report assembler runs at once
	DetectorConcurrency int

	// external recognition service (empty disables index rebuilds)
	RecognitionServiceURL string
	RecognitionTimeout    time.Duration

	// optional TOML file overriding policy defaults
	PolicyFile string
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

// getEnvNonNegativeIntOrDefault is getEnvIntOrDefault but accepts 0.
func getEnvNonNegativeIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val < 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Default returns the configuration used when no environment is set.
func Default() Config {
	return Config{
		DatabasePath:          defaultDatabasePath,
		DBLogLevel:            defaultDBLogLevel,
		Port:                  defaultPort,
		CORSAllowedOrigins:    []string{"http://localhost:5173"},
		ScanPageSize:          defaultScanPageSize,
		ExistenceBatchSize:    defaultExistenceBatchSize,
		WriteBatchSize:        defaultWriteBatchSize,
		DestructiveBatchDelay: defaultDestructiveDelayMS * time.Millisecond,
		ReportSampleSize:      defaultReportSampleSize,
		RepairIDLimit:         defaultRepairIDLimit,
		DetectorConcurrency:   defaultDetectorConcurrency,
		RecognitionTimeout:    defaultRecognitionTimeoutSec * time.Second,
	}
}

func LoadConfig() (Config, error) {
	cfg := Default()

	cfg.DatabasePath = getEnvOrDefault("DATABASE_PATH", cfg.DatabasePath)
	cfg.DBLogLevel = strings.ToLower(getEnvOrDefault("DB_LOG_LEVEL", cfg.DBLogLevel))
	cfg.Port = getEnvOrDefault("PORT", cfg.Port)
	if origins := splitList(os.Getenv("CORS_ALLOWED_ORIGINS")); len(origins) > 0 {
		cfg.CORSAllowedOrigins = origins
	}

	cfg.ScanPageSize = getEnvIntOrDefault("SCAN_PAGE_SIZE", cfg.ScanPageSize)
	cfg.ExistenceBatchSize = getEnvIntOrDefault("EXISTENCE_BATCH_SIZE", cfg.ExistenceBatchSize)
	cfg.WriteBatchSize = getEnvIntOrDefault("WRITE_BATCH_SIZE", cfg.WriteBatchSize)
	delayMS := getEnvNonNegativeIntOrDefault("DESTRUCTIVE_BATCH_DELAY_MS", defaultDestructiveDelayMS)
	cfg.DestructiveBatchDelay = time.Duration(delayMS) * time.Millisecond

	cfg.ReportSampleSize = getEnvIntOrDefault("REPORT_SAMPLE_SIZE", cfg.ReportSampleSize)
	cfg.RepairIDLimit = getEnvIntOrDefault("REPAIR_ID_LIMIT", cfg.RepairIDLimit)
	cfg.DetectorConcurrency = getEnvIntOrDefault("DETECTOR_CONCURRENCY", cfg.DetectorConcurrency)

	cfg.RecognitionServiceURL = strings.TrimRight(os.Getenv("RECOGNITION_SERVICE_URL"), "/")
	timeoutSec := getEnvIntOrDefault("RECOGNITION_TIMEOUT_SECONDS", defaultRecognitionTimeoutSec)
	cfg.RecognitionTimeout = time.Duration(timeoutSec) * time.Second

	cfg.PolicyFile = os.Getenv("POLICY_FILE")

	return cfg, nil
}
