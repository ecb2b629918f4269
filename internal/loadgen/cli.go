package loadgen

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/feedrank/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging sends log output to stdout and to logFile. If logFile is empty,
// a timestamped filename is generated. The returned function closes the file.
func SetupLogging(logFile, format string) (func(), error) {
	if logFile == "" {
		logFile = "loadgen_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.InitWithWriter(io.MultiWriter(os.Stdout, file), format); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return func() { _ = file.Close() }, nil
}

// ShowHelp prints usage information for the load generator.
func ShowHelp() {
	os.Stdout.WriteString(`feedrank load generator
=======================

Registers random videos, submits engagement events concurrently, waits for
the event queue to drain and verifies the global feed.

Usage:
  go run ./cmd/loadgen [options]

Options:
  -url string        Base URL of the service (default "http://localhost:9080")
  -videos int        Number of videos to register (default 1000)
  -owners int        Number of distinct owners (default 50)
  -events int        Number of engagement events to submit (default 10000)
  -top int           Number of feed entries to verify (default 50)
  -workers int       Number of concurrent workers (default CPU cores * 2)
  -timeout duration  HTTP request timeout (default 30s)
  -settle duration   Time allowed for the event queue to drain (default 2m)
  -view-weight, -like-weight, -dislike-weight, -boost-week, -boost-month float
                     Engagement weights the service runs with (defaults 1, 5, 3, 100, 50)
  -seed uint         Generator seed; 0 picks one from the clock
  -output string     Write the generated workload to this JSON file
  -log string        Log file (default: loadgen_TIMESTAMP.log)
  -log-format string Log format: text or json (default "text")
  -verbose           Enable verbose logging
  -help              Show this help message

Examples:
  go run ./cmd/loadgen -videos 5000 -events 100000 -workers 32
  go run ./cmd/loadgen -seed 42 -output workload.json
`)
}
