package retry

import (
	"fmt"
	"time"

	"github.com/windowsadmins/msiextract/pkg/logging"
)

// RetryConfig defines the configuration for retry attempts
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	Multiplier      float64
}

// Retry retries a given function with exponential backoff.
// The last error is wrapped into the returned error.
func Retry(config RetryConfig, action func() error) error {
	attempts := config.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	interval := config.InitialInterval

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = action(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		logging.Debug("Retrying after failure", "attempt", attempt, "max", attempts, "error", err, "wait", interval)
		time.Sleep(interval)
		if config.Multiplier > 0 {
			interval = time.Duration(float64(interval) * config.Multiplier)
		}
	}

	return fmt.Errorf("action failed after %d attempts: %w", attempts, err)
}
