package config

import (
	"fmt"
	"time"
)

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver       string
	URL          string
	SQLitePath   string
	Migrate      bool
	MaxOpenConns int
	MaxIdleConns int
	TxTimeout    time.Duration
}

// GetConnectionString returns the PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return c.URL
}

// Validate checks the settings required by the selected driver
func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case DriverPostgres:
		if c.URL == "" {
			return fmt.Errorf("database URL is required")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
	default:
		return fmt.Errorf("unsupported store driver %q", c.Driver)
	}

	if c.TxTimeout <= 0 {
		return fmt.Errorf("transaction timeout must be positive")
	}
	return nil
}
