// Package feed provides the sources at the bottom of a query pipeline: the
// components that fetch pages from the partitions.
package feed

import (
	"errors"
	"flag"
	"fmt"
)

// Config configures how partitions are read.
type Config struct {
	// MaxConcurrency is the number of partitions fetched concurrently.
	MaxConcurrency int `yaml:"max_concurrency"`
}

// RegisterFlagsWithPrefix registers flags for the feed configuration.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.MaxConcurrency, prefix+"max-concurrency", 4, "Number of partitions fetched concurrently for each page.")
}

// RegisterFlags registers flags for the feed configuration.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("feed.", f)
}

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	if cfg.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be positive, got %d", cfg.MaxConcurrency)
	}
	return nil
}

var (
	// ErrConcurrentDrain is returned when a source is drained while another
	// Drain call is outstanding.
	ErrConcurrentDrain = errors.New("source drained concurrently")

	// ErrClosed is returned when a closed source is drained.
	ErrClosed = errors.New("source closed")
)
