// Package engine executes the client side of cross partition queries: it
// builds the operator pipeline of a query plan on top of a partition source
// and exposes the results as pages.
package engine

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/crossquery/crossquery/pkg/engine/continuation"
	"github.com/crossquery/crossquery/pkg/engine/executor"
	"github.com/crossquery/crossquery/pkg/engine/plan"
	"github.com/crossquery/crossquery/pkg/util/flagext"
	"github.com/crossquery/crossquery/pkg/util/spanlogger"
)

var (
	// ErrDrainAfterFailure is returned when an iterator is read again after
	// it reported an upstream failure.
	ErrDrainAfterFailure = errors.New("query iterator read after an upstream failure")

	// ErrClosed is returned when a closed iterator is read.
	ErrClosed = errors.New("query iterator closed")

	// ErrContinuationTokenTooLarge is returned by [Iterator.ContinuationToken]
	// when the token of the last page exceeds the configured maximum size.
	ErrContinuationTokenTooLarge = errors.New("continuation token exceeds the maximum size")
)

const defaultMaxContinuationTokenSize = "16KB"

// Config configures query execution.
type Config struct {
	// PageSize is the maximum number of rows of a page.
	PageSize int `yaml:"page_size"`

	// MaxGroups limits the number of groups of GROUP BY queries.
	MaxGroups int `yaml:"max_groups"`

	// MaxContinuationTokenSize is the largest continuation token handed to
	// callers. Larger tokens are discarded.
	MaxContinuationTokenSize flagext.ByteSize `yaml:"max_continuation_token_size"`
}

// RegisterFlagsWithPrefix registers flags for the engine configuration.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.PageSize, prefix+"page-size", 100, "Maximum number of rows returned in a page.")
	f.IntVar(&cfg.MaxGroups, prefix+"max-groups", 0, "Maximum number of groups a GROUP BY query may produce. 0 means no limit.")

	_ = cfg.MaxContinuationTokenSize.Set(defaultMaxContinuationTokenSize)
	f.Var(&cfg.MaxContinuationTokenSize, prefix+"max-continuation-token-size", "Continuation tokens larger than this are not handed to callers, and the query cannot be resumed past that page. 0 means no limit.")
}

// RegisterFlags registers flags for the engine configuration.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("engine.", f)
}

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	if cfg.PageSize <= 0 {
		return fmt.Errorf("invalid page size for query engine. must be greater than 0, got %d", cfg.PageSize)
	}
	if cfg.MaxGroups < 0 {
		return fmt.Errorf("invalid max groups for query engine. must not be negative, got %d", cfg.MaxGroups)
	}
	return nil
}

// Params holds parameters for constructing a new [Engine].
type Params struct {
	Logger     log.Logger            // Logger for optional log messages.
	Registerer prometheus.Registerer // Registerer for optional metrics.

	Config Config // Config for the Engine.
}

// validate validates p and applies defaults.
func (p *Params) validate() error {
	if p.Logger == nil {
		p.Logger = log.NewNopLogger()
	}
	if p.Registerer == nil {
		p.Registerer = prometheus.NewRegistry()
	}
	return p.Config.Validate()
}

// Engine executes query plans.
type Engine struct {
	logger  log.Logger
	metrics *executor.Metrics
	cfg     Config
}

// New creates a new Engine.
func New(params Params) (*Engine, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	metrics := executor.NewMetrics()
	if err := metrics.Register(params.Registerer); err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	return &Engine{
		logger:  params.Logger,
		metrics: metrics,
		cfg:     params.Config,
	}, nil
}

// Execute starts executing p on top of the source created by newSource. A
// non-empty token resumes a previous execution of the same plan from the
// page it was returned with.
//
// Resuming a plan that cannot be resumed returns an
// [executor.ContinuationNotSupportedError].
func (e *Engine) Execute(ctx context.Context, p *plan.Plan, token string, newSource executor.SourceFactory) (*Iterator, error) {
	sp, ctx := spanlogger.New(ctx, e.logger, "Engine.Execute", "plan", p.String(), "resumed", token != "")
	defer sp.End()

	if err := p.Validate(); err != nil {
		return nil, sp.Error(fmt.Errorf("invalid plan: %w", err))
	}

	raw := token
	if token != "" && p.Resumable() {
		var err error
		if raw, err = continuation.Decode(token); err != nil {
			return nil, sp.Error(err)
		}
	}

	root, err := executor.Build(ctx, p, raw, newSource, executor.Options{
		Logger:    e.logger,
		Metrics:   e.metrics,
		MaxGroups: e.cfg.MaxGroups,
	})
	if err != nil {
		return nil, sp.Error(err)
	}

	level.Debug(sp).Log("msg", "starting query")
	return newIterator(root, e.cfg, e.logger, e.metrics), nil
}
