// Command querypipe replays recorded partition responses through the client
// side pipeline of a query plan and prints the resulting rows, one JSON
// document per line.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	dslog "github.com/grafana/dskit/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/crossquery/crossquery/pkg/engine"
	"github.com/crossquery/crossquery/pkg/engine/executor"
	"github.com/crossquery/crossquery/pkg/engine/feed"
	"github.com/crossquery/crossquery/pkg/engine/plan"
	"github.com/crossquery/crossquery/pkg/engine/querymetrics"
	"github.com/crossquery/crossquery/pkg/util/flagext"
	util_log "github.com/crossquery/crossquery/pkg/util/log"
)

// Config is the configuration of querypipe.
type Config struct {
	Engine engine.Config `yaml:"engine"`
	Feed   feed.Config   `yaml:"feed"`
	Plan   plan.Plan     `yaml:"plan"`

	LogLevel  dslog.Level `yaml:"log_level"`
	Recording string      `yaml:"recording"`

	ConfigFiles       flagext.ConfigFiles `yaml:"-"`
	ContinuationToken string              `yaml:"-"`
	MaxPages          int                 `yaml:"-"`
}

// RegisterFlags registers flags.
func (c *Config) RegisterFlags(f *flag.FlagSet) {
	c.Engine.RegisterFlags(f)
	c.Feed.RegisterFlags(f)
	c.LogLevel.RegisterFlags(f)

	f.Var(&c.ConfigFiles, "config.file", "Configuration file to load, can be specified multiple times. Later files override earlier ones.")
	f.StringVar(&c.Recording, "pages", "", "Recorded partition responses, one JSON page per line. Files ending in .gz are decompressed.")
	f.StringVar(&c.ContinuationToken, "continuation", "", "Continuation token to resume the query from.")
	f.IntVar(&c.MaxPages, "max-pages", 0, "Stop after this many pages and print the continuation token. 0 reads every page.")
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Recording == "" {
		return errors.New("no recording given, use -pages")
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.Feed.Validate(); err != nil {
		return err
	}
	if err := c.Plan.Validate(); err != nil {
		return fmt.Errorf("invalid plan: %w", err)
	}
	return nil
}

// parseConfig applies flag defaults, then config files, then the flags set on
// the command line.
func parseConfig(args []string) (*Config, error) {
	var cfg Config
	fs := flag.NewFlagSet("querypipe", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.ConfigFiles.Apply(&cfg); err != nil {
		return nil, err
	}

	cfg.ConfigFiles = nil
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed parsing config: %v\n", err)
		os.Exit(1)
	}
	logger := util_log.NewLogger(cfg.LogLevel, os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err = run(ctx, cfg, logger, prometheus.DefaultRegisterer, os.Stdout)
	util_log.CheckFatal("running query", err, logger)
}

func run(ctx context.Context, cfg *Config, logger log.Logger, reg prometheus.Registerer, out io.Writer) error {
	rec, err := feed.OpenRecording(cfg.Recording)
	if err != nil {
		return err
	}

	e, err := engine.New(engine.Params{Logger: logger, Registerer: reg, Config: cfg.Engine})
	if err != nil {
		return err
	}

	newSource := func(_ context.Context, token string) (executor.Component, error) {
		if token == "" {
			return feed.NewParallelSource(cfg.Feed, rec, rec.Partitions(), logger), nil
		}
		return feed.ResumeParallelSource(cfg.Feed, rec, token, logger)
	}

	it, err := e.Execute(ctx, &cfg.Plan, cfg.ContinuationToken, newSource)
	if err != nil {
		return err
	}
	defer it.Close()

	w := bufio.NewWriter(out)
	defer w.Flush()

	var (
		pages, rows int
		charge      float64
		metrics     querymetrics.QueryMetrics
	)
	for it.HasMoreResults() && (cfg.MaxPages == 0 || pages < cfg.MaxPages) {
		page, err := it.ReadNextPage(ctx)
		if err != nil {
			return err
		}
		pages++
		rows += len(page.Items)
		charge += page.RequestCharge
		metrics = metrics.Add(page.Diagnostics.QueryMetrics())

		for _, item := range page.Items {
			b, err := item.MarshalJSON()
			if err != nil {
				return err
			}
			w.Write(b)
			w.WriteByte('\n')
		}
	}

	logValues := []any{
		"msg", "finished executing",
		"plan", cfg.Plan.String(),
		"pages", pages,
		"rows", rows,
		"request_charge", charge,
		"retrieved_documents", metrics.RetrievedDocumentCount,
		"index_hit_ratio", metrics.IndexHitRatio(),
	}
	if it.HasMoreResults() {
		token, err := it.ContinuationToken()
		if err != nil {
			level.Warn(logger).Log("msg", "query cannot be resumed", "err", err)
		} else {
			logValues = append(logValues, "continuation", token)
		}
	}
	level.Info(logger).Log(logValues...)
	return w.Flush()
}
