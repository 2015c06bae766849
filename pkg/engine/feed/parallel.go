package feed

import (
	"context"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/crossquery/crossquery/pkg/document"
	"github.com/crossquery/crossquery/pkg/engine/continuation"
	"github.com/crossquery/crossquery/pkg/engine/executor"
)

// PartitionFetcher fetches pages of a query from a single partition.
type PartitionFetcher interface {
	// FetchPage returns at most maxItems rows of partition, starting at
	// token. An empty token starts at the beginning of the partition. The
	// ContinuationToken of the returned page is the token of the next page,
	// and is empty once the partition is exhausted.
	FetchPage(ctx context.Context, partition, token string, maxItems int) (*executor.Response, error)
}

type partitionState struct {
	ID    string `json:"id"`
	Token string `json:"token,omitempty"`
}

type parallelToken struct {
	Version    int              `json:"v"`
	Partitions []partitionState `json:"partitions"`
}

// ParallelSource reads every partition of a query. Each Drain fetches the
// next page of up to MaxConcurrency partitions concurrently and concatenates
// them in partition order.
type ParallelSource struct {
	cfg     Config
	fetcher PartitionFetcher
	logger  log.Logger

	// remaining lists the partitions not exhausted yet, in order.
	remaining []partitionState

	draining atomic.Bool
	closed   atomic.Bool
	rows     atomic.Int64
}

var _ executor.Component = (*ParallelSource)(nil)

// NewParallelSource returns a source reading partitions from the beginning.
func NewParallelSource(cfg Config, fetcher PartitionFetcher, partitions []string, logger log.Logger) *ParallelSource {
	remaining := make([]partitionState, len(partitions))
	for i, id := range partitions {
		remaining[i] = partitionState{ID: id}
	}
	return newParallelSource(cfg, fetcher, remaining, logger)
}

// ResumeParallelSource returns a source reading partitions from the position
// recorded in token.
func ResumeParallelSource(cfg Config, fetcher PartitionFetcher, token string, logger log.Logger) (*ParallelSource, error) {
	var t parallelToken
	if err := jsoniter.ConfigFastest.UnmarshalFromString(token, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", continuation.ErrMalformedToken, err)
	}
	if t.Version != continuation.Version {
		return nil, fmt.Errorf("%w: partition token version %d", continuation.ErrUnsupportedVersion, t.Version)
	}
	return newParallelSource(cfg, fetcher, t.Partitions, logger), nil
}

func newParallelSource(cfg Config, fetcher PartitionFetcher, remaining []partitionState, logger log.Logger) *ParallelSource {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	return &ParallelSource{
		cfg:       cfg,
		fetcher:   fetcher,
		logger:    logger,
		remaining: remaining,
	}
}

// Drain implements [executor.Component]. If any partition reports a failure,
// the first failure in partition order is returned and no partition advances.
func (s *ParallelSource) Drain(ctx context.Context, maxElements int) (*executor.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxElements <= 0 {
		return nil, fmt.Errorf("%w: got %d", executor.ErrInvalidPageSize, maxElements)
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if !s.draining.CompareAndSwap(false, true) {
		return nil, ErrConcurrentDrain
	}
	defer s.draining.Store(false)

	if s.IsDone() {
		return &executor.Response{Items: []document.Value{}}, nil
	}

	// Split the page between the partitions fetched, so the merged page
	// holds at most maxElements rows.
	n := min(len(s.remaining), s.cfg.MaxConcurrency, maxElements)
	pending := s.remaining[:n]
	results := make([]*executor.Response, n)

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range pending {
		i, p := i, p
		budget := maxElements / n
		if i < maxElements%n {
			budget++
		}
		g.Go(func() error {
			resp, err := s.fetcher.FetchPage(gctx, p.ID, p.Token, budget)
			if err != nil {
				return fmt.Errorf("fetching partition %s: %w", p.ID, err)
			}
			if resp.IsSuccess() && len(resp.Items) > budget {
				return fmt.Errorf("partition %s returned %d rows, asked for %d", p.ID, len(resp.Items), budget)
			}
			results[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, resp := range results {
		if !resp.IsSuccess() {
			level.Warn(s.logger).Log("msg", "partition request failed", "partition", pending[i].ID, "status", resp.Failure.StatusCode, "err", resp.Failure.Message)
			return resp, nil
		}
	}

	merged := &executor.Response{Items: []document.Value{}}
	next := make([]partitionState, 0, len(s.remaining))
	for i, resp := range results {
		merged.Items = append(merged.Items, resp.Items...)
		merged.RequestCharge += resp.RequestCharge
		merged.ResponseLengthBytes += resp.ResponseLengthBytes
		merged.Diagnostics = append(merged.Diagnostics, resp.Diagnostics...)
		if resp.ActivityID != "" {
			merged.ActivityID = resp.ActivityID
		}

		if resp.ContinuationToken == "" {
			level.Debug(s.logger).Log("msg", "partition exhausted", "partition", pending[i].ID)
			continue
		}
		next = append(next, partitionState{ID: pending[i].ID, Token: resp.ContinuationToken})
	}
	s.remaining = append(next, s.remaining[n:]...)
	s.rows.Add(int64(len(merged.Items)))

	merged.ContinuationToken, _ = s.ContinuationToken()
	return merged, nil
}

// IsDone implements [executor.Component].
func (s *ParallelSource) IsDone() bool { return len(s.remaining) == 0 }

// ContinuationToken implements [executor.Component]. The token lists the
// partitions not exhausted yet with their own tokens.
func (s *ParallelSource) ContinuationToken() (string, bool) {
	if s.IsDone() {
		return "", true
	}
	token, err := jsoniter.ConfigFastest.MarshalToString(parallelToken{Version: continuation.Version, Partitions: s.remaining})
	if err != nil {
		return "", false
	}
	return token, true
}

// Close implements [executor.Component].
func (s *ParallelSource) Close() {
	if s.closed.CompareAndSwap(false, true) {
		level.Debug(s.logger).Log("msg", "closing partition source", "rows", s.rows.Load(), "remaining_partitions", len(s.remaining))
	}
}

// RowsFetched returns the number of rows fetched from all partitions.
func (s *ParallelSource) RowsFetched() int64 { return s.rows.Load() }
