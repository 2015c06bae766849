package engine

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/crossquery/crossquery/pkg/document"
	"github.com/crossquery/crossquery/pkg/engine/continuation"
	"github.com/crossquery/crossquery/pkg/engine/executor"
)

// Page is one page of query results.
type Page struct {
	Items []document.Value

	// ContinuationToken resumes the query after this page. It is empty when
	// the query is done or cannot be resumed from this page.
	ContinuationToken string
	// DisallowContinuationMessage explains why the query cannot be resumed.
	DisallowContinuationMessage string

	ActivityID          string
	RequestCharge       float64
	ResponseLengthBytes int64
	Diagnostics         executor.Diagnostics
}

// Iterator reads the results of a query page by page. It is not safe for
// concurrent use.
type Iterator struct {
	root    executor.Component
	cfg     Config
	logger  log.Logger
	metrics *executor.Metrics

	failed bool
	closed bool

	token    string
	tokenErr error
	disallow string
}

func newIterator(root executor.Component, cfg Config, logger log.Logger, metrics *executor.Metrics) *Iterator {
	return &Iterator{
		root:    root,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// HasMoreResults reports whether ReadNextPage may return further rows.
func (it *Iterator) HasMoreResults() bool {
	return !it.failed && !it.closed && !it.root.IsDone()
}

// ReadNextPage returns the next page. Pages may be empty while the query
// buffers its input, so callers loop on HasMoreResults rather than on the
// page size.
//
// An upstream failure is returned as an [*executor.Failure] error, together
// with a page carrying the cost of the failed request. The iterator cannot be
// read again after a failure.
func (it *Iterator) ReadNextPage(ctx context.Context) (*Page, error) {
	if it.closed {
		return nil, ErrClosed
	}
	if it.failed {
		return nil, ErrDrainAfterFailure
	}

	resp, err := it.root.Drain(ctx, it.cfg.PageSize)
	if err != nil {
		return nil, err
	}

	page := &Page{
		Items:                       resp.Items,
		DisallowContinuationMessage: resp.DisallowContinuationMessage,
		ActivityID:                  resp.ActivityID,
		RequestCharge:               resp.RequestCharge,
		ResponseLengthBytes:         resp.ResponseLengthBytes,
		Diagnostics:                 resp.Diagnostics,
	}

	if !resp.IsSuccess() {
		it.failed = true
		level.Warn(it.logger).Log("msg", "query failed upstream", "status", resp.Failure.StatusCode, "sub_status", resp.Failure.SubStatusCode, "activity_id", resp.ActivityID, "err", resp.Failure.Message)
		return page, resp.Failure
	}

	it.disallow = resp.DisallowContinuationMessage
	it.token, it.tokenErr = "", nil
	if it.disallow == "" && resp.ContinuationToken != "" {
		it.token, it.tokenErr = it.encode(resp.ContinuationToken)
	}
	page.ContinuationToken = it.token
	return page, nil
}

func (it *Iterator) encode(raw string) (string, error) {
	token := continuation.Encode(raw)
	limit := it.cfg.MaxContinuationTokenSize.Val()
	tooLarge := limit > 0 && len(token) > limit
	it.metrics.ObserveToken(len(token), tooLarge)

	if tooLarge {
		level.Warn(it.logger).Log("msg", "discarding continuation token", "size", len(token), "max_size", limit)
		return "", ErrContinuationTokenTooLarge
	}
	return token, nil
}

// ContinuationToken returns the token resuming the query after the last page
// read. It returns an empty token before the first page and once the query is
// done. It returns an [*executor.ContinuationNotSupportedError] if the query
// cannot be resumed.
func (it *Iterator) ContinuationToken() (string, error) {
	if it.disallow != "" {
		return "", &executor.ContinuationNotSupportedError{Message: it.disallow}
	}
	return it.token, it.tokenErr
}

// ReadAll reads every remaining page and returns them merged into one.
func (it *Iterator) ReadAll(ctx context.Context) (*Page, error) {
	all := &Page{Items: []document.Value{}}
	for it.HasMoreResults() {
		page, err := it.ReadNextPage(ctx)
		if page != nil {
			all.Items = append(all.Items, page.Items...)
			all.RequestCharge += page.RequestCharge
			all.ResponseLengthBytes += page.ResponseLengthBytes
			all.Diagnostics = append(all.Diagnostics, page.Diagnostics...)
			all.DisallowContinuationMessage = page.DisallowContinuationMessage
			if page.ActivityID != "" {
				all.ActivityID = page.ActivityID
			}
		}
		if err != nil {
			return all, err
		}
	}
	return all, nil
}

// Close releases the resources of the query.
func (it *Iterator) Close() {
	if it.closed {
		return
	}
	it.closed = true
	it.root.Close()
}
