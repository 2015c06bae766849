package executor

import (
	"fmt"

	"github.com/crossquery/crossquery/pkg/document"
	"github.com/crossquery/crossquery/pkg/engine/querymetrics"
)

// Response is one page produced by a [Component]. A Response with a non-nil
// Failure carries an upstream failure verbatim and no items.
//
// The receiver of a Response owns it and may modify it, including the
// backing array of Items.
type Response struct {
	Items []document.Value

	// ContinuationToken resumes the component after this page. Empty when the
	// component is done or cannot be resumed.
	ContinuationToken string
	// DisallowContinuationMessage is set when the pipeline cannot be resumed
	// and explains why.
	DisallowContinuationMessage string

	ActivityID          string
	RequestCharge       float64
	ResponseLengthBytes int64
	Diagnostics         Diagnostics

	Failure *Failure
}

// IsSuccess reports whether r carries rows rather than an upstream failure.
func (r *Response) IsSuccess() bool { return r.Failure == nil }

// Failure is an upstream failure, such as a throttled or unauthorized partition
// request. It is reported as data so the request charge and diagnostics of
// the failed request are not lost.
type Failure struct {
	StatusCode    int
	SubStatusCode int
	Message       string
}

// Error implements error.
func (f *Failure) Error() string {
	if f.SubStatusCode != 0 {
		return fmt.Sprintf("upstream failure (status %d.%d): %s", f.StatusCode, f.SubStatusCode, f.Message)
	}
	return fmt.Sprintf("upstream failure (status %d): %s", f.StatusCode, f.Message)
}

// PageDiagnostics describes one upstream request.
type PageDiagnostics struct {
	PartitionID   string
	ActivityID    string
	RequestCharge float64
	Metrics       querymetrics.QueryMetrics
}

// Diagnostics is the list of upstream requests that contributed to a page.
type Diagnostics []PageDiagnostics

// QueryMetrics sums the metrics of every request in d.
func (d Diagnostics) QueryMetrics() querymetrics.QueryMetrics {
	var out querymetrics.QueryMetrics
	for _, p := range d {
		out = out.Add(p.Metrics)
	}
	return out
}

// emptyResponse is returned by components drained after they are done.
func emptyResponse() *Response {
	return &Response{Items: []document.Value{}}
}

// withCost returns a page without items that carries the cost of src.
func withCost(src *Response) *Response {
	return &Response{
		Items:               []document.Value{},
		ActivityID:          src.ActivityID,
		RequestCharge:       src.RequestCharge,
		ResponseLengthBytes: src.ResponseLengthBytes,
		Diagnostics:         src.Diagnostics,
	}
}
