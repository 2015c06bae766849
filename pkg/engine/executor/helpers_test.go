package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crossquery/crossquery/pkg/document"
)

// pagedSource serves fixed pages. A page is split when the caller asks for
// fewer rows than it holds, so its token is a page index and a row offset.
type pagedSource struct {
	pages  []*Response
	next   int
	offset int

	requested []int
	closed    bool
}

func newPagedSource(pages ...*Response) *pagedSource {
	return &pagedSource{pages: pages}
}

func resumePagedSource(token string, pages ...*Response) (*pagedSource, error) {
	s := newPagedSource(pages...)
	if token == "" {
		return s, nil
	}
	if _, err := fmt.Sscanf(token, "%d:%d", &s.next, &s.offset); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *pagedSource) Drain(ctx context.Context, maxElements int) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.requested = append(s.requested, maxElements)
	if s.IsDone() {
		return emptyResponse(), nil
	}

	page := s.pages[s.next]
	if !page.IsSuccess() {
		s.next++
		return page, nil
	}

	n := min(maxElements, len(page.Items)-s.offset)
	resp := &Response{
		Items:         append([]document.Value{}, page.Items[s.offset:s.offset+n]...),
		ActivityID:    page.ActivityID,
		RequestCharge: page.RequestCharge,
	}
	s.offset += n
	if s.offset == len(page.Items) {
		s.next++
		s.offset = 0
	}
	resp.ContinuationToken, _ = s.ContinuationToken()
	return resp, nil
}

func (s *pagedSource) IsDone() bool { return s.next >= len(s.pages) }

func (s *pagedSource) ContinuationToken() (string, bool) {
	if s.IsDone() {
		return "", true
	}
	return fmt.Sprintf("%d:%d", s.next, s.offset), true
}

func (s *pagedSource) Close() { s.closed = true }

func values(t *testing.T, rows ...string) []document.Value {
	t.Helper()
	out := make([]document.Value, len(rows))
	for i, row := range rows {
		v, err := document.Parse([]byte(row))
		require.NoError(t, err, row)
		out[i] = v
	}
	return out
}

func page(t *testing.T, rows ...string) *Response {
	t.Helper()
	return &Response{Items: values(t, rows...), RequestCharge: 1}
}

func failurePage(status int) *Response {
	return &Response{
		Failure:       &Failure{StatusCode: status, Message: "unauthorized"},
		ActivityID:    "failed-request",
		RequestCharge: 0.5,
	}
}

// numbers builds n pages holding the integers 1 to total.
func numbers(t *testing.T, total, perPage int) []*Response {
	var pages []*Response
	for start := 1; start <= total; start += perPage {
		var rows []string
		for i := start; i < start+perPage && i <= total; i++ {
			rows = append(rows, fmt.Sprint(i))
		}
		pages = append(pages, page(t, rows...))
	}
	return pages
}

// drainAll drains c until it is done and returns every row.
func drainAll(t *testing.T, c Component, maxElements int) []string {
	t.Helper()
	var out []string
	for i := 0; !c.IsDone(); i++ {
		require.Less(t, i, 1000, "component never finished")
		resp, err := c.Drain(context.Background(), maxElements)
		require.NoError(t, err)
		require.True(t, resp.IsSuccess())
		require.LessOrEqual(t, len(resp.Items), maxElements)
		out = append(out, render(resp.Items)...)
	}
	return out
}

func render(items []document.Value) []string {
	out := make([]string, len(items))
	for i, v := range items {
		out[i] = v.String()
	}
	return out
}
