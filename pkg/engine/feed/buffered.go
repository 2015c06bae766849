package feed

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/crossquery/crossquery/pkg/document"
	"github.com/crossquery/crossquery/pkg/engine/continuation"
	"github.com/crossquery/crossquery/pkg/engine/executor"
)

// BufferedSource serves pages held in memory. A page is split when the caller
// asks for fewer rows than it holds.
type BufferedSource struct {
	pages  []*executor.Response
	next   int
	offset int
	closed bool
}

var _ executor.Component = (*BufferedSource)(nil)

// NewBufferedSource returns a source serving pages in order.
func NewBufferedSource(pages ...*executor.Response) *BufferedSource {
	return &BufferedSource{pages: pages}
}

// ResumeBufferedSource returns a source serving pages from the position
// recorded in token.
func ResumeBufferedSource(token string, pages ...*executor.Response) (*BufferedSource, error) {
	s := NewBufferedSource(pages...)
	if token == "" {
		return s, nil
	}

	pageStr, offsetStr, ok := strings.Cut(token, ":")
	if !ok {
		return nil, fmt.Errorf("%w: buffered source token %q", continuation.ErrMalformedToken, token)
	}
	next, err1 := strconv.Atoi(pageStr)
	offset, err2 := strconv.Atoi(offsetStr)
	if err1 != nil || err2 != nil || next < 0 || next >= len(pages) || offset < 0 || offset >= max(len(pages[next].Items), 1) {
		return nil, fmt.Errorf("%w: buffered source token %q", continuation.ErrMalformedToken, token)
	}
	s.next, s.offset = next, offset
	return s, nil
}

// Drain implements [executor.Component].
func (s *BufferedSource) Drain(ctx context.Context, maxElements int) (*executor.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxElements <= 0 {
		return nil, fmt.Errorf("%w: got %d", executor.ErrInvalidPageSize, maxElements)
	}
	if s.closed {
		return nil, ErrClosed
	}
	if s.IsDone() {
		return &executor.Response{Items: []document.Value{}}, nil
	}

	page := s.pages[s.next]
	if !page.IsSuccess() {
		s.next++
		failure := *page
		return &failure, nil
	}

	n := min(maxElements, len(page.Items)-s.offset)
	resp := &executor.Response{
		Items:               append([]document.Value{}, page.Items[s.offset:s.offset+n]...),
		ActivityID:          page.ActivityID,
		RequestCharge:       page.RequestCharge,
		ResponseLengthBytes: page.ResponseLengthBytes,
		Diagnostics:         page.Diagnostics,
	}
	s.offset += n
	if s.offset >= len(page.Items) {
		s.next++
		s.offset = 0
	}
	resp.ContinuationToken, _ = s.ContinuationToken()
	return resp, nil
}

// IsDone implements [executor.Component].
func (s *BufferedSource) IsDone() bool { return s.next >= len(s.pages) }

// ContinuationToken implements [executor.Component]. The token is the index
// of the next page and the number of its rows already served.
func (s *BufferedSource) ContinuationToken() (string, bool) {
	if s.IsDone() {
		return "", true
	}
	return strconv.Itoa(s.next) + ":" + strconv.Itoa(s.offset), true
}

// Close implements [executor.Component].
func (s *BufferedSource) Close() { s.closed = true }
