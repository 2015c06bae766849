package feed

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/crossquery/crossquery/pkg/engine/executor"
)

const maxRecordedPageSize = 64 << 20

// Recording holds partition responses captured from a previous execution, and
// replays them as a [PartitionFetcher].
type Recording struct {
	partitions []string
	pages      map[string][]*executor.Response
}

var _ PartitionFetcher = (*Recording)(nil)

// OpenRecording reads a recording file: one page per line, as accepted by
// [DecodePage]. Files ending in .gz are decompressed.
func OpenRecording(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	rec, err := ReadRecording(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return rec, nil
}

// ReadRecording reads recorded pages, one per line. Blank lines are ignored.
func ReadRecording(r io.Reader) (*Recording, error) {
	rec := &Recording{pages: make(map[string][]*executor.Response)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordedPageSize)
	for line := 1; scanner.Scan(); line++ {
		data := scanner.Bytes()
		if len(strings.TrimSpace(string(data))) == 0 {
			continue
		}
		page, err := DecodePage(data)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec.add(page)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Recording) add(page RecordedPage) {
	if _, ok := r.pages[page.Partition]; !ok {
		r.partitions = append(r.partitions, page.Partition)
	}
	r.pages[page.Partition] = append(r.pages[page.Partition], page.Response)
}

// Partitions returns the recorded partitions in the order they first appear.
func (r *Recording) Partitions() []string { return r.partitions }

// FetchPage implements [PartitionFetcher]. The token of a recorded partition
// has the same layout as the token of a [BufferedSource].
func (r *Recording) FetchPage(ctx context.Context, partition, token string, maxItems int) (*executor.Response, error) {
	pages, ok := r.pages[partition]
	if !ok {
		return nil, fmt.Errorf("partition %q is not recorded", partition)
	}

	src, err := ResumeBufferedSource(token, pages...)
	if err != nil {
		return nil, err
	}
	resp, err := src.Drain(ctx, maxItems)
	if err != nil {
		return nil, err
	}
	if resp.IsSuccess() {
		resp.ContinuationToken, _ = src.ContinuationToken()
	}
	return resp, nil
}
