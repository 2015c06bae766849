// Package continuation serializes the resumable state of a query pipeline.
//
// Every resumable component writes a Frame holding its own state plus the
// token of its source, so a chain of components produces a chain of nested
// frames. Frames are JSON; the outermost token handed to callers is wrapped
// by Encode.
package continuation

import (
	"sort"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/crossquery/crossquery/pkg/document"
)

// Version is the frame layout written by this package.
const Version = 1

var (
	// ErrMalformedToken is returned for tokens that cannot be decoded or do
	// not belong to the component decoding them.
	ErrMalformedToken = errors.New("malformed continuation token")

	// ErrUnsupportedVersion is returned for tokens written with a frame
	// layout this package does not understand.
	ErrUnsupportedVersion = errors.New("unsupported continuation token version")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind identifies the component a frame belongs to.
type Kind string

const (
	KindSkip     Kind = "skip"
	KindLimit    Kind = "limit"
	KindTop      Kind = "top"
	KindDistinct Kind = "distinct"
)

// Frame is the serialized state of one component.
type Frame struct {
	Version int  `json:"v"`
	Kind    Kind `json:"k"`

	// Count is the remaining skip or take quota.
	Count int64 `json:"n,omitempty"`

	Distinct *DistinctState `json:"d,omitempty"`

	// Source is the token of the component's source. Empty means the source
	// starts from the beginning.
	Source string `json:"src,omitempty"`
}

// DistinctState is the set of row hashes a distinct component has emitted.
// Ordered distinct only needs the last one.
type DistinctState struct {
	Ordered bool     `json:"ordered,omitempty"`
	Last    string   `json:"last,omitempty"`
	Seen    []string `json:"seen,omitempty"`
}

// NewDistinctState builds the state of an unordered distinct component.
// Hashes are sorted so the same set always produces the same token.
func NewDistinctState(seen []document.Hash) *DistinctState {
	sort.Slice(seen, func(i, j int) bool { return seen[i].Compare(seen[j]) < 0 })
	out := make([]string, len(seen))
	for i, h := range seen {
		out[i] = h.String()
	}
	return &DistinctState{Seen: out}
}

// Hashes parses the hashes recorded in s.
func (s *DistinctState) Hashes() ([]document.Hash, error) {
	out := make([]document.Hash, 0, len(s.Seen))
	for _, raw := range s.Seen {
		h, err := document.ParseHash(raw)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedToken, "distinct hash %q: %v", raw, err)
		}
		out = append(out, h)
	}
	return out, nil
}

// LastHash parses the last emitted hash of an ordered distinct component.
// ok is false if nothing was emitted yet.
func (s *DistinctState) LastHash() (h document.Hash, ok bool, err error) {
	if s.Last == "" {
		return document.Hash{}, false, nil
	}
	h, err = document.ParseHash(s.Last)
	if err != nil {
		return document.Hash{}, false, errors.Wrapf(ErrMalformedToken, "distinct hash %q: %v", s.Last, err)
	}
	return h, true, nil
}

// Marshal serializes f, stamping the current version.
func Marshal(f Frame) (string, error) {
	f.Version = Version
	b, err := json.Marshal(f)
	if err != nil {
		return "", errors.Wrap(err, "marshal continuation frame")
	}
	return string(b), nil
}

// Unmarshal parses a frame and checks that it was written by a component of
// the given kind.
func Unmarshal(token string, want Kind) (Frame, error) {
	var f Frame
	if err := json.UnmarshalFromString(token, &f); err != nil {
		return Frame{}, errors.Wrapf(ErrMalformedToken, "%v", err)
	}
	if f.Version != Version {
		return Frame{}, errors.Wrapf(ErrUnsupportedVersion, "got version %d, want %d", f.Version, Version)
	}
	if f.Kind != want {
		return Frame{}, errors.Wrapf(ErrMalformedToken, "token belongs to %q, not %q", f.Kind, want)
	}
	if f.Count < 0 {
		return Frame{}, errors.Wrapf(ErrMalformedToken, "negative count %d", f.Count)
	}
	if want == KindDistinct && f.Distinct == nil {
		return Frame{}, errors.Wrap(ErrMalformedToken, "distinct token without state")
	}
	return f, nil
}
