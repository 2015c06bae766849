package continuation

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/crossquery/crossquery/pkg/document"
)

func TestFrame(t *testing.T) {
	inner, err := Marshal(Frame{Kind: KindSkip, Count: 3, Source: "2:0"})
	require.NoError(t, err)

	outer, err := Marshal(Frame{Kind: KindTop, Count: 7, Source: inner})
	require.NoError(t, err)

	f, err := Unmarshal(outer, KindTop)
	require.NoError(t, err)
	require.Equal(t, Version, f.Version)
	require.Equal(t, int64(7), f.Count)

	f, err = Unmarshal(f.Source, KindSkip)
	require.NoError(t, err)
	require.Equal(t, int64(3), f.Count)
	require.Equal(t, "2:0", f.Source)
}

func TestUnmarshalErrors(t *testing.T) {
	for _, tc := range []struct {
		name  string
		token string
		kind  Kind
		want  error
	}{
		{name: "not json", token: "garbage", kind: KindSkip, want: ErrMalformedToken},
		{name: "wrong kind", token: `{"v":1,"k":"limit","n":2}`, kind: KindSkip, want: ErrMalformedToken},
		{name: "future version", token: `{"v":9,"k":"skip","n":2}`, kind: KindSkip, want: ErrUnsupportedVersion},
		{name: "negative count", token: `{"v":1,"k":"skip","n":-1}`, kind: KindSkip, want: ErrMalformedToken},
		{name: "distinct without state", token: `{"v":1,"k":"distinct"}`, kind: KindDistinct, want: ErrMalformedToken},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Unmarshal(tc.token, tc.kind)
			require.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestDistinctState(t *testing.T) {
	a := document.HashValue(document.String("a"))
	b := document.HashValue(document.String("b"))

	s1 := NewDistinctState([]document.Hash{a, b})
	s2 := NewDistinctState([]document.Hash{b, a})
	require.Equal(t, s1, s2)

	hashes, err := s1.Hashes()
	require.NoError(t, err)
	require.ElementsMatch(t, []document.Hash{a, b}, hashes)

	_, ok, err := (&DistinctState{Ordered: true}).LastHash()
	require.NoError(t, err)
	require.False(t, ok)

	_, err = (&DistinctState{Seen: []string{"xyz"}}).Hashes()
	require.True(t, errors.Is(err, ErrMalformedToken))
}

func TestEncoding(t *testing.T) {
	frames := `{"v":1,"k":"limit","n":5,"src":"` + strings.Repeat("0", 200) + `"}`
	token := Encode(frames)
	require.NotContains(t, token, "/")
	require.NotContains(t, token, "+")

	decoded, err := Decode(token)
	require.NoError(t, err)
	require.Equal(t, frames, decoded)

	t.Run("tampered", func(t *testing.T) {
		b := []byte(token)
		i := len(b) - 2
		if b[i] == 'A' {
			b[i] = 'B'
		} else {
			b[i] = 'A'
		}
		_, err := Decode(string(b))
		require.True(t, errors.Is(err, ErrMalformedToken))
	})

	t.Run("short", func(t *testing.T) {
		_, err := Decode("AAAA")
		require.True(t, errors.Is(err, ErrMalformedToken))
	})

	t.Run("not base64", func(t *testing.T) {
		_, err := Decode("***")
		require.True(t, errors.Is(err, ErrMalformedToken))
	})
}
