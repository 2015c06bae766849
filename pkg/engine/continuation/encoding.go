package continuation

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

const checksumLen = 8

var encoding = base64.RawURLEncoding

// Encode wraps a frame chain into the opaque token handed to callers: the
// snappy compressed frames, prefixed with their xxhash checksum, in URL safe
// base64.
func Encode(frames string) string {
	compressed := snappy.Encode(nil, []byte(frames))
	buf := make([]byte, checksumLen+len(compressed))
	binary.BigEndian.PutUint64(buf, xxhash.Sum64(compressed))
	copy(buf[checksumLen:], compressed)
	return encoding.EncodeToString(buf)
}

// Decode reverses Encode.
func Decode(token string) (string, error) {
	buf, err := encoding.DecodeString(token)
	if err != nil {
		return "", errors.Wrapf(ErrMalformedToken, "%v", err)
	}
	if len(buf) < checksumLen {
		return "", errors.Wrap(ErrMalformedToken, "token too short")
	}
	compressed := buf[checksumLen:]
	if binary.BigEndian.Uint64(buf) != xxhash.Sum64(compressed) {
		return "", errors.Wrap(ErrMalformedToken, "checksum mismatch")
	}
	frames, err := snappy.Decode(nil, compressed)
	if err != nil {
		return "", errors.Wrapf(ErrMalformedToken, "%v", err)
	}
	return string(frames), nil
}
