package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrBadRun marks a run length that is zero or otherwise unusable.
var ErrBadRun = errors.New("rle: run length must be positive")

// Entry is one run of a run-length encoded sequence.
type Entry[T any] struct {
	Run   int
	Value T
}

// Decode pushes every entry's value Run times, in order. It stops at the
// first push error or invalid run.
func Decode[T any](entries []Entry[T], push func(T) error) error {
	for i, e := range entries {
		if e.Run <= 0 {
			return fmt.Errorf("entry %d: %w (got %d)", i, ErrBadRun, e.Run)
		}
		for k := 0; k < e.Run; k++ {
			if err := push(e.Value); err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
		}
	}
	return nil
}

// Expand decodes entries into a new slice.
func Expand[T any](entries []Entry[T]) ([]T, error) {
	n := 0
	for _, e := range entries {
		if e.Run > 0 {
			n += e.Run
		}
	}
	out := make([]T, 0, n)
	err := Decode(entries, func(v T) error {
		out = append(out, v)
		return nil
	})
	return out, err
}

// Compact is the inverse of Expand for comparable values.
func Compact[T comparable](values []T) []Entry[T] {
	var out []Entry[T]
	for i := 0; i < len(values); {
		v := values[i]
		run := 1
		for j := i + 1; j < len(values) && values[j] == v; j++ {
			run++
		}
		out = append(out, Entry[T]{Run: run, Value: v})
		i += run
	}
	return out
}

// CompactFunc is Compact with a caller-supplied equality.
func CompactFunc[T any](values []T, eq func(a, b T) bool) []Entry[T] {
	var out []Entry[T]
	for i := 0; i < len(values); {
		v := values[i]
		run := 1
		for j := i + 1; j < len(values) && eq(values[j], v); j++ {
			run++
		}
		out = append(out, Entry[T]{Run: run, Value: v})
		i += run
	}
	return out
}

// EncodeRLE encodes a sequence of palette ids into base64(varint pairs).
// The pairs are (id, run_len) repeated.
func EncodeRLE(ids []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(ids) {
		b := ids[i]
		run := 1
		for j := i + 1; j < len(ids) && ids[j] == b && run < 1<<31; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(b))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func DecodeRLE(b64 string) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []uint16
	for i := 0; i < len(raw); {
		b, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if b > 0xFFFF {
			return nil, fmt.Errorf("palette id too large: %d", b)
		}
		if run == 0 {
			return nil, fmt.Errorf("bad varint at %d: %w", i, ErrBadRun)
		}
		for k := 0; k < int(run); k++ {
			out = append(out, uint16(b))
		}
	}
	return out, nil
}
