package encoding

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Run is a value repeated Len times.
type Run struct {
	Value uint8
	Len   int
}

func Runs(vals []uint8) []Run {
	var out []Run
	for _, v := range vals {
		if n := len(out); n > 0 && out[n-1].Value == v {
			out[n-1].Len++
			continue
		}
		out = append(out, Run{Value: v, Len: 1})
	}
	return out
}

// EncodeRLE encodes small symbols (tile types, flags) as base64 of
// uvarint (value, run_len) pairs.
func EncodeRLE(vals []uint8) string {
	runs := Runs(vals)
	buf := make([]byte, 0, len(runs)*3)
	for _, r := range runs {
		buf = binary.AppendUvarint(buf, uint64(r.Value))
		buf = binary.AppendUvarint(buf, uint64(r.Len))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// MaxDecoded bounds the output of DecodeRLE when no length is expected.
const MaxDecoded = 1 << 26

// DecodeRLE reverses EncodeRLE. If want >= 0 the decoded length must match it.
func DecodeRLE(b64 string, want int) ([]uint8, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	limit := want
	if want < 0 {
		limit = MaxDecoded
	}
	// Capacity follows the input, never the claimed length.
	out := make([]uint8, 0, min(limit, 8*len(raw)))
	for i := 0; i < len(raw); {
		v, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if v > 0xFF {
			return nil, fmt.Errorf("symbol too large: %d", v)
		}
		if run > uint64(limit-len(out)) {
			return nil, fmt.Errorf("run overflows expected length %d", limit)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint8(v))
		}
	}
	if want >= 0 && len(out) != want {
		return nil, fmt.Errorf("decoded %d symbols, want %d", len(out), want)
	}
	return out, nil
}
