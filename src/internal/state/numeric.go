package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Int64 is a signed integer that also accepts numeric strings ("100", "0x64")
// when decoded from a document.
type Int64 int64

// Uint64 is an unsigned integer with string-or-number decoding.
type Uint64 uint64

// Uint32 is an unsigned integer with string-or-number decoding.
type Uint32 uint32

// Uint16 is an unsigned integer with string-or-number decoding.
type Uint16 uint16

func (n *Int64) UnmarshalJSON(data []byte) error {
	v, err := parseSigned(data, 64)
	if err != nil {
		return err
	}
	*n = Int64(v)
	return nil
}

func (n *Uint64) UnmarshalJSON(data []byte) error {
	v, err := parseUnsigned(data, 64)
	if err != nil {
		return err
	}
	*n = Uint64(v)
	return nil
}

func (n *Uint32) UnmarshalJSON(data []byte) error {
	v, err := parseUnsigned(data, 32)
	if err != nil {
		return err
	}
	*n = Uint32(v)
	return nil
}

func (n *Uint16) UnmarshalJSON(data []byte) error {
	v, err := parseUnsigned(data, 16)
	if err != nil {
		return err
	}
	*n = Uint16(v)
	return nil
}

// numericText strips quotes from a JSON string token so that both 100 and "100"
// end up as the same text.
func numericText(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	return string(data), nil
}

func parseSigned(data []byte, bits int) (int64, error) {
	text, err := numericText(data)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(text, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", text, err)
	}
	return v, nil
}

func parseUnsigned(data []byte, bits int) (uint64, error) {
	text, err := numericText(data)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(text, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid unsigned integer %q: %w", text, err)
	}
	return v, nil
}

// Ptr returns a pointer to v. Handy for building states in code.
func Ptr[T any](v T) *T {
	return &v
}
