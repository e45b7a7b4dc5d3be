package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Scalar is a JSON scalar that peers send either as a string or as a
// number, such as correlation ids and status codes. It remembers which
// form it arrived in so it can be written back unchanged.
type Scalar struct {
	text    string
	numeric bool
	boolean bool
}

func ScalarString(s string) Scalar { return Scalar{text: s} }

func ScalarInt(n int) Scalar { return Scalar{text: strconv.Itoa(n), numeric: true} }

func (s Scalar) String() string { return s.text }

func (s Scalar) IsZero() bool { return s.text == "" }

func (s Scalar) IsNumeric() bool { return s.numeric }

// Truthy follows JavaScript truthiness: "", 0, NaN, false and null are
// falsy.
func (s Scalar) Truthy() bool {
	switch {
	case s.text == "":
		return false
	case s.boolean:
		return s.text == "true"
	case s.numeric:
		f, err := strconv.ParseFloat(s.text, 64)
		return err != nil || f != 0
	}
	return true
}

// Int parses the scalar as an integer; numeric strings are accepted.
func (s Scalar) Int() (int, bool) {
	if n, err := strconv.Atoi(s.text); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s.text, 64); err == nil && f == float64(int(f)) {
		return int(f), true
	}
	return 0, false
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	if s.numeric || s.boolean {
		return []byte(s.text), nil
	}
	return canonicalJSON(s.text)
}

func (s *Scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = Scalar{}
		return nil
	}
	switch b[0] {
	case '"':
		var text string
		if err := json.Unmarshal(b, &text); err != nil {
			return err
		}
		*s = Scalar{text: text}
	case 't', 'f':
		var v bool
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = Scalar{text: strconv.FormatBool(v), boolean: true}
	case '{', '[':
		return fmt.Errorf("protocol: expected string or number, got %s", b)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*s = Scalar{text: n.String(), numeric: true}
	}
	return nil
}
