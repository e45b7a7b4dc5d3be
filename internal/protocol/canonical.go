package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"sort"
	"strconv"
	"unicode/utf8"
)

var emptyObject = []byte("{}")

// canonicalJSON renders v the way a reference peer re-serializes parsed
// JSON: compact, object keys in JavaScript property order, numbers in
// ECMAScript form and strings escaped like JSON.stringify.
func canonicalJSON(v any) ([]byte, error) {
	raw, ok := v.(json.RawMessage)
	if !ok {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		raw = buf.Bytes()
	}
	val, err := parseOrdered(raw)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	writeCanonical(&out, val)
	return out.Bytes(), nil
}

// CanonicalJSON is exported for callers that need to build bodies.
func CanonicalJSON(v any) ([]byte, error) {
	return canonicalJSON(v)
}

// WithField returns the object obj with key set to value. An existing key
// keeps its position; a new key is appended.
func WithField(obj json.RawMessage, key string, value any) (json.RawMessage, error) {
	parsed, err := parseOrdered(obj)
	if err != nil {
		return nil, err
	}
	o, ok := parsed.(*orderedObject)
	if !ok {
		return nil, ErrInvalidJSON
	}
	b, err := canonicalJSON(value)
	if err != nil {
		return nil, err
	}
	fieldVal, err := parseOrdered(b)
	if err != nil {
		return nil, err
	}
	o.set(key, fieldVal)

	var out bytes.Buffer
	writeCanonical(&out, o)
	return out.Bytes(), nil
}

// encodeSignData is the data string signed at encode time: absent or null
// data signs as an empty object.
func encodeSignData(data json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return emptyObject, nil
	}
	return canonicalJSON(json.RawMessage(trimmed))
}

// decodeSignData is the data string recomputed at decode time. An absent
// field signs as an empty object so bodies without data round-trip.
func decodeSignData(data json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return emptyObject, nil
	}
	return canonicalJSON(json.RawMessage(trimmed))
}

type orderedObject struct {
	keys []string
	vals map[string]any
}

func (o *orderedObject) set(key string, v any) {
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

// propertyOrder returns the keys in JavaScript enumeration order: array
// index keys ascending, then the rest in insertion order.
func (o *orderedObject) propertyOrder() []string {
	var indexes, named []string
	for _, k := range o.keys {
		if isArrayIndex(k) {
			indexes = append(indexes, k)
		} else {
			named = append(named, k)
		}
	}
	sort.Slice(indexes, func(i, j int) bool {
		a, _ := strconv.ParseUint(indexes[i], 10, 32)
		b, _ := strconv.ParseUint(indexes[j], 10, 32)
		return a < b
	})
	return append(indexes, named...)
}

func isArrayIndex(k string) bool {
	if k == "0" {
		return true
	}
	if k == "" || k[0] < '1' || k[0] > '9' || len(k) > 10 {
		return false
	}
	n, err := strconv.ParseUint(k, 10, 64)
	return err == nil && n < math.MaxUint32
}

var errTrailingData = errors.New("protocol: trailing data after JSON value")

func parseOrdered(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	v, err := parseValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailingData
	}
	return v, nil
}

func parseValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		obj := &orderedObject{vals: make(map[string]any)}
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, _ := kt.(string)
			val, err := parseValue(dec)
			if err != nil {
				return nil, err
			}
			obj.set(key, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		arr := []any{}
		for dec.More() {
			val, err := parseValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	}
	return nil, ErrInvalidJSON
}

func writeCanonical(buf *bytes.Buffer, v any) {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(t))
	case json.Number:
		writeNumber(buf, t)
	case string:
		writeString(buf, t)
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, e)
		}
		buf.WriteByte(']')
	case *orderedObject:
		buf.WriteByte('{')
		for i, k := range t.propertyOrder() {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			writeCanonical(buf, t.vals[k])
		}
		buf.WriteByte('}')
	}
}

// writeNumber formats n as a JavaScript number would print it. Values
// outside the float64 range print as null, like Infinity does.
func writeNumber(buf *bytes.Buffer, n json.Number) {
	f, err := strconv.ParseFloat(string(n), 64)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		buf.WriteString("null")
		return
	}
	if err != nil || f == 0 {
		buf.WriteString("0")
		return
	}
	// encoding/json formats float64 with the ECMAScript rules.
	b, _ := json.Marshal(f)
	buf.Write(b)
}

const hexDigits = "0123456789abcdef"

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(s[i:])
			buf.WriteRune(r)
			i += size
			continue
		}
		switch c {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if c < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigits[c>>4])
				buf.WriteByte(hexDigits[c&0xf])
			} else {
				buf.WriteByte(c)
			}
		}
		i++
	}
	buf.WriteByte('"')
}
