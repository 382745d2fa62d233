package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical encodes v as canonical JSON: object keys sorted by
// UTF-16 code units, strings NFC normalized, numbers kept as spelled,
// no HTML escaping and no insignificant whitespace.
//
// v goes through encoding/json first, so struct tags and custom
// marshalers apply.
func MarshalCanonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal canonical: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("marshal canonical: %w", err)
	}

	var enc canonicalEncoder
	if err := enc.value(tree); err != nil {
		return nil, err
	}
	return enc.buf.Bytes(), nil
}

// MarshalCanonicalIndent is MarshalCanonical with two-space indentation
// and a trailing newline, for files people read and diff.
func MarshalCanonicalIndent(v any) ([]byte, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return nil, fmt.Errorf("indent canonical: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

type canonicalEncoder struct {
	buf bytes.Buffer
}

func (e *canonicalEncoder) value(v any) error {
	switch v := v.(type) {
	case nil:
		e.buf.WriteString("null")
	case bool:
		e.buf.WriteString(strconv.FormatBool(v))
	case json.Number:
		e.buf.WriteString(v.String())
	case string:
		e.string(v)
	case []any:
		e.buf.WriteByte('[')
		for i, elem := range v {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			if err := e.value(elem); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		e.buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, compareUTF16)

		e.buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			e.string(k)
			e.buf.WriteByte(':')
			if err := e.value(v[k]); err != nil {
				return fmt.Errorf("%q: %w", k, err)
			}
		}
		e.buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

// string writes s NFC normalized. Only quote, backslash and control
// characters are escaped; U+2028 and U+2029 stay literal.
func (e *canonicalEncoder) string(s string) {
	s = norm.NFC.String(s)

	e.buf.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case r == '"':
			e.buf.WriteString(`\"`)
		case r == '\\':
			e.buf.WriteString(`\\`)
		case r == '\n':
			e.buf.WriteString(`\n`)
		case r == '\r':
			e.buf.WriteString(`\r`)
		case r == '\t':
			e.buf.WriteString(`\t`)
		case r < 0x20:
			fmt.Fprintf(&e.buf, `\u%04x`, r)
		default:
			// Invalid bytes decode to utf8.RuneError and are written as U+FFFD.
			e.buf.WriteRune(r)
		}
	}
	e.buf.WriteByte('"')
}

// compareUTF16 orders strings by UTF-16 code units. Go compares UTF-8
// bytes, which puts astral-plane characters after U+E000..U+FFFF.
func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}
