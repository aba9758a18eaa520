// Package schema describes typed collection layouts and the values that fill them.
package schema

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind is the storage type of a field.
type Kind int

// Field kinds.
const (
	KindInt64 Kind = iota + 1
	KindVarChar
	KindFloat
	KindDouble
	KindBool
	KindJSON
	KindFloatVector
)

var kindNames = map[Kind]string{
	KindInt64:       "int64",
	KindVarChar:     "varchar",
	KindFloat:       "float",
	KindDouble:      "double",
	KindBool:        "bool",
	KindJSON:        "json",
	KindFloatVector: "float_vector",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// ParseKind resolves a kind name as written in configuration.
func ParseKind(s string) (Kind, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == want {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown field kind %q", s)
}

// DefaultMaxLength applies to VarChar fields declared without a length.
const DefaultMaxLength = 256

// Field is one column of a collection schema.
// Default is nil when the field has none; otherwise it holds a value of the kind's Go type
// (int64, float64, bool, string, or any JSON-encodable value).
type Field struct {
	Name      string
	Kind      Kind
	Primary   bool
	Nullable  bool
	MaxLength int // VarChar only
	Dim       int // FloatVector only
	Default   any
}

// HasDefault reports whether a default value is declared.
func (f Field) HasDefault() bool { return f.Default != nil }

// IsNumeric reports whether the field holds a number.
func (f Field) IsNumeric() bool {
	return f.Kind == KindInt64 || f.Kind == KindFloat || f.Kind == KindDouble
}

// WithKind returns a copy of f retyped to k; a numeric default is carried over as float64.
func (f Field) WithKind(k Kind) Field {
	out := f
	out.Kind = k
	if f.HasDefault() {
		if v, ok := out.Coerce(f.Default); ok {
			out.Default = v
		} else {
			out.Default = nil
		}
	}
	return out
}

// WithoutDefault returns a copy of f with the default removed.
func (f Field) WithoutDefault() Field {
	out := f
	out.Default = nil
	return out
}

// typeDefault is the implicit default for scalar kinds. JSON and vectors have none.
func typeDefault(k Kind) any {
	switch k {
	case KindVarChar:
		return ""
	case KindInt64:
		return int64(0)
	case KindFloat, KindDouble:
		return 0.0
	case KindBool:
		return false
	default:
		return nil
	}
}

// Coerce converts v to the Go type stored for f's kind.
// It reports false when v cannot be represented, in which case the caller should fall back
// to the default.
func (f Field) Coerce(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	switch f.Kind {
	case KindInt64:
		return toInt64(v)
	case KindFloat, KindDouble:
		return toFloat64(v)
	case KindBool:
		return toBool(v)
	case KindVarChar:
		s := toString(v)
		if f.MaxLength > 0 && utf8.RuneCountInString(s) > f.MaxLength {
			s = string([]rune(s)[:f.MaxLength])
		}
		return s, true
	case KindJSON:
		return v, true
	default:
		return nil, false
	}
}

func toInt64(v any) (any, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		if t == float64(int64(t)) {
			return int64(t), true
		}
		return nil, false
	case bool:
		if t {
			return int64(1), true
		}
		return int64(0), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return nil, false
		}
		return i, true
	default:
		return nil, false
	}
}

func toFloat64(v any) (any, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case bool:
		if t {
			return 1.0, true
		}
		return 0.0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil, false
		}
		return f, true
	default:
		return nil, false
	}
}

func toBool(v any) (any, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case int64:
		return t != 0, true
	case int:
		return t != 0, true
	case float64:
		return t != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "ja":
			return true, true
		case "false", "0", "no", "nein":
			return false, true
		}
		return nil, false
	default:
		return nil, false
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// FormatScalar renders a coerced scalar the way hash-backed stores keep it.
func FormatScalar(v any) string {
	if b, ok := v.(bool); ok {
		if b {
			return "1"
		}
		return "0"
	}
	return toString(v)
}
