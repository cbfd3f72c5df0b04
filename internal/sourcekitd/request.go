package sourcekitd

import (
	"fmt"
	"strconv"
	"strings"
)

// RequestDictionary is a write-once request tree with interned-symbol keys.
// Values come from a closed set of kinds: string, int64, bool, double, UID,
// nested dictionary, nested array, raw data, and absent. Setting an absent
// optional omits the key entirely; omission and explicit-null are different
// wire states and only omission is supported.
type RequestDictionary struct {
	v *variant
}

// NewRequestDictionary creates an empty request dictionary.
func NewRequestDictionary() *RequestDictionary {
	return &RequestDictionary{v: &variant{Type: variantDictionary}}
}

// Set stores a value under the given key. A nil value (or nil-typed pointer,
// dictionary, array, or byte slice) omits the key. Values outside the closed
// kind set are a programming error and panic.
func (d *RequestDictionary) Set(key UID, value any) {
	v := requestValue(value)
	if v == nil {
		return
	}
	d.v.setKey(key, v)
}

// Lookup returns the Go-native value stored under key. Nested values come
// back as *RequestDictionary and *RequestArray. Used by in-process backends
// and request hooks to inspect outgoing requests.
func (d *RequestDictionary) Lookup(key UID) (any, bool) {
	v, ok := d.v.lookup(key)
	if !ok {
		return nil, false
	}
	return nativeValue(v), true
}

// UIDValue returns the interned symbol stored under key, if any.
func (d *RequestDictionary) UIDValue(key UID) (UID, bool) {
	v, ok := d.v.lookup(key)
	if !ok || v.Type != variantUID {
		return 0, false
	}
	return v.UID, true
}

// StringValue returns the string stored under key, if any.
func (d *RequestDictionary) StringValue(key UID) (string, bool) {
	v, ok := d.v.lookup(key)
	if !ok || v.Type != variantString {
		return "", false
	}
	return v.Str, true
}

// IntValue returns the integer stored under key, if any.
func (d *RequestDictionary) IntValue(key UID) (int64, bool) {
	v, ok := d.v.lookup(key)
	if !ok || v.Type != variantInt64 {
		return 0, false
	}
	return v.Int, true
}

// RequestArray is a write-once array of request values.
type RequestArray struct {
	v *variant
}

// NewRequestArray creates an empty request array.
func NewRequestArray() *RequestArray {
	return &RequestArray{v: &variant{Type: variantArray}}
}

// Append adds a value to the array. Nil values are omitted; values outside
// the closed kind set panic.
func (a *RequestArray) Append(value any) {
	v := requestValue(value)
	if v == nil {
		return
	}
	a.v.Elems = append(a.v.Elems, v)
}

// Len returns the number of values appended so far.
func (a *RequestArray) Len() int {
	return len(a.v.Elems)
}

// requestValue converts a Go value into its variant representation. It
// returns nil for absent optionals and panics on kinds outside the closed
// set, mirroring an exhaustively-matched variant type.
func requestValue(value any) *variant {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return &variant{Type: variantString, Str: v}
	case int:
		return &variant{Type: variantInt64, Int: int64(v)}
	case int64:
		return &variant{Type: variantInt64, Int: v}
	case bool:
		return &variant{Type: variantBool, Bool: v}
	case float64:
		return &variant{Type: variantDouble, Dbl: v}
	case UID:
		return &variant{Type: variantUID, UID: v}
	case []byte:
		if v == nil {
			return nil
		}
		return &variant{Type: variantData, Data: v}
	case *RequestDictionary:
		if v == nil {
			return nil
		}
		return v.v
	case *RequestArray:
		if v == nil {
			return nil
		}
		return v.v
	case []string:
		arr := NewRequestArray()
		for _, s := range v {
			arr.Append(s)
		}
		return arr.v
	case []any:
		arr := NewRequestArray()
		for _, e := range v {
			arr.Append(e)
		}
		return arr.v
	default:
		panic(fmt.Sprintf("sourcekitd: unsupported request value type %T", value))
	}
}

// nativeValue converts a variant back to its Go-native form.
func nativeValue(v *variant) any {
	switch v.Type {
	case variantNull:
		return nil
	case variantString:
		return v.Str
	case variantInt64:
		return v.Int
	case variantBool:
		return v.Bool
	case variantDouble:
		return v.Dbl
	case variantUID:
		return v.UID
	case variantData:
		return v.Data
	case variantDictionary:
		return &RequestDictionary{v: v}
	case variantArray:
		return &RequestArray{v: v}
	default:
		return nil
	}
}

// describeVariant renders a value tree as JSON with symbolic key names, for
// crash logs, debug logs, and the CLI. uidName resolves interned symbols
// back to their dotted names.
func describeVariant(v *variant, uidName func(UID) string) string {
	var b strings.Builder
	writeVariantJSON(&b, v, uidName)
	return b.String()
}

func writeVariantJSON(b *strings.Builder, v *variant, uidName func(UID) string) {
	if v == nil {
		b.WriteString("null")
		return
	}
	switch v.Type {
	case variantNull:
		b.WriteString("null")
	case variantString, variantData:
		if v.Type == variantData {
			fmt.Fprintf(b, "%q", fmt.Sprintf("<%d bytes>", len(v.Data)))
			return
		}
		b.WriteString(strconv.Quote(v.Str))
	case variantInt64:
		b.WriteString(strconv.FormatInt(v.Int, 10))
	case variantBool:
		b.WriteString(strconv.FormatBool(v.Bool))
	case variantDouble:
		b.WriteString(strconv.FormatFloat(v.Dbl, 'g', -1, 64))
	case variantUID:
		b.WriteString(strconv.Quote(uidName(v.UID)))
	case variantDictionary:
		b.WriteByte('{')
		for i, k := range v.Keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(uidName(k)))
			b.WriteByte(':')
			writeVariantJSON(b, v.Elems[i], uidName)
		}
		b.WriteByte('}')
	case variantArray:
		b.WriteByte('[')
		for i, e := range v.Elems {
			if i > 0 {
				b.WriteByte(',')
			}
			writeVariantJSON(b, e, uidName)
		}
		b.WriteByte(']')
	}
}
