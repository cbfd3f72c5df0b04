package sourcekitd

import (
	"sync/atomic"

	"fortio.org/safecast"
)

// ResponseObject is a raw backend reply before interpretation: either an
// error with a kind, or a success value tree. Bindings construct these on
// their callback thread; the session resolves them into typed errors or a
// ResponseDictionary.
type ResponseObject struct {
	errKind uint8
	errDesc string
	value   *variant
}

// Response owns the memory backing a successful reply. Values read out of it
// must not be used after Dispose; disposal happens exactly once.
type Response struct {
	disposed atomic.Bool
	value    *variant
}

func newResponse(value *variant) *Response {
	return &Response{value: value}
}

// Dispose releases the response. Calling it more than once is a no-op.
func (r *Response) Dispose() {
	if r.disposed.Swap(true) {
		return
	}
	r.value = nil
}

// variantOf guards every read against use-after-dispose.
func (r *Response) variantOf(v *variant) *variant {
	if r.disposed.Load() {
		panic(ErrResponseDisposed)
	}
	return v
}

// ResponseDictionary is a read-only keyed view into a response. Every typed
// accessor is fallible: it returns ok=false when the key is absent or the
// stored value's runtime tag does not match the requested type.
type ResponseDictionary struct {
	resp *Response
	v    *variant
}

// Dictionary returns the top-level dictionary of the response.
func (r *Response) Dictionary() *ResponseDictionary {
	return &ResponseDictionary{resp: r, v: r.variantOf(r.value)}
}

// Dispose releases the owning response.
func (d *ResponseDictionary) Dispose() {
	d.resp.Dispose()
}

// String returns the string stored under key.
func (d *ResponseDictionary) String(key UID) (string, bool) {
	v, ok := d.resp.variantOf(d.v).lookup(key)
	if !ok || v.Type != variantString {
		return "", false
	}
	return v.Str, true
}

// Int64 returns the integer stored under key.
func (d *ResponseDictionary) Int64(key UID) (int64, bool) {
	v, ok := d.resp.variantOf(d.v).lookup(key)
	if !ok || v.Type != variantInt64 {
		return 0, false
	}
	return v.Int, true
}

// Int returns the integer stored under key, converted to int. Values outside
// the int range are treated as a tag mismatch.
func (d *ResponseDictionary) Int(key UID) (int, bool) {
	n, ok := d.Int64(key)
	if !ok {
		return 0, false
	}
	i, err := safecast.Conv[int](n)
	if err != nil {
		return 0, false
	}
	return i, true
}

// Bool returns the boolean stored under key.
func (d *ResponseDictionary) Bool(key UID) (bool, bool) {
	v, ok := d.resp.variantOf(d.v).lookup(key)
	if !ok || v.Type != variantBool {
		return false, false
	}
	return v.Bool, true
}

// Double returns the floating-point value stored under key.
func (d *ResponseDictionary) Double(key UID) (float64, bool) {
	v, ok := d.resp.variantOf(d.v).lookup(key)
	if !ok || v.Type != variantDouble {
		return 0, false
	}
	return v.Dbl, true
}

// UID returns the interned symbol stored under key.
func (d *ResponseDictionary) UID(key UID) (UID, bool) {
	v, ok := d.resp.variantOf(d.v).lookup(key)
	if !ok || v.Type != variantUID {
		return 0, false
	}
	return v.UID, true
}

// Data returns the raw bytes stored under key.
func (d *ResponseDictionary) Data(key UID) ([]byte, bool) {
	v, ok := d.resp.variantOf(d.v).lookup(key)
	if !ok || v.Type != variantData {
		return nil, false
	}
	return v.Data, true
}

// Dictionary returns the nested dictionary stored under key.
func (d *ResponseDictionary) Dictionary(key UID) (*ResponseDictionary, bool) {
	v, ok := d.resp.variantOf(d.v).lookup(key)
	if !ok || v.Type != variantDictionary {
		return nil, false
	}
	return &ResponseDictionary{resp: d.resp, v: v}, true
}

// Array returns the nested array stored under key.
func (d *ResponseDictionary) Array(key UID) (*ResponseArray, bool) {
	v, ok := d.resp.variantOf(d.v).lookup(key)
	if !ok || v.Type != variantArray {
		return nil, false
	}
	return &ResponseArray{resp: d.resp, v: v}, true
}

// ResponseArray is a read-only indexed view into a response.
type ResponseArray struct {
	resp *Response
	v    *variant
}

// Count returns the number of elements.
func (a *ResponseArray) Count() int {
	return len(a.resp.variantOf(a.v).Elems)
}

// String returns the string at index.
func (a *ResponseArray) String(index int) (string, bool) {
	v, ok := a.elem(index)
	if !ok || v.Type != variantString {
		return "", false
	}
	return v.Str, true
}

// Int64 returns the integer at index.
func (a *ResponseArray) Int64(index int) (int64, bool) {
	v, ok := a.elem(index)
	if !ok || v.Type != variantInt64 {
		return 0, false
	}
	return v.Int, true
}

// UID returns the interned symbol at index.
func (a *ResponseArray) UID(index int) (UID, bool) {
	v, ok := a.elem(index)
	if !ok || v.Type != variantUID {
		return 0, false
	}
	return v.UID, true
}

// Dictionary returns the dictionary at index.
func (a *ResponseArray) Dictionary(index int) (*ResponseDictionary, bool) {
	v, ok := a.elem(index)
	if !ok || v.Type != variantDictionary {
		return nil, false
	}
	return &ResponseDictionary{resp: a.resp, v: v}, true
}

// ForEach invokes fn for each dictionary element in order, stopping early
// when fn returns false. Non-dictionary elements are skipped. This supports
// streaming large result sets without building an intermediate collection.
func (a *ResponseArray) ForEach(fn func(index int, dict *ResponseDictionary) bool) {
	elems := a.resp.variantOf(a.v).Elems
	for i, v := range elems {
		if v.Type != variantDictionary {
			continue
		}
		if !fn(i, &ResponseDictionary{resp: a.resp, v: v}) {
			return
		}
	}
}

func (a *ResponseArray) elem(index int) (*variant, bool) {
	elems := a.resp.variantOf(a.v).Elems
	if index < 0 || index >= len(elems) {
		return nil, false
	}
	return elems[index], true
}
