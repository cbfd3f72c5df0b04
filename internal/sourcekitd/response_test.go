package sourcekitd

import (
	"errors"
	"testing"
)

func testResponseTree() *variant {
	results := &variant{Type: variantArray, Elems: []*variant{
		{Type: variantDictionary,
			Keys:  []UID{10},
			Elems: []*variant{{Type: variantString, Str: "first"}}},
		{Type: variantString, Str: "not a dictionary"},
		{Type: variantDictionary,
			Keys:  []UID{10},
			Elems: []*variant{{Type: variantString, Str: "third"}}},
	}}
	return &variant{Type: variantDictionary,
		Keys: []UID{1, 2, 3, 4, 5},
		Elems: []*variant{
			{Type: variantString, Str: "name"},
			{Type: variantInt64, Int: 42},
			{Type: variantBool, Bool: true},
			{Type: variantUID, UID: 7},
			results,
		}}
}

func TestResponseDictionaryAccessors(t *testing.T) {
	d := newResponse(testResponseTree()).Dictionary()

	if s, ok := d.String(UID(1)); !ok || s != "name" {
		t.Errorf("String: %q %v", s, ok)
	}
	if n, ok := d.Int64(UID(2)); !ok || n != 42 {
		t.Errorf("Int64: %d %v", n, ok)
	}
	if n, ok := d.Int(UID(2)); !ok || n != 42 {
		t.Errorf("Int: %d %v", n, ok)
	}
	if b, ok := d.Bool(UID(3)); !ok || !b {
		t.Errorf("Bool: %v %v", b, ok)
	}
	if u, ok := d.UID(UID(4)); !ok || u != UID(7) {
		t.Errorf("UID: %d %v", u, ok)
	}
}

func TestResponseDictionaryTagMismatch(t *testing.T) {
	d := newResponse(testResponseTree()).Dictionary()

	if _, ok := d.Int64(UID(1)); ok {
		t.Error("Int64 matched a string")
	}
	if _, ok := d.String(UID(2)); ok {
		t.Error("String matched an int")
	}
	if _, ok := d.String(UID(99)); ok {
		t.Error("absent key reported present")
	}
}

func TestResponseArrayForEach(t *testing.T) {
	d := newResponse(testResponseTree()).Dictionary()
	arr, ok := d.Array(UID(5))
	if !ok || arr.Count() != 3 {
		t.Fatalf("Array: ok=%v count=%d", ok, arr.Count())
	}

	var seen []string
	arr.ForEach(func(_ int, dict *ResponseDictionary) bool {
		s, _ := dict.String(UID(10))
		seen = append(seen, s)
		return true
	})
	if len(seen) != 2 || seen[0] != "first" || seen[1] != "third" {
		t.Fatalf("ForEach visited %v, want dictionaries only", seen)
	}

	// Early termination.
	var count int
	arr.ForEach(func(int, *ResponseDictionary) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("ForEach ignored early termination: %d calls", count)
	}
}

func TestResponseUseAfterDispose(t *testing.T) {
	d := newResponse(testResponseTree()).Dictionary()
	d.Dispose()
	d.Dispose() // second dispose is a no-op

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrResponseDisposed) {
			t.Fatalf("read after dispose: recovered %v", r)
		}
	}()
	d.String(UID(1))
	t.Fatal("read after dispose did not panic")
}
