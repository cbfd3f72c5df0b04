package sourcekitd

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestInProcessUIDInterning(t *testing.T) {
	lib := NewInProcessLibrary(BackendFunc(func(context.Context, *RequestDictionary) (*RequestDictionary, error) {
		return NewRequestDictionary(), nil
	}))

	a := lib.internUID("key.name")
	b := lib.internUID("key.offset")
	if a == 0 || b == 0 || a == b {
		t.Fatalf("interning produced %d and %d", a, b)
	}
	if lib.internUID("key.name") != a {
		t.Fatal("interning not idempotent")
	}
	if got := lib.uidString(a); got != "key.name" {
		t.Fatalf("uidString: %q", got)
	}
	if got := lib.uidString(UID(999)); got != "" {
		t.Fatalf("unknown uid resolved to %q", got)
	}
}

func TestInProcessCancelRequest(t *testing.T) {
	started := make(chan struct{})
	lib := NewInProcessLibrary(BackendFunc(func(ctx context.Context, _ *RequestDictionary) (*RequestDictionary, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	replyCh := make(chan *ResponseObject, 1)
	handle := lib.sendRequest(NewRequestDictionary(), func(obj *ResponseObject) { replyCh <- obj })

	<-started
	lib.cancelRequest(handle)

	select {
	case obj := <-replyCh:
		if obj.errKind != wireErrRequestCancelled {
			t.Fatalf("errKind: got %d, want cancelled", obj.errKind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled request never resolved")
	}
}

func TestInProcessErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		want uint8
	}{
		{ErrRequestCancelled, wireErrRequestCancelled},
		{context.Canceled, wireErrRequestCancelled},
		{ErrRequestInvalid, wireErrRequestInvalid},
		{ErrConnectionInterrupted, wireErrConnectionInterrupted},
		{fmt.Errorf("wrapped: %w", ErrRequestInvalid), wireErrRequestInvalid},
		{errors.New("anything else"), wireErrRequestFailed},
	}
	for _, tt := range tests {
		if got := errKindOf(tt.err); got != tt.want {
			t.Errorf("errKindOf(%v): got %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestInProcessSendAfterClose(t *testing.T) {
	lib := NewInProcessLibrary(BackendFunc(func(context.Context, *RequestDictionary) (*RequestDictionary, error) {
		return NewRequestDictionary(), nil
	}))
	if err := lib.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	replyCh := make(chan *ResponseObject, 1)
	lib.sendRequest(NewRequestDictionary(), func(obj *ResponseObject) { replyCh <- obj })

	select {
	case obj := <-replyCh:
		if obj.errKind != wireErrConnectionInterrupted {
			t.Fatalf("errKind: got %d, want connection interrupted", obj.errKind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send on closed library never resolved")
	}
}

func TestInProcessPostNotification(t *testing.T) {
	lib := NewInProcessLibrary(BackendFunc(func(context.Context, *RequestDictionary) (*RequestDictionary, error) {
		return NewRequestDictionary(), nil
	}))

	received := make(chan *ResponseObject, 1)
	sym, ok := lib.Symbol(symSetNotificationHandler)
	if !ok {
		t.Fatal("notification handler entry point missing")
	}
	sym.(func(func(*ResponseObject)))(func(obj *ResponseObject) { received <- obj })

	n := NewRequestDictionary()
	n.Set(lib.internUID("key.notification"), lib.internUID("source.notification.sema_enabled"))
	lib.PostNotification(n)

	select {
	case obj := <-received:
		if obj.value == nil {
			t.Fatal("notification lost its payload")
		}
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
}
