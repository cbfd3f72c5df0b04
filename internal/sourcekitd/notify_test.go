package sourcekitd

import (
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) append(e string) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) waitLen(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(l.snapshot()) >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, have %v", n, l.snapshot())
}

type recordingHandler struct {
	name    string
	version UID
	log     *eventLog
}

func (h *recordingHandler) HandleNotification(n *ResponseDictionary) {
	v, _ := n.Int64(h.version)
	h.log.append(fmt.Sprintf("%s:%d", h.name, v))
}

func TestNotificationOrderAcrossSubscribers(t *testing.T) {
	sk, lib := newTestSession(t, answerEmpty)
	versionKey := sk.Keys().Version

	log := &eventLog{}
	h1 := &recordingHandler{name: "s1", version: versionKey, log: log}
	h2 := &recordingHandler{name: "s2", version: versionKey, log: log}
	AddNotificationHandler(sk, h1)
	AddNotificationHandler(sk, h2)

	for v := 1; v <= 2; v++ {
		n := NewRequestDictionary()
		n.Set(versionKey, v)
		lib.PostNotification(n)
	}

	log.waitLen(t, 4)
	got := log.snapshot()
	want := []string{"s1:1", "s2:1", "s1:2", "s2:2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("fan-out order: got %v, want %v", got, want)
		}
	}
	runtime.KeepAlive(h1)
	runtime.KeepAlive(h2)
}

func TestRemoveNotificationHandler(t *testing.T) {
	sk, lib := newTestSession(t, answerEmpty)
	versionKey := sk.Keys().Version

	log := &eventLog{}
	h := &recordingHandler{name: "s", version: versionKey, log: log}
	token := AddNotificationHandler(sk, h)

	n := NewRequestDictionary()
	n.Set(versionKey, 1)
	lib.PostNotification(n)
	log.waitLen(t, 1)

	sk.RemoveNotificationHandler(token)
	lib.PostNotification(n)

	time.Sleep(50 * time.Millisecond)
	if got := log.snapshot(); len(got) != 1 {
		t.Fatalf("removed handler still invoked: %v", got)
	}
	runtime.KeepAlive(h)
}

func TestErrorNotificationsAreDropped(t *testing.T) {
	sk, _ := newTestSession(t, answerEmpty)
	versionKey := sk.Keys().Version

	log := &eventLog{}
	h := &recordingHandler{name: "s", version: versionKey, log: log}
	AddNotificationHandler(sk, h)

	sk.notifQ.push(&ResponseObject{errKind: wireErrConnectionInterrupted, errDesc: "dead"})
	sk.notifQ.push(&ResponseObject{})

	good := NewRequestDictionary()
	good.Set(versionKey, 7)
	sk.notifQ.push(&ResponseObject{value: good.v})

	log.waitLen(t, 1)
	if got := log.snapshot(); len(got) != 1 || got[0] != "s:7" {
		t.Fatalf("got %v, want only the well-formed notification", got)
	}
	runtime.KeepAlive(h)
}

func TestNotificationQueueFIFO(t *testing.T) {
	q := newNotificationQueue()
	for i := range 3 {
		q.push(&ResponseObject{errDesc: fmt.Sprint(i)})
	}
	for i := range 3 {
		obj, ok := q.pop()
		if !ok || obj.errDesc != fmt.Sprint(i) {
			t.Fatalf("pop %d: got %v ok=%v", i, obj, ok)
		}
	}
}

func TestNotificationQueueCloseUnblocksConsumer(t *testing.T) {
	q := newNotificationQueue()
	done := make(chan struct{})
	go func() {
		_, ok := q.pop()
		if ok {
			t.Error("pop on closed queue reported an item")
		}
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	q.close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer still blocked after close")
	}

	// Pushing after close is a silent no-op.
	q.push(&ResponseObject{})
	if _, ok := q.pop(); ok {
		t.Fatal("push after close enqueued an item")
	}
}
