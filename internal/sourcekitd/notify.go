package sourcekitd

import (
	"sync"
	"weak"
)

// NotificationHandler receives backend-pushed notifications (diagnostics
// availability, document updates). Handlers are held weakly: registering
// never extends the handler's lifetime, and entries whose handler has been
// collected are pruned opportunistically.
type NotificationHandler interface {
	HandleNotification(notification *ResponseDictionary)
}

// NotificationToken identifies a registration for removal.
type NotificationToken uint64

// subscriberEntry is a non-owning handle to a registered handler. live
// returns nil once the handler has been collected.
type subscriberEntry struct {
	token NotificationToken
	live  func() NotificationHandler
}

// AddNotificationHandler registers a handler for backend notifications. The
// session holds the handler weakly; the returned token removes it early.
// Handlers are invoked in registration order, one notification at a time.
func AddNotificationHandler[H any, P interface {
	*H
	NotificationHandler
}](s *SourceKitD, handler P) NotificationToken {
	ref := weak.Make((*H)(handler))
	live := func() NotificationHandler {
		p := ref.Value()
		if p == nil {
			return nil
		}
		return P(p)
	}
	return s.skd.addSubscriber(live)
}

// RemoveNotificationHandler removes a previously registered handler.
func (s *skd) RemoveNotificationHandler(token NotificationToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.subscribers[:0]
	for _, e := range s.subscribers {
		if e.token == token || e.live() == nil {
			continue
		}
		kept = append(kept, e)
	}
	s.subscribers = kept
}

func (s *skd) addSubscriber(live func() NotificationHandler) NotificationToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := NotificationToken(s.nextToken)
	s.nextToken++
	kept := s.subscribers[:0]
	for _, e := range s.subscribers {
		if e.live() == nil {
			continue
		}
		kept = append(kept, e)
	}
	s.subscribers = append(kept, subscriberEntry{token: token, live: live})
	return token
}

// snapshotSubscribers returns the currently live handlers in registration
// order, pruning dead entries.
func (s *skd) snapshotSubscribers() []NotificationHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.subscribers[:0]
	var live []NotificationHandler
	for _, e := range s.subscribers {
		h := e.live()
		if h == nil {
			continue
		}
		kept = append(kept, e)
		live = append(live, h)
	}
	s.subscribers = kept
	return live
}

// notificationQueue is a strictly-ordered single-consumer queue. The
// binding's callback thread enqueues raw notifications; one consumer
// goroutine drains them in FIFO order, fanning each out to all subscribers
// before touching the next. This preserves backend emission order across
// subscribers: no interleaving of two notifications' fan-outs.
type notificationQueue struct {
	mu     sync.Mutex
	items  []*ResponseObject
	wake   chan struct{}
	closed bool
}

func newNotificationQueue() *notificationQueue {
	return &notificationQueue{wake: make(chan struct{}, 1)}
}

// push enqueues a notification. Safe to call from any goroutine; never
// blocks the caller.
func (q *notificationQueue) push(obj *ResponseObject) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, obj)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pop blocks until an item is available or the queue is closed.
func (q *notificationQueue) pop() (*ResponseObject, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, false
		}
		<-q.wake
	}
}

// close stops the queue; pending items are dropped.
func (q *notificationQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// drainNotifications is the consumer loop. It runs in its own goroutine for
// the lifetime of the session.
func (s *skd) drainNotifications() {
	for {
		obj, ok := s.notifQ.pop()
		if !ok {
			return
		}
		if obj.errKind != wireErrNone || obj.value == nil {
			continue
		}
		dict := newResponse(obj.value).Dictionary()
		for _, h := range s.snapshotSubscribers() {
			h.HandleNotification(dict)
		}
	}
}
