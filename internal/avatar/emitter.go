package avatar

import "sync"

type listener struct {
	id ListenerID
	fn Handler
}

// Emitter fans provider events out to registered handlers in registration
// order. Handlers run on the emitting goroutine, so per-client delivery order
// is preserved.
type Emitter struct {
	mu        sync.RWMutex
	nextID    ListenerID
	listeners map[EventType][]listener
}

func (e *Emitter) On(t EventType, h Handler) ListenerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[EventType][]listener)
	}
	e.nextID++
	e.listeners[t] = append(e.listeners[t], listener{id: e.nextID, fn: h})
	return e.nextID
}

func (e *Emitter) Off(t EventType, id ListenerID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	arr := e.listeners[t]
	for i, l := range arr {
		if l.id != id {
			continue
		}
		next := make([]listener, 0, len(arr)-1)
		next = append(next, arr[:i]...)
		next = append(next, arr[i+1:]...)
		if len(next) == 0 {
			delete(e.listeners, t)
		} else {
			e.listeners[t] = next
		}
		return
	}
}

func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	arr := e.listeners[ev.Type]
	e.mu.RUnlock()
	for _, l := range arr {
		l.fn(ev)
	}
}

// ListenerCount reports how many handlers are registered for t.
func (e *Emitter) ListenerCount(t EventType) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[t])
}
