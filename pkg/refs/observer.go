package refs

import (
	"sync"

	"go.uber.org/zap"
)

// Observer 引用变更的同步回调；在该引用的锁内调用，不要在回调里修改同一个引用
type Observer interface {
	RefChanged(Event)
}

// ObserverFunc 函数适配器
type ObserverFunc func(Event)

func (f ObserverFunc) RefChanged(e Event) { f(e) }

type hub struct {
	mu        sync.RWMutex
	observers []Observer
	subs      map[uint64]chan Event
	next      uint64
	log       *zap.Logger
}

func newHub(log *zap.Logger) *hub {
	return &hub{subs: make(map[uint64]chan Event), log: log}
}

func (h *hub) add(o Observer) {
	h.mu.Lock()
	h.observers = append(h.observers, o)
	h.mu.Unlock()
}

func (h *hub) subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(ch)
			h.mu.Unlock()
		})
	}
}

// publish 慢订阅者直接丢事件
func (h *hub) publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, o := range h.observers {
		o.RefChanged(e)
	}
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.log.Warn("dropping ref event for slow subscriber", zap.String("ref", e.Name))
		}
	}
}
