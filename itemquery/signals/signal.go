package signals

import (
	"reflect"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/krew-solutions/itemquery/itemquery/disposable"
)

type entry[E any] struct {
	id       any
	observer Observer[E]
}

type SignalImp[E any] struct {
	mu        sync.RWMutex
	observers []entry[E]
}

func NewSignal[E any]() *SignalImp[E] {
	return &SignalImp[E]{}
}

func (s *SignalImp[E]) Attach(observer Observer[E], observerID ...any) disposable.Disposable {
	id := resolveID(observer, observerID)
	detach := disposable.NewDisposable(func() {
		s.Detach(observer, id)
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.observers {
		if e.id == id {
			return detach
		}
	}
	s.observers = append(s.observers, entry[E]{id: id, observer: observer})
	return detach
}

func (s *SignalImp[E]) Detach(observer Observer[E], observerID ...any) {
	id := resolveID(observer, observerID)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.observers {
		if e.id == id {
			s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
			return
		}
	}
}

// Notify calls every observer, even after a failure, and returns the
// failures combined.
func (s *SignalImp[E]) Notify(event E) error {
	s.mu.RLock()
	observers := append([]entry[E](nil), s.observers...)
	s.mu.RUnlock()

	var result *multierror.Error
	for _, e := range observers {
		if err := e.observer(event); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func resolveID[E any](observer Observer[E], observerID []any) any {
	if len(observerID) > 0 {
		return observerID[0]
	}
	return makeID(observer)
}

func makeID[E any](observer Observer[E]) uintptr {
	return reflect.ValueOf(observer).Pointer()
}
