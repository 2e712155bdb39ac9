package signals

import (
	"github.com/krew-solutions/itemquery/itemquery/disposable"
)

type Observer[E any] func(E) error

// Signal delivers events to attached observers in attachment order.
// Observers are identified by observerID, or by the function itself.
type Signal[E any] interface {
	Attach(observer Observer[E], observerID ...any) disposable.Disposable
	Detach(observer Observer[E], observerID ...any)
	Notify(event E) error
}
