package disposable

import "sync"

type Disposable interface {
	Dispose()
}

type disposableFunc struct {
	once     sync.Once
	callback func()
}

// NewDisposable returns a Disposable running callback on the first Dispose.
func NewDisposable(callback func()) Disposable {
	return &disposableFunc{callback: callback}
}

func (d *disposableFunc) Dispose() {
	d.once.Do(d.callback)
}
