package engine

import (
	"time"

	"github.com/dominossauro/lowcode/pkg/schema"
)

// Observer receives execution events. Implementations must be safe for
// concurrent use; they are called inline on the request goroutine.
type Observer interface {
	NodeExecuted(controller, nodeType string, output schema.OutputKey, d time.Duration, err error)
	RequestCompleted(controller string, status int, d time.Duration)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) NodeExecuted(string, string, schema.OutputKey, time.Duration, error) {}
func (NopObserver) RequestCompleted(string, int, time.Duration)                         {}

// Observers fans every event out to each of obs in order.
func Observers(obs ...Observer) Observer {
	return multiObserver(obs)
}

type multiObserver []Observer

func (m multiObserver) NodeExecuted(controller, nodeType string, output schema.OutputKey, d time.Duration, err error) {
	for _, o := range m {
		o.NodeExecuted(controller, nodeType, output, d, err)
	}
}

func (m multiObserver) RequestCompleted(controller string, status int, d time.Duration) {
	for _, o := range m {
		o.RequestCompleted(controller, status, d)
	}
}
