package authorization

import (
	"context"

	"github.com/carevault/carevault/internal/domain/auditevent"
	"github.com/carevault/carevault/internal/platform/actor"
)

// Meta carries the network context of the request that triggered a
// transition, for the audit trail.
type Meta struct {
	IPAddress string
	UserAgent string
}

// Notification is an outbound message to perform after the state write
// commits. Delivery failures never roll back or block the transition.
type Notification struct {
	Recipient actor.Actor
	Template  string
	Data      map[string]string
}

// Effects is the list of side effects a transition produced. The workflow
// functions return effects instead of performing them so that the
// authoritative state write is never entangled with audit or notification
// delivery.
type Effects struct {
	Events        []*auditevent.AccessEvent
	Notifications []Notification
}

func (fx *Effects) audit(ev *auditevent.AccessEvent) {
	fx.Events = append(fx.Events, ev)
}

func (fx *Effects) notify(recipient actor.Actor, template string, data map[string]string) {
	fx.Notifications = append(fx.Notifications, Notification{
		Recipient: recipient,
		Template:  template,
		Data:      data,
	})
}

// Recorder persists audit events out of band. Satisfied by
// auditevent.Recorder.
type Recorder interface {
	Record(ev *auditevent.AccessEvent)
}

// Notifier delivers a notification. Implementations are fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Dispatcher executes effects after the authoritative write has committed.
type Dispatcher struct {
	recorder Recorder
	notifier Notifier
}

func NewDispatcher(recorder Recorder, notifier Notifier) *Dispatcher {
	return &Dispatcher{recorder: recorder, notifier: notifier}
}

func (d *Dispatcher) Dispatch(ctx context.Context, fx Effects) {
	for _, ev := range fx.Events {
		d.recorder.Record(ev)
	}
	if d.notifier == nil {
		return
	}
	for _, n := range fx.Notifications {
		d.notifier.Notify(ctx, n)
	}
}
