package loro

import (
	"github.com/loro-go/loro/internal/arena"
	"github.com/loro-go/loro/internal/diff"
	"github.com/loro-go/loro/internal/event"
)

// ContainerEvent is delivered to a container-specific Subscribe handler
// and, for every touched container in a commit, to every Doc.SubscribeRoot
// handler (spec.md §6.1 "subscribe(container_id, handler); subscribe_root
// (handler)").
//
// Simplification (recorded in DESIGN.md): one local transaction touching
// N containers emits N ContainerEvents, one per container, rather than a
// single combined multi-container event. Every op a commit contributes to
// one container is still coalesced into that container's one Diff/event,
// which is the guarantee spec.md §5 actually depends on ("ops within one
// local transaction are delivered to observers as one event").
type ContainerEvent struct {
	Container arena.ContainerID
	Diff      diff.Diff
	Local     bool
}

// rootKey is the sentinel event.Key every SubscribeRoot handler listens
// on, distinct from any real arena.ContainerIdx.
type rootKey struct{}

// Subscription cancels a Doc.Subscribe/SubscribeRoot registration.
type Subscription struct {
	sub *event.Subscription
}

// Unsubscribe cancels the subscription; safe to call repeatedly or from
// within the subscription's own handler.
func (s *Subscription) Unsubscribe() {
	if s != nil && s.sub != nil {
		s.sub.Unsubscribe()
	}
}

func newEmitter() *event.SubscriberSetWithQueue[ContainerEvent] {
	return event.NewSubscriberSetWithQueue[ContainerEvent]()
}

// emitForContainers delivers one ContainerEvent per touched container to
// that container's subscribers and to every root subscriber.
func (d *Doc) emitForContainers(events []ContainerEvent) {
	for i := range events {
		ev := events[i]
		idx, ok := d.arena.TryGet(ev.Container)
		if ok {
			d.events.Emit(idx, &ev)
		}
		d.events.Emit(rootKey{}, &ev)
	}
}
