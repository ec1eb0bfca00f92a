// Package session coordinates a mapping session: it fans engine output out to listeners,
// reconciles the live tracking frame with the map frame and serializes the asynchronous session
// lifecycle.
package session

import (
	"reflect"
	"sync"

	"github.com/samber/lo"

	"go.viam.com/arsession/engine"
	"go.viam.com/arsession/event"
	"go.viam.com/arsession/logging"
	"go.viam.com/arsession/spatialmath"
	"go.viam.com/arsession/utils"
)

// PoseListener receives every pose while the session is running.
type PoseListener interface {
	OnPose(output, raw spatialmath.Pose)
}

// StatusListener receives every mapping status transition.
type StatusListener interface {
	OnStatusChange(prev, curr engine.MappingStatus)
}

// LocalizedListener is told once when a localizing session first finds the loaded map.
type LocalizedListener interface {
	OnLocalized()
}

// LostListener is told each time a running session loses tracking.
type LostListener interface {
	OnLost()
}

// Listener implements all of the original session callbacks. Listeners only need the
// capabilities they use; this interface exists for ones that want every event.
type Listener interface {
	PoseListener
	StatusListener
	LocalizedListener
}

// PoseUpdate is the payload of a pose event.
type PoseUpdate struct {
	Output spatialmath.Pose
	Raw    spatialmath.Pose
}

// StatusChange is the payload of a status event.
type StatusChange struct {
	Prev engine.MappingStatus
	Curr engine.MappingStatus
}

type registeredListener struct {
	listener any
	token    event.Disposable
}

// Multicast fans session events out to registered listeners in registration order. Each event
// kind is an independent event.Event, so a listener is only subscribed to what it implements.
type Multicast struct {
	logger    logging.Logger
	pose      *event.Event[PoseUpdate]
	status    *event.Event[StatusChange]
	localized *event.Event[struct{}]
	lost      *event.Event[struct{}]

	mu        sync.Mutex
	listeners []*registeredListener
}

// NewMulticast returns an empty Multicast.
func NewMulticast(logger logging.Logger) *Multicast {
	return &Multicast{
		logger:    logger,
		pose:      event.NewNamed[PoseUpdate]("pose listener", logger),
		status:    event.NewNamed[StatusChange]("status listener", logger),
		localized: event.NewNamed[struct{}]("localized listener", logger),
		lost:      event.NewNamed[struct{}]("lost listener", logger),
	}
}

// AddListener subscribes l to every event kind it implements. The returned Disposable removes all
// of those subscriptions. It fails when l implements none of the listener interfaces.
func (mc *Multicast) AddListener(l any) (event.Disposable, error) {
	if l == nil || !reflect.TypeOf(l).Comparable() {
		return nil, utils.NewUnimplementedInterfaceError((*Listener)(nil), l)
	}

	var tokens []event.Disposable
	if pl, ok := l.(PoseListener); ok {
		tokens = append(tokens, mc.OnPose(pl.OnPose))
	}
	if sl, ok := l.(StatusListener); ok {
		tokens = append(tokens, mc.OnStatusChange(sl.OnStatusChange))
	}
	if ll, ok := l.(LocalizedListener); ok {
		tokens = append(tokens, mc.OnLocalized(ll.OnLocalized))
	}
	if ll, ok := l.(LostListener); ok {
		tokens = append(tokens, mc.OnLost(ll.OnLost))
	}
	if len(tokens) == 0 {
		return nil, utils.NewUnimplementedInterfaceError((*Listener)(nil), l)
	}

	reg := &registeredListener{listener: l}
	var once sync.Once
	reg.token = event.DisposeFunc(func() {
		once.Do(func() {
			for _, tok := range tokens {
				tok.Dispose()
			}
			mc.mu.Lock()
			mc.listeners = lo.Without(mc.listeners, reg)
			mc.mu.Unlock()
		})
	})

	mc.mu.Lock()
	mc.listeners = append(mc.listeners, reg)
	mc.mu.Unlock()
	mc.logger.Debugw("added listener", "listener", utils.TypeName(l))
	return reg.token, nil
}

// RemoveListener removes every registration of l made through AddListener. It is a no-op for a
// listener that is not registered.
func (mc *Multicast) RemoveListener(l any) {
	if l == nil || !reflect.TypeOf(l).Comparable() {
		return
	}
	mc.mu.Lock()
	matches := lo.Filter(mc.listeners, func(reg *registeredListener, _ int) bool {
		return reg.listener == l
	})
	mc.mu.Unlock()
	for _, reg := range matches {
		reg.token.Dispose()
	}
}

// Listeners returns the number of listeners registered through AddListener.
func (mc *Multicast) Listeners() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.listeners)
}

// OnPose subscribes a function to pose events.
func (mc *Multicast) OnPose(f func(output, raw spatialmath.Pose)) event.Disposable {
	return mc.pose.Subscribe(func(u PoseUpdate) { f(u.Output, u.Raw) })
}

// OnStatusChange subscribes a function to status events.
func (mc *Multicast) OnStatusChange(f func(prev, curr engine.MappingStatus)) event.Disposable {
	return mc.status.Subscribe(func(c StatusChange) { f(c.Prev, c.Curr) })
}

// OnLocalized subscribes a function to localized events.
func (mc *Multicast) OnLocalized(f func()) event.Disposable {
	return mc.localized.Subscribe(func(struct{}) { f() })
}

// OnLost subscribes a function to lost events.
func (mc *Multicast) OnLost(f func()) event.Disposable {
	return mc.lost.Subscribe(func(struct{}) { f() })
}

// DispatchPose forwards a pose to every pose subscriber.
func (mc *Multicast) DispatchPose(output, raw spatialmath.Pose) {
	mc.pose.Publish(PoseUpdate{Output: output, Raw: raw})
}

// DispatchStatusChange forwards a status transition to every status subscriber.
func (mc *Multicast) DispatchStatusChange(prev, curr engine.MappingStatus) {
	mc.status.Publish(StatusChange{Prev: prev, Curr: curr})
}

// DispatchLocalized notifies every localized subscriber.
func (mc *Multicast) DispatchLocalized() {
	mc.localized.Publish(struct{}{})
}

// DispatchLost notifies every lost subscriber.
func (mc *Multicast) DispatchLost() {
	mc.lost.Publish(struct{}{})
}
