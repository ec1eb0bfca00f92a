package session

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/arsession/engine"
	"go.viam.com/arsession/event"
	"go.viam.com/arsession/logging"
	"go.viam.com/arsession/spatialmath"
)

type recordingListener struct {
	name     string
	log      *[]string
	statuses []StatusChange
	poses    int
}

func (l *recordingListener) OnPose(_, _ spatialmath.Pose) {
	l.poses++
	*l.log = append(*l.log, l.name+":pose")
}

func (l *recordingListener) OnStatusChange(prev, curr engine.MappingStatus) {
	l.statuses = append(l.statuses, StatusChange{Prev: prev, Curr: curr})
	*l.log = append(*l.log, l.name+":status")
}

func (l *recordingListener) OnLocalized() {
	*l.log = append(*l.log, l.name+":localized")
}

func (l *recordingListener) OnLost() {
	*l.log = append(*l.log, l.name+":lost")
}

type statusOnly struct {
	count int
}

func (s *statusOnly) OnStatusChange(_, _ engine.MappingStatus) {
	s.count++
}

type panickingListener struct{}

func (panickingListener) OnLocalized() {
	panic("listener failure")
}

func TestMulticastOrder(t *testing.T) {
	mc := NewMulticast(logging.NewTestLogger(t))
	var log []string
	a := &recordingListener{name: "a", log: &log}
	b := &recordingListener{name: "b", log: &log}

	_, err := mc.AddListener(a)
	test.That(t, err, test.ShouldBeNil)
	_, err = mc.AddListener(b)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mc.Listeners(), test.ShouldEqual, 2)

	pose := spatialmath.NewZeroPose()
	mc.DispatchPose(pose, pose)
	mc.DispatchStatusChange(engine.Waiting, engine.Running)
	mc.DispatchLocalized()
	mc.DispatchLost()
	test.That(t, log, test.ShouldResemble, []string{
		"a:pose", "b:pose",
		"a:status", "b:status",
		"a:localized", "b:localized",
		"a:lost", "b:lost",
	})
	test.That(t, a.statuses, test.ShouldResemble, []StatusChange{{Prev: engine.Waiting, Curr: engine.Running}})
}

func TestMulticastCapabilities(t *testing.T) {
	mc := NewMulticast(logging.NewTestLogger(t))
	s := &statusOnly{}
	_, err := mc.AddListener(s)
	test.That(t, err, test.ShouldBeNil)

	pose := spatialmath.NewZeroPose()
	mc.DispatchPose(pose, pose)
	mc.DispatchLocalized()
	mc.DispatchStatusChange(engine.Running, engine.Lost)
	test.That(t, s.count, test.ShouldEqual, 1)

	_, err = mc.AddListener(nil)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = mc.AddListener(&struct{}{})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, mc.Listeners(), test.ShouldEqual, 1)
}

func TestMulticastDispose(t *testing.T) {
	mc := NewMulticast(logging.NewTestLogger(t))
	var log []string
	a := &recordingListener{name: "a", log: &log}
	b := &recordingListener{name: "b", log: &log}

	tokA, err := mc.AddListener(a)
	test.That(t, err, test.ShouldBeNil)
	_, err = mc.AddListener(b)
	test.That(t, err, test.ShouldBeNil)

	tokA.Dispose()
	tokA.Dispose()
	test.That(t, mc.Listeners(), test.ShouldEqual, 1)
	mc.DispatchLost()
	test.That(t, log, test.ShouldResemble, []string{"b:lost"})

	mc.RemoveListener(b)
	mc.RemoveListener(b)
	test.That(t, mc.Listeners(), test.ShouldEqual, 0)
	mc.DispatchLost()
	test.That(t, log, test.ShouldHaveLength, 1)
}

func TestMulticastDisposeDuringDispatch(t *testing.T) {
	mc := NewMulticast(logging.NewTestLogger(t))
	var calls []string
	var tok event.Disposable
	tok = mc.OnLost(func() {
		calls = append(calls, "first")
		tok.Dispose()
	})
	mc.OnLost(func() { calls = append(calls, "second") })

	mc.DispatchLost()
	mc.DispatchLost()
	test.That(t, calls, test.ShouldResemble, []string{"first", "second", "second"})
}

func TestMulticastListenerPanic(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	mc := NewMulticast(logger)
	var log []string
	_, err := mc.AddListener(panickingListener{})
	test.That(t, err, test.ShouldBeNil)
	_, err = mc.AddListener(&recordingListener{name: "after", log: &log})
	test.That(t, err, test.ShouldBeNil)

	mc.DispatchLocalized()
	test.That(t, log, test.ShouldResemble, []string{"after:localized"})
	test.That(t, logs.FilterMessage("recovered from panic").Len(), test.ShouldEqual, 1)
}
