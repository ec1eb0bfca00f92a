package utils

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/arsession/logging"
)

func TestCallSafely(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)

	var ran bool
	test.That(t, CallSafely(logger, "ok", func() { ran = true }), test.ShouldBeTrue)
	test.That(t, ran, test.ShouldBeTrue)
	test.That(t, logs.Len(), test.ShouldEqual, 0)

	test.That(t, CallSafely(logger, "pose listener", func() { panic("bad listener") }), test.ShouldBeFalse)
	entries := logs.FilterMessage("recovered from panic").All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].ContextMap()["callback"], test.ShouldEqual, "pose listener")
	test.That(t, entries[0].ContextMap()["error"], test.ShouldEqual, "panic in pose listener: bad listener")
}
