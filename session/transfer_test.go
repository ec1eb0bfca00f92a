package session

import (
	"testing"

	"go.viam.com/test"
)

func checkTransferContract(t *testing.T, reports []TransferProgress) {
	t.Helper()
	test.That(t, reports, test.ShouldNotBeEmpty)
	last := 0.0
	for i, r := range reports {
		test.That(t, r.Percentage, test.ShouldBeBetweenOrEqual, 0.0, 1.0)
		test.That(t, r.Percentage, test.ShouldBeGreaterThanOrEqualTo, last)
		last = r.Percentage
		terminal := r.Completed || r.Faulted
		test.That(t, terminal, test.ShouldEqual, i == len(reports)-1)
	}
}

func TestTransferTrackerCompleted(t *testing.T) {
	var reports []TransferProgress
	tr := newTransferTracker(func(p TransferProgress) { reports = append(reports, p) })

	for _, f := range []float64{0.1, 0.4, 0.4, 0.2, 1.7, -1} {
		tr.progress(f)
	}
	tr.complete()
	tr.progress(0.5)
	tr.fault()
	tr.complete()

	checkTransferContract(t, reports)
	test.That(t, reports, test.ShouldHaveLength, 7)
	test.That(t, reports[3].Percentage, test.ShouldEqual, 0.4)
	test.That(t, reports[4].Percentage, test.ShouldEqual, 1.0)
	test.That(t, reports[6], test.ShouldResemble, TransferProgress{Completed: true, Percentage: 1})
	test.That(t, tr.finished(), test.ShouldBeTrue)
}

func TestTransferTrackerFaulted(t *testing.T) {
	var reports []TransferProgress
	tr := newTransferTracker(func(p TransferProgress) { reports = append(reports, p) })
	tr.progress(0.25)
	tr.fault()
	tr.complete()

	checkTransferContract(t, reports)
	test.That(t, reports, test.ShouldResemble, []TransferProgress{
		{Percentage: 0.25},
		{Faulted: true, Percentage: 0.25},
	})
}

func TestTransferTrackerNilCallback(t *testing.T) {
	tr := newTransferTracker(nil)
	tr.progress(0.5)
	tr.complete()
	test.That(t, tr.finished(), test.ShouldBeTrue)
}
