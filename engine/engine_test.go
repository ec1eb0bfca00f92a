package engine

import (
	"encoding/json"
	"testing"

	"go.viam.com/test"
)

func TestTransferStatusFraction(t *testing.T) {
	test.That(t, TransferStatus{}.Fraction(), test.ShouldEqual, 0)
	test.That(t, TransferStatus{BytesTransferred: 25, BytesTotal: 100}.Fraction(), test.ShouldEqual, 0.25)
	test.That(t, TransferStatus{BytesTransferred: 150, BytesTotal: 100}.Fraction(), test.ShouldEqual, 1)
	test.That(t, TransferStatus{BytesTransferred: -5, BytesTotal: 100}.Fraction(), test.ShouldEqual, 0)

	test.That(t, TransferStatus{Completed: true}.Terminal(), test.ShouldBeTrue)
	test.That(t, TransferStatus{Faulted: true}.Terminal(), test.ShouldBeTrue)
	test.That(t, TransferStatus{BytesTransferred: 1}.Terminal(), test.ShouldBeFalse)
}

func TestMappingStatusJSON(t *testing.T) {
	for _, s := range []MappingStatus{Waiting, Running, Lost} {
		data, err := json.Marshal(s)
		test.That(t, err, test.ShouldBeNil)
		var back MappingStatus
		test.That(t, json.Unmarshal(data, &back), test.ShouldBeNil)
		test.That(t, back, test.ShouldEqual, s)
	}

	data, err := json.Marshal(Running)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual, `"running"`)

	var s MappingStatus
	test.That(t, json.Unmarshal([]byte(`"tracking"`), &s), test.ShouldNotBeNil)
	_, err = json.Marshal(MappingStatus(9))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, MappingStatus(9).String(), test.ShouldEqual, "MappingStatus(9)")
}
