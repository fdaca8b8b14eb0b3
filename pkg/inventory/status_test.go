package inventory

import (
	"testing"
	"time"
)

func TestStatusRecord(t *testing.T) {
	var status Status

	if _, ticked := status.Last(); ticked {
		t.Fatal("wanted no tick before the first record; found one")
	}

	wanted := TickSummary{
		Time:  time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
		Nodes: 3,
		Added: 1,
	}
	status.record(wanted)

	found, ticked := status.Last()
	if !ticked {
		t.Fatal("wanted a recorded tick; found none")
	}
	if wanted != found {
		t.Fatalf("wanted `%+v`; found `%+v`", wanted, found)
	}
}

// A nil Status must be safe: the monitor records unconditionally and only
// the CLI knows whether the status listener is enabled.
func TestStatusNilReceiver(t *testing.T) {
	var status *Status
	status.record(TickSummary{})
}
