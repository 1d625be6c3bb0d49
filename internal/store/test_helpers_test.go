package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/types"
)

var testCaller = types.MustParseAddress("0x00000000000000000000000000000000000000aa")

// createTestStore opens a fresh store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestCall builds an applied call with the given events.
func createTestCall(seq int64, component, method string, events ...ledger.Event) CallRecord {
	for i := range events {
		events[i].Seq = seq
		events[i].TxID = txID(seq)
		events[i].Index = i
		events[i].Time = 1000 + seq
	}
	return CallRecord{
		Seq:          seq,
		TxID:         txID(seq),
		Component:    component,
		Method:       method,
		Caller:       testCaller,
		Args:         canon.Object{"amount": canon.String("100")},
		Time:         1000 + seq,
		Status:       "applied",
		EventsDigest: ledger.Digest(events),
		Events:       events,
	}
}

// createTestRejection builds a rejected call.
func createTestRejection(seq int64, component, method, code string) CallRecord {
	return CallRecord{
		Seq:          seq,
		TxID:         txID(seq),
		Component:    component,
		Method:       method,
		Caller:       testCaller,
		Args:         canon.Object{},
		Time:         1000 + seq,
		Status:       "rejected",
		ErrorCode:    code,
		EventsDigest: ledger.Digest(nil),
	}
}

func testEvent(component, name string, fields canon.Object, indexed ...string) ledger.Event {
	return ledger.Event{Component: component, Name: name, Fields: fields, Indexed: indexed}
}

func txID(seq int64) string {
	return "tx-" + types.Amount(seq).String()
}
