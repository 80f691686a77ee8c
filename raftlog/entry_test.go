package raftlog

import (
	"bytes"
	"testing"
)

func Test_Entry_MarshalUnmarshalRoundTrip(t *testing.T) {
	tests := []Entry{
		{Index: 1, Term: 1, Kind: EntryData, Payload: []byte("hello")},
		{Index: 2, Term: 5, Kind: EntryNoop},
		{Index: 3, Term: 0, Kind: EntryData, Payload: []byte{}},
	}
	for i, e := range tests {
		body := e.marshal()
		got, err := unmarshalEntry(e.Index, body)
		if err != nil {
			t.Fatalf("#%d: unmarshalEntry: %v", i, err)
		}
		if got.Index != e.Index || got.Term != e.Term || got.Kind != e.Kind {
			t.Fatalf("#%d: got %+v, want %+v", i, got, e)
		}
		if !bytes.Equal(got.Payload, e.Payload) {
			t.Fatalf("#%d: Payload = %q, want %q", i, got.Payload, e.Payload)
		}
	}
}

func Test_Entry_UnmarshalTruncatedBody(t *testing.T) {
	if _, err := unmarshalEntry(1, []byte{1, 2, 3}); err == nil {
		t.Fatal("unmarshalEntry on truncated body should error")
	}
}

func Test_EntryKind_String(t *testing.T) {
	if got := EntryData.String(); got != "DATA" {
		t.Fatalf("EntryData.String() = %q, want DATA", got)
	}
	if got := EntryNoop.String(); got != "NOOP" {
		t.Fatalf("EntryNoop.String() = %q, want NOOP", got)
	}
}
