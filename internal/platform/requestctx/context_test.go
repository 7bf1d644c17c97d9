package requestctx

import (
	"context"
	"testing"
)

func TestRequesterKeyPrefersMostSpecificIdentity(t *testing.T) {
	cases := []struct {
		requester Requester
		want      string
	}{
		{Requester{RemoteIP: "10.0.0.1", SessionID: "abc", StaffUID: "staff-1"}, "staff:staff-1"},
		{Requester{RemoteIP: "10.0.0.1", SessionID: "abc"}, "session:abc"},
		{Requester{RemoteIP: "10.0.0.1"}, "ip:10.0.0.1"},
		{Requester{}, ""},
	}
	for _, tc := range cases {
		if got := tc.requester.Key(); got != tc.want {
			t.Fatalf("Key() = %q, want %q", got, tc.want)
		}
	}
}

func TestRequesterRoundTripsThroughContext(t *testing.T) {
	if _, ok := RequesterFrom(context.Background()); ok {
		t.Fatalf("expected no requester on empty context")
	}
	ctx := WithRequester(context.Background(), Requester{RemoteIP: "192.0.2.4"})
	got, ok := RequesterFrom(ctx)
	if !ok || got.RemoteIP != "192.0.2.4" {
		t.Fatalf("unexpected requester %+v", got)
	}
}

func TestLoggerDefaultsToNoop(t *testing.T) {
	if Logger(context.Background()) != NoopLogger() {
		t.Fatalf("expected noop logger")
	}
	if TraceID(context.Background()) != "" {
		t.Fatalf("expected empty trace id")
	}
}
