package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPendingFlowIsExpiredAt(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	live := &PendingFlow{State: "s", ExpiresAt: now.Add(time.Minute)}
	if live.IsExpiredAt(now) {
		t.Error("flow expiring in a minute should be live")
	}

	boundary := &PendingFlow{State: "s", ExpiresAt: now}
	if !boundary.IsExpiredAt(now) {
		t.Error("flow expiring now should be expired")
	}

	unbounded := &PendingFlow{State: "s"}
	if unbounded.IsExpiredAt(now) {
		t.Error("flow without expiry should be live")
	}
}

func TestPendingFlowClone(t *testing.T) {
	orig := &PendingFlow{State: "s", Verifier: "v", Payload: json.RawMessage(`{"text":"hi"}`)}
	c := orig.Clone()

	c.Payload[2] = 'X'
	if string(orig.Payload) != `{"text":"hi"}` {
		t.Errorf("clone shares payload bytes with original: %s", orig.Payload)
	}
	if c.State != "s" || c.Verifier != "v" {
		t.Errorf("clone lost fields: %+v", c)
	}
}
