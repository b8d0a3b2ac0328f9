package heartbeat

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDeltas(t *testing.T) {
	prev := Counters{MessagesProcessed: 100, ProcessingErrors: 2, SignalsPublished: 10, PublishErrors: 1}
	cur := Counters{MessagesProcessed: 160, ProcessingErrors: 2, SignalsPublished: 16, PublishErrors: 3}
	d := Deltas(prev, cur)
	if d.MessagesProcessed != 60 || d.ProcessingErrors != 0 || d.SignalsPublished != 6 || d.PublishErrors != 2 {
		t.Fatalf("deltas = %+v", d)
	}
}

func TestTickEmitsStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	counters := Counters{MessagesProcessed: 50, SignalsPublished: 5}
	r := New(Options{Interval: 10 * time.Second, Detailed: true},
		func() Counters { return counters },
		func() map[string]map[string]any {
			return map[string]map[string]any{
				"publisher": {"breaker_state": "closed"},
			}
		},
		log)
	r.started = time.Now()

	r.Tick()

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("heartbeat is not one JSON record: %v (%s)", err, buf.String())
	}
	if record["message"] != "heartbeat" {
		t.Fatalf("message = %v", record["message"])
	}
	if record["messages_delta"].(float64) != 50 {
		t.Fatalf("messages_delta = %v, want 50", record["messages_delta"])
	}
	if record["messages_per_sec"].(float64) != 5 {
		t.Fatalf("messages_per_sec = %v, want 5", record["messages_per_sec"])
	}
	if record["messages_total"].(float64) != 50 {
		t.Fatalf("messages_total = %v", record["messages_total"])
	}
	pub, ok := record["publisher"].(map[string]any)
	if !ok || pub["breaker_state"] != "closed" {
		t.Fatalf("detailed publisher snapshot missing: %v", record["publisher"])
	}

	// Second tick with no traffic: deltas go to zero, totals stay.
	buf.Reset()
	r.Tick()
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("second heartbeat: %v", err)
	}
	if record["messages_delta"].(float64) != 0 {
		t.Fatalf("second delta = %v, want 0", record["messages_delta"])
	}
	if record["messages_total"].(float64) != 50 {
		t.Fatalf("second total = %v, want 50", record["messages_total"])
	}
}
