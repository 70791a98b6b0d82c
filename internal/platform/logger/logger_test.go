package logger

import (
	"bytes"
	"strings"
	"testing"
)

type captured struct {
	eventType, actor, details string
}

type sliceRecorder struct {
	got []captured
}

func (r *sliceRecorder) Record(eventType, actorID, details string) {
	r.got = append(r.got, captured{eventType, actorID, details})
}

func TestEventIsWrittenAndRecorded(t *testing.T) {
	var buf bytes.Buffer
	rec := &sliceRecorder{}
	log := New(&buf).WithRecorder(rec)

	log.Eventf("DEFUSED", "T1", "M%d defused", 4)

	if !strings.Contains(buf.String(), "[EVENT:DEFUSED] Actor:T1 | M4 defused") {
		t.Fatalf("unexpected log output: %q", buf.String())
	}
	if len(rec.got) != 1 || rec.got[0].details != "M4 defused" {
		t.Fatalf("expected one recorded event, got %+v", rec.got)
	}
}

func TestLevelsDoNotRecord(t *testing.T) {
	var buf bytes.Buffer
	rec := &sliceRecorder{}
	log := New(&buf).WithRecorder(rec)

	log.Info("hello")
	log.Warn("careful")
	log.Error("boom")

	out := buf.String()
	for _, want := range []string{"[PANEL-INFO] ", "[PANEL-WARN] ", "[PANEL-ERROR] "} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
	if len(rec.got) != 0 {
		t.Fatalf("plain levels must not reach the recorder, got %+v", rec.got)
	}
}
