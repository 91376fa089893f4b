package progress

import (
	"testing"
	"time"
)

func TestJobAppend_DenseIDs(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	job := NewJob(now)

	payloads := []any{
		ProgressData{Stage: "parsing", Progress: 10, Total: 100},
		LogData{Level: LevelInfo, Message: "working", Audience: AudienceTechnical},
		ProgressData{Stage: "searching", Progress: 40, Total: 100},
		CompleteData{Success: true},
	}
	types := []EventType{EventProgress, EventLog, EventProgress, EventComplete}

	for i, p := range payloads {
		if err := job.append(types[i], p, now); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	if job.LastEventID != int64(len(payloads)) {
		t.Errorf("LastEventID = %d, want %d", job.LastEventID, len(payloads))
	}
	for i, ev := range job.Events {
		if ev.ID != int64(i+1) {
			t.Errorf("events[%d].ID = %d, want %d", i, ev.ID, i+1)
		}
	}
}

func TestEventsAfter(t *testing.T) {
	now := time.Now()
	job := NewJob(now)
	for i := 0; i < 5; i++ {
		if err := job.append(EventProgress, ProgressData{Stage: "searching", Progress: i * 20, Total: 100}, now); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	tests := []struct {
		name    string
		fromID  int64
		wantIDs []int64
	}{
		{"full history", 0, []int64{1, 2, 3, 4, 5}},
		{"negative treated as zero", -3, []int64{1, 2, 3, 4, 5}},
		{"midway", 2, []int64{3, 4, 5}},
		{"last seen is newest", 5, nil},
		{"beyond newest", 99, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := job.EventsAfter(tt.fromID)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %d events, want %d", len(got), len(tt.wantIDs))
			}
			for i, ev := range got {
				if ev.ID != tt.wantIDs[i] {
					t.Errorf("event[%d].ID = %d, want %d", i, ev.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

func TestJobClone_NoAliasing(t *testing.T) {
	now := time.Now()
	job := NewJob(now)
	if err := job.append(EventProgress, ProgressData{Stage: "parsing", Progress: 10, Total: 100}, now); err != nil {
		t.Fatalf("append: %v", err)
	}

	cp := job.Clone()
	if err := cp.append(EventLog, LogData{Level: LevelInfo, Message: "extra"}, now); err != nil {
		t.Fatalf("append to clone: %v", err)
	}
	cp.Status = StatusComplete

	if len(job.Events) != 1 {
		t.Errorf("original gained events: len = %d, want 1", len(job.Events))
	}
	if job.Status != StatusActive {
		t.Errorf("original status = %s, want %s", job.Status, StatusActive)
	}
}

func TestDecodePayloads(t *testing.T) {
	now := time.Now()
	job := NewJob(now)
	if err := job.append(EventProgress, ProgressData{Stage: "generating", Progress: 75, Total: 100, Tool: "llm"}, now); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := job.append(EventError, ErrorData{Message: "Nie udało się.", TechnicalMessage: "timeout"}, now); err != nil {
		t.Fatalf("append: %v", err)
	}

	pd, err := DecodeProgress(job.Events[0])
	if err != nil {
		t.Fatalf("DecodeProgress: %v", err)
	}
	if pd.Stage != "generating" || pd.Progress != 75 || pd.Tool != "llm" {
		t.Errorf("DecodeProgress = %+v", pd)
	}

	ed, err := DecodeError(job.Events[1])
	if err != nil {
		t.Fatalf("DecodeError: %v", err)
	}
	if ed.Message != "Nie udało się." || ed.TechnicalMessage != "timeout" {
		t.Errorf("DecodeError = %+v", ed)
	}

	// Type mismatch is an error, not a zero value
	if _, err := DecodeProgress(job.Events[1]); err == nil {
		t.Error("DecodeProgress on error event should fail")
	}
	if _, err := DecodeLog(job.Events[0]); err == nil {
		t.Error("DecodeLog on progress event should fail")
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusActive, false},
		{StatusComplete, true},
		{StatusError, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
