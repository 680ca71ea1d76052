package audit

import (
	"context"
	"errors"
	"testing"
)

type memRecorder struct {
	events []Event
	err    error
}

func (m *memRecorder) Record(_ context.Context, ev *Event) error {
	if m.err != nil {
		return m.err
	}
	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, *ev)
	return nil
}

func TestConsumerHandle(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		data    string
		want    int
		user    string
	}{
		{"credits event", "datviz.credits.deducted", `{"user_uuid":"u-1","amount":3}`, 1, "u-1"},
		{"no user", "datviz.upload.processed", `{"files":[]}`, 1, ""},
		{"not json", "datviz.user.registered", `nope`, 0, ""},
		{"array payload", "datviz.user.registered", `[1,2]`, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &memRecorder{}
			NewConsumer(rec).Handle(tt.subject, []byte(tt.data))
			if len(rec.events) != tt.want {
				t.Fatalf("recorded %d events, want %d", len(rec.events), tt.want)
			}
			if tt.want == 1 {
				ev := rec.events[0]
				if ev.Subject != tt.subject || ev.UserUUID != tt.user || string(ev.Payload) != tt.data {
					t.Errorf("event = %+v", ev)
				}
			}
		})
	}
}

func TestConsumerRecordError(t *testing.T) {
	rec := &memRecorder{err: errors.New("db down")}
	// Must not panic.
	NewConsumer(rec).Handle("datviz.user.registered", []byte(`{"user_uuid":"u"}`))
}
