package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"schedsync/internal/eventbus"
	"schedsync/internal/schedule"
	"schedsync/internal/syncer"
)

func writeAppConfig(t *testing.T, dir string) string {
	t.Helper()
	cfgPath := filepath.Join(dir, "config.yaml")
	body := `
logging:
  level: error
storage:
  driver: file
  path: ` + filepath.Join(dir, "store.json") + `
  flush_debounce: 20ms
sync:
  conflict_window: 60s
`
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func TestEngineSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeAppConfig(t, dir)
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	a, err := New(cfgPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan eventbus.Event, 1)
	unsub := a.Bus().Subscribe(eventbus.TopicCreateComplete, func(e eventbus.Event) {
		select {
		case done <- e:
		default:
		}
	})
	a.Bus().Publish(eventbus.Event{
		Topic: eventbus.TopicSyncRequested,
		Data: syncer.Request{
			EventID: syncer.NewEventID(),
			Source:  "calendar",
			Op:      syncer.OpCreate,
			Schedule: schedule.Schedule{
				Type:            schedule.TypeProjectMeeting,
				Title:           "kickoff",
				Start:           start,
				End:             start.Add(time.Hour),
				ProjectID:       "P1",
				MeetingSequence: 1,
			},
		},
	})

	var created syncer.CompletePayload
	select {
	case e := <-done:
		created = e.Data.(syncer.CompletePayload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for create completion")
	}
	unsub()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// A fresh process over the same config restores the snapshot.
	b, err := New(cfgPath)
	if err != nil {
		t.Fatalf("New (restart): %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.Stop(ctx)
	}()
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start (restart): %v", err)
	}

	got, ok := b.Store().GetByID(created.Schedule.ID)
	if !ok {
		t.Fatalf("schedule %s lost across restart", created.Schedule.ID)
	}
	if got.Title != "kickoff" || got.ProjectID != "P1" {
		t.Fatalf("restored record = %+v", got)
	}
	link, ok := b.Store().Link("P1")
	if !ok || link.TotalMeetings != 1 {
		t.Fatalf("link index not rebuilt: %+v", link)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("sync:\n  conflict_window: soon\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(cfgPath); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestNewRejectsMissingConfig(t *testing.T) {
	t.Parallel()
	if _, err := New(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
