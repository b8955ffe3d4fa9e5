package schedule

import (
	"errors"
	"testing"
	"time"

	logx "schedsync/pkg/logx"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func meeting(project string, seq int, start time.Time) Schedule {
	return Schedule{
		Type:            TypeProjectMeeting,
		Title:           "kickoff",
		Start:           start,
		End:             start.Add(time.Hour),
		ProjectID:       project,
		MeetingSequence: seq,
		CreatedBy:       "tester",
	}
}

func TestCreateAssignsStoreOwnedFields(t *testing.T) {
	t.Parallel()
	s := NewStore(logx.Nop())

	in := meeting("P1", 1, t0)
	in.ID = "client-chosen"
	in.CreatedAt = t0.AddDate(-1, 0, 0)

	got, err := s.Create(in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got.ID == "" || got.ID == "client-chosen" {
		t.Fatalf("expected store-generated id, got %q", got.ID)
	}
	if got.CreatedAt.Equal(in.CreatedAt) {
		t.Fatal("CreatedAt must be store-owned")
	}
	if got.Status != StatusScheduled {
		t.Fatalf("default status = %q", got.Status)
	}
	if got.Priority != PriorityMedium {
		t.Fatalf("default priority = %q", got.Priority)
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	s := NewStore(logx.Nop())

	tests := []struct {
		name   string
		mutate func(*Schedule)
	}{
		{"end before start", func(sc *Schedule) { sc.End = sc.Start.Add(-time.Minute) }},
		{"end equals start", func(sc *Schedule) { sc.End = sc.Start }},
		{"missing title", func(sc *Schedule) { sc.Title = " " }},
		{"unknown type", func(sc *Schedule) { sc.Type = "standup" }},
		{"project meeting without project", func(sc *Schedule) { sc.ProjectID = "" }},
		{"non-positive sequence", func(sc *Schedule) { sc.MeetingSequence = 0 }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			sc := meeting("P1", 1, t0)
			tt.mutate(&sc)
			if _, err := s.Create(sc); !IsValidation(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if s.Len() != 0 {
		t.Fatalf("store must stay empty, has %d", s.Len())
	}
}

func TestStatusStateMachine(t *testing.T) {
	t.Parallel()
	s := NewStore(logx.Nop())

	created, err := s.Create(meeting("P1", 1, t0))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	inProgress := StatusInProgress
	if _, err := s.Update(created.ID, Patch{Status: &inProgress}); err != nil {
		t.Fatalf("scheduled -> in-progress: %v", err)
	}

	scheduled := StatusScheduled
	if _, err := s.Update(created.ID, Patch{Status: &scheduled}); !IsValidation(err) {
		t.Fatalf("in-progress -> scheduled should fail, got %v", err)
	}

	done := StatusCompleted
	if _, err := s.Update(created.ID, Patch{Status: &done}); err != nil {
		t.Fatalf("in-progress -> completed: %v", err)
	}

	// Terminal records reject any further update.
	title := "renamed"
	if _, err := s.Update(created.ID, Patch{Title: &title}); !IsValidation(err) {
		t.Fatalf("update of terminal record should fail, got %v", err)
	}
}

func TestRescheduleProducesNewRecord(t *testing.T) {
	t.Parallel()
	s := NewStore(logx.Nop())

	created, err := s.Create(meeting("P1", 1, t0))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	cancelled := StatusCancelled
	if _, err := s.Update(created.ID, Patch{Status: &cancelled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	newStart := t0.Add(48 * time.Hour)
	newEnd := newStart.Add(time.Hour)
	next, err := s.Reschedule(created.ID, Patch{Start: &newStart, End: &newEnd, UpdatedBy: "tester"})
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if next.ID == created.ID {
		t.Fatal("reschedule must produce a new record")
	}
	if next.Status != StatusScheduled {
		t.Fatalf("new record status = %q", next.Status)
	}
	if !next.HasTag("rescheduled-from:" + created.ID) {
		t.Fatalf("missing provenance tag, tags = %v", next.Tags)
	}

	old, ok := s.GetByID(created.ID)
	if !ok {
		t.Fatal("old record must remain")
	}
	if old.Status != StatusRescheduled {
		t.Fatalf("old record status = %q", old.Status)
	}
}

func TestLinkIndexCounters(t *testing.T) {
	t.Parallel()
	s := NewStore(logx.Nop())

	first, err := s.Create(meeting("P1", 1, t0))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := s.Create(meeting("P1", 2, t0.Add(72*time.Hour)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(meeting("P2", 1, t0)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	link, ok := s.Link("P1")
	if !ok {
		t.Fatal("missing link for P1")
	}
	if link.TotalMeetings != 2 {
		t.Fatalf("TotalMeetings = %d, want 2", link.TotalMeetings)
	}
	if link.CompletedMeetings != 0 {
		t.Fatalf("CompletedMeetings = %d, want 0", link.CompletedMeetings)
	}
	if link.NextMeetingSequence != 3 {
		t.Fatalf("NextMeetingSequence = %d, want 3", link.NextMeetingSequence)
	}
	if !link.LastMeetingDate.Equal(second.Start) {
		t.Fatalf("LastMeetingDate = %v, want %v", link.LastMeetingDate, second.Start)
	}
	if len(link.ScheduleIDs) != 2 || link.ScheduleIDs[0] != first.ID {
		t.Fatalf("ScheduleIDs = %v", link.ScheduleIDs)
	}

	done := StatusCompleted
	if _, err := s.Update(first.ID, Patch{Status: &done}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	link, _ = s.Link("P1")
	if link.CompletedMeetings != 1 {
		t.Fatalf("CompletedMeetings = %d, want 1", link.CompletedMeetings)
	}

	// Deleting the last schedule of a project removes its link.
	if err := s.Delete(second.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	link, _ = s.Link("P1")
	if link.TotalMeetings != 1 {
		t.Fatalf("TotalMeetings after delete = %d, want 1", link.TotalMeetings)
	}
}

func TestDeleteMissingLeavesStoreUntouched(t *testing.T) {
	t.Parallel()
	s := NewStore(logx.Nop())
	if _, err := s.Create(meeting("P1", 1, t0)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	before, beforeLinks := s.Snapshot()

	if err := s.Delete("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	after, afterLinks := s.Snapshot()
	if len(after) != len(before) || len(afterLinks) != len(beforeLinks) {
		t.Fatal("store changed after failed delete")
	}
}

func TestReadsReturnCopies(t *testing.T) {
	t.Parallel()
	s := NewStore(logx.Nop())
	created, err := s.Create(meeting("P1", 1, t0))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, _ := s.GetByID(created.ID)
	got.Title = "mutated"
	got.Tags = append(got.Tags, "sneaky")

	again, _ := s.GetByID(created.ID)
	if again.Title == "mutated" || again.HasTag("sneaky") {
		t.Fatal("GetByID must return a copy")
	}
}

func TestRestoreRebuildsLinks(t *testing.T) {
	t.Parallel()
	src := NewStore(logx.Nop())
	if _, err := src.Create(meeting("P1", 1, t0)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := src.Create(meeting("P1", 2, t0.Add(time.Hour*24))); err != nil {
		t.Fatalf("Create: %v", err)
	}
	events, links := src.Snapshot()

	dst := NewStore(logx.Nop())
	dst.Restore(events)

	gotEvents, gotLinks := dst.Snapshot()
	if len(gotEvents) != len(events) {
		t.Fatalf("restored %d schedules, want %d", len(gotEvents), len(events))
	}
	want := links["P1"]
	got := gotLinks["P1"]
	if got.TotalMeetings != want.TotalMeetings ||
		got.NextMeetingSequence != want.NextMeetingSequence ||
		len(got.ScheduleIDs) != len(want.ScheduleIDs) {
		t.Fatalf("restored link = %+v, want %+v", got, want)
	}
}
