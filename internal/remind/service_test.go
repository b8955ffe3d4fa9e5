package remind

import (
	"context"
	"testing"
	"time"

	"schedsync/internal/eventbus"
	"schedsync/internal/schedule"
	logx "schedsync/pkg/logx"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *schedule.Store, title string, start time.Time) schedule.Schedule {
	t.Helper()
	sc, err := store.Create(schedule.Schedule{
		Type:  schedule.TypeGeneral,
		Title: title,
		Start: start,
		End:   start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Create(%s): %v", title, err)
	}
	return sc
}

func newTestService(t *testing.T, lead time.Duration) (*Service, *schedule.Store, <-chan eventbus.Event) {
	t.Helper()
	bus := eventbus.New(logx.Nop())
	store := schedule.NewStore(logx.Nop())
	svc := New(Config{Enabled: true, Lead: lead}, store, bus, logx.Nop())

	ch := make(chan eventbus.Event, 16)
	unsub := bus.Subscribe(eventbus.TopicReminder, func(e eventbus.Event) { ch <- e })
	t.Cleanup(func() {
		unsub()
		bus.Close()
	})
	return svc, store, ch
}

func waitReminder(t *testing.T, ch <-chan eventbus.Event) ReminderPayload {
	t.Helper()
	select {
	case e := <-ch:
		return e.Data.(ReminderPayload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a reminder")
		return ReminderPayload{}
	}
}

func expectQuiet(t *testing.T, ch <-chan eventbus.Event) {
	t.Helper()
	select {
	case e := <-ch:
		t.Fatalf("unexpected reminder: %+v", e.Data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestScanRemindsWithinLeadWindow(t *testing.T) {
	t.Parallel()
	svc, store, ch := newTestService(t, 15*time.Minute)

	soon := seed(t, store, "standup", t0.Add(10*time.Minute))
	seed(t, store, "later", t0.Add(2*time.Hour))

	svc.scan(t0)

	p := waitReminder(t, ch)
	if p.Schedule.ID != soon.ID {
		t.Fatalf("reminded %q, want %q", p.Schedule.ID, soon.ID)
	}
	if p.StartsIn != 10*time.Minute {
		t.Fatalf("startsIn = %v, want 10m", p.StartsIn)
	}
	expectQuiet(t, ch)
}

func TestScanRemindsOncePerSchedule(t *testing.T) {
	t.Parallel()
	svc, store, ch := newTestService(t, 15*time.Minute)
	seed(t, store, "standup", t0.Add(10*time.Minute))

	svc.scan(t0)
	waitReminder(t, ch)

	svc.scan(t0.Add(time.Minute))
	expectQuiet(t, ch)
}

func TestScanSkipsNonScheduledStatuses(t *testing.T) {
	t.Parallel()
	svc, store, ch := newTestService(t, 15*time.Minute)

	sc := seed(t, store, "standup", t0.Add(10*time.Minute))
	cancelled := schedule.StatusCancelled
	if _, err := store.Update(sc.ID, schedule.Patch{Status: &cancelled}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	svc.scan(t0)
	expectQuiet(t, ch)
}

func TestScanIgnoresAlreadyStarted(t *testing.T) {
	t.Parallel()
	svc, store, ch := newTestService(t, 15*time.Minute)
	seed(t, store, "running", t0.Add(-5*time.Minute))

	svc.scan(t0)
	expectQuiet(t, ch)
}

func TestSentEntriesExpire(t *testing.T) {
	t.Parallel()
	svc, store, ch := newTestService(t, 15*time.Minute)
	seed(t, store, "standup", t0.Add(10*time.Minute))

	svc.scan(t0)
	waitReminder(t, ch)

	// A day later the dedup entry is pruned; the map must not grow forever.
	svc.scan(t0.Add(25 * time.Hour))
	svc.mu.Lock()
	n := len(svc.sent)
	svc.mu.Unlock()
	if n != 0 {
		t.Fatalf("sent cache holds %d entries after prune, want 0", n)
	}
}

func TestStartRejectsBadCronSpec(t *testing.T) {
	t.Parallel()
	bus := eventbus.New(logx.Nop())
	defer bus.Close()
	store := schedule.NewStore(logx.Nop())
	svc := New(Config{Enabled: true, Spec: "every minute"}, store, bus, logx.Nop())
	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("expected parse error for invalid spec")
	}
}

func TestDisabledServiceNeverStartsCron(t *testing.T) {
	t.Parallel()
	bus := eventbus.New(logx.Nop())
	defer bus.Close()
	store := schedule.NewStore(logx.Nop())
	svc := New(Config{Enabled: false}, store, bus, logx.Nop())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if svc.Enabled() {
		t.Fatal("Enabled() must report false")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	svc.Stop(ctx)
}
