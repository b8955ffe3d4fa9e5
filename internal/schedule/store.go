package schedule

import (
	"sort"
	"strings"
	"sync"
	"time"

	logx "schedsync/pkg/logx"
)

// Store is the authoritative in-memory schedule collection plus the
// project link index.
//
// Ownership: all mutation goes through the sync coordinator's single
// processing loop. Reads are safe from any goroutine and return deep copies.
type Store struct {
	mu    sync.RWMutex
	byID  map[string]*Schedule
	links map[string]*ProjectLink

	log logx.Logger

	// dirty is invoked after every successful mutation (same critical
	// section as the link index update) to schedule a persistence flush.
	dirty func()

	now func() time.Time
}

func NewStore(log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		byID:  map[string]*Schedule{},
		links: map[string]*ProjectLink{},
		log:   log,
		now:   time.Now,
	}
}

// SetDirtyHook installs the flush scheduler. Must be called before the
// coordinator starts; the hook must never block.
func (s *Store) SetDirtyHook(fn func()) {
	s.mu.Lock()
	s.dirty = fn
	s.mu.Unlock()
}

func (s *Store) markDirtyLocked() {
	if s.dirty != nil {
		s.dirty()
	}
}

// Create inserts a new schedule. ID, CreatedAt and UpdatedAt are assigned by
// the store; client-supplied values for them are ignored.
func (s *Store) Create(in Schedule) (Schedule, error) {
	sc := in.Clone()
	now := s.now()
	if sc.Status == "" {
		sc.Status = StatusScheduled
	}
	if sc.Priority == "" {
		sc.Priority = PriorityMedium
	}
	if err := validateNew(&sc); err != nil {
		return Schedule{}, err
	}
	sc.ID = NewID(sc.Type, now)
	sc.CreatedAt = now
	sc.UpdatedAt = now
	if sc.UpdatedBy == "" {
		sc.UpdatedBy = sc.CreatedBy
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[sc.ID] = &sc
	s.refreshLinkLocked(sc.ProjectID)
	s.markDirtyLocked()
	return sc.Clone(), nil
}

// Update applies a partial mutation. Status changes must follow the state
// machine; terminal records reject everything (use Reschedule).
func (s *Store) Update(id string, p Patch) (Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[id]
	if !ok {
		return Schedule{}, ErrNotFound
	}
	if cur.Status.Terminal() {
		return Schedule{}, invalidf("status", "%q is terminal; reschedule to produce a new record", cur.Status)
	}

	next := cur.Clone()
	applyPatch(&next, p)
	if p.Status != nil && !statusTransitionAllowed(cur.Status, *p.Status) {
		return Schedule{}, invalidf("status", "transition %q -> %q not allowed", cur.Status, *p.Status)
	}
	if err := validateNew(&next); err != nil {
		return Schedule{}, err
	}
	next.UpdatedAt = s.now()
	if p.UpdatedBy != "" {
		next.UpdatedBy = p.UpdatedBy
	}

	s.byID[id] = &next
	s.refreshLinkLocked(next.ProjectID)
	s.markDirtyLocked()
	return next.Clone(), nil
}

// Delete removes a schedule and unlinks it from its project.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	s.refreshLinkLocked(cur.ProjectID)
	s.markDirtyLocked()
	return nil
}

// Reschedule closes a record (terminal included) and produces a replacement
// carrying the patch. The old record is marked rescheduled and stays for
// history; the new one references it via a tag.
func (s *Store) Reschedule(id string, p Patch) (Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[id]
	if !ok {
		return Schedule{}, ErrNotFound
	}

	next := cur.Clone()
	applyPatch(&next, p)
	next.Status = StatusScheduled
	next.AddTag("rescheduled-from:" + id)
	if err := validateNew(&next); err != nil {
		return Schedule{}, err
	}

	now := s.now()
	next.ID = NewID(next.Type, now)
	next.CreatedAt = now
	next.UpdatedAt = now
	if p.UpdatedBy != "" {
		next.CreatedBy = p.UpdatedBy
		next.UpdatedBy = p.UpdatedBy
	}

	old := cur.Clone()
	old.Status = StatusRescheduled
	old.UpdatedAt = now
	if p.UpdatedBy != "" {
		old.UpdatedBy = p.UpdatedBy
	}

	s.byID[id] = &old
	s.byID[next.ID] = &next
	s.refreshLinkLocked(next.ProjectID)
	s.markDirtyLocked()
	return next.Clone(), nil
}

func applyPatch(sc *Schedule, p Patch) {
	if p.Title != nil {
		sc.Title = *p.Title
	}
	if p.Start != nil {
		sc.Start = *p.Start
	}
	if p.End != nil {
		sc.End = *p.End
	}
	if p.Status != nil {
		sc.Status = *p.Status
	}
	if p.Priority != nil {
		sc.Priority = *p.Priority
	}
	if p.Participants != nil {
		sc.Participants = append([]string(nil), (*p.Participants)...)
	}
	if p.Tags != nil {
		sc.Tags = append([]string(nil), (*p.Tags)...)
	}
	for _, t := range p.AddTags {
		sc.AddTag(t)
	}
}

// GetByID returns a copy of the schedule, if present.
func (s *Store) GetByID(id string) (Schedule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.byID[id]
	if !ok {
		return Schedule{}, false
	}
	return sc.Clone(), true
}

// Len reports the number of stored schedules.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Link returns a copy of the project link, if the project owns schedules.
func (s *Store) Link(projectID string) (ProjectLink, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.links[projectID]
	if !ok {
		return ProjectLink{}, false
	}
	return l.Clone(), true
}

// refreshLinkLocked recomputes the link entry for one project from ground
// truth so the index can never drift from the store.
func (s *Store) refreshLinkLocked(projectID string) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return
	}

	var owned []*Schedule
	for _, sc := range s.byID {
		if sc.ProjectID == projectID {
			owned = append(owned, sc)
		}
	}
	if len(owned) == 0 {
		delete(s.links, projectID)
		return
	}

	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].Start.Equal(owned[j].Start) {
			return owned[i].Start.Before(owned[j].Start)
		}
		return owned[i].ID < owned[j].ID
	})

	l := &ProjectLink{ProjectID: projectID, NextMeetingSequence: 1}
	for _, sc := range owned {
		l.ScheduleIDs = append(l.ScheduleIDs, sc.ID)
		l.TotalMeetings++
		if sc.Status == StatusCompleted {
			l.CompletedMeetings++
		}
		if sc.Start.After(l.LastMeetingDate) {
			l.LastMeetingDate = sc.Start
		}
		if sc.MeetingSequence >= l.NextMeetingSequence {
			l.NextMeetingSequence = sc.MeetingSequence + 1
		}
	}
	s.links[projectID] = l
}

// Snapshot returns deep copies of all schedules (start ascending) and links.
func (s *Store) Snapshot() ([]Schedule, map[string]ProjectLink) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Schedule, 0, len(s.byID))
	for _, sc := range s.byID {
		out = append(out, sc.Clone())
	}
	sortSchedules(out)

	links := make(map[string]ProjectLink, len(s.links))
	for id, l := range s.links {
		links[id] = l.Clone()
	}
	return out, links
}

// Restore replaces store content from a loaded snapshot. Links are rebuilt
// from the schedules, not trusted from the snapshot, so the invariant that
// every linked id exists holds even for hand-edited files.
func (s *Store) Restore(schedules []Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[string]*Schedule, len(schedules))
	projects := map[string]struct{}{}
	for _, in := range schedules {
		sc := in.Clone()
		if sc.ID == "" {
			continue
		}
		s.byID[sc.ID] = &sc
		if sc.ProjectID != "" {
			projects[sc.ProjectID] = struct{}{}
		}
	}
	s.links = map[string]*ProjectLink{}
	for p := range projects {
		s.refreshLinkLocked(p)
	}
}
