package phase

import (
	"sync"

	"schedsync/internal/eventbus"
	"schedsync/internal/schedule"
	"schedsync/internal/syncer"
	logx "schedsync/pkg/logx"
)

// Phase is a project lifecycle phase. The chain is linear; this trigger
// never walks it backwards.
type Phase string

const (
	PhaseContractPending Phase = "contract_pending"
	PhaseContractSigned  Phase = "contract_signed"
	PhasePlanning        Phase = "planning"
	PhaseDesign          Phase = "design"
	PhaseExecution       Phase = "execution"
	PhaseReview          Phase = "review"
	PhaseCompleted       Phase = "completed"
)

// Transition is one (from, to) edge in the phase chain.
type Transition struct {
	From Phase
	To   Phase
}

// transitions maps a project-meeting's sequence number to the phase edge it
// drives. Milestone meetings advance the project one phase at a time.
var transitions = map[int]Transition{
	1: {PhaseContractPending, PhaseContractSigned},
	2: {PhaseContractSigned, PhasePlanning},
	3: {PhasePlanning, PhaseDesign},
	4: {PhaseDesign, PhaseExecution},
	5: {PhaseExecution, PhaseReview},
	6: {PhaseReview, PhaseCompleted},
}

// TransitionForSequence exposes the table for collaborators and tests.
func TransitionForSequence(seq int) (Transition, bool) {
	t, ok := transitions[seq]
	return t, ok
}

// TransitionPayload rides project:phase_transition_requested.
type TransitionPayload struct {
	ProjectID   string `json:"projectId"`
	From        Phase  `json:"fromPhase"`
	To          Phase  `json:"toPhase"`
	TriggeredBy string `json:"triggeredBy"`
	ScheduleID  string `json:"scheduleId,omitempty"`
}

// SkippedPayload rides project:phase_transition_skipped. A mismatch is not an
// error: phase ownership belongs to the project-management collaborator.
type SkippedPayload struct {
	ProjectID       string `json:"projectId"`
	MeetingSequence int    `json:"meetingSequence"`
	Tracked         Phase  `json:"trackedPhase"`
	Reason          string `json:"reason"`
}

// AppliedPayload rides project:phase_transition_applied (inbound ack from the
// project-management collaborator).
type AppliedPayload struct {
	ProjectID string `json:"projectId"`
	Phase     Phase  `json:"phase"`
}

// Trigger computes phase-change intents from schedule creations.
//
// It tracks each project's current phase from applied-acks only; it never
// advances its own view optimistically, so a lost ack at worst re-requests
// the same transition.
type Trigger struct {
	mu     sync.Mutex
	phases map[string]Phase

	bus    eventbus.Bus
	log    logx.Logger
	unsubs []func()
}

func New(bus eventbus.Bus, log logx.Logger) *Trigger {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Trigger{phases: map[string]Phase{}, bus: bus, log: log}
}

func (t *Trigger) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.unsubs) > 0 {
		return
	}
	t.unsubs = append(t.unsubs,
		t.bus.Subscribe(eventbus.TopicCreateComplete, t.onCreateComplete),
		t.bus.Subscribe(eventbus.TopicPhaseTransitionApplied, t.onApplied),
	)
	t.log.Debug("phase trigger started")
}

func (t *Trigger) Stop() {
	t.mu.Lock()
	unsubs := t.unsubs
	t.unsubs = nil
	t.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

// CurrentPhase returns the tracked phase; untracked projects start at
// contract_pending.
func (t *Trigger) CurrentPhase(projectID string) Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.phases[projectID]; ok {
		return p
	}
	return PhaseContractPending
}

// SetPhase seeds the tracked phase (e.g. when restoring project state).
func (t *Trigger) SetPhase(projectID string, p Phase) {
	t.mu.Lock()
	t.phases[projectID] = p
	t.mu.Unlock()
}

func (t *Trigger) onApplied(e eventbus.Event) {
	p, ok := e.Data.(AppliedPayload)
	if !ok {
		return
	}
	if p.ProjectID == "" || p.Phase == "" {
		return
	}
	t.SetPhase(p.ProjectID, p.Phase)
	t.log.Debug("phase ack applied",
		logx.String("project", p.ProjectID),
		logx.String("phase", string(p.Phase)))
}

func (t *Trigger) onCreateComplete(e eventbus.Event) {
	p, ok := e.Data.(syncer.CompletePayload)
	if !ok {
		return
	}
	// Replays carry no new milestone.
	if p.Replayed {
		return
	}
	sc := p.Schedule
	if sc.Type != schedule.TypeProjectMeeting || sc.ProjectID == "" {
		return
	}

	tr, ok := TransitionForSequence(sc.MeetingSequence)
	if !ok {
		t.publishSkipped(sc, t.CurrentPhase(sc.ProjectID), "no transition mapped for meeting sequence")
		return
	}

	tracked := t.CurrentPhase(sc.ProjectID)
	if tracked != tr.From {
		t.publishSkipped(sc, tracked, "tracked phase does not match expected from-phase")
		return
	}

	t.log.Info("phase transition requested",
		logx.String("project", sc.ProjectID),
		logx.String("from", string(tr.From)),
		logx.String("to", string(tr.To)),
		logx.Int("sequence", sc.MeetingSequence))
	t.bus.Publish(eventbus.Event{
		Topic: eventbus.TopicPhaseTransitionRequested,
		Data: TransitionPayload{
			ProjectID:   sc.ProjectID,
			From:        tr.From,
			To:          tr.To,
			TriggeredBy: "meeting_scheduled",
			ScheduleID:  sc.ID,
		},
	})
}

func (t *Trigger) publishSkipped(sc schedule.Schedule, tracked Phase, reason string) {
	t.log.Debug("phase transition skipped",
		logx.String("project", sc.ProjectID),
		logx.Int("sequence", sc.MeetingSequence),
		logx.String("reason", reason))
	t.bus.Publish(eventbus.Event{
		Topic: eventbus.TopicPhaseTransitionSkipped,
		Data: SkippedPayload{
			ProjectID:       sc.ProjectID,
			MeetingSequence: sc.MeetingSequence,
			Tracked:         tracked,
			Reason:          reason,
		},
	})
}
