package schedule

import (
	"sort"
	"strings"
	"time"
)

// Type is the closed set of schedule kinds.
type Type string

const (
	TypeProjectMeeting  Type = "project-meeting"
	TypeMentorSession   Type = "mentor-session"
	TypeWebinar         Type = "webinar"
	TypeConsultation    Type = "consultation"
	TypeExternalMeeting Type = "external-meeting"
	TypeGeneral         Type = "general"
)

func (t Type) Valid() bool {
	switch t {
	case TypeProjectMeeting, TypeMentorSession, TypeWebinar,
		TypeConsultation, TypeExternalMeeting, TypeGeneral:
		return true
	}
	return false
}

type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusInProgress  Status = "in-progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled, StatusRescheduled:
		return true
	}
	return false
}

// Terminal statuses cannot be reopened by an update; a new record must be
// produced via Reschedule.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRescheduled
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// Schedule is the canonical schedule record.
//
// CreatedAt/UpdatedAt are owned by the store and never client-set. The store
// hands out copies only; callers never hold a reference into store state.
type Schedule struct {
	ID       string   `json:"id"`
	Type     Type     `json:"type"`
	Title    string   `json:"title"`
	Start    time.Time `json:"startDateTime"`
	End      time.Time `json:"endDateTime"`
	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`

	Participants []string `json:"participants,omitempty"`
	Tags         []string `json:"tags,omitempty"`

	// Project-meeting payload.
	ProjectID       string `json:"projectId,omitempty"`
	MeetingSequence int    `json:"meetingSequence,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// Clone returns a deep copy.
func (s Schedule) Clone() Schedule {
	cp := s
	if s.Participants != nil {
		cp.Participants = append([]string(nil), s.Participants...)
	}
	if s.Tags != nil {
		cp.Tags = append([]string(nil), s.Tags...)
	}
	return cp
}

func (s Schedule) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends tag with set semantics.
func (s *Schedule) AddTag(tag string) {
	tag = strings.TrimSpace(tag)
	if tag == "" || s.HasTag(tag) {
		return
	}
	s.Tags = append(s.Tags, tag)
}

// Patch carries a partial update. Nil fields are left untouched.
type Patch struct {
	Title        *string    `json:"title,omitempty"`
	Start        *time.Time `json:"startDateTime,omitempty"`
	End          *time.Time `json:"endDateTime,omitempty"`
	Status       *Status    `json:"status,omitempty"`
	Priority     *Priority  `json:"priority,omitempty"`
	Participants *[]string  `json:"participants,omitempty"`
	Tags         *[]string  `json:"tags,omitempty"`

	// AddTags appends with set semantics instead of replacing Tags.
	AddTags []string `json:"addTags,omitempty"`

	UpdatedBy string `json:"updatedBy,omitempty"`
}

// ProjectLink is the secondary index entry for one project.
//
// Invariant: every id in ScheduleIDs exists in the store. The reverse does
// not hold (a schedule may be unlinked).
type ProjectLink struct {
	ProjectID           string    `json:"projectId"`
	ScheduleIDs         []string  `json:"scheduleIds"`
	TotalMeetings       int       `json:"totalMeetings"`
	CompletedMeetings   int       `json:"completedMeetings"`
	LastMeetingDate     time.Time `json:"lastMeetingDate"`
	NextMeetingSequence int       `json:"nextMeetingSequence"`
}

func (l ProjectLink) Clone() ProjectLink {
	cp := l
	if l.ScheduleIDs != nil {
		cp.ScheduleIDs = append([]string(nil), l.ScheduleIDs...)
	}
	return cp
}

// sortSchedules orders by start ascending; id breaks ties so results are stable.
func sortSchedules(out []Schedule) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
}
