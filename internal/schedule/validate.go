package schedule

import "strings"

// statusNext is the allowed status state machine. Terminal states have no
// outgoing edges; reopening them requires an explicit Reschedule, which
// produces a new record instead of mutating the old one.
var statusNext = map[Status][]Status{
	StatusScheduled:  {StatusInProgress, StatusCompleted, StatusCancelled, StatusRescheduled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

func statusTransitionAllowed(from, to Status) bool {
	if from == to {
		return true
	}
	for _, n := range statusNext[from] {
		if n == to {
			return true
		}
	}
	return false
}

// validateNew checks a fully-populated candidate record.
func validateNew(s *Schedule) error {
	if !s.Type.Valid() {
		return invalidf("type", "unknown type %q", s.Type)
	}
	if strings.TrimSpace(s.Title) == "" {
		return invalidf("title", "required")
	}
	if s.Start.IsZero() {
		return invalidf("startDateTime", "required")
	}
	if s.End.IsZero() {
		return invalidf("endDateTime", "required")
	}
	if !s.End.After(s.Start) {
		return invalidf("endDateTime", "must be after startDateTime")
	}
	if !s.Status.Valid() {
		return invalidf("status", "unknown status %q", s.Status)
	}
	if !s.Priority.Valid() {
		return invalidf("priority", "unknown priority %q", s.Priority)
	}
	return validateTypePayload(s)
}

// validateTypePayload enforces required fields per declared type.
func validateTypePayload(s *Schedule) error {
	switch s.Type {
	case TypeProjectMeeting:
		if strings.TrimSpace(s.ProjectID) == "" {
			return invalidf("projectId", "required for project-meeting")
		}
		if s.MeetingSequence < 1 {
			return invalidf("meetingSequence", "must be a positive integer")
		}
	default:
		if s.MeetingSequence < 0 {
			return invalidf("meetingSequence", "must not be negative")
		}
	}
	return nil
}
