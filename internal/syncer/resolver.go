package syncer

import (
	"fmt"
	"time"

	"schedsync/internal/eventbus"
	"schedsync/internal/schedule"
	logx "schedsync/pkg/logx"
)

// resolver decides, per request, whether to create, merge into an existing
// record, or reject. The create-equivalence heuristic lives here and nowhere
// else.
type resolver struct {
	store  *schedule.Store
	window time.Duration
	log    logx.Logger
}

// resolution is the outcome of one applied request.
type resolution struct {
	schedule schedule.Schedule
	topic    string
	conflict *ConflictPayload
}

func (r *resolver) apply(req Request) (resolution, error) {
	switch req.Op {
	case OpCreate:
		return r.create(req)
	case OpUpdate:
		return r.update(req)
	case OpDelete:
		if err := r.store.Delete(req.TargetID); err != nil {
			return resolution{}, err
		}
		return resolution{
			schedule: schedule.Schedule{ID: req.TargetID},
			topic:    eventbus.TopicDeleteComplete,
		}, nil
	case OpRefresh:
		sc, ok := r.store.GetByID(req.TargetID)
		if !ok {
			return resolution{}, schedule.ErrNotFound
		}
		return resolution{schedule: sc, topic: eventbus.TopicUpdateComplete}, nil
	case OpReschedule:
		var p schedule.Patch
		if req.Patch != nil {
			p = *req.Patch
		}
		if p.UpdatedBy == "" {
			p.UpdatedBy = req.Source
		}
		sc, err := r.store.Reschedule(req.TargetID, p)
		if err != nil {
			return resolution{}, err
		}
		return resolution{schedule: sc, topic: eventbus.TopicCreateComplete}, nil
	default:
		return resolution{}, fmt.Errorf("unsupported operation %q", req.Op)
	}
}

func (r *resolver) create(req Request) (resolution, error) {
	if existing, ok := r.findEquivalent(req.Schedule); ok {
		merged, err := r.store.Update(existing.ID, mergePatch(req))
		if err != nil {
			return resolution{}, err
		}
		r.log.Info("duplicate create merged into existing schedule",
			logx.String("winner", existing.ID),
			logx.String("source", req.Source),
			logx.String("project", req.Schedule.ProjectID))
		return resolution{
			schedule: merged,
			topic:    eventbus.TopicCreateComplete,
			conflict: &ConflictPayload{
				EventID:         req.EventID,
				WinnerID:        existing.ID,
				DiscardedTitle:  req.Schedule.Title,
				ProjectID:       existing.ProjectID,
				MeetingSequence: existing.MeetingSequence,
			},
		}, nil
	}

	sc, err := r.store.Create(req.Schedule)
	if err != nil {
		return resolution{}, err
	}
	return resolution{schedule: sc, topic: eventbus.TopicCreateComplete}, nil
}

func (r *resolver) update(req Request) (resolution, error) {
	var p schedule.Patch
	if req.Patch != nil {
		p = *req.Patch
	}
	if p.UpdatedBy == "" {
		p.UpdatedBy = req.Source
	}
	sc, err := r.store.Update(req.TargetID, p)
	if err == nil {
		return resolution{schedule: sc, topic: eventbus.TopicUpdateComplete}, nil
	}
	if err != schedule.ErrNotFound {
		return resolution{}, err
	}

	// Self-healing: an update for a record that never materialized falls
	// back to creating it, when the request carries a full payload.
	if req.Schedule.Type == "" {
		return resolution{}, schedule.ErrNotFound
	}
	r.log.Warn("update target missing; falling back to create",
		logx.String("target", req.TargetID),
		logx.String("source", req.Source))
	return r.create(req)
}

// findEquivalent implements the create-equivalence policy: same project (if
// any), same meeting sequence (if any), start instants within the window.
// Terminal records never absorb new creates.
func (r *resolver) findEquivalent(candidate schedule.Schedule) (schedule.Schedule, bool) {
	matches := r.store.Query(schedule.Filter{
		Types:     []schedule.Type{candidate.Type},
		ProjectID: candidate.ProjectID,
	})
	for _, sc := range matches {
		if sc.Status.Terminal() {
			continue
		}
		if sc.ProjectID != candidate.ProjectID {
			continue
		}
		if sc.MeetingSequence != candidate.MeetingSequence {
			continue
		}
		d := sc.Start.Sub(candidate.Start)
		if d < 0 {
			d = -d
		}
		if d <= r.window {
			return sc, true
		}
	}
	return schedule.Schedule{}, false
}

// mergePatch projects the duplicate request's non-zero fields onto the
// winning record and marks the merge with a conflict-resolved tag.
func mergePatch(req Request) schedule.Patch {
	in := req.Schedule
	var p schedule.Patch
	if in.Title != "" {
		p.Title = &in.Title
	}
	if !in.Start.IsZero() {
		p.Start = &in.Start
	}
	if !in.End.IsZero() {
		p.End = &in.End
	}
	if in.Priority != "" {
		p.Priority = &in.Priority
	}
	if in.Participants != nil {
		p.Participants = &in.Participants
	}
	p.AddTags = append(append([]string(nil), in.Tags...), "conflict-resolved")
	p.UpdatedBy = in.UpdatedBy
	if p.UpdatedBy == "" {
		p.UpdatedBy = req.Source
	}
	return p
}
