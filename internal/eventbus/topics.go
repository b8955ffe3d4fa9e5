package eventbus

// Wire-level topic names. External collaborators (calendar views, chat
// booking, project management) depend on these exact strings.
const (
	TopicSyncRequested = "schedule:sync_requested"

	TopicCreateComplete = "schedule:create_complete"
	TopicUpdateComplete = "schedule:update_complete"
	TopicDeleteComplete = "schedule:delete_complete"

	TopicSyncError        = "schedule:sync_error"
	TopicConflictResolved = "schedule:conflict_resolved"

	TopicReminder = "schedule:reminder"

	TopicPhaseTransitionRequested = "project:phase_transition_requested"
	TopicPhaseTransitionSkipped   = "project:phase_transition_skipped"
	TopicPhaseTransitionApplied   = "project:phase_transition_applied"
)
