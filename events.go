package simpleauth

type EventType string

const (
	EventRestored                EventType = "restored"
	EventRestoreFailed           EventType = "restore_failed"
	EventAuthenticationSucceeded EventType = "authentication_succeeded"
	EventAuthenticationFailed    EventType = "authentication_failed"
	EventInvalidationSucceeded   EventType = "invalidation_succeeded"
	EventInvalidationFailed      EventType = "invalidation_failed"
	EventUpdated                 EventType = "updated"
)

// Event describes one session transition. Content is a snapshot taken after
// the transition; Err is set for the failure types.
type Event struct {
	Type    EventType
	Content Content
	Err     error
}
