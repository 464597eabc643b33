package domain

// SessionState is the lifecycle state of one media session. Exactly one
// session per camera endpoint identity is live at any time; the state is
// owned exclusively by that session.
type SessionState string

const (
	SessionIdle        SessionState = "idle"
	SessionNegotiating SessionState = "negotiating"
	SessionConnected   SessionState = "connected"
	SessionFailed      SessionState = "failed"
	SessionClosed      SessionState = "closed"
)
