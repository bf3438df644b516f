package gateway

// Status is the state of a Download as reported by the status endpoint.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusPaused    Status = "PAUSED"
	StatusPreparing Status = "PREPARING"
	StatusRestoring Status = "RESTORING"
	StatusComplete  Status = "COMPLETE"
	StatusExpired   Status = "EXPIRED"
)

// IsTerminal reports whether the Download has left the preparation pipeline.
// Statuses the client does not know about are terminal.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusQueued, StatusPaused, StatusPreparing, StatusRestoring:
		return false
	default:
		return true
	}
}

// Pending returns how many statuses are not terminal.
func Pending(statuses []Status) int {
	n := 0
	for _, s := range statuses {
		if !s.IsTerminal() {
			n++
		}
	}
	return n
}
