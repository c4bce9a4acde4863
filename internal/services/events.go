package services

// Event is a lightweight scheduling notification pushed to connected clients.
// Delivery is best-effort; state transitions never wait on it.
type Event struct {
	Type        string `json:"type"`
	SubjectType string `json:"subject_type"`
	SubjectID   int64  `json:"subject_id"`
}

type EventPublisher interface {
	Publish(userID int64, event Event)
}
