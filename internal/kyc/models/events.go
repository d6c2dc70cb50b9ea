package models

// ObjectCreatedEvent is the storage trigger: a document landed in the
// object store.
type ObjectCreatedEvent struct {
	Bucket    string `json:"bucketRef"`
	ObjectKey string `json:"objectKey"`
}

// ExtractionChangedEvent is the change trigger for the decision engine.
type ExtractionChangedEvent struct {
	SessionID SessionID `json:"sessionId"`
}

// NotificationMessage is the wire form of a published Notification.
type NotificationMessage struct {
	SessionID   SessionID   `json:"sessionId"`
	FinalStatus FinalStatus `json:"finalStatus"`
	Reason      string      `json:"reason"`
	Subject     string      `json:"subject"`
	Body        string      `json:"body"`
}

// Message renders n for the wire.
func (n Notification) Message() NotificationMessage {
	return NotificationMessage{
		SessionID:   n.SessionID,
		FinalStatus: n.FinalStatus,
		Reason:      n.Reason,
		Subject:     n.Subject(),
		Body:        n.Body(),
	}
}
