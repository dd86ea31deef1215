package models

import "encoding/json"

// NotificationType enumerates the push event kinds clients subscribe to.
type NotificationType string

const (
	NotifySessionStarted   NotificationType = "attendance_session_started"
	NotifySessionEnded     NotificationType = "attendance_session_ended"
	NotifyAttendanceMarked NotificationType = "attendance_marked"
	NotifyBroadcastUpdate  NotificationType = "broadcast_update"
)

// Notification is a single push event. StudentID is empty for broadcasts.
type Notification struct {
	Type      NotificationType `json:"type"`
	StudentID string           `json:"-"`
	Payload   interface{}      `json:"payload,omitempty"`
}

// Encode renders the wire form sent over the websocket.
func (n Notification) Encode() ([]byte, error) {
	return json.Marshal(struct {
		Type    NotificationType `json:"type"`
		Payload interface{}      `json:"payload,omitempty"`
	}{Type: n.Type, Payload: n.Payload})
}

// ActiveSessionInfo is the per-session entry in the student notification poll.
type ActiveSessionInfo struct {
	Session          AttendanceSession `json:"session"`
	AttendanceMarked bool              `json:"attendance_marked"`
	AttendanceStatus string            `json:"attendance_status"`
}
