package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of domain event carried by an envelope.
// The set is closed: subscriptions and backplane frames are validated
// against it.
type EventType string

const (
	FaceRecognition  EventType = "FACE_RECOGNITION"
	UserUpdate       EventType = "USER_UPDATE"
	System           EventType = "SYSTEM"
	StatisticsUpdate EventType = "STATISTICS_UPDATE"
	ActivityLog      EventType = "ACTIVITY_LOG"
	Alert            EventType = "ALERT"
	DeviceStatus     EventType = "DEVICE_STATUS"
)

// AllTypes lists every valid event type, in a stable order.
var AllTypes = []EventType{
	FaceRecognition,
	UserUpdate,
	System,
	StatisticsUpdate,
	ActivityLog,
	Alert,
	DeviceStatus,
}

// Valid reports whether t is a member of the closed event-type set.
func (t EventType) Valid() bool {
	switch t {
	case FaceRecognition, UserUpdate, System, StatisticsUpdate, ActivityLog, Alert, DeviceStatus:
		return true
	}
	return false
}

// ParseTypes converts raw strings into event types, rejecting the whole
// batch if any entry is unknown.
func ParseTypes(raw []string) ([]EventType, error) {
	types := make([]EventType, 0, len(raw))
	for _, r := range raw {
		t := EventType(r)
		if !t.Valid() {
			return nil, fmt.Errorf("unknown event type %q", r)
		}
		types = append(types, t)
	}
	return types, nil
}

// Severity grades system events and alerts.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Envelope is the wrapper every delivered event travels in. It exists only
// for the duration of a broadcast and is never persisted. The MessageID is
// unique for the process lifetime and is used for logging and dedup, not
// for exactly-once delivery.
type Envelope struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	MessageID string          `json:"messageId"`
	Data      json.RawMessage `json:"data"`
}

// NewEnvelope stamps a payload with a fresh message id and the current time.
// The payload is serialized immediately so it is immutable from here on.
func NewEnvelope(t EventType, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Envelope{
		Type:      t,
		Timestamp: time.Now().UTC(),
		MessageID: uuid.NewString(),
		Data:      data,
	}, nil
}

// FaceRecognitionEvent is emitted by the recognition pipeline for every
// match, mismatch, or liveness verdict a camera produces.
type FaceRecognitionEvent struct {
	EventType  string         `json:"eventType"`
	FaceID     string         `json:"faceId"`
	UserID     string         `json:"userId,omitempty"`
	Confidence float64        `json:"confidence"`
	CameraID   string         `json:"cameraId,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// UserUpdateEvent is emitted when the back office creates, updates, or
// deletes a user record.
type UserUpdateEvent struct {
	UserID     string         `json:"userId"`
	UpdateKind string         `json:"updateKind"`
	UserData   map[string]any `json:"userData,omitempty"`
}

// SystemEvent carries operational notices (service restarts, sync results,
// configuration changes).
type SystemEvent struct {
	EventType string         `json:"eventType"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// StatisticsUpdateEvent refreshes the dashboard counters.
type StatisticsUpdateEvent struct {
	TotalUsers       int            `json:"totalUsers"`
	ActiveDevices    int            `json:"activeDevices"`
	RecognitionsHour int            `json:"recognitionsHour"`
	Extra            map[string]any `json:"extra,omitempty"`
}

// ActivityLogEvent mirrors an audit-trail entry to listening dashboards.
type ActivityLogEvent struct {
	UserID   string `json:"userId"`
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Details  string `json:"details,omitempty"`
}

// AlertEvent is a user-facing alert (tamper, blacklist hit, door forced).
type AlertEvent struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
}

// DeviceStatusEvent reports a device coming online/offline or its health
// metrics changing.
type DeviceStatusEvent struct {
	DeviceID   string         `json:"deviceId"`
	DeviceType string         `json:"deviceType"`
	Status     string         `json:"status"`
	Metrics    map[string]any `json:"metrics,omitempty"`
	Alerts     []string       `json:"alerts,omitempty"`
}
