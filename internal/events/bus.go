package events

import (
	"log/slog"
	"sync"
)

// Handler receives every envelope published on the bus.
type Handler func(env Envelope)

// Bus is the in-process publish/subscribe seam between the business services
// that produce events and the delivery layer that fans them out. Handlers are
// registered once at startup; the table is append-only after that, so
// publishing only ever takes the read lock.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for every subsequent publish. Intended to be
// called during process wiring, before producers start emitting.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish hands the envelope to every registered handler, in registration
// order, on the caller's goroutine. Call order is therefore delivery order
// within a process.
func (b *Bus) Publish(env Envelope) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		h(env)
	}
}

// Emitter is the façade business services use to emit domain events. It
// constructs the typed payload, wraps it in an envelope, and publishes it on
// the bus — producers never touch the connection registry or the broadcaster.
type Emitter struct {
	bus    *Bus
	logger *slog.Logger
}

func NewEmitter(bus *Bus, logger *slog.Logger) *Emitter {
	return &Emitter{bus: bus, logger: logger}
}

func (e *Emitter) emit(t EventType, payload any) {
	env, err := NewEnvelope(t, payload)
	if err != nil {
		e.logger.Error("failed to build envelope", "type", t, "error", err)
		return
	}
	e.bus.Publish(env)
}

// EmitFaceRecognized publishes a recognition result. userID and cameraID may
// be empty when the face did not match anyone or the camera is unknown.
func (e *Emitter) EmitFaceRecognized(faceID string, confidence float64, userID, cameraID string, metadata map[string]any) {
	e.emit(FaceRecognition, FaceRecognitionEvent{
		EventType:  "face_recognized",
		FaceID:     faceID,
		UserID:     userID,
		Confidence: confidence,
		CameraID:   cameraID,
		Metadata:   metadata,
	})
}

// EmitFaceRecognitionFailed publishes a no-match or liveness failure.
func (e *Emitter) EmitFaceRecognitionFailed(faceID string, confidence float64, cameraID string, metadata map[string]any) {
	e.emit(FaceRecognition, FaceRecognitionEvent{
		EventType:  "face_recognition_failed",
		FaceID:     faceID,
		Confidence: confidence,
		CameraID:   cameraID,
		Metadata:   metadata,
	})
}

// EmitUserUpdate publishes a user mutation (kind: created/updated/deleted).
func (e *Emitter) EmitUserUpdate(userID, kind string, userData map[string]any) {
	e.emit(UserUpdate, UserUpdateEvent{
		UserID:     userID,
		UpdateKind: kind,
		UserData:   userData,
	})
}

// EmitSystemEvent publishes an operational notice.
func (e *Emitter) EmitSystemEvent(kind, message string, severity Severity, metadata map[string]any) {
	e.emit(System, SystemEvent{
		EventType: kind,
		Severity:  severity,
		Message:   message,
		Metadata:  metadata,
	})
}

// EmitStatisticsUpdate refreshes dashboard counters.
func (e *Emitter) EmitStatisticsUpdate(stats StatisticsUpdateEvent) {
	e.emit(StatisticsUpdate, stats)
}

// EmitActivityLog mirrors an audit entry.
func (e *Emitter) EmitActivityLog(userID, action, resource, details string) {
	e.emit(ActivityLog, ActivityLogEvent{
		UserID:   userID,
		Action:   action,
		Resource: resource,
		Details:  details,
	})
}

// EmitAlert publishes a user-facing alert.
func (e *Emitter) EmitAlert(alertType string, severity Severity, title, message string) {
	e.emit(Alert, AlertEvent{
		Type:     alertType,
		Severity: severity,
		Title:    title,
		Message:  message,
	})
}

// EmitDeviceStatus reports a device state change.
func (e *Emitter) EmitDeviceStatus(ev DeviceStatusEvent) {
	e.emit(DeviceStatus, ev)
}
