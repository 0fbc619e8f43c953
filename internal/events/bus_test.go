package events

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBus_PublishReachesAllHandlersInOrder(t *testing.T) {
	bus := NewBus()
	var order []string
	bus.Subscribe(func(Envelope) { order = append(order, "first") })
	bus.Subscribe(func(Envelope) { order = append(order, "second") })

	env, err := NewEnvelope(Alert, AlertEvent{Title: "t"})
	require.NoError(t, err)
	bus.Publish(env)

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestEmitter_FaceRecognized(t *testing.T) {
	bus := NewBus()
	var got Envelope
	bus.Subscribe(func(env Envelope) { got = env })

	emitter := NewEmitter(bus, testLogger())
	emitter.EmitFaceRecognized("f1", 0.93, "u1", "cam-2", map[string]any{"door": "north"})

	require.Equal(t, FaceRecognition, got.Type)
	require.NotEmpty(t, got.MessageID)
	require.False(t, got.Timestamp.IsZero())

	var payload FaceRecognitionEvent
	require.NoError(t, json.Unmarshal(got.Data, &payload))
	assert.Equal(t, "face_recognized", payload.EventType)
	assert.Equal(t, "f1", payload.FaceID)
	assert.Equal(t, "u1", payload.UserID)
	assert.InDelta(t, 0.93, payload.Confidence, 1e-9)
	assert.Equal(t, "cam-2", payload.CameraID)
}

func TestEmitter_FaceRecognitionFailedOmitsUser(t *testing.T) {
	bus := NewBus()
	var got Envelope
	bus.Subscribe(func(env Envelope) { got = env })

	emitter := NewEmitter(bus, testLogger())
	emitter.EmitFaceRecognitionFailed("f9", 0.31, "cam-1", nil)

	var payload FaceRecognitionEvent
	require.NoError(t, json.Unmarshal(got.Data, &payload))
	assert.Equal(t, "face_recognition_failed", payload.EventType)
	assert.Empty(t, payload.UserID)
}

func TestEmitter_SemanticEmitters(t *testing.T) {
	bus := NewBus()
	var got []Envelope
	bus.Subscribe(func(env Envelope) { got = append(got, env) })

	emitter := NewEmitter(bus, testLogger())
	emitter.EmitUserUpdate("u1", "deleted", nil)
	emitter.EmitSystemEvent("device_sync", "sync finished", SeverityInfo, nil)
	emitter.EmitAlert("tamper", SeverityCritical, "Tamper detected", "Camera 3 housing opened")
	emitter.EmitActivityLog("u2", "login", "dashboard", "")
	emitter.EmitStatisticsUpdate(StatisticsUpdateEvent{TotalUsers: 10, ActiveDevices: 4})
	emitter.EmitDeviceStatus(DeviceStatusEvent{DeviceID: "d1", DeviceType: "camera", Status: "offline"})

	require.Len(t, got, 6)
	want := []EventType{UserUpdate, System, Alert, ActivityLog, StatisticsUpdate, DeviceStatus}
	for i, env := range got {
		assert.Equal(t, want[i], env.Type)
	}

	// Message ids are unique across the process lifetime.
	seen := make(map[string]bool)
	for _, env := range got {
		require.False(t, seen[env.MessageID], "duplicate message id %s", env.MessageID)
		seen[env.MessageID] = true
	}
}

func TestEventType_Valid(t *testing.T) {
	for _, et := range AllTypes {
		assert.True(t, et.Valid(), "%s should be valid", et)
	}
	assert.False(t, EventType("NOT_A_TYPE").Valid())
	assert.False(t, EventType("").Valid())
}

func TestParseTypes_RejectsWholeBatchOnUnknown(t *testing.T) {
	_, err := ParseTypes([]string{"ALERT", "bogus"})
	require.Error(t, err)

	types, err := ParseTypes([]string{"ALERT", "SYSTEM"})
	require.NoError(t, err)
	assert.Equal(t, []EventType{Alert, System}, types)
}
