package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/facegate/realtime-gateway/internal/auth"
	"github.com/facegate/realtime-gateway/internal/events"
	"github.com/facegate/realtime-gateway/internal/hub"
)

// RoleAdmin gates the stats and ingest endpoints.
const RoleAdmin = "ADMIN"

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 4096
)

// Handler owns the WebSocket endpoint and the small HTTP surface around it
// (health, stats, event ingest).
type Handler struct {
	verifier     *auth.Verifier
	registry     *hub.Registry
	subs         *hub.Subscriptions
	heartbeat    *hub.Heartbeat
	emitter      *events.Emitter
	authDeadline time.Duration
	upgrader     websocket.Upgrader
	logger       *slog.Logger
}

type HandlerConfig struct {
	Verifier       *auth.Verifier
	Registry       *hub.Registry
	Subscriptions  *hub.Subscriptions
	Heartbeat      *hub.Heartbeat
	Emitter        *events.Emitter
	AuthDeadline   time.Duration
	AllowedOrigins []string
	Logger         *slog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		verifier:     cfg.Verifier,
		registry:     cfg.Registry,
		subs:         cfg.Subscriptions,
		heartbeat:    cfg.Heartbeat,
		emitter:      cfg.Emitter,
		authDeadline: cfg.AuthDeadline,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r.Header.Get("Origin"), cfg.AllowedOrigins)
			},
		},
		logger: cfg.Logger,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/events", h.HandleWebSocket)
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /api/gateway/stats", h.handleStats)
	mux.HandleFunc("POST /api/events", h.handleEmit)
}

// wsTransport adapts a gorilla connection to the hub's Transport. The mutex
// serializes the writer goroutine against the occasional direct pre-auth
// write from the read loop.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// HandleWebSocket upgrades the connection and runs its read loop. The
// connection stays in Connecting until a token verifies; it is registered
// (and starts receiving events) only after that.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	wsConn.SetReadLimit(maxMessageSize)

	transport := &wsTransport{conn: wsConn}
	conn := hub.NewConnection(uuid.NewString(), transport, h.logger)

	defer func() {
		h.registry.Remove(conn)
		conn.Close()
		h.logger.Info("client disconnected", "client_id", conn.ID, "user_id", conn.UserID())
	}()

	// Token may arrive at upgrade time via query or header, or later via an
	// explicit authenticate message.
	if token := upgradeToken(r); token != "" {
		if !h.authenticate(conn, transport, token) {
			return
		}
	}

	if conn.State() != hub.StateAuthenticated {
		wsConn.SetReadDeadline(time.Now().Add(h.authDeadline))
	}

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.sendError(conn, "malformed message")
			continue
		}

		switch frame.Type {
		case "authenticate":
			if conn.State() == hub.StateAuthenticated {
				h.sendError(conn, "already authenticated")
				continue
			}
			if !h.authenticate(conn, transport, frame.Token) {
				return
			}
			wsConn.SetReadDeadline(time.Time{})

		case "subscribe":
			if !h.requireAuth(conn) {
				continue
			}
			types, err := events.ParseTypes(frame.Events)
			if err != nil {
				h.sendError(conn, err.Error())
				continue
			}
			if err := h.subs.Set(conn.ID, types); err != nil {
				h.sendError(conn, err.Error())
				continue
			}
			h.sendFrame(conn, subscriptionFrame{Type: "subscribed", Events: frame.Events})

		case "unsubscribe":
			if !h.requireAuth(conn) {
				continue
			}
			types, err := events.ParseTypes(frame.Events)
			if err != nil {
				h.sendError(conn, err.Error())
				continue
			}
			if err := h.subs.Remove(conn.ID, types); err != nil {
				h.sendError(conn, err.Error())
				continue
			}
			h.sendFrame(conn, subscriptionFrame{Type: "unsubscribed", Events: frame.Events})

		case "heartbeat":
			if !h.requireAuth(conn) {
				continue
			}
			h.heartbeat.HandleClientHeartbeat(conn)

		case "ping":
			if !h.requireAuth(conn) {
				continue
			}
			h.heartbeat.HandlePing(conn)

		default:
			h.sendError(conn, "unknown message type")
		}
	}
}

// authenticate verifies the token and registers the connection. On failure
// the refusal is written directly (the outbound queue may never flush once
// we close) and the caller must terminate the read loop.
func (h *Handler) authenticate(conn *hub.Connection, transport *wsTransport, token string) bool {
	identity, err := h.verifier.Verify(token)
	if err != nil {
		h.logger.Info("authentication refused", "client_id", conn.ID, "error", err)
		refusal, _ := json.Marshal(authenticatedFrame{Type: "authenticated", Success: false, Error: err.Error()})
		transport.WriteMessage(refusal)
		return false
	}

	if err := conn.Authenticate(identity); err != nil {
		return false
	}
	if err := h.registry.Add(conn); err != nil {
		return false
	}

	h.logger.Info("client authenticated", "client_id", conn.ID, "user_id", identity.UserID, "role", identity.Role)
	h.sendFrame(conn, authenticatedFrame{Type: "authenticated", Success: true, UserID: identity.UserID})
	h.sendFrame(conn, connectionStatusFrame{
		Type:      "connection_status",
		Status:    "connected",
		ClientID:  conn.ID,
		Timestamp: time.Now().UTC(),
	})
	return true
}

func (h *Handler) requireAuth(conn *hub.Connection) bool {
	if conn.State() == hub.StateAuthenticated {
		return true
	}
	h.sendError(conn, "not authenticated")
	return false
}

func (h *Handler) sendFrame(conn *hub.Connection, frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to marshal frame", "error", err)
		return
	}
	if err := conn.Enqueue(data); err != nil {
		h.logger.Debug("frame delivery failed", "client_id", conn.ID, "error", err)
	}
}

func (h *Handler) sendError(conn *hub.Connection, message string) {
	h.sendFrame(conn, errorFrame{Type: "error", Message: message})
}

func upgradeToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return after
	}
	return ""
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleStats feeds the back-office dashboard: connection count, uptime,
// and how many connections would receive each event type.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeAdmin(w, r) {
		return
	}

	counts := h.subs.CountByType()
	subs := make(map[string]int, len(counts))
	for t, n := range counts {
		subs[string(t)] = n
	}

	writeJSON(w, statsResponse{
		ConnectedClients: h.registry.Count(),
		UptimeSeconds:    int64(h.heartbeat.Uptime().Seconds()),
		Subscriptions:    subs,
	})
}

// handleEmit is the ingest path for trusted back-office services that run
// out of process: it converts an HTTP POST into an Emitter call.
func (h *Handler) handleEmit(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeAdmin(w, r) {
		return
	}

	var req emitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	t := events.EventType(req.Type)
	if !t.Valid() {
		http.Error(w, "unknown event type", http.StatusBadRequest)
		return
	}

	if err := h.emitTyped(t, req.Data); err != nil {
		http.Error(w, "invalid event payload", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

func (h *Handler) emitTyped(t events.EventType, data json.RawMessage) error {
	switch t {
	case events.FaceRecognition:
		var ev events.FaceRecognitionEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		if ev.EventType == "face_recognition_failed" {
			h.emitter.EmitFaceRecognitionFailed(ev.FaceID, ev.Confidence, ev.CameraID, ev.Metadata)
		} else {
			h.emitter.EmitFaceRecognized(ev.FaceID, ev.Confidence, ev.UserID, ev.CameraID, ev.Metadata)
		}
	case events.UserUpdate:
		var ev events.UserUpdateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		h.emitter.EmitUserUpdate(ev.UserID, ev.UpdateKind, ev.UserData)
	case events.System:
		var ev events.SystemEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		h.emitter.EmitSystemEvent(ev.EventType, ev.Message, ev.Severity, ev.Metadata)
	case events.StatisticsUpdate:
		var ev events.StatisticsUpdateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		h.emitter.EmitStatisticsUpdate(ev)
	case events.ActivityLog:
		var ev events.ActivityLogEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		h.emitter.EmitActivityLog(ev.UserID, ev.Action, ev.Resource, ev.Details)
	case events.Alert:
		var ev events.AlertEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		h.emitter.EmitAlert(ev.Type, ev.Severity, ev.Title, ev.Message)
	case events.DeviceStatus:
		var ev events.DeviceStatusEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		h.emitter.EmitDeviceStatus(ev)
	}
	return nil
}

func (h *Handler) authorizeAdmin(w http.ResponseWriter, r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	identity, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if identity.Role != RoleAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
