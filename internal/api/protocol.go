package api

import (
	"encoding/json"
	"time"
)

// clientFrame is every message a client can send. Type selects the
// operation; the other fields are per-operation.
type clientFrame struct {
	Type   string   `json:"type"`
	Token  string   `json:"token,omitempty"`
	Events []string `json:"events,omitempty"`
}

type authenticatedFrame struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	UserID  string `json:"userId,omitempty"`
	Error   string `json:"error,omitempty"`
}

type subscriptionFrame struct {
	Type   string   `json:"type"`
	Events []string `json:"events"`
}

type connectionStatusFrame struct {
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	ClientID  string    `json:"clientId"`
	Timestamp time.Time `json:"timestamp"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type statsResponse struct {
	ConnectedClients int            `json:"connectedClients"`
	UptimeSeconds    int64          `json:"uptimeSeconds"`
	Subscriptions    map[string]int `json:"subscriptions"`
}

// emitRequest is the ingest shape trusted back-office services POST to
// push a domain event into the gateway.
type emitRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}
