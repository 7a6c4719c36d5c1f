// Package api defines the HTTP surface types: the response envelope
// and the request bodies of the query and memory endpoints.
package api

import (
	"time"

	"github.com/BaSui01/cortexflow/types"
)

// Response is the canonical API envelope.
type Response struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorInfo is the canonical error structure.
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
	HTTPStatus int    `json:"http_status,omitempty"`
}

// QueryBody is the POST /query request.
type QueryBody struct {
	Text             string `json:"text"`
	Mode             string `json:"mode,omitempty"`
	LoopDepth        int    `json:"loop_depth,omitempty"`
	AllowMemoryWrite bool   `json:"allow_memory_write,omitempty"`
	UserID           string `json:"user_id,omitempty"`
	SessionID        string `json:"session_id,omitempty"`
}

// QueryReply is the POST /query response data.
type QueryReply struct {
	JobID   string             `json:"job_id"`
	Result  *types.QueryResult `json:"result,omitempty"`
	Success bool               `json:"success"`
	Error   string             `json:"error,omitempty"`
}

// HealthReply is the GET /health response data.
type HealthReply struct {
	Status          string `json:"status"`
	Configured      bool   `json:"configured"`
	MemoryEnabled   bool   `json:"memory_enabled"`
	AgentsAvailable bool   `json:"agents_available"`
}

// AgentInfo describes one reasoner for GET /agents.
type AgentInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// MemorySearchBody is the POST /memory/search and /memory/retrieve
// request.
type MemorySearchBody struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// MemoryWriteBody is the POST /memory/write request. Consent is
// required; writes without it are rejected.
type MemoryWriteBody struct {
	Kind         string   `json:"kind"`
	Text         string   `json:"text"`
	Tags         []string `json:"tags,omitempty"`
	Importance   float64  `json:"importance,omitempty"`
	Consent      bool     `json:"consent"`
	PrivacyLevel string   `json:"privacy_level,omitempty"`
}

// MemoryDeleteBody is the POST /memory/delete request.
type MemoryDeleteBody struct {
	ID string `json:"id"`
}

// WMAddBody is the POST /memory/wm/add request.
type WMAddBody struct {
	UserID  string   `json:"user_id"`
	Entries []string `json:"entries"`
	Cap     int      `json:"cap,omitempty"`
}

// WMBody addresses a user's working-memory ring.
type WMBody struct {
	UserID string `json:"user_id"`
	Cap    int    `json:"cap,omitempty"`
}

// ProceduralRegisterBody is the POST /memory/procedural/register
// request.
type ProceduralRegisterBody struct {
	Name string   `json:"name"`
	Path string   `json:"path,omitempty"`
	Tags []string `json:"tags,omitempty"`
}

// EventWriteBody is the POST /memory/event/write request.
type EventWriteBody struct {
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Query     string `json:"query"`
	Response  string `json:"response"`
	Reflection string `json:"reflection,omitempty"`
}
