// Package transform normalizes raw bus records into the JSON event frames
// pushed to clients. Transform is a pure function and never fails: malformed
// upstream records degrade into a diagnostic envelope instead of breaking the
// stream.
package transform

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SK-Rookies-Final-Project/Backend/types"
)

// Alert is the normalized shape for the login-anomaly categories
type Alert struct {
	ID           string `json:"id"`
	AlertTimeKST string `json:"alertTimeKST"`
	AlertType    string `json:"alertType"`
	ClientIP     string `json:"clientIp"`
	Description  string `json:"description"`
	FailureCount int    `json:"failureCount"`
}

// diagnostic is the envelope for payloads that could not be normalized
type diagnostic struct {
	Message    string `json:"message,omitempty"`
	RawMessage string `json:"rawMessage,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	Error      string `json:"error"`
}

// Timestamps in event frames use Korean local time, matching the audit
// pipeline that produces the records.
var kst = time.FixedZone("KST", 9*60*60)

const kstLayout = "2006-01-02T15:04:05.000000000-07:00"

// clientIPFields is the priority order for extracting a client address from
// an upstream record.
var clientIPFields = [...]string{"clientIp", "client_ip", "sourceIp", "source_ip", "ip"}

// sentinelIP is used when no client-address field is present
const sentinelIP = "127.0.0.1"

// NowKST returns the current wall-clock time formatted the way event frames
// carry timestamps.
func NowKST() string {
	return time.Now().In(kst).Format(kstLayout)
}

// Transform converts one raw bus record into a JSON event frame for the
// given category. The result is always a valid JSON object string.
func Transform(raw []byte, category types.Category) string {
	trimmed := strings.TrimSpace(string(raw))

	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return mustMarshal(diagnostic{
			Message:   trimmed,
			Timestamp: time.Now().UnixMilli(),
			Error:     "unstructured data",
		})
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return mustMarshal(diagnostic{
			RawMessage: trimmed,
			Timestamp:  time.Now().UnixMilli(),
			Error:      "json parse failed",
		})
	}

	switch category {
	case types.CategoryLoginFailure:
		return mustMarshal(Alert{
			ID:           uuid.NewString(),
			AlertTimeKST: time.Now().In(kst).Format(kstLayout),
			AlertType:    "LOGIN_FAILURE",
			ClientIP:     clientIP(fields),
			Description:  "repeated authentication failures",
			FailureCount: 2,
		})
	case types.CategorySuspiciousLocation:
		return mustMarshal(Alert{
			ID:           uuid.NewString(),
			AlertTimeKST: time.Now().In(kst).Format(kstLayout),
			AlertType:    "LOCATION_CHANGE",
			ClientIP:     clientIP(fields),
			Description:  "access attempt from an unusual location",
			FailureCount: 1,
		})
	default:
		// Permission-denial records already carry the frame shape clients
		// expect; pass them through untouched.
		return trimmed
	}
}

// clientIP extracts the client address by field-name priority, defaulting to
// the sentinel address when none is present.
func clientIP(fields map[string]any) string {
	for _, name := range clientIPFields {
		v, ok := fields[name]
		if !ok || v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return sentinelIP
}

// mustMarshal serializes a value that cannot contain unmarshalable types
func mustMarshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Unreachable for the struct shapes above; keep the contract anyway.
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data)
}
