package control

import "github.com/google/uuid"

// NewTraceID mints a request-scoped identifier for log correlation across
// the node/dispatcher boundary. It is purely a debug aid: it never touches
// the wire and is unrelated to api.Address, which remains the sole session
// identifier visible to upstream per the control scheme.
func NewTraceID() string {
	return uuid.NewString()
}
