// Package handler translates one parsed Postfix protocol request into a
// REST call and maps the REST response back into that protocol's wire
// verdict (hit, miss, permanent error, transient error), per spec §4.D.
package handler

import (
	"bytes"
	"encoding/json"
)

// parseValues interprets a REST 200 response body as either a JSON array
// of strings or a single JSON string, per spec §4.D ("JSON array of
// strings, or single string"). isJSON is false when the body parses as
// neither — callers decide what that means for their protocol (spec §9's
// open question: a literal single-value hit for TCP-lookup, a permanent
// error for Socketmap, since Socketmap mandates a JSON array).
//
// An empty body is treated as a valid, empty result (isJSON true, no
// values) so "200 with empty body" and "200 with empty JSON array" both
// fall through to the same miss path.
func parseValues(body []byte) (values []string, isJSON bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, true
	}

	var arr []string
	if err := json.Unmarshal(trimmed, &arr); err == nil {
		return arr, true
	}

	var single string
	if err := json.Unmarshal(trimmed, &single); err == nil {
		return []string{single}, true
	}

	return nil, false
}
