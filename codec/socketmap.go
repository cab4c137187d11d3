package codec

import (
	"bufio"
	"fmt"
	"strings"
)

// SocketmapRequest is one decoded netstring payload, "<mapname> <key>".
type SocketmapRequest struct {
	MapName string
	Key     string
}

// ReadSocketmapRequest decodes one netstring frame into a socketmap
// request. Both mapname and key are raw — Socketmap, unlike TCP-lookup,
// does not percent-encode its payload.
func ReadSocketmapRequest(r *bufio.Reader) (*SocketmapRequest, error) {
	payload, err := DecodeNetstring(r)
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(payload, " ", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("socketmap: malformed payload %q", payload)
	}

	return &SocketmapRequest{MapName: parts[0], Key: parts[1]}, nil
}

func socketmapFrame(text string) []byte {
	return EncodeNetstring(text)
}

// MaxSocketmapResponseLength bounds the un-framed "OK <value>" text before
// netstring framing is applied, per the original Rust implementation's
// SOCKETMAP_MAXIMUM_RESPONSE_LENGTH. Distinct from MaxSocketmapPayload in
// netstring.go, which bounds an inbound request's netstring length prefix;
// this bounds an outbound hit built from whatever a REST backend returns.
const MaxSocketmapResponseLength = 100000

// SocketmapHit formats an "OK <value>" response, comma-joining a
// multi-value result. Values are not percent-encoded. If the un-framed
// text would exceed MaxSocketmapResponseLength, it falls back to a
// transient error instead of framing an oversized reply.
func SocketmapHit(values []string) []byte {
	text := "OK " + strings.Join(values, ",")
	if len(text) > MaxSocketmapResponseLength {
		return SocketmapTransient("Response too long")
	}
	return socketmapFrame(text)
}

func SocketmapMiss() []byte {
	return socketmapFrame("NOTFOUND ")
}

func SocketmapTransient(message string) []byte {
	return socketmapFrame("TEMP " + message)
}

func SocketmapPermanent(message string) []byte {
	return socketmapFrame("PERM " + message)
}

func SocketmapTimeout(message string) []byte {
	return socketmapFrame("TIMEOUT " + message)
}
