package handler

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pfxrest/postfix-rest-api-connector/codec"
	"github.com/pfxrest/postfix-rest-api-connector/restclient"
)

// TCPLookup answers one TCP-lookup request against client, returning the
// full wire-formatted reply line. It never returns a Go error: every
// outcome, including a dead backend, is expressed as a protocol reply so
// the caller can write it straight to the connection.
func TCPLookup(ctx context.Context, client *restclient.Client, req *codec.TCPLookupRequest, requestID string) string {
	switch req.Command {
	case "put":
		return codec.TCPLookupNotImplemented()
	case "get":
		// fall through
	default:
		return codec.TCPLookupPermanent(fmt.Sprintf("unknown command %q", req.Command))
	}

	res, err := client.Get(ctx, url.Values{"key": {req.Key}}, requestID)
	if err != nil {
		return codec.TCPLookupTransient("backend request failed")
	}
	return tcpLookupReply(res)
}

func tcpLookupReply(res *restclient.Result) string {
	switch {
	case res.StatusCode == 200:
		values, isJSON := parseValues(res.Body)
		if !isJSON {
			// A non-JSON 200 body is treated as a single literal value, per
			// the open question on non-JSON success bodies.
			trimmed := strings.TrimSpace(string(res.Body))
			if trimmed == "" {
				return codec.TCPLookupMiss()
			}
			return codec.TCPLookupHit([]string{trimmed})
		}
		if len(values) == 0 {
			return codec.TCPLookupMiss()
		}
		return codec.TCPLookupHit(values)
	case res.StatusCode == 404:
		return codec.TCPLookupMiss()
	case res.StatusCode >= 400 && res.StatusCode < 500:
		return codec.TCPLookupPermanent(fmt.Sprintf("backend returned %d", res.StatusCode))
	case res.StatusCode >= 500:
		return codec.TCPLookupTransient(fmt.Sprintf("backend returned %d", res.StatusCode))
	default:
		return codec.TCPLookupPermanent(fmt.Sprintf("backend returned unexpected status %d", res.StatusCode))
	}
}
