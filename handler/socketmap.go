package handler

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/pfxrest/postfix-rest-api-connector/codec"
	"github.com/pfxrest/postfix-rest-api-connector/restclient"
)

// Socketmap answers one socketmap request against client, returning the
// netstring-framed reply. Unlike TCP-lookup, Socketmap's wire format
// distinguishes a timed-out backend (TIMEOUT) from any other transient
// failure (TEMP).
func Socketmap(ctx context.Context, client *restclient.Client, req *codec.SocketmapRequest, requestID string) []byte {
	res, err := client.Get(ctx, url.Values{"name": {req.MapName}, "key": {req.Key}}, requestID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return codec.SocketmapTimeout("backend request timed out")
		}
		return codec.SocketmapTransient("backend request failed")
	}
	return socketmapReply(res)
}

func socketmapReply(res *restclient.Result) []byte {
	switch {
	case res.StatusCode == 200:
		values, isJSON := parseValues(res.Body)
		if !isJSON {
			// Socketmap mandates a JSON array; a non-JSON 200 body means the
			// backend is misconfigured, not that the key is missing.
			return codec.SocketmapPermanent("backend returned non-JSON response")
		}
		if len(values) == 0 {
			return codec.SocketmapMiss()
		}
		return codec.SocketmapHit(values)
	case res.StatusCode == 404:
		return codec.SocketmapMiss()
	case res.StatusCode >= 400 && res.StatusCode < 500:
		return codec.SocketmapPermanent(fmt.Sprintf("backend returned %d", res.StatusCode))
	case res.StatusCode >= 500:
		return codec.SocketmapTransient(fmt.Sprintf("backend returned %d", res.StatusCode))
	default:
		return codec.SocketmapPermanent(fmt.Sprintf("backend returned unexpected status %d", res.StatusCode))
	}
}
