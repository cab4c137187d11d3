package handler

import (
	"context"
	"strings"

	"github.com/pfxrest/postfix-rest-api-connector/codec"
	"github.com/pfxrest/postfix-rest-api-connector/restclient"
)

// Policy answers one policy-delegation request against client, returning
// the blank-line-terminated action reply.
func Policy(ctx context.Context, client *restclient.Client, req *codec.PolicyRequest, requestID string) string {
	res, err := client.Post(ctx, req.EncodeForm(), requestID)
	if err != nil {
		return codec.PolicyResponse("action=DEFER_IF_PERMIT service unavailable")
	}
	return policyReply(res)
}

func policyReply(res *restclient.Result) string {
	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		action := firstLine(string(res.Body))
		if action == "" {
			return codec.PolicyResponse("action=DEFER_IF_PERMIT empty response")
		}
		if !strings.HasPrefix(action, "action=") {
			action = "action=" + action
		}
		return codec.PolicyResponse(action)
	case res.StatusCode >= 400 && res.StatusCode < 500:
		return codec.PolicyResponse("action=DEFER_IF_PERMIT configuration error")
	case res.StatusCode >= 500:
		return codec.PolicyResponse("action=DEFER_IF_PERMIT server error")
	default:
		return codec.PolicyResponse("action=DEFER_IF_PERMIT unexpected backend response")
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
