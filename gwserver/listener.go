package gwserver

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pfxrest/postfix-rest-api-connector/codec"
	"github.com/pfxrest/postfix-rest-api-connector/config"
	"github.com/pfxrest/postfix-rest-api-connector/handler"
	"github.com/pfxrest/postfix-rest-api-connector/logging"
	"github.com/pfxrest/postfix-rest-api-connector/observability"
	"github.com/pfxrest/postfix-rest-api-connector/restclient"
)

// NewConnHandler builds the ConnHandler for one configured endpoint,
// dispatching to the wire codec and protocol handler that match its
// mode. Postfix holds one connection open across many sequential
// requests, so each handler loops reading request after request until
// the peer closes the connection or sends something it can't parse.
// metrics may be nil, in which case no observations are recorded.
func NewConnHandler(ep *config.Endpoint, client *restclient.Client, metrics *observability.Metrics) ConnHandler {
	switch ep.Mode {
	case config.ModeTCPLookup:
		return tcpLookupConnHandler(ep, client, metrics)
	case config.ModeSocketmap:
		return socketmapConnHandler(ep, client, metrics)
	case config.ModePolicy:
		return policyConnHandler(ep, client, metrics)
	default:
		// config.Load rejects unknown modes before a Server is ever built.
		panic("gwserver: endpoint " + ep.Name + " has unvalidated mode " + string(ep.Mode))
	}
}

func tcpLookupConnHandler(ep *config.Endpoint, client *restclient.Client, metrics *observability.Metrics) ConnHandler {
	return func(conn net.Conn) {
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			req, err := codec.ReadTCPLookupRequest(r)
			if err != nil {
				logConnError(ep, err)
				return
			}

			start := time.Now()
			reply := handler.TCPLookup(context.Background(), client, req, uuid.NewString())
			observe(metrics, ep.Name, tcpLookupVerdict(reply), time.Since(start))

			if _, err := io.WriteString(conn, reply); err != nil {
				logConnError(ep, err)
				return
			}
		}
	}
}

func socketmapConnHandler(ep *config.Endpoint, client *restclient.Client, metrics *observability.Metrics) ConnHandler {
	return func(conn net.Conn) {
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			req, err := codec.ReadSocketmapRequest(r)
			if err != nil {
				logConnError(ep, err)
				return
			}

			start := time.Now()
			reply := handler.Socketmap(context.Background(), client, req, uuid.NewString())
			observe(metrics, ep.Name, socketmapVerdict(reply), time.Since(start))

			if _, err := conn.Write(reply); err != nil {
				logConnError(ep, err)
				return
			}
		}
	}
}

func policyConnHandler(ep *config.Endpoint, client *restclient.Client, metrics *observability.Metrics) ConnHandler {
	return func(conn net.Conn) {
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			req, err := codec.ReadPolicyRequest(r)
			if err != nil {
				logConnError(ep, err)
				return
			}

			start := time.Now()
			reply := handler.Policy(context.Background(), client, req, uuid.NewString())
			observe(metrics, ep.Name, policyVerdict(reply), time.Since(start))

			if _, err := io.WriteString(conn, reply); err != nil {
				logConnError(ep, err)
				return
			}
		}
	}
}

// tcpLookupVerdict classifies an already-formatted reply line for
// metrics, without changing the handler package's return type.
func tcpLookupVerdict(reply string) string {
	switch {
	case strings.HasPrefix(reply, "200 "):
		return "hit"
	case reply == "500 \n":
		return "miss"
	case strings.HasPrefix(reply, "500 "):
		return "permanent_error"
	case strings.HasPrefix(reply, "400 "):
		return "transient_error"
	default:
		return "unknown"
	}
}

func socketmapVerdict(frame []byte) string {
	idx := bytes.IndexByte(frame, ':')
	if idx < 0 {
		return "unknown"
	}
	text := frame[idx+1:]
	switch {
	case bytes.HasPrefix(text, []byte("OK ")):
		return "hit"
	case bytes.HasPrefix(text, []byte("NOTFOUND ")):
		return "miss"
	case bytes.HasPrefix(text, []byte("PERM ")):
		return "permanent_error"
	case bytes.HasPrefix(text, []byte("TEMP ")):
		return "transient_error"
	case bytes.HasPrefix(text, []byte("TIMEOUT ")):
		return "timeout"
	default:
		return "unknown"
	}
}

func policyVerdict(reply string) string {
	if strings.Contains(reply, "action=DEFER_IF_PERMIT") {
		return "error"
	}
	return "hit"
}

func observe(metrics *observability.Metrics, endpoint, verdict string, elapsed time.Duration) {
	if metrics == nil {
		return
	}
	metrics.RequestsTotal.WithLabelValues(endpoint, verdict).Inc()
	metrics.RequestSeconds.WithLabelValues(endpoint).Observe(elapsed.Seconds())
	switch verdict {
	case "permanent_error", "transient_error", "timeout", "error":
		metrics.RequestErrors.WithLabelValues(endpoint, verdict).Inc()
	}
}

func logConnError(ep *config.Endpoint, err error) {
	if errors.Is(err, io.EOF) {
		return
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return
	}
	logging.Debugf("endpoint %q: connection closed: %v", ep.Name, err)
}
