package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pfxrest/postfix-rest-api-connector/codec"
	"github.com/pfxrest/postfix-rest-api-connector/config"
	"github.com/pfxrest/postfix-rest-api-connector/restclient"
)

func newTestClient(t *testing.T, handlerFn http.HandlerFunc) (*restclient.Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handlerFn)
	ep := &config.Endpoint{
		Name:           "test",
		Target:         srv.URL,
		AuthToken:      "secret",
		RequestTimeout: 1000,
	}
	c, err := restclient.New(ep, "test-agent")
	if err != nil {
		t.Fatal(err)
	}
	return c, srv.Close
}

func TestTCPLookupHit(t *testing.T) {
	c, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["a b","c,d"]`))
	})
	defer done()

	got := TCPLookup(context.Background(), c, &codec.TCPLookupRequest{Command: "get", Key: "user@example.com"}, "req-1")
	if want := "200 a%20b,c%2Cd\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestTCPLookupMissEmptyArray(t *testing.T) {
	c, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	defer done()

	got := TCPLookup(context.Background(), c, &codec.TCPLookupRequest{Command: "get", Key: "x"}, "")
	if want := "500 \n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestTCPLookupMiss404(t *testing.T) {
	c, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer done()

	got := TCPLookup(context.Background(), c, &codec.TCPLookupRequest{Command: "get", Key: "x"}, "")
	if want := "500 \n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestTCPLookupPermanentOn400(t *testing.T) {
	c, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	defer done()

	got := TCPLookup(context.Background(), c, &codec.TCPLookupRequest{Command: "get", Key: "x"}, "")
	if !isTCPLookupPrefix(got, "500 ") {
		t.Errorf("got %q, want a 500 reply", got)
	}
}

func TestTCPLookupTransientOn500(t *testing.T) {
	c, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer done()

	got := TCPLookup(context.Background(), c, &codec.TCPLookupRequest{Command: "get", Key: "x"}, "")
	if !isTCPLookupPrefix(got, "400 ") {
		t.Errorf("got %q, want a 400 reply", got)
	}
}

func TestTCPLookupPutNotImplemented(t *testing.T) {
	c, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("put request should not reach the backend")
	})
	defer done()

	got := TCPLookup(context.Background(), c, &codec.TCPLookupRequest{Command: "put", Key: "x"}, "")
	if want := "500 not implemented\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestTCPLookupSingleStringBody(t *testing.T) {
	c, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"alice@corp"`))
	})
	defer done()

	got := TCPLookup(context.Background(), c, &codec.TCPLookupRequest{Command: "get", Key: "x"}, "")
	if want := "200 alice%40corp\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func isTCPLookupPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func TestSocketmapHit(t *testing.T) {
	c, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["a@x","b@y"]`))
	})
	defer done()

	got := Socketmap(context.Background(), c, &codec.SocketmapRequest{MapName: "aliases", Key: "k"}, "")
	want := codec.EncodeNetstring("OK a@x,b@y")
	if string(got) != string(want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSocketmapMissOnEmptyBody(t *testing.T) {
	c, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	defer done()

	got := Socketmap(context.Background(), c, &codec.SocketmapRequest{MapName: "aliases", Key: "k"}, "")
	want := codec.EncodeNetstring("NOTFOUND ")
	if string(got) != string(want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSocketmapPermanentOnNonJSON(t *testing.T) {
	c, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})
	defer done()

	got := Socketmap(context.Background(), c, &codec.SocketmapRequest{MapName: "aliases", Key: "k"}, "")
	want := codec.EncodeNetstring("PERM backend returned non-JSON response")
	if string(got) != string(want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSocketmapTransientOn503(t *testing.T) {
	c, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer done()

	got := Socketmap(context.Background(), c, &codec.SocketmapRequest{MapName: "aliases", Key: "k"}, "")
	want := codec.EncodeNetstring("TEMP backend returned 503")
	if string(got) != string(want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPolicyActionPassthrough(t *testing.T) {
	c, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("action=DUNNO"))
	})
	defer done()

	got := Policy(context.Background(), c, &codec.PolicyRequest{}, "")
	if want := "action=DUNNO\n\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPolicyBareActionValueIsWrapped(t *testing.T) {
	c, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("REJECT"))
	})
	defer done()

	got := Policy(context.Background(), c, &codec.PolicyRequest{}, "")
	if want := "action=REJECT\n\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPolicyDefersOnServerError(t *testing.T) {
	c, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer done()

	got := Policy(context.Background(), c, &codec.PolicyRequest{}, "")
	if want := "action=DEFER_IF_PERMIT server error\n\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPolicyDefersOnUnreachableBackend(t *testing.T) {
	ep := &config.Endpoint{
		Name:           "test",
		Target:         "http://127.0.0.1:1",
		AuthToken:      "secret",
		RequestTimeout: 200,
	}
	c, err := restclient.New(ep, "test-agent")
	if err != nil {
		t.Fatal(err)
	}

	got := Policy(context.Background(), c, &codec.PolicyRequest{}, "")
	if want := "action=DEFER_IF_PERMIT service unavailable\n\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
