package gatewaytest

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestHandlerSeesRecordedBody(t *testing.T) {
	b := New(t)
	var seen string
	b.Handle(http.MethodPost, "/rest/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		seen = string(raw)
		WriteJSON(w, http.StatusCreated, nil)
	})

	const body = `{"title":"Return laptop"}`
	resp, err := http.Post(b.Server.URL+"/rest/v1/tasks", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = resp.Body.Close()

	if seen != body {
		t.Fatalf("handler body = %q, want %q", seen, body)
	}
	reqs := b.Requests()
	if len(reqs) != 1 || string(reqs[0].Body) != body {
		t.Fatalf("recorded requests = %+v", reqs)
	}
}
