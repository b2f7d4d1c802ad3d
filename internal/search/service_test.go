package search_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"offboarding/ocm/internal/gateway"
	"offboarding/ocm/internal/gateway/gatewaytest"
	"offboarding/ocm/internal/search"
)

type stubIndex struct {
	mu      sync.Mutex
	healthy bool
	results []search.Result
	err     error
	indexed chan []search.CaseDocument
	queries []search.Query
	deleted []string
}

func (s *stubIndex) Healthy() bool { return s.healthy }

func (s *stubIndex) Search(q search.Query) ([]search.Result, int, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()
	return s.results, len(s.results), s.err
}

func (s *stubIndex) IndexCases(docs []search.CaseDocument) error {
	s.indexed <- docs
	return nil
}

func (s *stubIndex) DeleteCase(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return nil
}

func casesBackend(t *testing.T) (*gatewaytest.Backend, *gateway.Client) {
	t.Helper()
	backend := gatewaytest.New(t)
	backend.JSON(http.MethodGet, "/rest/v1/offboarding_cases", http.StatusOK, []gateway.CaseRecord{
		{ID: "c1", OrgID: "org-1", EmployeeName: "Ada Lovelace", Status: "draft"},
		{ID: "c2", OrgID: "org-1", EmployeeName: "Adam Smith", Status: "approved"},
	})
	return backend, backend.Client(t, "token")
}

func TestSearchFallsBackToBackendWithoutIndex(t *testing.T) {
	backend, client := casesBackend(t)
	svc := search.NewService(nil, client, nil)

	resp, err := svc.Search(context.Background(), search.Query{Text: "  ada ", OrgID: "org-1"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Engine != search.EngineBackend {
		t.Fatalf("engine = %q, want backend", resp.Engine)
	}
	if resp.Total != 2 || len(resp.Results) != 2 {
		t.Fatalf("results = %+v", resp)
	}
	if resp.Query != "ada" {
		t.Fatalf("query = %q, want trimmed", resp.Query)
	}

	reqs := backend.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	values, err := url.ParseQuery(reqs[0].Query)
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	if got := values.Get("employee_name"); got != "ilike.*ada*" {
		t.Fatalf("employee_name = %q", got)
	}
	if got := values.Get("org_id"); got != "eq.org-1" {
		t.Fatalf("org_id = %q", got)
	}
	if got := values.Get("limit"); got != "20" {
		t.Fatalf("limit = %q", got)
	}
}

func TestSearchFallbackFiltersStatusAndOffset(t *testing.T) {
	_, client := casesBackend(t)
	svc := search.NewService(nil, client, nil)

	tests := []struct {
		name  string
		query search.Query
		ids   []string
		total int
	}{
		{name: "status filter", query: search.Query{Status: "Approved"}, ids: []string{"c2"}, total: 1},
		{name: "offset", query: search.Query{Offset: 1}, ids: []string{"c2"}, total: 2},
		{name: "offset past end", query: search.Query{Offset: 5}, ids: nil, total: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.Search(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if resp.Total != tt.total {
				t.Fatalf("total = %d, want %d", resp.Total, tt.total)
			}
			if len(resp.Results) != len(tt.ids) {
				t.Fatalf("results = %+v, want ids %v", resp.Results, tt.ids)
			}
			for i, id := range tt.ids {
				if resp.Results[i].ID != id {
					t.Fatalf("results[%d] = %q, want %q", i, resp.Results[i].ID, id)
				}
			}
		})
	}
}

func TestSearchConfirmsIndexHitsWithBackend(t *testing.T) {
	backend, client := casesBackend(t)
	idx := &stubIndex{healthy: true, results: []search.Result{
		{ID: "c9", EmployeeName: "Hidden Person"},
		{ID: "c1", EmployeeName: "Ada (stale)", Snippet: "<em>Ada</em>"},
	}}
	svc := search.NewService(idx, client, nil)

	resp, err := svc.Search(context.Background(), search.Query{Text: "ada", OrgID: "org-1"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Engine != search.EngineMeili {
		t.Fatalf("engine = %q, want meilisearch", resp.Engine)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "c1" {
		t.Fatalf("only backend-visible hits should remain, got %+v", resp.Results)
	}
	if got := resp.Results[0]; got.EmployeeName != "Ada Lovelace" || got.Snippet != "<em>Ada</em>" {
		t.Fatalf("result should carry backend fields and the index snippet, got %+v", got)
	}
	if resp.Total != 1 {
		t.Fatalf("total = %d, want 1", resp.Total)
	}

	reqs := backend.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	values, _ := url.ParseQuery(reqs[0].Query)
	if got := values.Get("id"); got != `in.("c9","c1")` {
		t.Fatalf("id filter = %q", got)
	}
	if got := values.Get("org_id"); got != "eq.org-1" {
		t.Fatalf("org_id = %q", got)
	}
}

func TestSearchIndexStatusUsesBackendRow(t *testing.T) {
	_, client := casesBackend(t)
	// The index still says draft; the backend row for c2 is approved.
	idx := &stubIndex{healthy: true, results: []search.Result{{ID: "c2", Status: "draft"}}}
	svc := search.NewService(idx, client, nil)

	resp, err := svc.Search(context.Background(), search.Query{Status: "draft"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("stale index status must not match, got %+v", resp.Results)
	}
}

func TestSearchWithoutFallbackFails(t *testing.T) {
	idx := &stubIndex{healthy: true, results: []search.Result{{ID: "c1"}}}
	svc := search.NewService(idx, nil, nil)

	if _, err := svc.Search(context.Background(), search.Query{Text: "ada"}); err == nil {
		t.Fatal("index hits cannot be confirmed without a backend")
	}
	if len(idx.queries) != 0 {
		t.Fatal("index should not be queried without a backend")
	}
}

func TestSearchFallsBackWhenIndexFails(t *testing.T) {
	backend, client := casesBackend(t)
	idx := &stubIndex{healthy: true, err: errors.New("boom")}
	svc := search.NewService(idx, client, nil)

	resp, err := svc.Search(context.Background(), search.Query{Text: "ada"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Engine != search.EngineBackend {
		t.Fatalf("engine = %q, want backend", resp.Engine)
	}
	if backend.Calls(http.MethodGet, "/rest/v1/offboarding_cases") != 1 {
		t.Fatalf("expected one fallback request")
	}
}

func TestSearchSkipsUnhealthyIndex(t *testing.T) {
	_, client := casesBackend(t)
	idx := &stubIndex{healthy: false}
	svc := search.NewService(idx, client, nil)

	if _, err := svc.Search(context.Background(), search.Query{Text: "x"}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(idx.queries) != 0 {
		t.Fatalf("unhealthy index was queried")
	}
}

func TestSearchReturnsBackendError(t *testing.T) {
	backend := gatewaytest.New(t)
	backend.JSON(http.MethodGet, "/rest/v1/offboarding_cases", http.StatusForbidden, map[string]string{"message": "permission denied"})
	svc := search.NewService(nil, backend.Client(t, "token"), nil)

	resp, err := svc.Search(context.Background(), search.Query{Text: "x"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if gateway.StatusOf(err) != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", gateway.StatusOf(err))
	}
	if resp.Results == nil {
		t.Fatalf("results should be empty, not nil")
	}
}

func TestIndexWritesAreSynchronous(t *testing.T) {
	idx := &stubIndex{healthy: true, indexed: make(chan []search.CaseDocument, 1)}
	svc := search.NewService(idx, nil, nil)

	svc.IndexCases([]gateway.CaseRecord{
		{ID: "c1", EmployeeName: "Ada", OrgID: "org-1", Status: "draft"},
		{EmployeeName: "ghost"},
	})
	select {
	case docs := <-idx.indexed:
		if len(docs) != 1 || docs[0].ID != "c1" || docs[0].EmployeeName != "Ada" {
			t.Fatalf("docs = %+v", docs)
		}
	default:
		t.Fatal("IndexCases returned before writing to the index")
	}

	svc.DeleteCase("c1")
	if len(idx.deleted) != 1 || idx.deleted[0] != "c1" {
		t.Fatalf("deleted = %v", idx.deleted)
	}
}
