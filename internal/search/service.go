package search

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"offboarding/ocm/internal/gateway"
)

const defaultLimit = 20

var errNoFallback = errors.New("search: no backend fallback configured")

// Indexer is the write side of the case index.
type Indexer interface {
	IndexCases(docs []CaseDocument) error
	DeleteCase(id string) error
}

// Index is a Searcher that can also be written to.
type Index interface {
	Searcher
	Indexer
}

// Service tries the index first and falls back to the backend listing.
type Service struct {
	index    Index
	fallback Fallback
	logger   *zap.Logger
}

// NewService creates a search service. index may be nil when Meilisearch is not configured.
func NewService(index Index, fallback Fallback, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{index: index, fallback: fallback, logger: logger.Named("search")}
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// Search answers q from the index when healthy, otherwise from the backend.
// Backend errors are returned; index errors only trigger the fallback.
func (s *Service) Search(ctx context.Context, q Query) (Response, error) {
	return s.SearchWith(ctx, s.fallback, q)
}

// SearchWith is Search with a per-call fallback, e.g. a client bound to the caller's token.
// Index hits are only candidates: each one is re-read through fallback and dropped
// unless the backend returns it.
func (s *Service) SearchWith(ctx context.Context, fallback Fallback, q Query) (Response, error) {
	q.Text = strings.TrimSpace(q.Text)
	if fallback == nil {
		return Response{Results: []Result{}, Query: q.Text, Engine: EngineBackend}, errNoFallback
	}
	if s.indexReady() {
		hits, total, err := s.index.Search(q)
		if err == nil {
			return s.confirm(ctx, fallback, q, hits, total)
		}
		s.logger.Warn("meilisearch error, falling back to backend", zap.Error(err))
	}

	rows, err := fallback.ListCases(ctx, gateway.CaseFilter{
		OrgID:        q.OrgID,
		EmployeeLike: q.Text,
		Limit:        limitOrDefault(q.Limit) + q.Offset,
	})
	if err != nil {
		return Response{Results: []Result{}, Query: q.Text, Engine: EngineBackend}, err
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		if statusMatches(q.Status, row.Status) {
			results = append(results, resultFromCase(row))
		}
	}
	total := len(results)
	if q.Offset >= len(results) {
		results = results[:0]
	} else {
		results = results[q.Offset:]
	}
	return Response{Results: results, Total: total, Query: q.Text, Engine: EngineBackend}, nil
}

// confirm keeps the index hits the caller can still see, in index order, with
// fields taken from the backend row.
func (s *Service) confirm(ctx context.Context, fallback Fallback, q Query, hits []Result, total int) (Response, error) {
	resp := Response{Results: []Result{}, Query: q.Text, Engine: EngineMeili}
	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		if hit.ID != "" {
			ids = append(ids, hit.ID)
		}
	}
	if len(ids) == 0 {
		resp.Total = total
		return resp, nil
	}

	rows, err := fallback.ListCases(ctx, gateway.CaseFilter{OrgID: q.OrgID, CaseIDs: ids})
	if err != nil {
		return resp, err
	}
	visible := make(map[string]gateway.CaseRecord, len(rows))
	for _, row := range rows {
		visible[row.ID] = row
	}
	for _, hit := range hits {
		row, ok := visible[hit.ID]
		if !ok || !statusMatches(q.Status, row.Status) {
			continue
		}
		result := resultFromCase(row)
		result.Snippet = hit.Snippet
		resp.Results = append(resp.Results, result)
	}

	dropped := len(hits) - len(resp.Results)
	if dropped > 0 {
		s.logger.Debug("dropped index hits not visible to caller", zap.Int("count", dropped))
	}
	resp.Total = max(total-dropped, len(resp.Results))
	return resp, nil
}

func statusMatches(want, got string) bool {
	want = strings.TrimSpace(want)
	return want == "" || strings.EqualFold(want, strings.TrimSpace(got))
}

// IndexCases pushes visible cases into the index and waits for the write to be
// accepted. No-op without a healthy index; failures are logged.
func (s *Service) IndexCases(cases []gateway.CaseRecord) {
	if !s.indexReady() || len(cases) == 0 {
		return
	}
	docs := make([]CaseDocument, 0, len(cases))
	for _, c := range cases {
		if c.ID == "" {
			continue
		}
		docs = append(docs, DocumentFromCase(c))
	}
	if len(docs) == 0 {
		return
	}
	if err := s.index.IndexCases(docs); err != nil {
		s.logger.Warn("index cases", zap.Int("count", len(docs)), zap.Error(err))
	}
}

// DeleteCase removes a case from the index.
func (s *Service) DeleteCase(id string) {
	if !s.indexReady() || id == "" {
		return
	}
	if err := s.index.DeleteCase(id); err != nil {
		s.logger.Warn("delete case", zap.String("case_id", id), zap.Error(err))
	}
}

// Healthy reports whether queries are currently served by the index.
func (s *Service) Healthy() bool {
	return s.indexReady()
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}

func nonNil(results []Result) []Result {
	if results == nil {
		return []Result{}
	}
	return results
}
