package store

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/telhawk-systems/cloudguard/common/config"
	"github.com/telhawk-systems/cloudguard/common/database"
	"github.com/telhawk-systems/cloudguard/common/models"
)

// DefaultOpenSearchIndex holds activity events when no index is configured.
const DefaultOpenSearchIndex = "cloudguard-activity"

// OpenSearchStore indexes each event under its id and pages windowed
// queries with search_after on (timestamp, id).
type OpenSearchStore struct {
	client   *opensearch.Client
	index    string
	pageSize int
	refresh  string
	now      func() time.Time
}

// NewOpenSearchStore connects to cfg.URL.
func NewOpenSearchStore(cfg config.OpenSearchConfig) (*OpenSearchStore, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.Insecure,
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	index := cfg.Index
	if index == "" {
		index = DefaultOpenSearchIndex
	}
	return &OpenSearchStore{
		client:   client,
		index:    index,
		pageSize: DefaultPageSize,
		refresh:  "wait_for",
		now:      time.Now,
	}, nil
}

func (s *OpenSearchStore) mappings() map[string]any {
	return map[string]any{
		"mappings": map[string]any{
			"dynamic": true,
			"dynamic_templates": []map[string]any{
				{
					"strings_as_keywords": map[string]any{
						"match_mapping_type": "string",
						"mapping":            map[string]any{"type": "keyword"},
					},
				},
			},
			"properties": map[string]any{
				"id":           map[string]any{"type": "keyword"},
				"userIdentity": map[string]any{"type": "keyword"},
				"eventName":    map[string]any{"type": "keyword"},
				"timestamp":    map[string]any{"type": "long"},
				"ttl":          map[string]any{"type": "long"},
				"time":         map[string]any{"type": "date"},
			},
		},
	}
}

// EnsureIndex creates the index with its mapping if it is missing.
func (s *OpenSearchStore) EnsureIndex(ctx context.Context) error {
	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	exists, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return unavailable("opensearch index exists", err)
	}
	exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(s.mappings())
	if err != nil {
		return err
	}
	res, err := s.client.Indices.Create(s.index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return unavailable("opensearch create index", err)
	}
	defer res.Body.Close()

	// 400 resource_already_exists when another replica won the race
	if res.IsError() && !strings.Contains(readBody(res.Body), "resource_already_exists_exception") {
		return fmt.Errorf("failed to create index %s: %s", s.index, res.Status())
	}
	return nil
}

func (s *OpenSearchStore) Put(ctx context.Context, ev *models.ActivityEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	res, err := s.client.Index(s.index, bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(ev.ID),
		s.client.Index.WithRefresh(s.refresh),
	)
	if err != nil {
		return unavailable("opensearch index", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return statusError("opensearch index", res.StatusCode, readBody(res.Body))
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source json.RawMessage `json:"_source"`
			Sort   []any           `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *OpenSearchStore) QueryByIdentityAndWindow(ctx context.Context, identity string, from, to int64) ([]models.ActivityEvent, error) {
	var (
		out         []models.ActivityEvent
		searchAfter []any
	)
	for {
		hits, err := s.search(ctx, identity, from, to, searchAfter)
		if err != nil {
			return nil, err
		}
		for _, h := range hits.Hits.Hits {
			var ev models.ActivityEvent
			if err := json.Unmarshal(h.Source, &ev); err != nil {
				return nil, fmt.Errorf("decode event: %w", err)
			}
			out = append(out, ev)
		}
		n := len(hits.Hits.Hits)
		if n < s.pageSize {
			break
		}
		searchAfter = hits.Hits.Hits[n-1].Sort
	}
	return failedInWindow(out, identity, from, to), nil
}

func (s *OpenSearchStore) search(ctx context.Context, identity string, from, to int64, searchAfter []any) (*searchResponse, error) {
	query := map[string]any{
		"size": s.pageSize,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{"term": map[string]any{"userIdentity": identity}},
					{"term": map[string]any{"eventName": models.EventConsoleLogin}},
					{"term": map[string]any{"detail.responseElements.ConsoleLogin": models.LoginFailure}},
					{"range": map[string]any{"timestamp": map[string]any{"gte": from, "lte": to}}},
				},
				"must_not": []map[string]any{
					{"range": map[string]any{"ttl": map[string]any{"gt": 0, "lt": s.now().Unix()}}},
				},
			},
		},
		"sort": []map[string]any{
			{"timestamp": "asc"},
			{"id": "asc"},
		},
	}
	if len(searchAfter) > 0 {
		query["search_after"] = searchAfter
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, unavailable("opensearch search", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, statusError("opensearch search", res.StatusCode, readBody(res.Body))
	}

	var out searchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &out, nil
}

// PurgeExpired deletes events whose ttl has passed.
func (s *OpenSearchStore) PurgeExpired(ctx context.Context) (int64, error) {
	body, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"range": map[string]any{"ttl": map[string]any{"gt": 0, "lt": s.now().Unix()}},
		},
	})
	if err != nil {
		return 0, err
	}

	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	res, err := s.client.DeleteByQuery([]string{s.index}, bytes.NewReader(body),
		s.client.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return 0, unavailable("opensearch delete by query", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, statusError("opensearch delete by query", res.StatusCode, readBody(res.Body))
	}

	var out struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode delete response: %w", err)
	}
	return out.Deleted, nil
}

func (s *OpenSearchStore) Ping(ctx context.Context) error {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return unavailable("opensearch ping", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return statusError("opensearch ping", res.StatusCode, "")
	}
	return nil
}

func (s *OpenSearchStore) Close() error {
	return nil
}

// statusError maps throttling and server errors to ErrUnavailable and
// everything else to a plain error.
func statusError(op string, status int, body string) error {
	err := fmt.Errorf("status %d: %s", status, body)
	if status == http.StatusTooManyRequests || status >= 500 {
		return unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	return string(b)
}
