// Package history stores search events in Elasticsearch.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/fairlabs/stms-dashboard/internal/config"
	"github.com/fairlabs/stms-dashboard/internal/logger"
	"github.com/fairlabs/stms-dashboard/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = config.MaxHistoryPageSize
	defaultBatch    = 1000
)

// Client reads and writes the search-history index.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
	now   func() time.Time
}

// Query narrows a history listing. Zero values mean no filter.
type Query struct {
	Text    string
	Outcome string
	From    int
	Size    int
	Start   *time.Time
	End     *time.Time
}

// Result is one page of events, newest first, plus per-outcome counts over
// every matching event.
type Result struct {
	Total    int64                `json:"total"`
	Outcomes map[string]int64     `json:"outcomes,omitempty"`
	Items    []models.SearchEvent `json:"items"`
}

// New creates a client for index on the cluster at addr.
func New(addr, index string, log *slog.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Client{es: es, index: index, log: log, now: time.Now}, nil
}

// Mapping is the index definition for SearchEvent documents.
func Mapping() map[string]any {
	keyword := map[string]any{"type": "keyword"}
	integer := map[string]any{"type": "integer"}
	day := map[string]any{"type": "date", "format": "yyyy-MM-dd"}

	return map[string]any{
		"mappings": map[string]any{
			"dynamic": false,
			"properties": map[string]any{
				"id":        keyword,
				"timestamp": map[string]any{"type": "date"},
				"keyword_query": map[string]any{
					"type":   "text",
					"fields": map[string]any{"raw": keyword},
				},
				"semantic_query":      map[string]any{"type": "text"},
				"start_date":          day,
				"end_date":            day,
				"search_similarity":   map[string]any{"type": "float"},
				"cluster_min_size":    integer,
				"cluster_top_n":       integer,
				"cluster_similarity":  map[string]any{"type": "float"},
				"include_description": map[string]any{"type": "boolean"},
				"include_report":      map[string]any{"type": "boolean"},
				"sample_size":         integer,
				"outcome":             keyword,
				"error":               map[string]any{"type": "text"},
				"clusters":            integer,
				"articles":            integer,
				"reports":             integer,
				"filepath":            keyword,
				"duration_ms":         map[string]any{"type": "long"},
			},
		},
	}
}

// EnsureIndex creates the index with Mapping if it does not exist yet.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", c.index, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(Mapping())
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}
	res, err = c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", c.index, err)
	}
	defer res.Body.Close()

	// another worker replica may have won the race
	if err := checkResponse(res, "create index"); err != nil && !strings.Contains(err.Error(), "resource_already_exists_exception") {
		return err
	}
	c.log.Info("history index ready", slog.String("index", c.index))
	return nil
}

// IndexEvent writes ev under its own id, so a redelivered event overwrites
// rather than duplicates.
func (c *Client) IndexEvent(ctx context.Context, ev models.SearchEvent) error {
	doc, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}

	res, err := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: ev.ID,
		Body:       bytes.NewReader(doc),
	}.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index event %s: %w", ev.ID, err)
	}
	defer res.Body.Close()

	return checkResponse(res, "index event "+ev.ID)
}

// Recent lists events matching q, newest first.
func (c *Client) Recent(ctx context.Context, q Query) (*Result, error) {
	body, err := json.Marshal(buildQuery(q))
	if err != nil {
		return nil, fmt.Errorf("marshal history query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer res.Body.Close()
	if err := checkResponse(res, "query history"); err != nil {
		return nil, err
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.SearchEvent `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
		Aggregations struct {
			Outcomes struct {
				Buckets []struct {
					Key      string `json:"key"`
					DocCount int64  `json:"doc_count"`
				} `json:"buckets"`
			} `json:"outcomes"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode history response: %w", err)
	}

	result := &Result{
		Total: parsed.Hits.Total.Value,
		Items: make([]models.SearchEvent, 0, len(parsed.Hits.Hits)),
	}
	for _, hit := range parsed.Hits.Hits {
		result.Items = append(result.Items, hit.Source)
	}
	if buckets := parsed.Aggregations.Outcomes.Buckets; len(buckets) > 0 {
		result.Outcomes = make(map[string]int64, len(buckets))
		for _, b := range buckets {
			result.Outcomes[b.Key] = b.DocCount
		}
	}
	return result, nil
}

func buildQuery(q Query) map[string]any {
	size := q.Size
	switch {
	case size <= 0:
		size = defaultPageSize
	case size > maxPageSize:
		size = maxPageSize
	}
	from := max(q.From, 0)

	var must, filter []map[string]any
	if text := strings.TrimSpace(q.Text); text != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  text,
				"fields": []string{"keyword_query^2", "semantic_query"},
			},
		})
	}
	if q.Outcome != "" {
		filter = append(filter, map[string]any{
			"term": map[string]any{"outcome": q.Outcome},
		})
	}
	if q.Start != nil || q.End != nil {
		window := map[string]any{}
		if q.Start != nil {
			window["gte"] = q.Start.UTC().Format(time.RFC3339)
		}
		if q.End != nil {
			window["lte"] = q.End.UTC().Format(time.RFC3339)
		}
		filter = append(filter, map[string]any{
			"range": map[string]any{"timestamp": window},
		})
	}

	query := map[string]any{"match_all": map[string]any{}}
	if len(must) > 0 || len(filter) > 0 {
		clauses := map[string]any{}
		if len(must) > 0 {
			clauses["must"] = must
		}
		if len(filter) > 0 {
			clauses["filter"] = filter
		}
		query = map[string]any{"bool": clauses}
	}

	return map[string]any{
		"from":             from,
		"size":             size,
		"track_total_hits": true,
		"query":            query,
		"sort": []map[string]any{
			{"timestamp": map[string]any{"order": "desc"}},
		},
		"aggs": map[string]any{
			"outcomes": map[string]any{
				"terms": map[string]any{"field": "outcome"},
			},
		},
	}
}

// DeleteOlderThan prunes events whose timestamp is more than maxAge ago. Each
// delete-by-query call removes at most batchSize documents; calls repeat until
// one removes fewer.
func (c *Client) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = defaultBatch
	}
	body, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				"timestamp": map[string]any{
					"lt": c.now().Add(-maxAge).UTC().Format(time.RFC3339),
				},
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("marshal prune query: %w", err)
	}

	var total int64
	for batch := 1; ; batch++ {
		deleted, err := c.deleteBatch(ctx, body, batchSize)
		total += deleted
		if err != nil {
			return total, err
		}
		c.log.Debug("pruned history batch", slog.Int("batch", batch), slog.Int64("deleted", deleted))
		if deleted < int64(batchSize) {
			return total, nil
		}
	}
}

func (c *Client) deleteBatch(ctx context.Context, body []byte, batchSize int) (int64, error) {
	res, err := c.es.DeleteByQuery(
		[]string{c.index},
		bytes.NewReader(body),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithMaxDocs(batchSize),
		c.es.DeleteByQuery.WithConflicts("proceed"),
		c.es.DeleteByQuery.WithWaitForCompletion(true),
	)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	defer res.Body.Close()
	if err := checkResponse(res, "prune history"); err != nil {
		return 0, err
	}

	var parsed struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode prune response: %w", err)
	}
	return parsed.Deleted, nil
}

// Health reports whether the cluster answers a health request.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("cluster health: %w", err)
	}
	defer res.Body.Close()
	return checkResponse(res, "cluster health")
}

func checkResponse(res *esapi.Response, op string) error {
	if !res.IsError() {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	return fmt.Errorf("%s: %s: %s", op, res.Status(), strings.TrimSpace(string(data)))
}
