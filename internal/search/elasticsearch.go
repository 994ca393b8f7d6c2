package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"ticketgate/internal/config"
	"ticketgate/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
)

// ElasticsearchClient хранит каталог опубликованных событий
type ElasticsearchClient struct {
	client *elasticsearch.Client
	index  string
}

// EventDocument is the catalogue entry of a published event
type EventDocument struct {
	ID          uuid.UUID `json:"id"`
	OrganizerID uuid.UUID `json:"organizer_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Price       int64     `json:"price"`
	Capacity    int       `json:"capacity"`
	IndexedAt   time.Time `json:"indexed_at"`
}

func DocumentFromMessage(msg models.EventPublishedMessage) EventDocument {
	return EventDocument{
		ID:          msg.EventID,
		OrganizerID: msg.OrganizerID,
		Title:       msg.Title,
		Description: msg.Description,
		StartsAt:    msg.StartsAt,
		EndsAt:      msg.EndsAt,
		Price:       msg.Price,
		Capacity:    msg.Capacity,
		IndexedAt:   time.Now().UTC(),
	}
}

// NewElasticsearchClient создает клиент и индекс, если его еще нет
func NewElasticsearchClient(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	client := &ElasticsearchClient{client: es, index: cfg.Index}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure index exists: %w", err)
	}

	return client, nil
}

var indexMapping = map[string]any{
	"settings": map[string]any{
		"number_of_shards":   1,
		"number_of_replicas": 0,
		"analysis": map[string]any{
			"analyzer": map[string]any{
				"title_analyzer": map[string]any{
					"type":      "custom",
					"tokenizer": "standard",
					"filter":    []string{"lowercase", "asciifolding"},
				},
			},
		},
	},
	"mappings": map[string]any{
		"properties": map[string]any{
			"id":           map[string]any{"type": "keyword"},
			"organizer_id": map[string]any{"type": "keyword"},
			"title": map[string]any{
				"type":     "text",
				"analyzer": "title_analyzer",
				"fields": map[string]any{
					"keyword": map[string]any{"type": "keyword", "ignore_above": 256},
				},
			},
			"description": map[string]any{"type": "text", "analyzer": "title_analyzer"},
			"starts_at":   map[string]any{"type": "date"},
			"ends_at":     map[string]any{"type": "date"},
			"price":       map[string]any{"type": "long"},
			"capacity":    map[string]any{"type": "integer"},
			"indexed_at":  map[string]any{"type": "date"},
		},
	},
}

func (c *ElasticsearchClient) ensureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{c.index}}.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		slog.Info("Elasticsearch index already exists", "index", c.index)
		return nil
	}

	body, err := json.Marshal(indexMapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	createRes, err := esapi.IndicesCreateRequest{Index: c.index, Body: bytes.NewReader(body)}.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("failed to create index: %s", createRes.String())
	}

	slog.Info("Created Elasticsearch index", "index", c.index)
	return nil
}

// Search ищет события по названию и описанию, ближайшие первыми
func (c *ElasticsearchClient) Search(ctx context.Context, query string, page, size int) ([]EventDocument, int64, error) {
	if size <= 0 {
		size = 10
	}
	from := 0
	if page > 1 {
		from = (page - 1) * size
	}

	body, err := json.Marshal(map[string]any{
		"query":            buildSearchQuery(query),
		"sort":             buildSort(query),
		"from":             from,
		"size":             size,
		"track_total_hits": true,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal search query: %w", err)
	}

	res, err := esapi.SearchRequest{Index: []string{c.index}, Body: bytes.NewReader(body)}.Do(ctx, c.client)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, 0, fmt.Errorf("search error: %s", res.String())
	}

	var response struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source EventDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, 0, fmt.Errorf("failed to decode search response: %w", err)
	}

	docs := make([]EventDocument, len(response.Hits.Hits))
	for i, hit := range response.Hits.Hits {
		docs[i] = hit.Source
	}

	return docs, response.Hits.Total.Value, nil
}

func buildSearchQuery(query string) map[string]any {
	if query == "" {
		return map[string]any{"match_all": map[string]any{}}
	}

	return map[string]any{
		"multi_match": map[string]any{
			"query":     query,
			"fields":    []string{"title^2", "description"},
			"fuzziness": "AUTO",
		},
	}
}

func buildSort(query string) []map[string]any {
	if query != "" {
		return []map[string]any{
			{"_score": map[string]any{"order": "desc"}},
			{"starts_at": map[string]any{"order": "asc"}},
		}
	}

	return []map[string]any{
		{"starts_at": map[string]any{"order": "asc"}},
		{"id": map[string]any{"order": "asc"}},
	}
}

// IndexEvent добавляет или перезаписывает событие в каталоге
func (c *ElasticsearchClient) IndexEvent(ctx context.Context, doc EventDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	res, err := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: doc.ID.String(),
		Body:       bytes.NewReader(body),
		Refresh:    "wait_for",
	}.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to index event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("indexing error: %s", res.String())
	}

	return nil
}

// DeleteEvent удаляет событие из каталога. Отсутствующий документ не ошибка.
func (c *ElasticsearchClient) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	res, err := esapi.DeleteRequest{
		Index:      c.index,
		DocumentID: id.String(),
		Refresh:    "wait_for",
	}.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete error: %s", res.String())
	}

	return nil
}

// HealthCheck проверяет состояние Elasticsearch
func (c *ElasticsearchClient) HealthCheck(ctx context.Context) error {
	res, err := esapi.ClusterHealthRequest{
		WaitForStatus: "yellow",
		Timeout:       10 * time.Second,
	}.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("health check error: %s", res.String())
	}

	return nil
}
