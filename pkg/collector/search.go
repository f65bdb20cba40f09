package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// searchDocument is the indexed form of a StoredEntry.
type searchDocument struct {
	Level     string    `json:"level"`
	LevelNum  float64   `json:"level_num"`
	Message   string    `json:"message"`
	Tag       string    `json:"tag"`
	Data      string    `json:"data"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
}

// SearchIndex provides full-text search over received entries.
type SearchIndex struct {
	index bleve.Index
}

// NewSearchIndex opens the index at indexPath, creating it when absent.
// An empty indexPath keeps the index in memory.
func NewSearchIndex(indexPath string) (*SearchIndex, error) {
	if indexPath == "" {
		index, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create search index: %w", err)
		}
		return &SearchIndex{index: index}, nil
	}

	var index bleve.Index
	var err error

	if _, statErr := os.Stat(indexPath); os.IsNotExist(statErr) {
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create search index: %w", err)
		}
	} else {
		index, err = bleve.Open(indexPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open search index: %w", err)
		}
	}

	return &SearchIndex{index: index}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	logMapping := bleve.NewDocumentMapping()

	keyword := func() *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = "keyword"
		return fm
	}
	fullText := func() *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = "standard"
		return fm
	}

	logMapping.AddFieldMappingsAt("level", keyword())
	logMapping.AddFieldMappingsAt("level_num", bleve.NewNumericFieldMapping())
	logMapping.AddFieldMappingsAt("message", fullText())
	logMapping.AddFieldMappingsAt("tag", keyword())
	logMapping.AddFieldMappingsAt("data", fullText())
	logMapping.AddFieldMappingsAt("url", keyword())
	logMapping.AddFieldMappingsAt("timestamp", bleve.NewDateTimeFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("log", logMapping)
	indexMapping.DefaultMapping = logMapping

	return indexMapping
}

func (s *SearchIndex) Index(entries []StoredEntry) error {
	batch := s.index.NewBatch()

	for _, entry := range entries {
		if err := batch.Index(entry.ID, toSearchDocument(entry)); err != nil {
			return fmt.Errorf("failed to add log entry %s to batch: %w", entry.ID, err)
		}
	}

	return s.index.Batch(batch)
}

// Search matches text against message and data, narrowed by filter. It
// returns matching ids newest first and the total hit count.
func (s *SearchIndex) Search(ctx context.Context, text string, filter Filter) ([]string, int, error) {
	filter = filter.normalized()

	request := bleve.NewSearchRequestOptions(buildSearchQuery(text, filter), filter.Limit, filter.Offset, false)
	request.SortBy([]string{"-timestamp"})

	result, err := s.index.SearchInContext(ctx, request)
	if err != nil {
		return nil, 0, fmt.Errorf("search failed: %w", err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, int(result.Total), nil
}

func buildSearchQuery(text string, filter Filter) query.Query {
	var queries []query.Query

	if text != "" {
		messageQuery := bleve.NewMatchQuery(text)
		messageQuery.SetField("message")

		dataQuery := bleve.NewMatchQuery(text)
		dataQuery.SetField("data")

		queries = append(queries, bleve.NewDisjunctionQuery(messageQuery, dataQuery))
	}

	if filter.Tag != "" {
		tagQuery := bleve.NewTermQuery(filter.Tag)
		tagQuery.SetField("tag")
		queries = append(queries, tagQuery)
	}

	if filter.MinLevel > 0 {
		min := float64(filter.MinLevel)
		inclusive := true
		levelQuery := bleve.NewNumericRangeInclusiveQuery(&min, nil, &inclusive, nil)
		levelQuery.SetField("level_num")
		queries = append(queries, levelQuery)
	}

	if !filter.Since.IsZero() || !filter.Until.IsZero() {
		timeQuery := bleve.NewDateRangeQuery(filter.Since, filter.Until)
		timeQuery.SetField("timestamp")
		queries = append(queries, timeQuery)
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	}
	return bleve.NewConjunctionQuery(queries...)
}

func toSearchDocument(entry StoredEntry) searchDocument {
	doc := searchDocument{
		Level:     entry.Level.String(),
		LevelNum:  float64(entry.Level),
		Message:   entry.Message,
		Tag:       entry.Tag,
		URL:       entry.URL,
		Timestamp: entry.Time(),
	}
	if doc.Timestamp.IsZero() {
		doc.Timestamp = entry.ReceivedAt
	}
	if len(entry.Data) > 0 {
		if data, err := json.Marshal(entry.Data); err == nil {
			doc.Data = string(data)
		}
	}
	return doc
}

func (s *SearchIndex) Delete(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	batch := s.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return s.index.Batch(batch)
}

func (s *SearchIndex) DocCount() (uint64, error) {
	return s.index.DocCount()
}

func (s *SearchIndex) Close() error {
	return s.index.Close()
}
