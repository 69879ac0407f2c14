package patterns

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// #region config

// DefaultWeaviateClass is the collection pattern entries are written to.
const DefaultWeaviateClass = "TriagePattern"

// WeaviateConfig addresses a Weaviate instance.
type WeaviateConfig struct {
	Host   string `yaml:"host"`
	Scheme string `yaml:"scheme"`
	Class  string `yaml:"class"`
}

// #endregion

// #region store-struct

// WeaviateStore keeps pattern entries in a Weaviate class with
// caller-supplied vectors and searches them with nearVector.
type WeaviateStore struct {
	client *weaviate.Client
	class  string
	now    func() time.Time
}

// NewWeaviateStore creates a client; it does not contact the server.
func NewWeaviateStore(cfg WeaviateConfig) (*WeaviateStore, error) {
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	if cfg.Class == "" {
		cfg.Class = DefaultWeaviateClass
	}
	client, err := weaviate.NewClient(weaviate.Config{Host: cfg.Host, Scheme: cfg.Scheme})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return &WeaviateStore{client: client, class: cfg.Class, now: time.Now}, nil
}

// Close is a no-op; the REST client holds no persistent connection.
func (s *WeaviateStore) Close() error { return nil }

// #endregion

// #region schema

func (s *WeaviateStore) schema() *models.Class {
	text := func(name, desc string) *models.Property {
		return &models.Property{Name: name, DataType: []string{"text"}, Description: desc}
	}
	return &models.Class{
		Class:       s.class,
		Description: "Remembered query/response pairs used as few-shot context",
		Vectorizer:  "none",
		Properties: []*models.Property{
			text("sourceText", "Original query text"),
			text("responseText", "Answer returned for the query"),
			text("outcome", "success, failure or unknown"),
			text("createdAt", "RFC3339 creation time"),
			text("supersededBy", "ID of the correcting entry, empty while live"),
		},
	}
}

// EnsureSchema creates the pattern class if it does not exist yet.
func (s *WeaviateStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.client.Schema().ClassGetter().WithClassName(s.class).Do(ctx); err == nil {
		return nil
	}
	if err := s.client.Schema().ClassCreator().WithClass(s.schema()).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", s.class, err)
	}
	return nil
}

// #endregion

// #region upsert

// Upsert creates the object, falling back to a full update when the ID exists.
func (s *WeaviateStore) Upsert(ctx context.Context, e Entry) error {
	if len(e.Embedding) == 0 {
		return ErrNoEmbedding
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeUnknown
	}
	props := map[string]interface{}{
		"sourceText":   e.SourceText,
		"responseText": e.ResponseText,
		"outcome":      string(e.Outcome),
		"createdAt":    e.CreatedAt.Format(time.RFC3339Nano),
		"supersededBy": e.SupersededBy,
	}

	_, err := s.client.Data().Creator().
		WithClassName(s.class).
		WithID(e.ID).
		WithProperties(props).
		WithVector(e.Embedding).
		Do(ctx)
	if err == nil {
		return nil
	}

	updateErr := s.client.Data().Updater().
		WithClassName(s.class).
		WithID(e.ID).
		WithProperties(props).
		WithVector(e.Embedding).
		Do(ctx)
	if updateErr != nil {
		return fmt.Errorf("upsert pattern %s: create: %v: update: %w", e.ID, err, updateErr)
	}
	return nil
}

// #endregion

// #region query-similar

// QuerySimilar runs a nearVector search. Certainty is mapped back to cosine
// and clamped at zero so scores agree with the SQLite backend.
func (s *WeaviateStore) QuerySimilar(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	if k <= 0 || len(embedding) == 0 {
		return nil, nil
	}
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(embedding)

	fields := []graphql.Field{
		{Name: "sourceText"},
		{Name: "responseText"},
		{Name: "outcome"},
		{Name: "createdAt"},
		{Name: "supersededBy"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "certainty"},
		}},
	}

	// over-fetch so superseded rows filtered client-side do not starve k
	result, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(k * 2).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search: %s", result.Errors[0].Message)
	}
	matches, err := parseNearVector(result, s.class)
	if err != nil {
		return nil, err
	}
	return topK(matches, k), nil
}

type nearVectorResponse struct {
	Get map[string][]weaviatePattern `json:"Get"`
}

type weaviatePattern struct {
	SourceText   string `json:"sourceText"`
	ResponseText string `json:"responseText"`
	Outcome      string `json:"outcome"`
	CreatedAt    string `json:"createdAt"`
	SupersededBy string `json:"supersededBy"`
	Additional   struct {
		ID        string  `json:"id"`
		Certainty float64 `json:"certainty"`
	} `json:"_additional"`
}

// parseNearVector decodes a GraphQL Get response into live matches.
func parseNearVector(resp *models.GraphQLResponse, class string) ([]Match, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal GraphQL data: %w", err)
	}
	var parsed nearVectorResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal GraphQL data: %w", err)
	}

	var out []Match
	for _, p := range parsed.Get[class] {
		if p.SupersededBy != "" {
			continue
		}
		e := Entry{
			ID:           p.Additional.ID,
			SourceText:   p.SourceText,
			ResponseText: p.ResponseText,
			Outcome:      ParseOutcome(p.Outcome),
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, p.CreatedAt)
		out = append(out, Match{Entry: e, Similarity: certaintyToSimilarity(p.Additional.Certainty)})
	}
	return out, nil
}

// certaintyToSimilarity inverts Weaviate's certainty = (1 + cos) / 2.
func certaintyToSimilarity(c float64) float64 {
	return max(0, min(1, 2*c-1))
}

// #endregion
