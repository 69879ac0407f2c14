package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

func TestParseNearVector(t *testing.T) {
	resp := &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]interface{}{
				"TriagePattern": []interface{}{
					map[string]interface{}{
						"sourceText":   "how do I close a channel",
						"responseText": "close(ch) from the sender",
						"outcome":      "success",
						"createdAt":    "2026-02-01T10:00:00Z",
						"supersededBy": "",
						"_additional":  map[string]interface{}{"id": "id-1", "certainty": 0.9},
					},
					map[string]interface{}{
						"sourceText":   "stale",
						"supersededBy": "id-9",
						"_additional":  map[string]interface{}{"id": "id-2", "certainty": 0.95},
					},
				},
			},
		},
	}

	ms, err := parseNearVector(resp, "TriagePattern")
	require.NoError(t, err)
	require.Len(t, ms, 1, "superseded objects are skipped")
	assert.Equal(t, "id-1", ms[0].Entry.ID)
	assert.Equal(t, OutcomeSuccess, ms[0].Entry.Outcome)
	assert.InDelta(t, 0.8, ms[0].Similarity, 1e-9)
	assert.False(t, ms[0].Entry.CreatedAt.IsZero())
}

func TestParseNearVector_MissingClass(t *testing.T) {
	ms, err := parseNearVector(&models.GraphQLResponse{Data: map[string]models.JSONObject{}}, "TriagePattern")
	require.NoError(t, err)
	assert.Empty(t, ms)

	_, err = parseNearVector(nil, "TriagePattern")
	assert.Error(t, err)
}

func TestWeaviateSchema(t *testing.T) {
	s := &WeaviateStore{class: DefaultWeaviateClass}
	class := s.schema()
	assert.Equal(t, DefaultWeaviateClass, class.Class)
	assert.Equal(t, "none", class.Vectorizer)
	assert.Len(t, class.Properties, 5)
}
