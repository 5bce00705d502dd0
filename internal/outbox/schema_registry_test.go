package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureSchemaReturnsExistingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/subjects/plan_events-value/versions/latest", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]int{"id": 17})
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL)
	id, err := client.EnsureSchema(context.Background(), "plan_events-value", sessionCompletedSchema)
	require.NoError(t, err)
	require.Equal(t, 17, id)
}

func TestEnsureSchemaRegistersOnMissingSubject(t *testing.T) {
	var registered bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPost:
			require.Equal(t, "/subjects/plan_sync_completed-value/versions", r.URL.Path)

			var body struct {
				SchemaType string `json:"schemaType"`
				Schema     string `json:"schema"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "JSON", body.SchemaType)
			require.NotEmpty(t, body.Schema)

			registered = true
			_ = json.NewEncoder(w).Encode(map[string]int{"id": 4})
		}
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL)
	id, err := client.EnsureSchema(context.Background(), "plan_sync_completed-value", syncCompletedSchema)
	require.NoError(t, err)
	require.Equal(t, 4, id)
	require.True(t, registered)
}
