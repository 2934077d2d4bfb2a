package quickbooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unionhall/integration-hub/models"
)

type memRecordStore struct {
	records map[string]models.ExternalRecord
}

func newMemRecordStore() *memRecordStore {
	return &memRecordStore{records: make(map[string]models.ExternalRecord)}
}

func (s *memRecordStore) UpsertRecords(_ context.Context, records []models.ExternalRecord) (int, int, error) {
	var created, updated int

	for _, rec := range records {
		key := rec.Entity + "/" + rec.ExternalID
		if _, ok := s.records[key]; ok {
			updated++
		} else {
			created++
		}
		s.records[key] = rec
	}

	return created, updated, nil
}

func newTestAdapter(t *testing.T, srvURL string) (*Adapter, *memRecordStore) {
	t.Helper()

	store := newMemRecordStore()
	a := New(store, zap.NewNop(), WithBaseURL(srvURL))

	err := a.Initialize(context.Background(), &models.IntegrationConfig{
		OrgID:    "org-1",
		Provider: models.ProviderQuickBooks,
		Credentials: map[string]string{
			"access_token":           "tok",
			"realm_id":               "9999",
			"webhook_verifier_token": "verifier",
		},
		Enabled: true,
	})
	require.NoError(t, err)

	return a, store
}

func TestInitializeRequiresRealm(t *testing.T) {
	a := New(newMemRecordStore(), zap.NewNop())

	err := a.Initialize(context.Background(), &models.IntegrationConfig{
		Credentials: map[string]string{"access_token": "tok"},
	})
	require.True(t, models.IsCode(err, models.CodeAuthFailed))
}

func TestSyncQueriesEntities(t *testing.T) {
	var queries []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/company/9999/query", r.URL.Path)
		q := r.URL.Query().Get("query")
		queries = append(queries, q)

		switch {
		case strings.Contains(q, "FROM Customer"):
			fmt.Fprint(w, `{"QueryResponse":{"Customer":[
				{"Id":"C1","DisplayName":"Local 42"},
				{"Id":"C2","DisplayName":"Local 99"}
			]}}`)
		case strings.Contains(q, "FROM Invoice"):
			fmt.Fprint(w, `{"QueryResponse":{"Invoice":[{"Id":"I1","TotalAmt":125.5}]}}`)
		default:
			fmt.Fprint(w, `{"QueryResponse":{}}`)
		}
	}))
	defer srv.Close()

	a, store := newTestAdapter(t, srv.URL)

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	result, err := a.Sync(context.Background(), models.SyncOptions{
		Type:  models.SyncTypeIncremental,
		Since: &since,
	})
	require.NoError(t, err)

	require.True(t, result.Success)
	require.Equal(t, 3, result.RecordsProcessed)
	require.Equal(t, 3, result.RecordsCreated)
	require.Contains(t, store.records, "customers/C1")
	require.Contains(t, store.records, "invoices/I1")

	for _, q := range queries {
		require.Contains(t, q, "Metadata.LastUpdatedTime > '2026-01-01T00:00:00Z'")
	}
}

func TestSyncCountsFailedEntity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("query")
		if strings.Contains(q, "FROM Payment") {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"QueryResponse":{}}`)
	}))
	defer srv.Close()

	a, _ := newTestAdapter(t, srv.URL)

	result, err := a.Sync(context.Background(), models.SyncOptions{Type: models.SyncTypeFull})
	require.NoError(t, err)

	require.False(t, result.Success)
	require.Equal(t, 1, result.RecordsFailed)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "payments")
}

func TestSyncUnsupportedEntity(t *testing.T) {
	a, _ := newTestAdapter(t, "http://unused.local")

	result, err := a.Sync(context.Background(), models.SyncOptions{
		Type:     models.SyncTypeFull,
		Entities: []string{"ledgers"},
	})
	require.NoError(t, err)

	require.False(t, result.Success)
	require.Contains(t, result.Errors[0], "unsupported entity")
}

func TestVerifyWebhook(t *testing.T) {
	a, _ := newTestAdapter(t, "http://unused.local")
	payload := []byte(`{"eventNotifications":[]}`)

	mac := hmac.New(sha256.New, []byte("verifier"))
	mac.Write(payload)
	good := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	require.True(t, a.VerifyWebhook(payload, good))
	require.False(t, a.VerifyWebhook(payload, "bad"))
	require.False(t, a.VerifyWebhook(payload, ""))
}

func TestProcessWebhookMarksChangedEntities(t *testing.T) {
	a, store := newTestAdapter(t, "http://unused.local")

	event := &models.WebhookEvent{
		OrgID:    "org-1",
		Provider: models.ProviderQuickBooks,
		Payload: []byte(`{"eventNotifications":[{"realmId":"9999","dataChangeEvent":{"entities":[
			{"name":"Invoice","id":"I7","operation":"Update","lastUpdated":"2026-08-01T12:00:00Z"},
			{"name":"Customer","id":"C3","operation":"Create"}
		]}}]}`),
	}

	require.NoError(t, a.ProcessWebhook(context.Background(), event))

	require.Contains(t, store.records, "invoices/I7")
	require.Contains(t, store.records, "customers/C3")
	require.Equal(t, "Update", store.records["invoices/I7"].Data["operation"])
}

func TestProcessWebhookEmptyNotificationIsNoop(t *testing.T) {
	a, store := newTestAdapter(t, "http://unused.local")

	event := &models.WebhookEvent{
		OrgID:    "org-1",
		Provider: models.ProviderQuickBooks,
		Payload:  []byte(`{"eventNotifications":[]}`),
	}

	require.NoError(t, a.ProcessWebhook(context.Background(), event))
	require.Empty(t, store.records)
}
