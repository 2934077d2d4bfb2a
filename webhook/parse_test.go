package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unionhall/integration-hub/models"
)

func TestExtractEventTypeSlack(t *testing.T) {
	typ, err := ExtractEventType(models.ProviderSlack,
		[]byte(`{"type":"event_callback","event":{"type":"user_change","user":{"id":"U1"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "user_change", typ)

	// envelope-level types pass through as-is
	typ, err = ExtractEventType(models.ProviderSlack,
		[]byte(`{"type":"url_verification","challenge":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, "url_verification", typ)
}

func TestExtractEventTypeQuickBooks(t *testing.T) {
	payload := []byte(`{
		"eventNotifications": [{
			"realmId": "1185883450",
			"dataChangeEvent": {
				"entities": [{"name": "Invoice", "operation": "Update", "id": "129"}]
			}
		}]
	}`)

	typ, err := ExtractEventType(models.ProviderQuickBooks, payload)
	require.NoError(t, err)
	assert.Equal(t, "Invoice.update", typ)

	typ, err = ExtractEventType(models.ProviderQuickBooks,
		[]byte(`{"eventNotifications":[{"name":"BillPaid"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "BillPaid", typ)

	typ, err = ExtractEventType(models.ProviderQuickBooks, []byte(`{"eventNotifications":[]}`))
	require.NoError(t, err)
	assert.Empty(t, typ)
}

func TestExtractEventTypeWorkday(t *testing.T) {
	typ, err := ExtractEventType(models.ProviderWorkday,
		[]byte(`{"eventType":"worker.hired","workerId":"W-100"}`))
	require.NoError(t, err)
	assert.Equal(t, "worker.hired", typ)
}

func TestExtractEventTypeFallbackChain(t *testing.T) {
	cases := []struct {
		payload string
		want    string
	}{
		{`{"type":"member.updated"}`, "member.updated"},
		{`{"event":"claim.approved"}`, "claim.approved"},
		{`{"eventType":"coverage.changed"}`, "coverage.changed"},
		{`{"type":"a","event":"b"}`, "a"},
		{`{"unrelated":true}`, ""},
	}

	for _, tc := range cases {
		typ, err := ExtractEventType(models.ProviderBambooHR, []byte(tc.payload))
		require.NoError(t, err)
		assert.Equal(t, tc.want, typ, tc.payload)
	}
}

func TestExtractEventTypeMalformed(t *testing.T) {
	_, err := ExtractEventType(models.ProviderSlack, []byte(`not json at all`))
	assert.Error(t, err)
}

func TestEventIDShape(t *testing.T) {
	id := EventID(models.ProviderQuickBooks, []byte(`{"a":1}`))
	assert.Len(t, id, len("quickbooks_")+16)
	assert.Regexp(t, `^quickbooks_[0-9a-f]{16}$`, id)

	// identical payloads collapse, different payloads do not
	assert.Equal(t, id, EventID(models.ProviderQuickBooks, []byte(`{"a":1}`)))
	assert.NotEqual(t, id, EventID(models.ProviderQuickBooks, []byte(`{"a":2}`)))
	assert.NotEqual(t, id, EventID(models.ProviderXero, []byte(`{"a":1}`)))
}
