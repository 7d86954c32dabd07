package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/atinyakov/smsglue/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVoipMS(t *testing.T, h func(q url.Values) string) *VoipMSProvider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "user@example.com", q.Get("api_username"))
		assert.Equal(t, "apipass", q.Get("api_password"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(h(q)))
	}))
	t.Cleanup(srv.Close)
	return &VoipMSProvider{
		Credential: models.AccountCredential{User: "user@example.com", Pass: "apipass", DID: "4035550199"},
		Client:     srv.Client(),
		Endpoint:   srv.URL,
		Now:        func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) },
	}
}

func TestVoipMS_EnableMessaging(t *testing.T) {
	var got url.Values
	p := newVoipMS(t, func(q url.Values) string {
		got = q
		return `{"status":"success"}`
	})

	require.NoError(t, p.EnableMessaging(context.Background(), "https://g/notify/id"))
	assert.Equal(t, "setSMS", got.Get("method"))
	assert.Equal(t, "4035550199", got.Get("did"))
	assert.Equal(t, "1", got.Get("url_callback_enable"))
	assert.Equal(t, "https://g/notify/id", got.Get("url_callback"))
}

func TestVoipMS_EnableMessaging_Failure(t *testing.T) {
	p := newVoipMS(t, func(url.Values) string { return `{"status":"invalid_credentials"}` })
	err := p.EnableMessaging(context.Background(), "x")
	assert.ErrorContains(t, err, "invalid_credentials")
	assert.NotContains(t, err.Error(), "apipass")
}

func TestVoipMS_SendMessage(t *testing.T) {
	p := newVoipMS(t, func(q url.Values) string {
		assert.Equal(t, "sendSMS", q.Get("method"))
		assert.Equal(t, "4035550100", q.Get("dst"))
		assert.Equal(t, "hi there", q.Get("message"))
		return `{"status":"success","sms":23434}`
	})

	msg, err := p.SendMessage(context.Background(), "4035550100", "hi there")
	require.NoError(t, err)
	assert.Equal(t, "23434", msg.SMSID)
}

func TestVoipMS_FetchMessages(t *testing.T) {
	p := newVoipMS(t, func(q url.Values) string {
		assert.Equal(t, "getSMS", q.Get("method"))
		assert.Equal(t, "2023-12-11", q.Get("from"))
		assert.Equal(t, "2024-03-11", q.Get("to"))
		assert.Equal(t, "1", q.Get("type"))
		return `{"status":"success","sms":[
			{"id":"112","date":"2024-03-09 10:00:00","type":"1","did":"4035550199","contact":"403-555-0101","message":"newer"},
			{"id":"111","date":"2024-03-08 09:30:00","type":"1","did":"4035550199","contact":"4035550102","message":"older"}
		]}`
	})

	msgs, err := p.FetchMessages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Message{
		{SMSID: "111", SendingDate: "2024-03-08T09:30:00.00+00:00", Sender: "4035550102", Text: "older"},
		{SMSID: "112", SendingDate: "2024-03-09T10:00:00.00+00:00", Sender: "4035550101", Text: "newer"},
	}, msgs)
}

func TestVoipMS_FetchMessages_NoSMS(t *testing.T) {
	p := newVoipMS(t, func(url.Values) string { return `{"status":"no_sms"}` })

	msgs, err := p.FetchMessages(context.Background())
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestVoipMS_FetchMessages_BadDateUsesFetchTime(t *testing.T) {
	p := newVoipMS(t, func(url.Values) string {
		return `{"status":"success","sms":[{"id":"7","date":"yesterday","contact":"4035550101","message":"hi"}]}`
	})

	msgs, err := p.FetchMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "2024-03-10T12:00:00.00+00:00", msgs[0].SendingDate)
}
