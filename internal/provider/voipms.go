package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atinyakov/smsglue/internal/models"
)

// DefaultVoipMSEndpoint is the voip.ms REST API.
const DefaultVoipMSEndpoint = "https://voip.ms/api/v1/rest.php"

// voipMSDate is the layout of voip.ms "date" fields.
const voipMSDate = "2006-01-02 15:04:05"

// historyDays is how far back FetchMessages looks.
const historyDays = 90

// VoipMSProvider uses the voip.ms REST API with the account's API
// username and password.
type VoipMSProvider struct {
	Credential models.AccountCredential
	Client     *http.Client
	// Endpoint overrides DefaultVoipMSEndpoint.
	Endpoint string
	// Now overrides time.Now for the fetch window.
	Now func() time.Time
}

type voipMSResponse struct {
	Status string          `json:"status"`
	SMS    json.RawMessage `json:"sms"`
}

func (p *VoipMSProvider) call(ctx context.Context, method string, params url.Values) (*voipMSResponse, error) {
	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = DefaultVoipMSEndpoint
	}
	q := url.Values{
		"api_username": {p.Credential.User},
		"api_password": {p.Credential.Pass},
		"method":       {method},
	}
	for k, v := range params {
		q[k] = v
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("voip.ms %s: build request", method)
	}

	var out voipMSResponse
	if err := doJSON(p.Client, req, &out); err != nil {
		return nil, err
	}
	if out.Status != "success" && !(method == "getSMS" && out.Status == "no_sms") {
		return nil, fmt.Errorf("voip.ms %s: status %q", method, out.Status)
	}
	return &out, nil
}

// EnableMessaging turns on SMS for the DID with a URL callback to notifyURL.
func (p *VoipMSProvider) EnableMessaging(ctx context.Context, notifyURL string) error {
	_, err := p.call(ctx, "setSMS", url.Values{
		"did":                 {p.Credential.DID},
		"enable":              {"1"},
		"url_callback_enable": {"1"},
		"url_callback":        {notifyURL},
		"url_callback_retry":  {"1"},
	})
	return err
}

// SendMessage sends one SMS segment.
func (p *VoipMSProvider) SendMessage(ctx context.Context, destination, body string) (*models.OutboundMessage, error) {
	resp, err := p.call(ctx, "sendSMS", url.Values{
		"did":     {p.Credential.DID},
		"dst":     {destination},
		"message": {body},
	})
	if err != nil {
		return nil, err
	}
	// sms is a number on send.
	id := strings.Trim(string(resp.SMS), `"`)
	if id == "" || id == "null" {
		return nil, fmt.Errorf("voip.ms sendSMS: missing sms id")
	}
	return &models.OutboundMessage{SMSID: id}, nil
}

type voipMSMessage struct {
	ID      string `json:"id"`
	Date    string `json:"date"`
	Contact string `json:"contact"`
	Message string `json:"message"`
}

// FetchMessages lists received messages of the last 90 days, oldest first.
func (p *VoipMSProvider) FetchMessages(ctx context.Context) ([]models.Message, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	today := now().UTC()
	resp, err := p.call(ctx, "getSMS", url.Values{
		"did":   {p.Credential.DID},
		"from":  {today.AddDate(0, 0, -historyDays).Format("2006-01-02")},
		"to":    {today.AddDate(0, 0, 1).Format("2006-01-02")},
		"limit": {"9999"},
		"type":  {"1"},
	})
	if err != nil {
		return nil, err
	}

	if resp.Status == "no_sms" || len(resp.SMS) == 0 {
		return []models.Message{}, nil
	}
	var raw []voipMSMessage
	if err := json.Unmarshal(resp.SMS, &raw); err != nil {
		return nil, fmt.Errorf("voip.ms getSMS: decode: %w", err)
	}

	out := make([]models.Message, 0, len(raw))
	// voip.ms lists newest first.
	for i := len(raw) - 1; i >= 0; i-- {
		m := raw[i]
		date, err := time.Parse(voipMSDate, m.Date)
		if err != nil {
			date = today
		}
		out = append(out, models.Message{
			SMSID:       m.ID,
			SendingDate: FormatDate(date),
			Sender:      digits(m.Contact),
			Text:        m.Message,
		})
	}
	return out, nil
}
