package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atinyakov/smsglue/internal/models"
)

// maxPages bounds pagination when listing phone numbers or messages.
const maxPages = 20

// SignalwireProvider uses the Signalwire Relay and LaML REST APIs of the
// space named by Credential.Scope.
type SignalwireProvider struct {
	Credential models.AccountCredential
	Client     *http.Client
	// BaseURL overrides https://<scope>.signalwire.com.
	BaseURL string
}

func (p *SignalwireProvider) base() string {
	if p.BaseURL != "" {
		return strings.TrimRight(p.BaseURL, "/")
	}
	return "https://" + p.Credential.Scope + ".signalwire.com"
}

func (p *SignalwireProvider) request(ctx context.Context, method, rawURL string, body []byte, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(p.Credential.User, p.Credential.Pass)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// ErrForeignLink is returned when a pagination link leaves the account's space.
var ErrForeignLink = errors.New("pagination link points to another host")

// resolve turns a pagination link into an absolute URL on the same space.
// Absolute links to any other host are refused so credentials stay on it.
func (p *SignalwireProvider) resolve(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("pagination link: %w", err)
	}
	if !u.IsAbs() {
		return p.base() + link, nil
	}
	base, err := url.Parse(p.base())
	if err != nil {
		return "", fmt.Errorf("base url: %w", err)
	}
	if u.Scheme != base.Scheme || u.Host != base.Host {
		return "", fmt.Errorf("%w: %s", ErrForeignLink, u.Host)
	}
	return link, nil
}

type phoneNumber struct {
	ID     string `json:"id"`
	Number string `json:"number"`
}

type phoneNumberPage struct {
	Data  []phoneNumber `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

func (p *SignalwireProvider) findNumber(ctx context.Context) (string, error) {
	next := p.base() + "/api/relay/rest/phone_numbers"
	for i := 0; i < maxPages && next != ""; i++ {
		req, err := p.request(ctx, http.MethodGet, next, nil, "")
		if err != nil {
			return "", err
		}
		var page phoneNumberPage
		if err := doJSON(p.Client, req, &page); err != nil {
			return "", err
		}
		for _, n := range page.Data {
			if strings.Contains(n.Number, p.Credential.DID) {
				return n.ID, nil
			}
		}
		next = ""
		if page.Links.Next != "" {
			if next, err = p.resolve(page.Links.Next); err != nil {
				return "", err
			}
		}
	}
	return "", ErrNumberNotFound
}

// EnableMessaging points the DID's LaML message webhook at notifyURL.
func (p *SignalwireProvider) EnableMessaging(ctx context.Context, notifyURL string) error {
	id, err := p.findNumber(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]string{
		"message_handler":        "laml_webhooks",
		"message_request_url":    notifyURL,
		"message_request_method": "POST",
	})
	if err != nil {
		return err
	}
	req, err := p.request(ctx, http.MethodPut,
		p.base()+"/api/relay/rest/phone_numbers/"+url.PathEscape(id), payload, "application/json")
	if err != nil {
		return err
	}
	return doJSON(p.Client, req, nil)
}

func (p *SignalwireProvider) messagesURL() string {
	return p.base() + "/api/laml/2010-04-01/Accounts/" + url.PathEscape(p.Credential.User) + "/Messages.json"
}

// SendMessage sends one SMS from the account DID to a 10-digit destination.
func (p *SignalwireProvider) SendMessage(ctx context.Context, destination, body string) (*models.OutboundMessage, error) {
	form := url.Values{
		"From": {"+" + p.Credential.DID},
		"To":   {"+1" + destination},
		"Body": {body},
	}
	req, err := p.request(ctx, http.MethodPost, p.messagesURL(), []byte(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return nil, err
	}
	var out struct {
		SID string `json:"sid"`
	}
	if err := doJSON(p.Client, req, &out); err != nil {
		return nil, err
	}
	if out.SID == "" {
		return nil, fmt.Errorf("signalwire: missing sid")
	}
	return &models.OutboundMessage{SMSID: out.SID}, nil
}

type lamlMessage struct {
	SID         string `json:"sid"`
	From        string `json:"from"`
	Body        string `json:"body"`
	Direction   string `json:"direction"`
	DateSent    string `json:"date_sent"`
	DateCreated string `json:"date_created"`
}

type lamlPage struct {
	Messages    []lamlMessage `json:"messages"`
	NextPageURI string        `json:"next_page_uri"`
}

// parseLaMLDate parses an RFC 1123 date, returning fallback when s is malformed.
func parseLaMLDate(s string, fallback time.Time) time.Time {
	t, err := time.Parse(time.RFC1123Z, s)
	if err != nil {
		return fallback
	}
	return t
}

// FetchMessages lists inbound messages to the DID, oldest first.
func (p *SignalwireProvider) FetchMessages(ctx context.Context) ([]models.Message, error) {
	q := url.Values{"To": {"+" + p.Credential.DID}, "PageSize": {"100"}}
	next := p.messagesURL() + "?" + q.Encode()
	fetched := time.Now().UTC()

	var out []models.Message
	for i := 0; i < maxPages && next != ""; i++ {
		req, err := p.request(ctx, http.MethodGet, next, nil, "")
		if err != nil {
			return nil, err
		}
		var page lamlPage
		if err := doJSON(p.Client, req, &page); err != nil {
			return nil, err
		}
		for _, m := range page.Messages {
			if !strings.HasPrefix(m.Direction, "inbound") {
				continue
			}
			date := m.DateSent
			if date == "" {
				date = m.DateCreated
			}
			out = append(out, models.Message{
				SMSID:       m.SID,
				SendingDate: FormatDate(parseLaMLDate(date, fetched)),
				Sender:      digits(m.From),
				Text:        m.Body,
			})
		}
		next = ""
		if page.NextPageURI != "" {
			if next, err = p.resolve(page.NextPageURI); err != nil {
				return nil, err
			}
		}
	}

	// LaML lists newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func digits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
