// Package provider talks to the SMS providers behind the glue: Signalwire
// and voip.ms. The rest of the system depends only on Provider.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/atinyakov/smsglue/internal/models"
)

// Names accepted by NewFactory.
const (
	Signalwire = "signalwire"
	VoipMS     = "voipms"
)

// DefaultChunkSize is the longest body segment sent in one SMS.
const DefaultChunkSize = 160

// dateLayout is the sending_date format the client app parses.
const dateLayout = "2006-01-02T15:04:05.00-07:00"

var (
	// ErrInvalidDestination is returned when the destination is not a
	// 10-digit number after normalization.
	ErrInvalidDestination = errors.New("invalid destination number")
	// ErrEmptyBody is returned for blank messages.
	ErrEmptyBody = errors.New("empty message body")
	// ErrSendFailed is returned when any chunk of a message fails.
	ErrSendFailed = errors.New("send failed")
	// ErrNumberNotFound is returned when the account DID is not on the provider account.
	ErrNumberNotFound = errors.New("phone number not found on account")
)

// Sender sends one SMS segment.
type Sender interface {
	SendMessage(ctx context.Context, destination, body string) (*models.OutboundMessage, error)
}

// Provider is one account's view of an SMS backend.
type Provider interface {
	Sender
	// EnableMessaging points inbound SMS webhooks for the DID at notifyURL.
	EnableMessaging(ctx context.Context, notifyURL string) error
	// FetchMessages lists received messages, oldest first.
	FetchMessages(ctx context.Context) ([]models.Message, error)
}

// Factory builds a Provider for one account.
type Factory func(models.AccountCredential) Provider

// NewFactory returns the factory for the named backend.
func NewFactory(name string, client *http.Client) (Factory, error) {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	switch strings.ToLower(name) {
	case "", Signalwire:
		return func(c models.AccountCredential) Provider {
			return &SignalwireProvider{Credential: c, Client: client}
		}, nil
	case VoipMS:
		return func(c models.AccountCredential) Provider {
			return &VoipMSProvider{Credential: c, Client: client}
		}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// NormalizeDestination keeps digits and drops the leading 1 of 11-digit
// North American numbers.
func NormalizeDestination(dst string) (string, error) {
	d := digits(dst)
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	if len(d) != 10 {
		return "", ErrInvalidDestination
	}
	return d, nil
}

// Chunks splits body into segments of at most size characters.
func Chunks(body string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	runes := []rune(body)
	var out []string
	for len(runes) > 0 {
		n := min(size, len(runes))
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}

// ValidateAndSend normalizes the destination, trims the body and sends it
// in order as chunks of at most chunkSize characters. The first failing
// chunk aborts the rest; chunks already sent are not retracted. The result
// is the acknowledgement of the last chunk.
func ValidateAndSend(ctx context.Context, s Sender, destination, body string, chunkSize int) (*models.OutboundMessage, error) {
	dst, err := NormalizeDestination(destination)
	if err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyBody
	}

	var last *models.OutboundMessage
	for _, chunk := range Chunks(body, chunkSize) {
		msg, err := s.SendMessage(ctx, dst, chunk)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSendFailed, err)
		}
		if msg == nil {
			return nil, ErrSendFailed
		}
		last = msg
	}
	return last, nil
}

// Unread returns the messages newer than lastID. Numeric ids compare by
// value; otherwise everything after the message with lastID is returned,
// or all messages when lastID is unknown.
func Unread(msgs []models.Message, lastID string) []models.Message {
	lastID = strings.TrimSpace(lastID)
	if lastID == "" {
		return msgs
	}

	if last, err := strconv.ParseInt(lastID, 10, 64); err == nil {
		out := make([]models.Message, 0, len(msgs))
		numeric := true
		for _, m := range msgs {
			id, err := strconv.ParseInt(m.SMSID, 10, 64)
			if err != nil {
				numeric = false
				break
			}
			if id > last {
				out = append(out, m)
			}
		}
		if numeric {
			return out
		}
	}

	for i, m := range msgs {
		if m.SMSID == lastID {
			return msgs[i+1:]
		}
	}
	return msgs
}

// FormatDate renders t the way the client expects sending_date.
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		// url.Error carries the full URL, query credentials included.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
