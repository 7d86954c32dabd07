package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atinyakov/smsglue/internal/account"
	"github.com/atinyakov/smsglue/internal/codec"
	"github.com/atinyakov/smsglue/internal/devices"
	"github.com/atinyakov/smsglue/internal/models"
	"github.com/atinyakov/smsglue/internal/provider"
	"github.com/atinyakov/smsglue/internal/provision"
	"github.com/atinyakov/smsglue/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	EnableFunc func(ctx context.Context, notifyURL string) error
	SendFunc   func(ctx context.Context, destination, body string) (*models.OutboundMessage, error)
	FetchFunc  func(ctx context.Context) ([]models.Message, error)
}

func (f *fakeProvider) EnableMessaging(ctx context.Context, notifyURL string) error {
	return f.EnableFunc(ctx, notifyURL)
}
func (f *fakeProvider) SendMessage(ctx context.Context, destination, body string) (*models.OutboundMessage, error) {
	return f.SendFunc(ctx, destination, body)
}
func (f *fakeProvider) FetchMessages(ctx context.Context) ([]models.Message, error) {
	return f.FetchFunc(ctx)
}

type fakeSink struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeSink) Notify(_ context.Context, deviceToken, appID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, deviceToken+"/"+appID)
	return f.err
}

type env struct {
	svc      *GlueService
	store    store.Store
	tokens   *account.Tokens
	codec    *codec.Codec
	provider *fakeProvider
	sink     *fakeSink
	creds    []models.AccountCredential
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s := store.NewFileStore(t.TempDir())
	key, err := s.Initialize(context.Background())
	require.NoError(t, err)
	c, err := codec.New(key)
	require.NoError(t, err)

	e := &env{
		store:  s,
		codec:  c,
		tokens: account.NewTokens(c),
		sink:   &fakeSink{},
		provider: &fakeProvider{
			EnableFunc: func(context.Context, string) error { return nil },
			SendFunc: func(context.Context, string, string) (*models.OutboundMessage, error) {
				return &models.OutboundMessage{SMSID: "1"}, nil
			},
			FetchFunc: func(context.Context) ([]models.Message, error) { return nil, nil },
		},
	}
	e.svc = NewGlueService(Deps{
		Store:     s,
		Codec:     c,
		Tokens:    e.tokens,
		Handshake: provision.NewHandshake(s, c),
		Devices:   devices.NewRegistry(s, c),
		Providers: func(cred models.AccountCredential) provider.Provider {
			e.creds = append(e.creds, cred)
			return e.provider
		},
		Sink: e.sink,
		Now:  func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	return e
}

func (e *env) resolve(t *testing.T) *account.Account {
	t.Helper()
	token, err := e.tokens.Encode(cred)
	require.NoError(t, err)
	acc, err := e.svc.Resolve(token)
	require.NoError(t, err)
	return acc
}

var cred = models.AccountCredential{User: "u", Pass: "p", DID: "15551234567", Scope: "s"}

func TestEnableThenProvision(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var notifyURL string
	e.provider.EnableFunc = func(_ context.Context, u string) error {
		notifyURL = u
		return nil
	}

	res, err := e.svc.Enable(ctx, EnableRequest{AccountCredential: cred, Origin: "https://glue.example.com"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Token, "34567-"))
	assert.Equal(t, []models.AccountCredential{cred}, e.creds)

	id, err := e.tokens.AccountID(cred.DID)
	require.NoError(t, err)
	assert.Equal(t, "https://glue.example.com/notify/"+id, notifyURL)

	xml, err := e.svc.Provision(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, xml, "<pushTokenReporterUrl>https://glue.example.com/report/"+id)
	assert.Contains(t, xml, "<genericSmsSendUrl>https://glue.example.com/send/"+res.Token+"</genericSmsSendUrl>")

	xml, err = e.svc.Provision(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, provision.EmptyDescriptor, xml)
}

func TestEnable_ProviderFailure(t *testing.T) {
	e := newEnv(t)
	e.provider.EnableFunc = func(context.Context, string) error { return errors.New("401") }

	_, err := e.svc.Enable(context.Background(), EnableRequest{AccountCredential: cred, Origin: "https://g"})
	assert.ErrorIs(t, err, ErrEnableFailed)

	id, _ := e.tokens.AccountID(cred.DID)
	_, ok := e.store.Load(context.Background(), store.CategoryProvisions, id)
	assert.False(t, ok)
}

func TestEnable_InvalidCredential(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Enable(context.Background(), EnableRequest{AccountCredential: models.AccountCredential{DID: "1"}})
	assert.ErrorIs(t, err, account.ErrInvalidCredential)
	assert.Empty(t, e.creds)
}

func TestReportAndNotify(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id, _ := e.tokens.AccountID(cred.DID)

	require.NoError(t, e.svc.Report(ctx, id, "t1", "a1"))
	require.NoError(t, e.svc.Report(ctx, id, "t1", "a2"))
	require.NoError(t, e.store.Save(ctx, store.CategoryMessages, id, "cached"))

	delivered, err := e.svc.Notify(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, []string{"t1/a1"}, e.sink.calls)

	_, ok := e.store.Load(ctx, store.CategoryMessages, id)
	assert.False(t, ok)
}

func TestNotify_DeliveryFailureNotReturned(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.sink.err = errors.New("gone")
	require.NoError(t, e.svc.Report(ctx, "acc", "t1", "a1"))

	delivered, err := e.svc.Notify(ctx, "acc")
	assert.NoError(t, err)
	assert.Zero(t, delivered)
}

func TestFetch_RefreshesAndCaches(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acc := e.resolve(t)

	calls := 0
	e.provider.FetchFunc = func(context.Context) ([]models.Message, error) {
		calls++
		return []models.Message{{SMSID: "10", Text: "a"}, {SMSID: "11", Text: "b"}}, nil
	}

	res, err := e.svc.Fetch(ctx, acc, "10")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02T03:04:05.00+00:00", res.Date)
	assert.Equal(t, []models.Message{{SMSID: "11", Text: "b"}}, res.Unread)

	res, err = e.svc.Fetch(ctx, acc, "")
	require.NoError(t, err)
	assert.Len(t, res.Unread, 2)
	assert.Equal(t, 1, calls)

	// Cache is salted with the account password.
	id, _ := e.tokens.AccountID(cred.DID)
	blob, ok := e.store.Load(ctx, store.CategoryMessages, id)
	require.True(t, ok)
	var msgs []models.Message
	assert.False(t, e.codec.Decrypt(blob, &msgs))
	assert.True(t, e.codec.Decrypt(blob, &msgs, cred.Pass))
}

func TestFetch_ProviderError(t *testing.T) {
	e := newEnv(t)
	acc := e.resolve(t)
	e.provider.FetchFunc = func(context.Context) ([]models.Message, error) { return nil, errors.New("down") }

	res, err := e.svc.Fetch(context.Background(), acc, "")
	require.NoError(t, err)
	assert.NotNil(t, res.Unread)
	assert.Empty(t, res.Unread)
}

func TestResolve_InvalidToken(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Resolve("123-abc")
	assert.ErrorIs(t, err, account.ErrInvalidToken)
}

func TestSend(t *testing.T) {
	e := newEnv(t)
	acc := e.resolve(t)

	var bodies []string
	e.provider.SendFunc = func(_ context.Context, dst, body string) (*models.OutboundMessage, error) {
		assert.Equal(t, "4035550100", dst)
		bodies = append(bodies, body)
		return &models.OutboundMessage{SMSID: "SM" + body[:1]}, nil
	}

	msg, err := e.svc.Send(context.Background(), acc, "+1 (403) 555-0100", strings.Repeat("z", 200))
	require.NoError(t, err)
	assert.Equal(t, "SMz", msg.SMSID)
	assert.Len(t, bodies, 2)
}

func TestSend_Invalid(t *testing.T) {
	e := newEnv(t)
	acc := e.resolve(t)

	_, err := e.svc.Send(context.Background(), acc, "12", "hi")
	assert.ErrorIs(t, err, provider.ErrInvalidDestination)

	_, err = e.svc.Send(context.Background(), acc, "4035550100", " ")
	assert.ErrorIs(t, err, provider.ErrEmptyBody)
}
