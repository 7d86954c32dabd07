// Package service implements the glue flows: enable, provision, report,
// notify, fetch and send.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/smsglue/internal/account"
	"github.com/atinyakov/smsglue/internal/devices"
	"github.com/atinyakov/smsglue/internal/models"
	"github.com/atinyakov/smsglue/internal/provider"
	"github.com/atinyakov/smsglue/internal/provision"
	"github.com/atinyakov/smsglue/internal/store"
	"go.uber.org/zap"
)

// ErrEnableFailed is returned when the provider refuses to wire the notify hook.
var ErrEnableFailed = errors.New("enable messaging failed")

// Codec encrypts cached values. *codec.Codec satisfies it.
type Codec interface {
	Encrypt(value any, salt ...string) (string, error)
	Decrypt(ciphertext string, v any, salt ...string) bool
}

// Handshake serves the provisioning descriptor once.
type Handshake interface {
	Arm(ctx context.Context, id, descriptor string) error
	Consume(ctx context.Context, id string) (string, error)
}

// Registry keeps device bindings.
type Registry interface {
	Upsert(ctx context.Context, id, deviceToken, appID string) error
	NotifyAll(ctx context.Context, id string, sink devices.Sink) (int, error)
}

// EnableRequest is the payload of an enable call.
type EnableRequest struct {
	models.AccountCredential
	// Origin is the public base URL of this service, used for hooks.
	Origin string
}

// EnableResult is returned to the caller of a successful enable.
type EnableResult struct {
	Token string       `json:"-"`
	Hooks models.Hooks `json:"hooks"`
}

// FetchResult is the client's view of unread messages.
type FetchResult struct {
	Date   string           `json:"date"`
	Unread []models.Message `json:"unread_smss"`
}

// Deps groups the collaborators of GlueService.
type Deps struct {
	Store     store.Store
	Codec     Codec
	Tokens    *account.Tokens
	Handshake Handshake
	Devices   Registry
	Providers provider.Factory
	Sink      devices.Sink
	ChunkSize int
	Now       func() time.Time
	Log       *zap.Logger
}

// GlueService implements the request flows on top of the core components.
type GlueService struct {
	Deps
}

// NewGlueService constructs a GlueService, filling defaults for ChunkSize,
// Now and Log.
func NewGlueService(d Deps) *GlueService {
	if d.ChunkSize <= 0 {
		d.ChunkSize = provider.DefaultChunkSize
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &GlueService{Deps: d}
}

// Enable encodes the credentials into a token, wires the provider's
// inbound webhook to the notify hook and arms the provisioning descriptor.
func (s *GlueService) Enable(ctx context.Context, req EnableRequest) (*EnableResult, error) {
	token, err := s.Tokens.Encode(req.AccountCredential)
	if err != nil {
		return nil, err
	}
	acc, err := s.Tokens.Resolve(token)
	if err != nil {
		return nil, err
	}
	hooks := acc.Hooks(req.Origin)

	if err := s.Providers(acc.AccountCredential).EnableMessaging(ctx, hooks.Notify); err != nil {
		s.Log.Warn("provider enable failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrEnableFailed, err)
	}

	if err := s.Handshake.Arm(ctx, acc.ID, provision.BuildDescriptor(hooks)); err != nil {
		return nil, fmt.Errorf("arm provision: %w", err)
	}
	return &EnableResult{Token: token, Hooks: hooks}, nil
}

// Provision returns the armed descriptor for id, once.
func (s *GlueService) Provision(ctx context.Context, id string) (string, error) {
	return s.Handshake.Consume(ctx, id)
}

// Report records a device binding for id.
func (s *GlueService) Report(ctx context.Context, id, deviceToken, appID string) error {
	return s.Devices.Upsert(ctx, id, deviceToken, appID)
}

// Notify drops the cached message list of id and pushes to its devices.
// Delivery failures are logged, not returned.
func (s *GlueService) Notify(ctx context.Context, id string) (int, error) {
	if err := s.Store.Clear(ctx, store.CategoryMessages, id); err != nil {
		return 0, err
	}
	delivered, err := s.Devices.NotifyAll(ctx, id, s.Sink)
	if err != nil {
		s.Log.Warn("device notification failed", zap.Int("delivered", delivered), zap.Error(err))
	}
	return delivered, nil
}

func (s *GlueService) cachedMessages(ctx context.Context, acc *account.Account) []models.Message {
	blob, ok := s.Store.Load(ctx, store.CategoryMessages, acc.ID)
	if !ok {
		return nil
	}
	var msgs []models.Message
	if !s.Codec.Decrypt(blob, &msgs, acc.Pass) {
		return nil
	}
	return msgs
}

// Resolve decodes a bearer token into its account.
func (s *GlueService) Resolve(token string) (*account.Account, error) {
	return s.Tokens.Resolve(token)
}

// Fetch returns the messages newer than lastID, refreshing the per-account
// cache from the provider when it is empty. The cache is encrypted with the
// account password as salt.
func (s *GlueService) Fetch(ctx context.Context, acc *account.Account, lastID string) (*FetchResult, error) {
	msgs := s.cachedMessages(ctx, acc)
	if len(msgs) == 0 {
		fetched, err := s.Providers(acc.AccountCredential).FetchMessages(ctx)
		if err != nil {
			s.Log.Warn("provider fetch failed", zap.Error(err))
		} else {
			blob, err := s.Codec.Encrypt(fetched, acc.Pass)
			if err == nil {
				err = s.Store.Save(ctx, store.CategoryMessages, acc.ID, blob)
			}
			if err != nil {
				s.Log.Error("failed to cache messages", zap.Error(err))
			}
			msgs = fetched
		}
	}

	unread := provider.Unread(msgs, lastID)
	if unread == nil {
		unread = []models.Message{}
	}
	return &FetchResult{Date: provider.FormatDate(s.Now()), Unread: unread}, nil
}

// Send validates and sends body to destination in chunks.
func (s *GlueService) Send(ctx context.Context, acc *account.Account, destination, body string) (*models.OutboundMessage, error) {
	msg, err := provider.ValidateAndSend(ctx, s.Providers(acc.AccountCredential), destination, body, s.ChunkSize)
	if err != nil {
		s.Log.Info("send rejected", zap.Error(err))
		return nil, err
	}
	return msg, nil
}
