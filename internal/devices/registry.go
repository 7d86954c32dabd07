// Package devices keeps the push-token bindings of each account.
package devices

import (
	"context"
	"fmt"
	"sync"

	"github.com/atinyakov/smsglue/internal/models"
	"github.com/atinyakov/smsglue/internal/store"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Codec encrypts binding lists at rest. *codec.Codec satisfies it.
type Codec interface {
	Encrypt(value any, salt ...string) (string, error)
	Decrypt(ciphertext string, v any, salt ...string) bool
}

// Sink delivers a new-message push to one device.
type Sink interface {
	Notify(ctx context.Context, deviceToken, appID string) error
}

// maxParallel bounds concurrent deliveries per account.
const maxParallel = 4

// Registry stores []models.DeviceBinding under store.CategoryDevices.
type Registry struct {
	store store.Store
	codec Codec
}

// NewRegistry returns a Registry over s and c.
func NewRegistry(s store.Store, c Codec) *Registry {
	return &Registry{store: s, codec: c}
}

// List returns the bindings of id. Absent or undecryptable lists are empty.
func (r *Registry) List(ctx context.Context, id string) []models.DeviceBinding {
	blob, ok := r.store.Load(ctx, store.CategoryDevices, id)
	if !ok {
		return nil
	}
	var bindings []models.DeviceBinding
	if !r.codec.Decrypt(blob, &bindings) {
		return nil
	}
	return bindings
}

// dedupe keeps the first binding of every distinct device token.
func dedupe(bindings []models.DeviceBinding) []models.DeviceBinding {
	seen := make(map[string]struct{}, len(bindings))
	out := make([]models.DeviceBinding, 0, len(bindings))
	for _, b := range bindings {
		if _, ok := seen[b.DeviceToken]; ok {
			continue
		}
		seen[b.DeviceToken] = struct{}{}
		out = append(out, b)
	}
	return out
}

// Upsert appends (deviceToken, appID) when both are set, removes duplicate
// device tokens keeping the first occurrence, and persists the result.
func (r *Registry) Upsert(ctx context.Context, id, deviceToken, appID string) error {
	bindings := r.List(ctx, id)
	if deviceToken != "" && appID != "" {
		bindings = append(bindings, models.DeviceBinding{DeviceToken: deviceToken, AppID: appID})
	}
	bindings = dedupe(bindings)

	blob, err := r.codec.Encrypt(bindings)
	if err != nil {
		return fmt.Errorf("encrypt devices: %w", err)
	}
	return r.store.Save(ctx, store.CategoryDevices, id, blob)
}

// NotifyAll pushes to every binding of id and returns the number of
// successful deliveries plus the combined delivery errors. Failed bindings
// are kept.
func (r *Registry) NotifyAll(ctx context.Context, id string, sink Sink) (int, error) {
	bindings := r.List(ctx, id)

	var (
		mu        sync.Mutex
		delivered int
		errs      error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for _, b := range bindings {
		g.Go(func() error {
			err := sink.Notify(gctx, b.DeviceToken, b.AppID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("notify %s: %w", b.AppID, err))
				return nil
			}
			delivered++
			return nil
		})
	}
	_ = g.Wait()
	return delivered, errs
}
