package settings

import (
	"context"
	"fmt"

	"github.com/hogliux/collect/internal/crypto"
	"github.com/hogliux/collect/internal/domain"
)

// EncryptedStore encrypts the registry's secret string values on the way
// into the wrapped store and decrypts them on the way out.
type EncryptedStore struct {
	inner  domain.PreferenceStore
	reg    *Registry
	crypto crypto.Service
}

func NewEncryptedStore(inner domain.PreferenceStore, reg *Registry, svc crypto.Service) *EncryptedStore {
	return &EncryptedStore{inner: inner, reg: reg, crypto: svc}
}

func (s *EncryptedStore) Get(ctx context.Context, key string) (domain.Value, bool, error) {
	v, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return v, ok, err
	}
	v, err = s.open(key, v)
	if err != nil {
		return domain.Value{}, false, err
	}
	return v, true, nil
}

func (s *EncryptedStore) All(ctx context.Context) (map[string]domain.Value, error) {
	values, err := s.inner.All(ctx)
	if err != nil {
		return nil, err
	}
	for k, v := range values {
		if values[k], err = s.open(k, v); err != nil {
			return nil, err
		}
	}
	return values, nil
}

func (s *EncryptedStore) Set(ctx context.Context, key string, v domain.Value) error {
	sealed, err := s.seal(key, v)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, sealed)
}

func (s *EncryptedStore) Replace(ctx context.Context, values map[string]domain.Value) error {
	sealed := make(map[string]domain.Value, len(values))
	for k, v := range values {
		sv, err := s.seal(k, v)
		if err != nil {
			return err
		}
		sealed[k] = sv
	}
	return s.inner.Replace(ctx, sealed)
}

func (s *EncryptedStore) Clear(ctx context.Context) error {
	return s.inner.Clear(ctx)
}

func (s *EncryptedStore) seal(key string, v domain.Value) (domain.Value, error) {
	if !s.reg.IsSecret(key) || v.Kind != domain.KindString || v.String == "" {
		return v, nil
	}
	ct, err := s.crypto.Encrypt(v.String)
	if err != nil {
		return domain.Value{}, fmt.Errorf("encrypt preference %q: %w", key, err)
	}
	return domain.StringValue(ct), nil
}

func (s *EncryptedStore) open(key string, v domain.Value) (domain.Value, error) {
	if !s.reg.IsSecret(key) || v.Kind != domain.KindString || v.String == "" {
		return v, nil
	}
	pt, err := s.crypto.Decrypt(v.String)
	if err != nil {
		return domain.Value{}, fmt.Errorf("decrypt preference %q: %w", key, err)
	}
	return domain.StringValue(pt), nil
}
