package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// KeyAccessToken is the well-known key the access token is persisted under.
const KeyAccessToken = "access_token"

// KeySessionCookies holds the API session cookies as JSON.
const KeySessionCookies = "session_cookies"

// ErrNoBackend is reported when a DeviceStore was built without a backend.
var ErrNoBackend = errors.New("storage backend is not initialized")

// Backend is the persistence primitive behind a DeviceStore.
// Get reports found=false with a nil error when the key does not exist.
type Backend interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// StoreError describes a failed backend operation.
type StoreError struct {
	Operation string // "get", "set", "remove"
	Key       string
	Cause     error
}

func (e *StoreError) Error() string {
	msg := e.Operation + " device value"
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// DeviceStore is a best-effort key/value store. None of its methods fail to
// the caller: backend errors and panics are logged and degrade to "no value".
type DeviceStore struct {
	backend Backend
}

// New wraps backend in a DeviceStore.
func New(backend Backend) *DeviceStore {
	return &DeviceStore{backend: backend}
}

// Set writes value under key.
func (s *DeviceStore) Set(ctx context.Context, key, value string) {
	if err := s.set(ctx, key, value); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to persist device value")
	}
}

// Get returns the value stored under key, or ok=false when it is missing or unreadable.
func (s *DeviceStore) Get(ctx context.Context, key string) (string, bool) {
	value, found, err := s.get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to read device value")
		return "", false
	}
	return value, found
}

// Remove deletes key.
func (s *DeviceStore) Remove(ctx context.Context, key string) {
	if err := s.remove(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to remove device value")
	}
}

func (s *DeviceStore) set(ctx context.Context, key, value string) (err error) {
	defer recoverInto(&err, "set", key)
	if s == nil || s.backend == nil {
		return &StoreError{Operation: "set", Key: key, Cause: ErrNoBackend}
	}
	if err := s.backend.Put(ctx, key, value); err != nil {
		return &StoreError{Operation: "set", Key: key, Cause: err}
	}
	return nil
}

func (s *DeviceStore) get(ctx context.Context, key string) (value string, found bool, err error) {
	defer recoverInto(&err, "get", key)
	if s == nil || s.backend == nil {
		return "", false, &StoreError{Operation: "get", Key: key, Cause: ErrNoBackend}
	}
	value, found, err = s.backend.Get(ctx, key)
	if err != nil {
		return "", false, &StoreError{Operation: "get", Key: key, Cause: err}
	}
	return value, found, nil
}

func (s *DeviceStore) remove(ctx context.Context, key string) (err error) {
	defer recoverInto(&err, "remove", key)
	if s == nil || s.backend == nil {
		return &StoreError{Operation: "remove", Key: key, Cause: ErrNoBackend}
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		return &StoreError{Operation: "remove", Key: key, Cause: err}
	}
	return nil
}

// recoverInto turns a backend panic into a StoreError.
func recoverInto(err *error, op, key string) {
	if r := recover(); r != nil {
		*err = &StoreError{Operation: op, Key: key, Cause: fmt.Errorf("backend panic: %v", r)}
	}
}
