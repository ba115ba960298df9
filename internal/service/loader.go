package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"campusync/internal/domain"
	"campusync/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionSource is what data loaders need from the session manager
type SessionSource interface {
	Token() string
	ExpireToken(token string)
	Credential() domain.Credential
}

// refreshTimeout bounds a background refresh once it is detached from the
// caller
const refreshTimeout = time.Minute

// Notices shown to the user after a refresh
const (
	NoticeOffline       = "Offline mode: showing cached data"
	NoticeExpiredCached = "Session expired, showing cached data"
	NoticeRefreshFailed = "Failed to refresh data"
	NoticeLoginRequired = "Please log in first"
)

// Snapshot is the synchronously available part of a load
type Snapshot[T any] struct {
	Data   T
	Cached bool
}

// Settlement is the outcome of the background refresh of a load.
//
// Data holds the fresh payload when Fresh is set, otherwise the last good
// snapshot (if HasData). Fatal means there is nothing to show and the
// caller must force a login. Notice is non-empty when the user should be
// told something.
type Settlement[T any] struct {
	Data    T
	HasData bool
	Fresh   bool
	Offline bool
	Fatal   bool
	Notice  string
	Err     error
}

// LoaderConfig describes one data kind
type LoaderConfig[T any] struct {
	Kind string
	Key  string
	// Fetch returns the raw payload to persist verbatim
	Fetch func(ctx context.Context, token string) (json.RawMessage, error)
	// Decode turns a persisted or fetched payload into T
	Decode func(raw json.RawMessage) (T, error)
}

// Loader is the cache-first loader of one data kind. The persisted snapshot
// is the raw payload; derived views are recomputed from it on every load.
type Loader[T any] struct {
	cfg     LoaderConfig[T]
	store   repository.Store
	session SessionSource
	logger  *zap.Logger

	mu         sync.Mutex
	loadedOnce bool
	offline    bool
}

// NewLoader creates a loader for cfg
func NewLoader[T any](cfg LoaderConfig[T], store repository.Store, session SessionSource, logger *zap.Logger) *Loader[T] {
	return &Loader[T]{
		cfg:     cfg,
		store:   store,
		session: session,
		logger:  logger.With(zap.String("kind", cfg.Kind)),
	}
}

// Load returns the persisted snapshot immediately and settles the
// background refresh on the returned channel. The channel is buffered and
// closed after one value, so a settlement nobody reads is simply dropped.
// The refresh keeps ctx values but not its cancellation: a consumer that
// stops waiting does not abort the fetch, and the snapshot is still updated.
func (l *Loader[T]) Load(ctx context.Context) (Snapshot[T], <-chan Settlement[T]) {
	data, cached := l.Cached()

	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
	settled := make(chan Settlement[T], 1)
	go func() {
		defer cancel()
		defer close(settled)
		settled <- l.Refresh(refreshCtx)
	}()

	return Snapshot[T]{Data: data, Cached: cached}, settled
}

// Cached decodes the persisted snapshot. An unreadable snapshot counts as absent.
func (l *Loader[T]) Cached() (T, bool) {
	var zero T

	raw, err := l.store.Get(l.cfg.Key)
	if err != nil {
		l.logger.Warn("Failed to read snapshot", zap.Error(err))
		return zero, false
	}
	if len(raw) == 0 {
		return zero, false
	}

	data, err := l.cfg.Decode(raw)
	if err != nil {
		l.logger.Warn("Discarding undecodable snapshot", zap.Error(err))
		return zero, false
	}
	return data, true
}

// Offline reports whether the last refresh degraded to the cached snapshot
// because the session expired or was missing
func (l *Loader[T]) Offline() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.offline
}

// Refresh fetches the data kind once and reconciles the result with the
// persisted snapshot. Overlapping refreshes are allowed; the one that
// completes last determines the stored snapshot.
func (l *Loader[T]) Refresh(ctx context.Context) Settlement[T] {
	refreshID := uuid.NewString()
	logger := l.logger.With(zap.String("refresh_id", refreshID))

	token := l.session.Token()
	if token == "" {
		return l.settleWithoutSession(logger, domain.ErrLoginRequired, NoticeOffline)
	}

	raw, err := l.cfg.Fetch(ctx, token)
	if err == nil {
		data, decodeErr := l.cfg.Decode(raw)
		if decodeErr == nil {
			return l.settleFresh(logger, raw, data)
		}
		err = fmt.Errorf("decode %s: %w", l.cfg.Kind, decodeErr)
	}

	if errors.Is(err, domain.ErrSessionExpired) {
		l.session.ExpireToken(token)
		return l.settleWithoutSession(logger, err, NoticeExpiredCached)
	}

	return l.settleFailure(logger, err)
}

func (l *Loader[T]) settleFresh(logger *zap.Logger, raw json.RawMessage, data T) Settlement[T] {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Set(l.cfg.Key, raw); err != nil {
		logger.Warn("Failed to persist snapshot", zap.Error(err))
	}
	l.loadedOnce = true
	l.offline = false

	logger.Info("Refresh succeeded", zap.Int("bytes", len(raw)))
	return Settlement[T]{Data: data, HasData: true, Fresh: true}
}

// settleWithoutSession handles a missing or expired session: fatal without
// a snapshot, offline mode with one
func (l *Loader[T]) settleWithoutSession(logger *zap.Logger, cause error, notice string) Settlement[T] {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, cached := l.Cached()
	if !cached {
		logger.Info("No session and no snapshot, login required", zap.Error(cause))
		return Settlement[T]{
			Fatal:  true,
			Notice: NoticeLoginRequired,
			Err:    fmt.Errorf("%w: %v", domain.ErrLoginRequired, cause),
		}
	}

	l.offline = true
	logger.Info("Serving snapshot in offline mode", zap.Error(cause))
	return Settlement[T]{Data: data, HasData: true, Offline: true, Notice: notice, Err: cause}
}

// settleFailure keeps the snapshot untouched; the user hears about it only
// until the first successful load of this process
func (l *Loader[T]) settleFailure(logger *zap.Logger, cause error) Settlement[T] {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, cached := l.Cached()

	notice := ""
	if !l.loadedOnce {
		notice = NoticeRefreshFailed
	}

	logger.Warn("Refresh failed", zap.Error(cause), zap.Bool("has_snapshot", cached))
	return Settlement[T]{Data: data, HasData: cached, Notice: notice, Err: cause}
}
