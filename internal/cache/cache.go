package cache

import (
	"context"
	"errors"
	"time"
)

//go:generate mockgen -source=cache.go -destination=mock_cache.go -package=cache

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache stores JSON-encoded values under string keys.
type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Ping(ctx context.Context) error
}

// Nop never stores anything; every Get is a miss.
type Nop struct{}

func (Nop) Get(context.Context, string, any) error                { return ErrMiss }
func (Nop) Set(context.Context, string, any, time.Duration) error { return nil }
func (Nop) DeleteByPrefix(context.Context, string) error          { return nil }
func (Nop) Ping(context.Context) error                            { return nil }

// Keys shared by the services that read and invalidate them.
const (
	SheetPrefix  = "sheet:"
	ReportPrefix = "report:"
)
