/*

This file contains a Gateway decorator that caches the protocol list. Protocol metadata
is the same for every account and changes slowly, so it is the one read worth caching.

*/

package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"

	"github.com/elys-network/yield-optimizer/internal/metrics"
	"github.com/elys-network/yield-optimizer/internal/types"
)

const (
	protocolsCacheKey = "protocols"

	// upstreamTimeout bounds a shared fetch, which no longer follows any single caller's context.
	upstreamTimeout = 30 * time.Second
)

// CachedGateway serves ListProtocols from a TTL cache and forwards everything else.
// Concurrent misses share one upstream call. A caller that gives up stops waiting without
// cancelling the call for the others.
type CachedGateway struct {
	Gateway
	cache *ristretto.Cache
	ttl   time.Duration
	group singleflight.Group
}

var _ Gateway = (*CachedGateway)(nil)

func NewCachedGateway(next Gateway, ttl time.Duration) (*CachedGateway, error) {
	if next == nil {
		return nil, errors.New("cached gateway requires an upstream gateway")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive, got %s", ttl)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100,
		MaxCost:     1 << 10,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create protocol cache: %w", err)
	}
	return &CachedGateway{Gateway: next, cache: cache, ttl: ttl}, nil
}

func (c *CachedGateway) ListProtocols(ctx context.Context) ([]types.Protocol, error) {
	if v, ok := c.cache.Get(protocolsCacheKey); ok {
		if protocols, ok := v.([]types.Protocol); ok {
			metrics.RecordCacheLookup(true)
			return cloneProtocols(protocols), nil
		}
	}
	metrics.RecordCacheLookup(false)

	ch := c.group.DoChan(protocolsCacheKey, func() (interface{}, error) {
		upstreamCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), upstreamTimeout)
		defer cancel()
		protocols, err := c.Gateway.ListProtocols(upstreamCtx)
		if err != nil {
			return nil, err
		}
		c.cache.SetWithTTL(protocolsCacheKey, cloneProtocols(protocols), int64(len(protocols))+1, c.ttl)
		c.cache.Wait()
		return protocols, nil
	})

	select {
	case <-ctx.Done():
		return nil, newError("list_protocols", Classify(ctx.Err()), ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneProtocols(res.Val.([]types.Protocol)), nil
	}
}

// Invalidate drops the cached protocol list so the next call goes upstream.
func (c *CachedGateway) Invalidate() {
	c.cache.Del(protocolsCacheKey)
}

func (c *CachedGateway) Close() {
	c.cache.Close()
}

func cloneProtocols(in []types.Protocol) []types.Protocol {
	if in == nil {
		return nil
	}
	return append([]types.Protocol(nil), in...)
}
