package musicbrainz

import (
	"context"
	"encoding/json"
	"time"
)

type ClientInterface interface {
	LookupByISRC(ctx context.Context, isrc string) (*Recording, error)
	SearchRecording(ctx context.Context, artist, title string) (*Recording, error)
}

var _ ClientInterface = (*Client)(nil)
var _ ClientInterface = (*CachedClient)(nil)

type Cache interface {
	GetCache(key string) ([]byte, error)
	SetCache(key string, data []byte, ttl time.Duration) error
}

// CachedClient wraps a Client with a TTL cache. ISRC lookups are cached
// including misses, so a re-enrichment pass does not re-hit the API for
// tracks MusicBrainz does not know.
type CachedClient struct {
	client *Client
	cache  Cache
	ttl    time.Duration
}

func NewCachedClient(client *Client, cache Cache, ttl time.Duration) *CachedClient {
	return &CachedClient{
		client: client,
		cache:  cache,
		ttl:    ttl,
	}
}

type cachedRecording struct {
	Recording *Recording `json:"recording"`
	NotFound  bool       `json:"not_found"`
}

func (c *CachedClient) LookupByISRC(ctx context.Context, isrc string) (*Recording, error) {
	if isrc == "" {
		return nil, nil
	}
	return c.lookup(ctx, "mb:isrc:"+isrc, func() (*Recording, error) {
		return c.client.LookupByISRC(ctx, isrc)
	})
}

func (c *CachedClient) SearchRecording(ctx context.Context, artist, title string) (*Recording, error) {
	if title == "" {
		return nil, nil
	}
	return c.lookup(ctx, "mb:search:"+artist+"\x00"+title, func() (*Recording, error) {
		return c.client.SearchRecording(ctx, artist, title)
	})
}

func (c *CachedClient) lookup(_ context.Context, cacheKey string, fetch func() (*Recording, error)) (*Recording, error) {
	data, err := c.cache.GetCache(cacheKey)
	if err != nil {
		return nil, err
	}
	if data != nil {
		var cached cachedRecording
		if unmarshalErr := json.Unmarshal(data, &cached); unmarshalErr == nil {
			return cached.Recording, nil
		}
	}

	rec, err := fetch()
	if err != nil {
		return nil, err
	}

	cached := cachedRecording{Recording: rec}
	if rec == nil {
		cached.NotFound = true
	}
	if data, marshalErr := json.Marshal(cached); marshalErr == nil {
		_ = c.cache.SetCache(cacheKey, data, c.ttl)
	}
	return rec, nil
}
