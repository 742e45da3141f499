package fetcher

import (
	"context"
	"sync"

	"sidebyside-backend/internal/model"

	"golang.org/x/sync/singleflight"
)

// PageCache memoizes the successful fetches of an inner Fetcher. It is
// meant to live for one scrape run, concurrent fetches of the same page
// share a single request and failures are never cached.
type PageCache struct {
	inner Fetcher
	group singleflight.Group

	mutex sync.Mutex
	pages map[string]string
}

func NewPageCache(inner Fetcher) *PageCache {
	return &PageCache{
		inner: inner,
		pages: map[string]string{},
	}
}

func (c *PageCache) Fetch(ctx context.Context, product model.Product, target string) (string, error) {
	key := fixtureKey(product, target)

	c.mutex.Lock()
	page, ok := c.pages[key]
	c.mutex.Unlock()
	if ok {
		return page, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		c.mutex.Lock()
		page, ok := c.pages[key]
		c.mutex.Unlock()
		if ok {
			return page, nil
		}

		page, err := c.inner.Fetch(ctx, product, target)
		if err != nil {
			return "", err
		}
		c.mutex.Lock()
		c.pages[key] = page
		c.mutex.Unlock()
		return page, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Len returns the number of cached pages.
func (c *PageCache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.pages)
}
