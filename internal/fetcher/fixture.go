package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"sidebyside-backend/internal/model"
)

// FixtureFetcher serves pages from memory. Unknown targets fail with a 404
// FetchError, every call is counted.
type FixtureFetcher struct {
	mutex  sync.Mutex
	pages  map[string]string
	errors map[string]error
	calls  map[string]int
}

func NewFixtureFetcher() *FixtureFetcher {
	return &FixtureFetcher{
		pages:  map[string]string{},
		errors: map[string]error{},
		calls:  map[string]int{},
	}
}

func fixtureKey(product model.Product, target string) string {
	return fmt.Sprintf("%s/%s", product, target)
}

// Set serves html for a target.
func (f *FixtureFetcher) Set(product model.Product, target, html string) *FixtureFetcher {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.pages[fixtureKey(product, target)] = html
	delete(f.errors, fixtureKey(product, target))
	return f
}

// Fail makes fetches of a target return err.
func (f *FixtureFetcher) Fail(product model.Product, target string, err error) *FixtureFetcher {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.errors[fixtureKey(product, target)] = err
	return f
}

// Calls returns how many times a target was fetched.
func (f *FixtureFetcher) Calls(product model.Product, target string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.calls[fixtureKey(product, target)]
}

func (f *FixtureFetcher) Fetch(ctx context.Context, product model.Product, target string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &model.FetchError{Product: product, Target: target, Err: err}
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	key := fixtureKey(product, target)
	f.calls[key]++
	if err, ok := f.errors[key]; ok {
		return "", err
	}
	page, ok := f.pages[key]
	if !ok {
		return "", &model.FetchError{Product: product, Target: target, StatusCode: http.StatusNotFound}
	}
	return page, nil
}
