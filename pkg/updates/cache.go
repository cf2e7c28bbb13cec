package updates

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cachedSource memoizes tag lists per repository for the life of the process.
type cachedSource struct {
	Source
	tags *lru.Cache[string, []string]
}

// WithCache wraps src so each repository's tag list is fetched at most once while it
// stays among the size most recently used.
func WithCache(src Source, size int) (Source, error) {
	if size <= 0 {
		size = 128
	}
	c, err := lru.New[string, []string](size)
	if err != nil {
		return nil, err
	}
	return &cachedSource{Source: src, tags: c}, nil
}

func (c *cachedSource) Tags(ctx context.Context, owner, repo string) ([]string, error) {
	key := owner + "/" + repo
	if tags, ok := c.tags.Get(key); ok {
		return tags, nil
	}
	tags, err := c.Source.Tags(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	c.tags.Add(key, tags)
	return tags, nil
}
