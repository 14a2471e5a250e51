package media

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/potkeeper/pkg/observability"
	"github.com/platinummonkey/potkeeper/pkg/storage"
)

// DeleteConcurrency bounds parallel blob deletes.
const DeleteConcurrency = 8

// Result tallies a bulk delete.
type Result struct {
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Cleaner deletes image blobs, never touching default images.
type Cleaner struct {
	store   storage.BlobStore
	keys    *Keys
	logger  *observability.Logger
	metrics *observability.Metrics
}

func NewCleaner(store storage.BlobStore, keys *Keys, logger *observability.Logger, metrics *observability.Metrics) *Cleaner {
	return &Cleaner{store: store, keys: keys, logger: logger, metrics: metrics}
}

// Keys returns the key mapper the cleaner uses.
func (c *Cleaner) Keys() *Keys {
	return c.keys
}

// Deletable filters urls down to the distinct non-default object keys.
func (c *Cleaner) Deletable(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	var keys []string
	for _, u := range urls {
		if u == "" || c.keys.IsDefault(u) {
			continue
		}
		key := c.keys.KeyFromURL(u)
		if key == "" || c.keys.IsDefault(key) {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// DeleteURLs removes the blobs behind urls. Failures are logged and counted,
// never returned.
func (c *Cleaner) DeleteURLs(ctx context.Context, urls []string) Result {
	keys := c.Deletable(urls)
	res := c.DeleteKeys(ctx, keys)
	res.Skipped = len(urls) - len(keys)
	return res
}

// DeleteKeys removes the given object keys with bounded concurrency.
func (c *Cleaner) DeleteKeys(ctx context.Context, keys []string) Result {
	var deleted, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DeleteConcurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			if err := c.store.Delete(gctx, key); err != nil {
				failed.Add(1)
				c.record("failed")
				c.logger.WithError(err).WithField("key", key).Warn("failed to delete blob")
				return nil
			}
			deleted.Add(1)
			c.record("deleted")
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Deleted: int(deleted.Load()), Failed: int(failed.Load())}
	if len(keys) > 0 {
		c.logger.WithFields(map[string]interface{}{
			"deleted": res.Deleted,
			"failed":  res.Failed,
		}).Debug("blob cleanup finished")
	}
	return res
}

func (c *Cleaner) record(result string) {
	if c.metrics != nil {
		c.metrics.BlobDeletesTotal.WithLabelValues(result).Inc()
	}
}
