package main

import (
	"context"
	"errors"
	"time"

	"tunes/internal/attributes"
	"tunes/internal/cachedb"
	"tunes/internal/library"
)

const defaultSettleTimeout = 15 * time.Second

// settle demands the keys of b its primary can fetch, waits until they load
// or timeout passes, then waits for the cache record to catch up. Keys
// still loading at the deadline are reported as they are.
func settle(ctx context.Context, b *library.Branch, timeout time.Duration, keys ...attributes.Key) (attributes.Snapshot, error) {
	keys = fetchable(b, keys)
	if len(keys) == 0 {
		return b.Attributes().Current(), nil
	}
	if timeout <= 0 {
		timeout = defaultSettleTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := b.Attributes().Await(waitCtx, keys...); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return b.Attributes().Current(), err
	}
	if err := b.Wait(waitCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return b.Attributes().Current(), err
	}
	return b.Attributes().Current(), nil
}

// fetchable drops keys no request group of the primary yields. Cold and
// indexed branches fetch nothing.
func fetchable(b *library.Branch, keys []attributes.Key) []attributes.Key {
	mapped, ok := b.Primary().(interface{ Mapper() *attributes.Mapper })
	if !ok {
		return nil
	}
	owned := mapped.Mapper().Relation().Keys()
	out := keys[:0:0]
	for _, k := range keys {
		if owned.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func titleKey(b *library.Branch) attributes.Key {
	if b.Kind() == cachedb.KindPlaylist {
		return library.PlaylistTitle.Key
	}
	return library.TrackTitle.Key
}
