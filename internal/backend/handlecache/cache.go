package handlecache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Deriver produces the thumbnail for an original image. The image
// processing commands satisfy it.
type Deriver interface {
	Execute(imageData []byte) ([]byte, error)
}

// ThumbnailStore is an optional secondary record of derived thumbnails.
type ThumbnailStore interface {
	Get(ctx context.Context, id string) ([]byte, bool, error)
	Set(ctx context.Context, id string, thumbnail []byte) error
}

// Entry holds the live handles for one image. ThumbnailHandle is empty when
// derivation failed; DeriveErr then carries the reason.
type Entry struct {
	ID              string
	DisplayHandle   Handle
	ThumbnailHandle Handle
	DeriveErr       error
}

// flight marks one creation of an entry. It is registered before the
// creation starts and removed by the creation itself, so Revoke always sees
// it.
type flight struct {
	key     string
	revoked bool
}

type Cache struct {
	registry   *Registry
	deriver    Deriver
	thumbnails ThumbnailStore

	mu       sync.Mutex
	entries  map[string]*Entry
	inflight map[string]*flight
	flights  uint64
	group    singleflight.Group
}

type Option func(*Cache)

// WithThumbnailStore consults store before deriving and writes derived
// thumbnails back to it.
func WithThumbnailStore(store ThumbnailStore) Option {
	return func(c *Cache) {
		c.thumbnails = store
	}
}

func New(deriver Deriver, opts ...Option) *Cache {
	c := &Cache{
		registry: NewRegistry(),
		deriver:  deriver,
		entries:  make(map[string]*Entry),
		inflight: make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCreate returns the entry for id, creating it from binary on first use.
// Concurrent calls for the same id share one derivation. If ctx ends first
// the caller stops waiting but the derivation still completes and is cached.
// An id revoked while its entry was being created fails with *NotFoundError.
func (c *Cache) GetOrCreate(ctx context.Context, id string, binary []byte) (Entry, error) {
	// The flight is registered and started under the lock Revoke takes, so a
	// Revoke after this point always finds it.
	c.mu.Lock()
	if entry, ok := c.entries[id]; ok {
		c.mu.Unlock()
		return *entry, nil
	}
	f, ok := c.inflight[id]
	if !ok || f.revoked {
		c.flights++
		f = &flight{key: fmt.Sprintf("%s#%d", id, c.flights)}
		c.inflight[id] = f
	}
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(f.key, func() (any, error) {
		return c.create(flightCtx, f, id, binary)
	})
	c.mu.Unlock()

	select {
	case res := <-ch:
		if res.Err != nil {
			return Entry{}, res.Err
		}
		return res.Val.(Entry), nil
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}
}

func (c *Cache) create(ctx context.Context, f *flight, id string, binary []byte) (Entry, error) {
	thumbnail, deriveErr := c.thumbnail(ctx, id, binary)

	// Handles are allocated under the same lock that Revoke takes, so a
	// revoked id never receives fresh handles.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[id] == f {
		delete(c.inflight, id)
	}
	if f.revoked {
		slog.Debug("Cache.GetOrCreate: id revoked during creation", "image_id", id)
		return Entry{}, &NotFoundError{Key: id}
	}
	if entry, ok := c.entries[id]; ok {
		return *entry, nil
	}

	mimeType, _ := DetectType(binary)
	entry := &Entry{
		ID:            id,
		DisplayHandle: c.registry.Allocate(binary, mimeType),
	}
	if deriveErr != nil {
		entry.DeriveErr = deriveErr
	} else {
		thumbMimeType, _ := DetectType(thumbnail)
		entry.ThumbnailHandle = c.registry.Allocate(thumbnail, thumbMimeType)
	}
	c.entries[id] = entry
	return *entry, nil
}

func (c *Cache) thumbnail(ctx context.Context, id string, binary []byte) ([]byte, error) {
	if c.thumbnails != nil {
		data, ok, err := c.thumbnails.Get(ctx, id)
		if err != nil {
			slog.Warn("Cache.thumbnail: thumbnail store lookup failed, deriving", "image_id", id, "error", err)
		} else if ok {
			return data, nil
		}
	}

	data, err := c.deriver.Execute(binary)
	if err != nil {
		return nil, err
	}

	if c.thumbnails != nil {
		if err := c.thumbnails.Set(ctx, id, data); err != nil {
			slog.Warn("Cache.thumbnail: failed to persist thumbnail", "image_id", id, "error", err)
		}
	}
	return data, nil
}

// Get returns the entry for id without creating it.
func (c *Cache) Get(id string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Resolve returns the blob behind a handle issued by this cache.
func (c *Cache) Resolve(handle Handle) (Blob, error) {
	return c.registry.Resolve(handle)
}

// Revoke releases both handles of id and removes its entry. An in-flight
// creation for id is discarded when it completes. Unknown ids are a no-op.
func (c *Cache) Revoke(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revokeLocked(id)
}

func (c *Cache) revokeLocked(id string) {
	if f, ok := c.inflight[id]; ok {
		f.revoked = true
	}

	entry, ok := c.entries[id]
	if !ok {
		return
	}
	delete(c.entries, id)
	c.registry.Revoke(entry.DisplayHandle)
	if entry.ThumbnailHandle != "" {
		c.registry.Revoke(entry.ThumbnailHandle)
	}
}

// Clear revokes every entry. It is meant for process teardown, not for
// closing a view.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id := range c.inflight {
		c.revokeLocked(id)
	}
	for id := range c.entries {
		c.revokeLocked(id)
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// InFlight returns the number of entries currently being created.
func (c *Cache) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}
