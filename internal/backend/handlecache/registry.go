package handlecache

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

const handlePrefix = "blob:"

// Handle is an opaque, revocable reference to a binary held by a Registry.
// A handle is only meaningful to the registry, and process, that issued it.
type Handle string

// Blob is the content behind a handle. Data is shared, not copied, and must
// not be modified by callers.
type Blob struct {
	Data     []byte
	MimeType string
}

// Registry issues handles for binaries and resolves them until revoked.
type Registry struct {
	mu    sync.RWMutex
	blobs map[Handle]Blob
}

func NewRegistry() *Registry {
	return &Registry{
		blobs: make(map[Handle]Blob),
	}
}

// Allocate registers data under a fresh handle.
func (r *Registry) Allocate(data []byte, mimeType string) Handle {
	handle := Handle(handlePrefix + uuid.NewString())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.blobs[handle] = Blob{Data: data, MimeType: mimeType}
	return handle
}

// Resolve returns the blob behind handle. Unknown and revoked handles fail
// with *NotFoundError.
func (r *Registry) Resolve(handle Handle) (Blob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	blob, ok := r.blobs[handle]
	if !ok {
		return Blob{}, &NotFoundError{Key: string(handle)}
	}
	return blob, nil
}

// Revoke releases handle permanently. Revoking an unknown handle is a no-op.
func (r *Registry) Revoke(handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.blobs, handle)
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

// ParseHandle accepts both "blob:<uuid>" and the bare uuid, as used in URLs.
func ParseHandle(raw string) (Handle, bool) {
	id, err := uuid.Parse(strings.TrimPrefix(raw, handlePrefix))
	if err != nil {
		return "", false
	}
	return Handle(handlePrefix + id.String()), true
}

// Token returns the handle without its "blob:" prefix.
func (h Handle) Token() string {
	return strings.TrimPrefix(string(h), handlePrefix)
}
