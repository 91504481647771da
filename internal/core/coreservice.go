package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
	"golang.org/x/sync/errgroup"

	"github.com/jo-hoe/gengallery/internal/backend/database"
	"github.com/jo-hoe/gengallery/internal/backend/handlecache"
	"github.com/jo-hoe/gengallery/internal/backend/thumbnailstore"
	"github.com/jo-hoe/gengallery/internal/generation"
)

var ErrGenerationDisabled = errors.New("no generation models configured")

// GalleryItem is one image as presented to the UI. When the thumbnail could
// not be derived, ThumbnailHandle repeats DisplayHandle and ThumbnailFallback
// is set.
type GalleryItem struct {
	ID                string             `json:"id"`
	DisplayHandle     handlecache.Handle `json:"displayHandle"`
	ThumbnailHandle   handlecache.Handle `json:"thumbnailHandle"`
	ThumbnailFallback bool               `json:"thumbnailFallback"`
}

// Export is an original image ready to be saved by the user.
type Export struct {
	ID       string
	Filename string
	MimeType string
	Data     []byte
}

// DeleteError reports a delete that failed in the durable store. The image
// and its handles are left untouched.
type DeleteError struct {
	ID  string
	Err error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("failed to delete image %s: %v", e.ID, e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}

// Generator is the text-to-image service consumed by Generate.
type Generator interface {
	Generate(ctx context.Context, model string, prompt string) ([]byte, error)
	Models() []generation.Model
}

// thumbnailRecord is the secondary thumbnail store as seen by the service.
type thumbnailRecord interface {
	handlecache.ThumbnailStore
	Delete(ctx context.Context, id string) error
	Close() error
}

// CoreService keeps the durable store, the handle cache and the derived
// thumbnails consistent. Handles are only revoked when an image is removed
// or the service is closed.
type CoreService struct {
	config          *ServiceConfig
	databaseService database.DatabaseService
	thumbnails      thumbnailRecord
	cache           *handlecache.Cache
	generator       Generator
	loadConcurrency int
	now             func() time.Time

	// Remove takes the write lock so that no Load can hand out handles for
	// an image that is being deleted.
	mu sync.RWMutex
	// addMu makes choosing a free id and storing under it one step.
	addMu sync.Mutex
}

func NewCoreService(ctx context.Context, config *ServiceConfig) (*CoreService, error) {
	databaseService, err := getDatabaseService(config)
	if err != nil {
		return nil, err
	}

	thumbnailCommand, err := config.ThumbnailCommand()
	if err != nil {
		_ = databaseService.Close()
		return nil, err
	}

	var thumbnails thumbnailRecord
	if config.ThumbnailStore.Type == ThumbnailStoreRedis {
		store, err := thumbnailstore.Dial(ctx, config.ThumbnailStore.Address, thumbnailCommand.GetParams().Key(), config.ThumbnailStore.TTL)
		if err != nil {
			_ = databaseService.Close()
			return nil, fmt.Errorf("failed to initialize thumbnail store: %w", err)
		}
		slog.Info("thumbnail store initialized successfully", "type", ThumbnailStoreRedis, "address", config.ThumbnailStore.Address)
		thumbnails = store
	}

	var generator Generator
	if len(config.Generation.Models) > 0 {
		maxSize, err := config.MaxResponseSizeBytes()
		if err != nil {
			_ = databaseService.Close()
			return nil, err
		}
		generator = generation.NewClient(config.GenerationModels(), config.Generation.Token, maxSize)
	}

	return newCoreService(config, databaseService, thumbnailCommand, thumbnails, generator), nil
}

func newCoreService(config *ServiceConfig, databaseService database.DatabaseService, deriver handlecache.Deriver, thumbnails thumbnailRecord, generator Generator) *CoreService {
	var opts []handlecache.Option
	if thumbnails != nil {
		opts = append(opts, handlecache.WithThumbnailStore(thumbnails))
	}
	concurrency := config.Load.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &CoreService{
		config:          config,
		databaseService: databaseService,
		thumbnails:      thumbnails,
		cache:           handlecache.New(deriver, opts...),
		generator:       generator,
		loadConcurrency: concurrency,
		now:             time.Now,
	}
}

func getDatabaseService(config *ServiceConfig) (database.DatabaseService, error) {
	databaseService, err := database.NewDatabase(config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)
	return databaseService, nil
}

// Load returns every stored image, ordered by id, with live handles.
// Thumbnail failures degrade to the display handle; store failures are
// returned as *database.StorageError.
func (service *CoreService) Load(ctx context.Context) ([]GalleryItem, error) {
	service.mu.RLock()
	defer service.mu.RUnlock()

	images, err := service.databaseService.GetAll(ctx)
	if err != nil {
		slog.Error("CoreService.Load: failed to read images", "error", err)
		return nil, err
	}
	sort.Slice(images, func(i, j int) bool {
		return images[i].ID < images[j].ID
	})

	items := make([]*GalleryItem, len(images))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(service.loadConcurrency)
	for i, image := range images {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			entry, err := service.cache.GetOrCreate(groupCtx, image.ID, image.Binary)
			if errors.Is(err, handlecache.ErrNotFound) {
				// revoked while loading; the image is gone
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to prepare image %s: %w", image.ID, err)
			}
			items[i] = toGalleryItem(entry)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		slog.Error("CoreService.Load: failed to prepare gallery", "error", err)
		return nil, err
	}

	result := make([]GalleryItem, 0, len(items))
	for _, item := range items {
		if item != nil {
			result = append(result, *item)
		}
	}
	return result, nil
}

func toGalleryItem(entry handlecache.Entry) *GalleryItem {
	item := &GalleryItem{
		ID:              entry.ID,
		DisplayHandle:   entry.DisplayHandle,
		ThumbnailHandle: entry.ThumbnailHandle,
	}
	if entry.DeriveErr != nil {
		slog.Warn("CoreService.Load: thumbnail unavailable, using original",
			"image_id", entry.ID, "error", entry.DeriveErr)
		item.ThumbnailHandle = entry.DisplayHandle
		item.ThumbnailFallback = true
	}
	return item
}

// Remove deletes the image from the durable store and only then revokes its
// handles. A failed store delete returns *DeleteError and changes nothing.
// Removing an unknown id succeeds.
func (service *CoreService) Remove(ctx context.Context, id string) error {
	service.mu.Lock()
	defer service.mu.Unlock()

	if err := service.databaseService.Delete(ctx, id); err != nil {
		slog.Error("CoreService.Remove: failed to delete image", "image_id", id, "error", err)
		return &DeleteError{ID: id, Err: err}
	}

	service.cache.Revoke(id)

	if service.thumbnails != nil {
		if err := service.thumbnails.Delete(ctx, id); err != nil {
			slog.Warn("CoreService.Remove: failed to delete stored thumbnail", "image_id", id, "error", err)
		}
	}

	slog.Info("CoreService.Remove: image deleted", "image_id", id)
	return nil
}

var filenameReplacer = strings.NewReplacer(":", "-", "/", "-", "\\", "-")

// Export returns the original bytes behind the current display handle of id.
// Ids without a cache entry fail with *handlecache.NotFoundError.
func (service *CoreService) Export(ctx context.Context, id string) (Export, error) {
	entry, ok := service.cache.Get(id)
	if !ok {
		return Export{}, &handlecache.NotFoundError{Key: id}
	}
	blob, err := service.cache.Resolve(entry.DisplayHandle)
	if err != nil {
		return Export{}, err
	}

	_, extension := handlecache.DetectType(blob.Data)
	return Export{
		ID:       id,
		Filename: fmt.Sprintf("image-%s.%s", filenameReplacer.Replace(id), extension),
		MimeType: blob.MimeType,
		Data:     blob.Data,
	}, nil
}

// Resolve returns the blob behind a handle issued by Load.
func (service *CoreService) Resolve(handle handlecache.Handle) (handlecache.Blob, error) {
	return service.cache.Resolve(handle)
}

// AddImage stores image under a fresh timestamp id and returns the id.
func (service *CoreService) AddImage(ctx context.Context, image []byte) (string, error) {
	service.addMu.Lock()
	defer service.addMu.Unlock()

	id, err := service.nextID(ctx)
	if err != nil {
		return "", err
	}

	if err := service.databaseService.Put(ctx, id, image); err != nil {
		slog.Error("CoreService.AddImage: failed to store image", "image_id", id, "error", err)
		return "", err
	}

	slog.Info("CoreService.AddImage: image stored", "image_id", id, "size", units.HumanSize(float64(len(image))))
	return id, nil
}

// nextID returns a timestamp id not yet present in the store; images created
// within the same millisecond move to the next free millisecond.
func (service *CoreService) nextID(ctx context.Context) (string, error) {
	createdAt := service.now()
	for {
		id := database.GenerateID(createdAt)
		existing, err := service.databaseService.Get(ctx, id)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return id, nil
		}
		createdAt = createdAt.Add(time.Millisecond)
	}
}

// Generate asks the generation service for an image of prompt and stores it.
func (service *CoreService) Generate(ctx context.Context, model string, prompt string) (string, error) {
	if service.generator == nil {
		return "", ErrGenerationDisabled
	}

	image, err := service.generator.Generate(ctx, model, prompt)
	if err != nil {
		slog.Error("CoreService.Generate: generation failed", "model", model, "error", err)
		return "", err
	}
	return service.AddImage(ctx, image)
}

// Models lists the configured generation models.
func (service *CoreService) Models() []generation.Model {
	if service.generator == nil {
		return nil
	}
	return service.generator.Models()
}

// Close revokes every handle and releases the stores.
func (service *CoreService) Close() error {
	service.mu.Lock()
	defer service.mu.Unlock()

	service.cache.Clear()

	var errs []error
	if service.thumbnails != nil {
		errs = append(errs, service.thumbnails.Close())
	}
	errs = append(errs, service.databaseService.Close())
	return errors.Join(errs...)
}
