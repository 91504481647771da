package database

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

const (
	imagesBucket = "images"
	metaBucket   = "meta"
	versionKey   = "version"

	bboltSchemaVersion = 1
)

// BboltDatabase stores images in a single BoltDB file, one key per image id.
type BboltDatabase struct {
	db *bbolt.DB

	initMu      sync.Mutex
	initialized bool
}

// NewBboltDatabase opens (or creates) the BoltDB file at path.
func NewBboltDatabase(path string) (DatabaseService, error) {
	if strings.TrimSpace(path) == "" {
		return nil, storageError("open", fmt.Errorf("storage path is required"))
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, storageError("open", err)
	}
	return &BboltDatabase{db: db}, nil
}

func (s *BboltDatabase) ensureBuckets() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initialized {
		return nil
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		if err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}

		version := uint64(0)
		if raw := meta.Get([]byte(versionKey)); len(raw) == 8 {
			version = binary.BigEndian.Uint64(raw)
		}
		if version > bboltSchemaVersion {
			return fmt.Errorf("schema version %d is newer than supported version %d", version, bboltSchemaVersion)
		}
		if version == bboltSchemaVersion {
			return nil
		}

		if _, err := tx.CreateBucketIfNotExists([]byte(imagesBucket)); err != nil {
			return fmt.Errorf("create images bucket: %w", err)
		}

		raw := make([]byte, 8)
		binary.BigEndian.PutUint64(raw, bboltSchemaVersion)
		return meta.Put([]byte(versionKey), raw)
	})
	if err != nil {
		return storageError("init", err)
	}

	s.initialized = true
	return nil
}

func (s *BboltDatabase) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return storageError("close", s.db.Close())
}

func (s *BboltDatabase) Put(ctx context.Context, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return storageError("put", err)
	}
	if id == "" {
		return storageError("put", ErrEmptyID)
	}
	if err := s.ensureBuckets(); err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(imagesBucket))
		if bucket == nil {
			return fmt.Errorf("images bucket is missing")
		}
		return bucket.Put(imageKey(id), data)
	})
	return storageError("put", err)
}

func (s *BboltDatabase) GetAll(ctx context.Context) ([]*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageError("getAll", err)
	}
	if err := s.ensureBuckets(); err != nil {
		return nil, err
	}

	var images []*Image
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(imagesBucket))
		if bucket == nil {
			return fmt.Errorf("images bucket is missing")
		}
		return bucket.ForEach(func(k, v []byte) error {
			// bbolt memory is only valid inside the transaction
			images = append(images, &Image{ID: string(k), Binary: append([]byte{}, v...)})
			return nil
		})
	})
	if err != nil {
		return nil, storageError("getAll", err)
	}
	return images, nil
}

func (s *BboltDatabase) Get(ctx context.Context, id string) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageError("get", err)
	}
	if err := s.ensureBuckets(); err != nil {
		return nil, err
	}

	var img *Image
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(imagesBucket))
		if bucket == nil {
			return fmt.Errorf("images bucket is missing")
		}
		if v := bucket.Get(imageKey(id)); v != nil {
			img = &Image{ID: id, Binary: append([]byte{}, v...)}
		}
		return nil
	})
	if err != nil {
		return nil, storageError("get", err)
	}
	return img, nil
}

func (s *BboltDatabase) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return storageError("delete", err)
	}
	if err := s.ensureBuckets(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(imagesBucket))
		if bucket == nil {
			return fmt.Errorf("images bucket is missing")
		}
		return bucket.Delete(imageKey(id))
	})
	return storageError("delete", err)
}

func imageKey(id string) []byte {
	return []byte(id)
}
