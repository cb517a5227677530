// Package storage stores uploaded product images on a local directory or
// an S3-compatible bucket (AWS S3, MinIO, R2, Spaces).
//
//	storage.Connect(ctx)
//	err := storage.Default().Put(ctx, "products/abc/1.jpg", file, "image/jpeg")
//	url := storage.Default().URL("products/abc/1.jpg")
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/ourstore/storefront/config"
	"github.com/ourstore/storefront/pkg/logger"
)

// Disk is a storage driver.
type Disk interface {
	// Put writes r to key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	// Get opens key for reading. The caller closes it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// URL is the public address of key.
	URL(key string) string
}

var (
	ErrNotExist   = errors.New("storage: object does not exist")
	ErrInvalidKey = errors.New("storage: invalid key")
)

var (
	mu          sync.RWMutex
	disks       = map[string]Disk{}
	defaultDisk = "local"
)

// Connect boots the configured disks. The local disk is always available;
// the S3 disk only when a bucket is configured.
func Connect(ctx context.Context) error {
	mu.Lock()
	defer mu.Unlock()

	defaultDisk = config.StorageDefault()
	disks["local"] = NewLocal(config.StorageLocalRoot(), config.StorageURL())

	if config.StorageS3Bucket() != "" {
		d, err := NewS3(ctx, S3Options{
			Bucket:   config.StorageS3Bucket(),
			Region:   config.StorageS3Region(),
			Key:      config.StorageS3Key(),
			Secret:   config.StorageS3Secret(),
			Endpoint: config.StorageS3Endpoint(),
			BaseURL:  config.StorageS3URL(),
		})
		if err != nil {
			return err
		}
		disks["s3"] = d
	}
	if _, ok := disks[defaultDisk]; !ok {
		return fmt.Errorf("storage: default disk %q is not configured", defaultDisk)
	}
	logger.Info("storage ready", "disk", defaultDisk)
	return nil
}

// Register installs d under name. Tests use it to swap in a temp disk.
func Register(name string, d Disk) {
	mu.Lock()
	disks[name] = d
	mu.Unlock()
}

// SetDefault selects the disk returned by Default.
func SetDefault(name string) {
	mu.Lock()
	defaultDisk = name
	mu.Unlock()
}

// Use returns the named disk or nil.
func Use(name string) Disk {
	mu.RLock()
	defer mu.RUnlock()
	return disks[name]
}

// Default returns the configured disk, falling back to local.
func Default() Disk {
	mu.RLock()
	defer mu.RUnlock()
	if d, ok := disks[defaultDisk]; ok {
		return d
	}
	return disks["local"]
}

// cleanKey normalises key to a relative slash path that cannot escape the
// disk root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", ErrInvalidKey
	}
	return k, nil
}
