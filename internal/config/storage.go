package config

import (
	"log"
	"os"
	"strings"
	"sync"
)

type StorageConfig struct {
	URL    string
	Key    string
	Bucket string
}

var (
	storageConfig *StorageConfig
	storageOnce   sync.Once
)

// LoadStorageConfig reads the object-store credentials once. The endpoint URL
// and access key are mandatory; the process must not start without them.
func LoadStorageConfig() *StorageConfig {
	storageOnce.Do(func() {
		bucket := os.Getenv("STORAGE_BUCKET")
		if bucket == "" {
			bucket = "evaluaciones-cix-files"
		}
		storageConfig = &StorageConfig{
			URL:    strings.TrimRight(os.Getenv("STORAGE_URL"), "/"),
			Key:    os.Getenv("STORAGE_KEY"),
			Bucket: bucket,
		}
	})
	return storageConfig
}

// Validate fails fast on missing credentials.
func (c *StorageConfig) Validate() {
	if c.URL == "" || c.Key == "" {
		log.Fatal("STORAGE_URL and STORAGE_KEY must be set")
	}
}
