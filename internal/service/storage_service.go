package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/oac-climate/cix-analyzer/internal/config"
	"github.com/tidwall/gjson"
)

// StorageError wraps a failed object-store call.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

type StorageServiceInterface interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

// StorageService talks to a Supabase-compatible object storage REST API. All
// objects live in one fixed bucket; keys address them within it.
type StorageService struct {
	client *resty.Client
	bucket string
}

func NewStorageService(cfg *config.StorageConfig) *StorageService {
	client := resty.New().
		SetBaseURL(cfg.URL).
		SetAuthToken(cfg.Key).
		SetTimeout(30 * time.Second)
	return &StorageService{
		client: client,
		bucket: cfg.Bucket,
	}
}

// Upload stores data under key and returns the object's public URL.
func (s *StorageService) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(data).
		Post(fmt.Sprintf("/storage/v1/object/%s/%s", s.bucket, key))
	if err != nil {
		return "", &StorageError{Op: "upload", Key: key, Err: err}
	}
	if resp.IsError() {
		return "", &StorageError{Op: "upload", Key: key, Err: apiError(resp)}
	}
	return s.PublicURL(key), nil
}

// Delete removes the object under key. A missing object is not an error so
// deletes stay idempotent.
func (s *StorageService) Delete(ctx context.Context, key string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/storage/v1/object/%s/%s", s.bucket, key))
	if err != nil {
		return &StorageError{Op: "delete", Key: key, Err: err}
	}
	if resp.IsError() && resp.StatusCode() != 404 {
		return &StorageError{Op: "delete", Key: key, Err: apiError(resp)}
	}
	return nil
}

func (s *StorageService) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.client.BaseURL, s.bucket, key)
}

// apiError pulls the service's error message out of the JSON body, falling
// back to the HTTP status when the body carries none.
func apiError(resp *resty.Response) error {
	msg := gjson.GetBytes(resp.Body(), "message").String()
	if msg == "" {
		msg = gjson.GetBytes(resp.Body(), "error").String()
	}
	if msg == "" {
		return fmt.Errorf("unexpected status %s", resp.Status())
	}
	return fmt.Errorf("%s: %s", resp.Status(), msg)
}
