package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	storage_go "github.com/supabase-community/storage-go"
)

const uploadCacheControl = "3600"

// SupabaseStore talks to Supabase Storage with the service role key
type SupabaseStore struct {
	baseURL string
	key     string
	bucket  string
}

// NewSupabaseStore creates a client for bucket at projectURL
func NewSupabaseStore(projectURL, serviceRoleKey, bucket string) (*SupabaseStore, error) {
	if projectURL == "" || serviceRoleKey == "" || bucket == "" {
		return nil, fmt.Errorf("supabase url, service role key and bucket are required")
	}
	if _, err := url.ParseRequestURI(projectURL); err != nil {
		return nil, fmt.Errorf("invalid supabase url: %w", err)
	}
	return &SupabaseStore{
		baseURL: strings.TrimRight(projectURL, "/") + "/storage/v1",
		key:     serviceRoleKey,
		bucket:  bucket,
	}, nil
}

// client returns a fresh storage client. storage_go.Client keeps per-upload
// headers on shared state, so clients are not reused across calls.
func (s *SupabaseStore) client() *storage_go.Client {
	return storage_go.NewClient(s.baseURL, s.key, map[string]string{"apikey": s.key})
}

// Upload writes a new object. Existing objects are never overwritten.
func (s *SupabaseStore) Upload(ctx context.Context, objectPath string, body io.Reader, _ int64, contentType string) error {
	cacheControl := uploadCacheControl
	upsert := false
	opts := storage_go.FileOptions{
		CacheControl: &cacheControl,
		ContentType:  &contentType,
		Upsert:       &upsert,
	}
	_, err := withContext(ctx, func() (storage_go.FileUploadResponse, error) {
		return s.client().UploadFile(s.bucket, objectPath, body, opts)
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", objectPath, mapError(err))
	}
	return nil
}

// CreateSignedURL returns an absolute URL granting read access for ttl
func (s *SupabaseStore) CreateSignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	resp, err := withContext(ctx, func() (storage_go.SignedUrlResponse, error) {
		return s.client().CreateSignedUrl(s.bucket, objectPath, int(ttl/time.Second))
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", objectPath, mapError(err))
	}
	signed := resp.SignedURL
	if signed == "" {
		return "", fmt.Errorf("failed to sign %s: empty signed url", objectPath)
	}
	if !strings.HasPrefix(signed, "http://") && !strings.HasPrefix(signed, "https://") {
		signed = s.baseURL + signed
	}
	return signed, nil
}

// Remove deletes an object
func (s *SupabaseStore) Remove(ctx context.Context, objectPath string) error {
	_, err := withContext(ctx, func() ([]storage_go.FileUploadResponse, error) {
		return s.client().RemoveFile(s.bucket, []string{objectPath})
	})
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", objectPath, mapError(err))
	}
	return nil
}

// withContext runs fn and returns early when ctx ends; storage_go calls take no context.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// mapError turns Supabase's "not found" responses into ErrNotFound.
func mapError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not found") || strings.Contains(msg, "not_found") {
		return fmt.Errorf("%w: %s", ErrNotFound, err.Error())
	}
	return err
}
