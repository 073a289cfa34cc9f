package labelstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// Store archives purchased label files into a bucket so the stored label_url
// outlives the gateway's short-lived download link. A nil *Store is valid and
// archives nothing.
type Store struct {
	client     *storage.Client
	bucket     string
	httpClient *http.Client
}

func New(ctx context.Context, bucket, credentialsFile string) (*Store, error) {
	if bucket == "" {
		return nil, nil
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Store{
		client:     client,
		bucket:     bucket,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Archive downloads the label at srcURL and writes it under
// labels/<proposal>/<party>. Returns the durable public URL.
func (s *Store) Archive(ctx context.Context, proposalID uint64, party, srcURL string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("label store is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("label download failed: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", err
	}

	token := uuid.NewString()
	objectPath := fmt.Sprintf("labels/%d/%s.pdf", proposalID, party)
	obj := s.client.Bucket(s.bucket).Object(objectPath)
	w := obj.NewWriter(ctx)
	w.ContentType = "application/pdf"
	w.Metadata = map[string]string{
		"firebaseStorageDownloadTokens": token,
	}
	if _, err := w.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	escapedPath := url.PathEscape(objectPath)
	publicURL := fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		s.bucket, escapedPath, token)
	return publicURL, nil
}
