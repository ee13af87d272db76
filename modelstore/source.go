package modelstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/krau/neuroscan/config"
)

func SourceFor(cfg config.Config) (Source, error) {
	u, err := url.Parse(cfg.ModelUrl)
	if err != nil {
		return nil, fmt.Errorf("invalid model_url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		return &HTTPSource{URL: cfg.ModelUrl}, nil
	case "azblob":
		container, blob, err := parseBlobURL(u)
		if err != nil {
			return nil, err
		}
		return NewBlobSource(cfg.AzureAccount, cfg.AzureKey, container, blob)
	default:
		return nil, fmt.Errorf("unsupported model_url scheme: %q", u.Scheme)
	}
}

type HTTPSource struct {
	URL    string
	Client *http.Client
}

func (s *HTTPSource) Fetch(ctx context.Context, w io.Writer) error {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	return nil
}

// BlobSource reads azblob://<container>/<blob> with a shared key.
type BlobSource struct {
	client    *azblob.Client
	container string
	blob      string
}

func NewBlobSource(account, key, container, blob string) (*BlobSource, error) {
	if account == "" || key == "" {
		return nil, fmt.Errorf("azure_account and azure_key are required for azblob model_url")
	}
	credential, err := azblob.NewSharedKeyCredential(account, key)
	if err != nil {
		return nil, fmt.Errorf("invalid azure credentials: %w", err)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net/", account),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	return &BlobSource{client: client, container: container, blob: blob}, nil
}

func (s *BlobSource) Fetch(ctx context.Context, w io.Writer) error {
	resp, err := s.client.DownloadStream(ctx, s.container, s.blob, nil)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	body := resp.Body
	defer body.Close()
	if _, err := io.Copy(w, body); err != nil {
		return fmt.Errorf("read blob: %w", err)
	}
	return nil
}

func parseBlobURL(u *url.URL) (container, blob string, err error) {
	container = u.Host
	blob = strings.TrimPrefix(u.Path, "/")
	if container == "" || blob == "" {
		return "", "", fmt.Errorf("azblob model_url must look like azblob://<container>/<blob>, got %q", u.String())
	}
	return container, blob, nil
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
