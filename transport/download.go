package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/melbahja/got"
)

// Download saves the binary response of a GET request to dest.
// The file is fetched with range requests over the retrying client.
func (c *Client) Download(ctx context.Context, path string, params map[string]interface{}, dest string) error {
	url := c.endpoint + path
	if query := encodeQuery(params); query != "" {
		url += "?" + query
	}

	client := c.httpClient.StandardClient()
	client.Transport = &headerTransport{
		base:    client.Transport,
		headers: c.headers,
	}

	c.logger.Debugf("Downloading %s to %s", path, dest)
	if err := downloadFile(ctx, client, url, dest); err != nil {
		return fmt.Errorf("download %s: %w", path, err)
	}
	return nil
}

func downloadFile(ctx context.Context, client *http.Client, url string, dest string) error {
	// Do uses the client of the download, not the one of the downloader.
	download := got.NewDownload(ctx, url, dest)
	download.Client = client

	return got.New().Do(download)
}

// headerTransport adds the project credentials to requests issued by the downloader.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
