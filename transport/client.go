// Package transport performs requests against the platform's REST API.
// Every command in the client funnels through Client.Call, which encodes the
// parameters, attaches the project credentials and decodes the JSON answer.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	sdkName     = "Appwrite CLI Go"
	sdkVersion  = "2.0.0"
	sdkLanguage = "go"

	responseFormat = "1.7.0"

	// ContentTypeMultipart selects multipart encoding of the parameters.
	ContentTypeMultipart = "multipart/form-data"
	// ContentTypeJSON selects JSON encoding of the parameters.
	ContentTypeJSON = "application/json"
)

// Params ...
type Params struct {
	Endpoint  string
	ProjectID string
	APIKey    string
	// RetryMax is the number of retries of a failed request. Only used when HTTPClient is nil.
	RetryMax int
	// HTTPClient can be nil, unless you want to provide a preconfigured client.
	HTTPClient *retryablehttp.Client
}

// Client ...
type Client struct {
	httpClient *retryablehttp.Client
	endpoint   string
	headers    map[string]string
	logger     log.Logger
}

// NewClient ...
func NewClient(params Params, logger log.Logger) (*Client, error) {
	if params.Endpoint == "" {
		return nil, fmt.Errorf("API endpoint is empty")
	}
	if params.ProjectID == "" {
		return nil, fmt.Errorf("project ID is empty")
	}

	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = retryhttp.NewClient(logger)
		httpClient.RetryMax = params.RetryMax
		httpClient.CheckRetry = createCustomRetryFunction(logger)
	}

	headers := map[string]string{
		"X-Appwrite-Project":         params.ProjectID,
		"X-Appwrite-Response-Format": responseFormat,
		"User-Agent":                 fmt.Sprintf("%s/%s", strings.ReplaceAll(sdkName, " ", ""), sdkVersion),
		"x-sdk-name":                 sdkName,
		"x-sdk-platform":             "console",
		"x-sdk-language":             sdkLanguage,
		"x-sdk-version":              sdkVersion,
	}
	if params.APIKey != "" {
		headers["X-Appwrite-Key"] = params.APIKey
	}

	return &Client{
		httpClient: httpClient,
		endpoint:   strings.TrimSuffix(params.Endpoint, "/"),
		headers:    headers,
		logger:     logger,
	}, nil
}

// Call sends one request and returns the decoded JSON response.
// The encoding of params depends on the method and the content-type header:
// query string for GET and HEAD, multipart body for multipart/form-data, JSON otherwise.
// A non-2xx status is returned as *APIError.
func (c *Client) Call(ctx context.Context, method, path string, headers map[string]string, params map[string]interface{}) (Response, error) {
	req, err := c.newRequest(ctx, method, path, headers, params)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	dump, err := httputil.DumpRequest(req.Request, false)
	if err != nil {
		c.logger.Warnf("error while dumping request: %s", err)
	}
	c.logger.Debugf("Request dump: %s", string(dump))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Printf("%s", err)
		}
	}(resp.Body)

	dump, err = httputil.DumpResponse(resp, false)
	if err != nil {
		c.logger.Warnf("error while dumping response: %s", err)
	}
	c.logger.Debugf("Response dump: %s", string(dump))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, unwrapError(resp)
	}

	return decodeResponse(resp)
}

func (c *Client) newRequest(ctx context.Context, method, path string, headers map[string]string, params map[string]interface{}) (*retryablehttp.Request, error) {
	url := c.endpoint + path
	contentType := headerValue(headers, "content-type")

	var body interface{}
	switch {
	case method == http.MethodGet || method == http.MethodHead:
		if query := encodeQuery(params); query != "" {
			url += "?" + query
		}
		contentType = ""
	case strings.HasPrefix(contentType, ContentTypeMultipart):
		data, multipartType, err := encodeMultipart(params)
		if err != nil {
			return nil, err
		}
		body = data
		contentType = multipartType
	default:
		data, err := encodeJSON(params)
		if err != nil {
			return nil, err
		}
		body = data
		contentType = ContentTypeJSON
	}

	req, err := retryablehttp.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	} else {
		req.Header.Del("Content-Type")
	}

	return req, nil
}

func createCustomRetryFunction(logger log.Logger) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, requestErr error) (bool, error) {
		retry, err := retryablehttp.DefaultRetryPolicy(ctx, resp, requestErr)
		logger.Debugf("CheckRetry: retry=%v ; err=%+v ; requestErr=%+v", retry, err, requestErr)
		return retry, err
	}
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
