package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) *Client {
	client, err := NewClient(Params{
		Endpoint:  url + "/v1",
		ProjectID: "test-project",
		APIKey:    "test-key",
	}, log.NewLogger())
	require.NoError(t, err)
	return client
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Params{ProjectID: "p"}, log.NewLogger())
	assert.EqualError(t, err, "API endpoint is empty")

	_, err = NewClient(Params{Endpoint: "http://localhost/v1"}, log.NewLogger())
	assert.EqualError(t, err, "project ID is empty")
}

func TestClient_Call_JSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/functions", r.URL.Path)
		assert.Equal(t, "test-project", r.Header.Get("X-Appwrite-Project"))
		assert.Equal(t, "test-key", r.Header.Get("X-Appwrite-Key"))
		assert.Equal(t, ContentTypeJSON, r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "my-function", body["functionId"])
		assert.Equal(t, true, body["enabled"])

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"$id":"my-function","timeout":15}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	resp, err := client.Call(context.Background(), http.MethodPost, "/functions", map[string]string{
		"content-type": ContentTypeJSON,
	}, map[string]interface{}{
		"functionId": "my-function",
		"enabled":    true,
	})

	require.NoError(t, err)
	assert.Equal(t, "my-function", resp.String("$id"))
	assert.Equal(t, 15, resp.Int("timeout"))
}

func TestClient_Call_Multipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "bytes 0-4/10", r.Header.Get("Content-Range"))
		assert.Equal(t, "index.js", r.FormValue("entrypoint"))
		assert.Equal(t, "true", r.FormValue("activate"))
		assert.Equal(t, []string{"read(\"any\")", "write(\"any\")"}, r.MultipartForm.Value["permissions[]"])

		file, header, err := r.FormFile("code")
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "code.tar.gz", header.Filename)
		assert.Equal(t, "hello", string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"$id":"deployment-1","chunksTotal":2,"chunksUploaded":1}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	resp, err := client.Call(context.Background(), http.MethodPost, "/functions/f/deployments", map[string]string{
		"content-type":  ContentTypeMultipart,
		"content-range": "bytes 0-4/10",
	}, map[string]interface{}{
		"entrypoint":  "index.js",
		"activate":    true,
		"permissions": []string{"read(\"any\")", "write(\"any\")"},
		"code":        InputFile{Name: "code.tar.gz", Data: []byte("hello")},
		"commands":    nil,
	})

	require.NoError(t, err)
	assert.Equal(t, "deployment-1", resp.String("$id"))
	assert.Equal(t, 2, resp.Int("chunksTotal"))
	assert.Equal(t, 1, resp.Int("chunksUploaded"))
}

func TestClient_Call_Query(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Empty(t, r.Header.Get("Content-Type"))
		assert.Equal(t, "term", r.URL.Query().Get("search"))
		assert.Equal(t, []string{"limit(5)", "offset(10)"}, r.URL.Query()["queries[]"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total":0,"files":[]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	resp, err := client.Call(context.Background(), http.MethodGet, "/storage/buckets/b/files", nil, map[string]interface{}{
		"search":  "term",
		"queries": []interface{}{"limit(5)", "offset(10)"},
	})

	require.NoError(t, err)
	assert.Equal(t, 0, resp.Int("total"))
}

func TestClient_Call_APIError(t *testing.T) {
	var requestCount int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Function with the requested ID could not be found.","code":404,"type":"function_not_found"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Call(context.Background(), http.MethodPost, "/functions/missing/deployments", nil, nil)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "function_not_found", apiErr.Type)
	assert.Equal(t, "HTTP 404: Function with the requested ID could not be found. (function_not_found)", apiErr.Error())
	assert.Equal(t, 1, requestCount)
}

func TestClient_Call_PlainTextError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad request\n"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Call(context.Background(), http.MethodPost, "/storage/buckets/b/files", nil, nil)

	assert.EqualError(t, err, "HTTP 400: bad request")
}

func TestCreateCustomRetryFunction(t *testing.T) {
	cases := []struct {
		name     string
		response *http.Response
		err      error
		expected bool
	}{
		{
			name:     "Retry for connection error",
			response: &http.Response{},
			err:      errors.New("EOF"),
			expected: true,
		},
		{
			name:     "No retry for HTTP 400 status code",
			response: &http.Response{StatusCode: http.StatusBadRequest},
			expected: false,
		},
		{
			name:     "Retry for HTTP 429 status code",
			response: &http.Response{StatusCode: http.StatusTooManyRequests},
			expected: true,
		},
		{
			name:     "Retry for HTTP 503 status code",
			response: &http.Response{StatusCode: http.StatusServiceUnavailable},
			expected: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mockLogger := new(mocks.Logger)
			mockLogger.On("Debugf", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()

			retry, _ := createCustomRetryFunction(mockLogger)(context.Background(), tc.response, tc.err)

			assert.Equal(t, tc.expected, retry)
			mockLogger.AssertExpectations(t)
		})
	}
}

func TestClient_Download(t *testing.T) {
	content := bytes.Repeat([]byte("appwrite"), 64*1024)
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, "test-key", r.Header.Get("X-Appwrite-Key"))
		if r.Header.Get("X-Appwrite-Project") != "test-project" || r.Header.Get("X-Appwrite-Key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "/v1/storage/buckets/b/files/f/download", r.URL.Path)
		http.ServeContent(w, r, "file.bin", time.Time{}, bytes.NewReader(content))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	dest := filepath.Join(t.TempDir(), "file.bin")

	err := client.Download(context.Background(), "/storage/buckets/b/files/f/download", nil, dest)
	require.NoError(t, err)

	downloaded, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, len(content), len(downloaded), fmt.Sprintf("downloaded %d bytes", len(downloaded)))
	assert.True(t, bytes.Equal(content, downloaded))
	assert.NotZero(t, atomic.LoadInt32(&requests))
}
