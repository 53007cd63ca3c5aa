// Package apitest provides an in-process server answering chunked uploads the way the API does.
package apitest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/appwrite/go-cliutils/transport"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/require"
)

const (
	// ProjectID is the project the test clients are expected to send.
	ProjectID = "test-project"
	// APIKey is the key the test clients are expected to send.
	APIKey = "test-key"
)

// ChunkRequest is one received chunk.
type ChunkRequest struct {
	Path         string
	ContentRange string
	ResourceID   string
	Fields       map[string][]string
	FileName     string
	Data         []byte
}

// Server records chunk requests and assembles the uploaded content.
type Server struct {
	*httptest.Server

	fileField  string
	resourceID string
	resource   map[string]interface{}

	mu        sync.Mutex
	requests  []ChunkRequest
	content   bytes.Buffer
	downloads int
}

// NewServer starts a server expecting the chunk bytes in fileField and answering every
// chunk with resource, completed by the upload counters. It is closed with the test.
func NewServer(t *testing.T, fileField, resourceID string, resource map[string]interface{}) *Server {
	s := &Server{
		fileField:  fileField,
		resourceID: resourceID,
		resource:   resource,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Endpoint is the API endpoint clients should be configured with.
func (s *Server) Endpoint() string {
	return s.URL + "/v1"
}

// NewClient returns a client of the server which does not retry failed requests.
func (s *Server) NewClient(t *testing.T) *transport.Client {
	client, err := transport.NewClient(transport.Params{
		Endpoint:  s.Endpoint(),
		ProjectID: ProjectID,
		APIKey:    APIKey,
	}, log.NewLogger())
	require.NoError(t, err)
	return client
}

// Requests returns the chunks received so far, in order.
func (s *Server) Requests() []ChunkRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChunkRequest{}, s.requests...)
}

// Downloads returns the number of authenticated download requests served.
func (s *Server) Downloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloads
}

// Content returns the concatenation of every received chunk.
func (s *Server) Content() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte{}, s.content.Bytes()...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Appwrite-Project") != ProjectID {
		writeError(w, http.StatusUnauthorized, "missing project", "general_unauthorized_scope")
		return
	}
	if r.Header.Get("X-Appwrite-Key") != APIKey {
		writeError(w, http.StatusUnauthorized, "missing API key", "general_unauthorized_scope")
		return
	}

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/download"):
		s.mu.Lock()
		s.downloads++
		s.mu.Unlock()
		http.ServeContent(w, r, "download", time.Time{}, bytes.NewReader(s.Content()))
	case r.Method == http.MethodPost:
		s.handleChunk(w, r)
	default:
		writeError(w, http.StatusNotFound, "route not found", "general_route_not_found")
	}
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "general_argument_invalid")
		return
	}

	file, header, err := r.FormFile(s.fileField)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("missing %s: %s", s.fileField, err), "storage_invalid_file")
		return
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "storage_invalid_file")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req := ChunkRequest{
		Path:         r.URL.Path,
		ContentRange: r.Header.Get("Content-Range"),
		ResourceID:   r.Header.Get("X-Appwrite-Id"),
		Fields:       r.MultipartForm.Value,
		FileName:     header.Filename,
		Data:         data,
	}
	if len(s.requests) > 0 && req.ResourceID != s.resourceID {
		writeError(w, http.StatusBadRequest, "chunk does not address the upload", "storage_invalid_content_range")
		return
	}

	if req.ContentRange != "" {
		var start, end, total int64
		if _, err := fmt.Sscanf(req.ContentRange, "bytes %d-%d/%d", &start, &end, &total); err != nil {
			writeError(w, http.StatusBadRequest, "invalid content range", "storage_invalid_content_range")
			return
		}
		if start != int64(s.content.Len()) || end-start+1 != int64(len(data)) {
			writeError(w, http.StatusBadRequest, "content range does not match the chunk", "storage_invalid_content_range")
			return
		}
	}

	s.requests = append(s.requests, req)
	s.content.Write(data)

	body := map[string]interface{}{}
	for k, v := range s.resource {
		body[k] = v
	}
	body["$id"] = s.resourceID
	body["chunksTotal"] = s.requests[0].chunksTotal()
	body["chunksUploaded"] = len(s.requests)
	body["sizeOriginal"] = s.content.Len()

	writeJSON(w, http.StatusCreated, body)
}

func (c ChunkRequest) chunksTotal() int64 {
	var start, end, total int64
	if _, err := fmt.Sscanf(c.ContentRange, "bytes %d-%d/%d", &start, &end, &total); err != nil {
		return 1
	}
	chunkSize := end - start + 1
	return (total + chunkSize - 1) / chunkSize
}

func writeError(w http.ResponseWriter, status int, message, errType string) {
	writeJSON(w, status, map[string]interface{}{
		"message": message,
		"code":    status,
		"type":    errType,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
