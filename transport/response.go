package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Response is a decoded JSON object returned by the API.
type Response map[string]interface{}

// String returns the string value stored under key, or "" if it is missing or not a string.
func (r Response) String(key string) string {
	value, ok := r[key].(string)
	if !ok {
		return ""
	}
	return value
}

// Int returns the numeric value stored under key, or 0.
// JSON numbers decode as float64, so every numeric kind is accepted.
func (r Response) Int(key string) int {
	switch value := r[key].(type) {
	case float64:
		return int(value)
	case int:
		return value
	case int64:
		return int(value)
	case json.Number:
		n, err := value.Int64()
		if err != nil {
			return 0
		}
		return int(n)
	default:
		return 0
	}
}

// Decode converts the response into a typed model.
func (r Response) Decode(v interface{}) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// APIError is returned for every non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	Type       string
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s (%s)", e.StatusCode, e.Message, e.Type)
}

type errorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Type    string `json:"type"`
}

func unwrapError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("HTTP %d: read error body: %w", resp.StatusCode, err)
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}

	var decoded errorResponse
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Message != "" {
		apiErr.Message = decoded.Message
		apiErr.Type = decoded.Type
	}

	return apiErr
}

func decodeResponse(resp *http.Response) (Response, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if len(body) == 0 {
		return Response{}, nil
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), ContentTypeJSON) {
		return Response{"body": string(body)}, nil
	}

	var response Response
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	return response, nil
}
