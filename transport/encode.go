package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/url"
	"sort"
	"strconv"
)

// InputFile is a file part of a multipart request.
type InputFile struct {
	Name string
	Data []byte
}

func encodeJSON(params map[string]interface{}) ([]byte, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode json body: %w", err)
	}
	return data, nil
}

func encodeQuery(params map[string]interface{}) string {
	values := url.Values{}
	for _, key := range sortedKeys(params) {
		value := params[key]
		if list, ok := toList(value); ok {
			for _, item := range list {
				values.Add(key+"[]", formatScalar(item))
			}
			continue
		}
		if value == nil {
			continue
		}
		values.Add(key, formatScalar(value))
	}
	return values.Encode()
}

// encodeMultipart returns the body and the content type carrying the boundary.
func encodeMultipart(params map[string]interface{}) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, key := range sortedKeys(params) {
		switch value := params[key].(type) {
		case nil:
			continue
		case InputFile:
			if err := writeFilePart(writer, key, value); err != nil {
				return nil, "", err
			}
		case *InputFile:
			if value == nil {
				continue
			}
			if err := writeFilePart(writer, key, *value); err != nil {
				return nil, "", err
			}
		default:
			if list, ok := toList(value); ok {
				for _, item := range list {
					if err := writer.WriteField(key+"[]", formatScalar(item)); err != nil {
						return nil, "", fmt.Errorf("write field %s: %w", key, err)
					}
				}
				continue
			}
			if err := writer.WriteField(key, formatScalar(value)); err != nil {
				return nil, "", fmt.Errorf("write field %s: %w", key, err)
			}
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}

func writeFilePart(writer *multipart.Writer, key string, file InputFile) error {
	part, err := writer.CreateFormFile(key, file.Name)
	if err != nil {
		return fmt.Errorf("create file part %s: %w", key, err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return fmt.Errorf("write file part %s: %w", key, err)
	}
	return nil
}

func toList(value interface{}) ([]interface{}, bool) {
	switch list := value.(type) {
	case []interface{}:
		return list, true
	case []string:
		items := make([]interface{}, 0, len(list))
		for _, item := range list {
			items = append(items, item)
		}
		return items, true
	default:
		return nil, false
	}
}

func formatScalar(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func sortedKeys(params map[string]interface{}) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
