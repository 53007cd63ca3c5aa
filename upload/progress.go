package upload

import "github.com/appwrite/go-cliutils/transport"

// ProgressEvent is emitted after every successfully uploaded chunk.
type ProgressEvent struct {
	// ResourceID is the server assigned id of the deployment or file.
	ResourceID string
	// Progress is the completed percentage, exactly 100 only after the last chunk.
	Progress float64
	// SizeUploaded is the number of bytes sent so far.
	SizeUploaded int64
	// ChunksTotal and ChunksUploaded are the server side counters, 0 if the response omits them.
	ChunksTotal    int
	ChunksUploaded int
}

// ProgressFunc receives progress events in chunk order, on the uploading goroutine.
type ProgressFunc func(ProgressEvent)

func percentage(chunksSent int, chunkSize, totalSize int64) float64 {
	if totalSize == 0 {
		return 100
	}

	covered := int64(chunksSent) * chunkSize
	if covered > totalSize {
		covered = totalSize
	}
	return float64(covered) / float64(totalSize) * 100
}

func newProgressEvent(s *state, chunkSize int64, resp transport.Response) ProgressEvent {
	return ProgressEvent{
		ResourceID:     s.resourceID,
		Progress:       percentage(s.chunk-1, chunkSize, s.totalSize),
		SizeUploaded:   s.bytesSent,
		ChunksTotal:    resp.Int("chunksTotal"),
		ChunksUploaded: resp.Int("chunksUploaded"),
	}
}
