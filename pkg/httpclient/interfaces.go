package httpclient

import "context"

// Response is a minimal HTTP response contract.
type Response interface {
	Body() []byte
	StatusCode() int
	Header(key string) string
}

// FilePart is a file entry of a multipart/form-data body.
type FilePart struct {
	Field       string
	FileName    string
	ContentType string
	Data        []byte
}

// Client abstracts HTTP calls so callers can inject mocks or different transports.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
	PostMultipart(ctx context.Context, url string, headers, fields map[string]string, files ...FilePart) (Response, error)
}
