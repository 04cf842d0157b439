// Package wire defines the in-process request/response model shared by the
// endpoint registry, Plug, and the mock interception plane: a verb, a URI,
// case-insensitive multi-valued headers, and a memoizable body.
package wire

import (
	"net/http"

	"dream/pkg/chunked"
	"dream/pkg/uri"
)

// Verb is an HTTP-style request verb. Applications may define additional
// extension verbs beyond the ones named here.
type Verb string

const (
	GET     Verb = "GET"
	HEAD    Verb = "HEAD"
	POST    Verb = "POST"
	PUT     Verb = "PUT"
	DELETE  Verb = "DELETE"
	OPTIONS Verb = "OPTIONS"
)

// Message is a request or response body plus its content type. The body is
// held in a chunked.Buffer so interceptors (the mock plane in particular)
// can clone it cheaply instead of re-reading a stream.
type Message struct {
	ContentType string
	buffer      *chunked.Buffer
}

// NewMessage memoizes body into a Message.
func NewMessage(contentType string, body []byte) *Message {
	return &Message{ContentType: contentType, buffer: chunked.FromBytes(body)}
}

// EmptyMessage is a Message with no content type and an empty body.
func EmptyMessage() *Message {
	return &Message{buffer: chunked.New()}
}

// Bytes returns the full body. Safe to call on a nil Message.
func (m *Message) Bytes() []byte {
	if m == nil || m.buffer == nil {
		return nil
	}
	return m.buffer.Bytes()
}

// Len reports the body length in bytes.
func (m *Message) Len() int {
	if m == nil || m.buffer == nil {
		return 0
	}
	return m.buffer.Len()
}

// Clone returns an independent copy of m whose body may be read without
// affecting the original. Bodies are always fully memoized before cloning;
// there is no streaming pass-through for very large bodies.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	var b *chunked.Buffer
	if m.buffer != nil {
		b = m.buffer.Clone()
	}
	return &Message{ContentType: m.ContentType, buffer: b}
}

// Request is (verb, URI, headers, body).
type Request struct {
	Verb    Verb
	URI     uri.URI
	Headers http.Header
	Body    *Message
}

// Response is (status, headers, body).
type Response struct {
	Status  int
	Headers http.Header
	Body    *Message
}

// IsSuccessful reports whether Status is in the 2xx range.
func (r *Response) IsSuccessful() bool {
	return r.Status >= 200 && r.Status < 300
}
