// Package apierror carries an HTTP status alongside an error so that a
// failure can cross the wire between the score service and its callers, or
// between an upstream score archive and the cache, without losing meaning.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

// Error is an error with an associated HTTP status code.
type Error struct {
	err    error
	status int
}

// Message is the JSON body written for an Error.
type Message struct {
	Message string `json:"message,omitempty"`
	Status  int    `json:"status,omitempty"`
}

var serverError []byte

func init() {
	eb, err := json.Marshal(&Message{
		Message: http.StatusText(http.StatusInternalServerError),
		Status:  http.StatusInternalServerError,
	})
	if err != nil {
		panic(err)
	}
	serverError = eb
}

func New(err error, status int) *Error {
	return &Error{
		err:    err,
		status: status,
	}
}

// FromResponse makes an error out of a non-success HTTP response. The
// trimmed body, if any, becomes the error text.
func FromResponse(status int, body []byte) error {
	var err error
	if text := strings.TrimSpace(string(body)); text != "" {
		err = errors.New(text)
	}
	if status == 0 {
		return err
	}
	return New(err, status)
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	if e.status == 0 {
		return ""
	}
	if text := http.StatusText(e.status); text != "" {
		return fmt.Sprintf("%d %s", e.status, text)
	}
	return fmt.Sprintf("%d", e.status)
}

func (e *Error) Status() int {
	return e.status
}

// Text returns the status, its text, and the error message as one line,
// e.g. "404 Not Found: no such id".
func (e *Error) Text() string {
	var b strings.Builder
	if e.status != 0 {
		fmt.Fprintf(&b, "%d", e.status)
		if text := http.StatusText(e.status); text != "" {
			b.WriteString(" ")
			b.WriteString(text)
		}
	}
	if e.err != nil {
		if b.Len() != 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.err
}

// StatusOf returns the status carried by err, or 500 if err does not carry
// one.
func StatusOf(err error) int {
	var apierr *Error
	if errors.As(err, &apierr) && apierr.status != 0 {
		return apierr.status
	}
	return http.StatusInternalServerError
}

func EncodeError(err error) []byte {
	if err == nil {
		return nil
	}

	msg := Message{
		Message: err.Error(),
	}
	var apierr *Error
	if errors.As(err, &apierr) {
		msg.Status = apierr.Status()
	}

	data, err := json.Marshal(&msg)
	if err != nil {
		return serverError
	}
	return data
}

func DecodeError(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("cannot decode error message: %s", err)
	}

	err := errors.New(msg.Message)
	if msg.Status == 0 {
		return err
	}
	return New(err, msg.Status)
}

// Write writes err to w as a JSON error body with the status carried by err.
func Write(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(StatusOf(err))
	_, _ = w.Write(EncodeError(err))
}
