package backend

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/capitalize-ai/ev-service-portal/internal/validation"
)

// FallbackMessage is shown when a failure carries nothing more specific.
const FallbackMessage = "Đã có lỗi xảy ra, vui lòng thử lại"

// RequestError is a failed backend call: a transport failure, a non-2xx
// status, or an envelope with success=false.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	Fields     map[string]string
	Err        error
}

func (e *RequestError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Method, e.Path)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// UserMessage derives the text shown to the user for err, preferring
// field-level validation errors, then the response message, then
// FallbackMessage.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return joinFields(verrs)
	}

	var rerr *RequestError
	if errors.As(err, &rerr) {
		if len(rerr.Fields) > 0 {
			return joinFields(rerr.Fields)
		}
		if strings.TrimSpace(rerr.Message) != "" {
			return rerr.Message
		}
	}
	return FallbackMessage
}

// FieldErrors returns the field→message map carried by err, if any.
func FieldErrors(err error) map[string]string {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return verrs
	}
	var rerr *RequestError
	if errors.As(err, &rerr) {
		return rerr.Fields
	}
	return nil
}

func joinFields(fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	msgs := make([]string, 0, len(names))
	for _, name := range names {
		msgs = append(msgs, fields[name])
	}
	return strings.Join(msgs, "\n")
}
