package logging

import "log/slog"

// Common field names for consistent logging across the collector.
const (
	FieldService = "service"
	FieldKind    = "kind"
	FieldSession = "session"
	FieldHandle  = "handle"
	FieldCallID  = "call_id"
	FieldMethod  = "method"
	FieldPath    = "path"
	FieldStatus  = "status"
	FieldError   = "error"
	FieldPayload = "payload"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Kind returns a slog attribute for the numeric event kind.
func Kind(kind int) slog.Attr {
	return slog.Int(FieldKind, kind)
}

// Session returns a slog attribute for a session identifier, tolerating nil.
func Session(id *int64) slog.Attr {
	if id == nil {
		return slog.Any(FieldSession, nil)
	}
	return slog.Int64(FieldSession, *id)
}

// Handle returns a slog attribute for a handle identifier, tolerating nil.
func Handle(id *int64) slog.Attr {
	if id == nil {
		return slog.Any(FieldHandle, nil)
	}
	return slog.Int64(FieldHandle, *id)
}

// CallID returns a slog attribute for a SIP call identifier.
func CallID(id string) slog.Attr {
	return slog.String(FieldCallID, id)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
