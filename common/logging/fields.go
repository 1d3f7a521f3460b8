package logging

import "log/slog"

// Field names shared by the signin and notifier services.
const (
	FieldService   = "service"
	FieldRequestID = "request_id"
	FieldEventID   = "event_id"
	FieldAlertID   = "alert_id"
	FieldIdentity  = "user_identity"
	FieldEventName = "event_name"
	FieldReason    = "reason"
	FieldSeverity  = "severity"
	FieldChannel   = "channel"
	FieldSubject   = "subject"
	FieldBackend   = "backend"
	FieldAttempt   = "attempt"
	FieldCount     = "count"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldIP        = "ip"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

func AlertID(id string) slog.Attr {
	return slog.String(FieldAlertID, id)
}

// Identity returns the normalized identity key attribute.
func Identity(key string) slog.Attr {
	return slog.String(FieldIdentity, key)
}

func EventName(name string) slog.Attr {
	return slog.String(FieldEventName, name)
}

func Reason(reason string) slog.Attr {
	return slog.String(FieldReason, reason)
}

func Severity(severity string) slog.Attr {
	return slog.String(FieldSeverity, severity)
}

func Channel(channel string) slog.Attr {
	return slog.String(FieldChannel, channel)
}

func Subject(subject string) slog.Attr {
	return slog.String(FieldSubject, subject)
}

// Backend names the store or transport implementation in use.
func Backend(name string) slog.Attr {
	return slog.String(FieldBackend, name)
}

func Attempt(n int) slog.Attr {
	return slog.Int(FieldAttempt, n)
}

func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}

func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

// Error returns a slog attribute for an error. A nil error yields an empty
// value rather than a panic.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
