package logging

import (
	"log/slog"
	"time"
)

// Field names shared by the ingester, poller and read API.
const (
	FieldService    = "service"
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldURI        = "uri"
	FieldDID        = "did"
	FieldSequence   = "time_us"
	FieldCursor     = "cursor"
	FieldBatchSize  = "batch_size"
	FieldBackoff    = "backoff"
	FieldConsumer   = "consumer"
	FieldCollection = "collection"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func Component(name string) slog.Attr {
	return slog.String(FieldComponent, name)
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

// Duration returns d in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns an attribute for err. A nil error is logged as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

func URI(uri string) slog.Attr {
	return slog.String(FieldURI, uri)
}

func DID(did string) slog.Attr {
	return slog.String(FieldDID, did)
}

func Sequence(timeUS int64) slog.Attr {
	return slog.Int64(FieldSequence, timeUS)
}

// Cursor takes anything with a String method so callers do not need to
// import the models package just to log a position.
func Cursor(c interface{ String() string }) slog.Attr {
	return slog.String(FieldCursor, c.String())
}

func BatchSize(n int) slog.Attr {
	return slog.Int(FieldBatchSize, n)
}

func Backoff(d time.Duration) slog.Attr {
	return slog.String(FieldBackoff, d.String())
}

func Consumer(name string) slog.Attr {
	return slog.String(FieldConsumer, name)
}

func Collection(name string) slog.Attr {
	return slog.String(FieldCollection, name)
}
