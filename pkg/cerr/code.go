package cerr

import "log/slog"

//go:generate go tool stringer -type=Code -output=code_string.go code.go
type Code int

const (
	OK                 = Code(0)
	Canceled           = Code(1)
	Unknown            = Code(2)
	InvalidArgument    = Code(3)
	DeadlineExceeded   = Code(4)
	NotFound           = Code(5)
	AlreadyExists      = Code(6)
	PermissionDenied   = Code(7)
	ResourceExhausted  = Code(8)
	FailedPrecondition = Code(9)
	Aborted            = Code(10)
	OutOfRange         = Code(11)
	Unimplemented      = Code(12)
	Internal           = Code(13)
	Unavailable        = Code(14)
	DataLoss           = Code(15)
	Unauthenticated    = Code(16)
)

// LogLevel is the level an error of this code is reported at.
// Errors at slog.LevelError also carry a stack trace.
func (c Code) LogLevel() slog.Level {
	switch c {
	case OK, Canceled, InvalidArgument, DeadlineExceeded, NotFound, AlreadyExists,
		PermissionDenied, FailedPrecondition, Aborted, OutOfRange, Unauthenticated:
		return slog.LevelInfo
	default:
		return slog.LevelError
	}
}

// ExitCode maps an error code to a process exit status.
func (c Code) ExitCode() int {
	switch c {
	case OK:
		return 0
	case InvalidArgument, FailedPrecondition, AlreadyExists, NotFound:
		return 1
	default:
		return 2
	}
}
