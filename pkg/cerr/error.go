package cerr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/kazz187/issuelab/pkg/clog"
)

type Error struct {
	Code  Code
	Msg   string // 利用者へ Code とともに表示するメッセージ
	Err   error  // ログに残したいエラー
	Stack string // スタックトレース
}

func NewError(code Code, msg string, underlying error) *Error {
	err := &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
	if code.LogLevel() == slog.LevelError {
		stackTrace := make([]byte, 2048)
		n := runtime.Stack(stackTrace, false)
		err.Stack = string(stackTrace[0:n])
	}
	return err
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code.String(), e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code.String(), e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IsCode(err error, code Code) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, OK for nil and Unknown for foreign errors.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	if errors.Is(err, context.Canceled) {
		return Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return DeadlineExceeded
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code
	}
	return Unknown
}

// Report records err on the context logger attributes and logs it at the level of its code.
func Report(ctx context.Context, msg string, err error) {
	if err == nil {
		return
	}
	clog.AddError(ctx, err)
	var cerr *Error
	if errors.As(err, &cerr) && cerr.Stack != "" {
		clog.AddStack(ctx, cerr.Stack)
	}
	slog.Log(ctx, CodeOf(err).LogLevel(), msg)
}
