// Copyright © 2024 loonghao
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"syscall"

	"github.com/JeffreyRichter/enum/enum"
)

var EErrorKind = ErrorKind(0)

// ErrorKind classifies a copy failure for the retry and fallback policy.
// TransientIO may be retried within MaxRetries; ZeroCopy is always
// recoverable via the buffered engine; Cancelled and Timeout are dedicated
// variants, not pathological errors.
type ErrorKind uint8

func (ErrorKind) Unknown() ErrorKind          { return ErrorKind(0) }
func (ErrorKind) TransientIO() ErrorKind      { return ErrorKind(1) }
func (ErrorKind) TerminalIO() ErrorKind       { return ErrorKind(2) }
func (ErrorKind) NotFound() ErrorKind         { return ErrorKind(3) }
func (ErrorKind) PermissionDenied() ErrorKind { return ErrorKind(4) }
func (ErrorKind) DeviceDetection() ErrorKind  { return ErrorKind(5) }
func (ErrorKind) ZeroCopy() ErrorKind         { return ErrorKind(6) }
func (ErrorKind) Cancelled() ErrorKind        { return ErrorKind(7) }
func (ErrorKind) Timeout() ErrorKind          { return ErrorKind(8) }

func (k ErrorKind) String() string {
	return enum.StringInt(k, reflect.TypeOf(k))
}

func (k *ErrorKind) Parse(s string) error {
	val, err := enum.ParseInt(reflect.TypeOf(k), s, true, true)
	if err == nil {
		*k = val.(ErrorKind)
	}
	return err
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var ESeverity = Severity(0)

// Severity is advisory for logging only; it never gates control flow.
type Severity uint8

func (Severity) Low() Severity      { return Severity(0) }
func (Severity) Medium() Severity   { return Severity(1) }
func (Severity) High() Severity     { return Severity(2) }
func (Severity) Critical() Severity { return Severity(3) }

func (s Severity) String() string {
	return enum.StringInt(s, reflect.TypeOf(s))
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// ErrOversizedForMicroEngine is returned when a file grows past the micro
// threshold between selection and execution.
var ErrOversizedForMicroEngine = errors.New("file exceeds the micro-file engine threshold")

// CopyError attaches a kind, a severity and the offending path to an
// underlying failure. Engines propagate these unchanged.
type CopyError struct {
	Kind     ErrorKind
	Severity Severity
	Path     string
	cause    error
}

func NewCopyError(kind ErrorKind, path string, cause error) *CopyError {
	return &CopyError{Kind: kind, Severity: defaultSeverity(kind), Path: path, cause: cause}
}

func (e *CopyError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.cause)
}

func (e *CopyError) Unwrap() error { return e.cause }

func defaultSeverity(kind ErrorKind) Severity {
	switch kind {
	case EErrorKind.TerminalIO():
		return ESeverity.High()
	case EErrorKind.NotFound(), EErrorKind.PermissionDenied():
		return ESeverity.Medium()
	case EErrorKind.Cancelled(), EErrorKind.Timeout(), EErrorKind.ZeroCopy(), EErrorKind.DeviceDetection():
		return ESeverity.Low()
	default:
		return ESeverity.Medium()
	}
}

// ClassifyError maps an arbitrary error to an ErrorKind. Context errors win
// over errno inspection so that a cancelled read is reported as Cancelled
// rather than as whatever the interrupted syscall returned.
func ClassifyError(err error) ErrorKind {
	switch {
	case err == nil:
		return EErrorKind.Unknown()
	case errors.Is(err, context.Canceled):
		return EErrorKind.Cancelled()
	case errors.Is(err, context.DeadlineExceeded):
		return EErrorKind.Timeout()
	case errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOENT):
		return EErrorKind.NotFound()
	case errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM):
		return EErrorKind.PermissionDenied()
	case errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN) || errors.Is(err, os.ErrDeadlineExceeded):
		return EErrorKind.TransientIO()
	case errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.EROFS):
		return EErrorKind.TerminalIO()
	default:
		var ce *CopyError
		if errors.As(err, &ce) {
			return ce.Kind
		}
		return EErrorKind.Unknown()
	}
}

// IsRetryable reports whether the retry loop may attempt the failed
// read/write again.
func IsRetryable(err error) bool {
	return ClassifyError(err) == EErrorKind.TransientIO()
}

// IsZeroCopyRecoverable reports whether the selector may re-run the copy on
// the buffered engine. Only zero-copy failures qualify, and only once.
func IsZeroCopyRecoverable(err error) bool {
	return ClassifyError(err) == EErrorKind.ZeroCopy()
}

// IsBenignTermination reports Cancelled/Timeout, which carry no
// partial-state promise but are not pathological.
func IsBenignTermination(err error) bool {
	k := ClassifyError(err)
	return k == EErrorKind.Cancelled() || k == EErrorKind.Timeout()
}
