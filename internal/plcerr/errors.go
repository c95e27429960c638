/*
 * plcsim - Structured error taxonomy.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package plcerr defines the structured error taxonomy shared by every
// component that can reject a request: memory model validation, device
// memory routing, the lock manager, and the adapter boundary.
package plcerr

import (
	"errors"
	"fmt"
)

// Code is one of the fixed error codes the wire protocol can report.
type Code string

const (
	UnknownDevice Code = "UNKNOWN_DEVICE"
	OutOfRange    Code = "OUT_OF_RANGE"
	TypeMismatch  Code = "TYPE_MISMATCH"
	Readonly      Code = "READONLY"
	LockTimeout   Code = "LOCK_TIMEOUT"
	InvalidReq    Code = "INVALID_REQUEST"
	TooManyPoints Code = "TOO_MANY_POINTS"
	Internal      Code = "INTERNAL_ERROR"
)

// Error is a structured error carrying a code, message, and optional detail.
type Error struct {
	Code    Code
	Message string
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, detail, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Detail: detail}
}

func UnknownDeviceErr(dev string) *Error {
	return New(UnknownDevice, "unknown device: "+dev)
}

func OutOfRangeErr(message string) *Error {
	return New(OutOfRange, message)
}

func TypeMismatchErr(dev, space string) *Error {
	return Newf(TypeMismatch, dev, "unsupported space %q for device %q", space, dev)
}

func ReadonlyErr(dev string) *Error {
	return New(Readonly, "device is not writable: "+dev)
}

func LockTimeoutErr(dev string) *Error {
	return New(LockTimeout, "timed out acquiring lock for device: "+dev)
}

func InvalidRequestErr(message string) *Error {
	return New(InvalidReq, message)
}

func TooManyPointsErr(count, max int) *Error {
	return Newf(TooManyPoints, fmt.Sprintf("%d > %d", count, max), "request exceeds point-count limit")
}

func InternalErr(err error) *Error {
	if err == nil {
		return New(Internal, "internal error")
	}
	return New(Internal, err.Error())
}

// As reports whether err is, or wraps, a *Error, returning it when so. Uses
// the standard errors.As so a *Error wrapped with %w still unwraps cleanly
// at an adapter boundary.
func As(err error) (*Error, bool) {
	var pe *Error
	ok := errors.As(err, &pe)
	return pe, ok
}
