/*
Copyright (C) 2023  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
// Package snelerr defines the error kinds the core distinguishes:
// BadRequest, NotFound, Busy, Corrupt, Internal. It wraps
// github.com/cockroachdb/errors rather than inventing a bespoke error
// type, matching the pattern the rest of this pack's server-shaped repos
// (yanliang567-milvus/pkg) use for richly-annotated, stack-traced errors.
package snelerr

import (
	"github.com/cockroachdb/errors"
)

// Kind is one of the five error classes the ingest/query paths surface.
type Kind string

const (
	BadRequest Kind = "bad_request"
	NotFound   Kind = "not_found"
	Busy       Kind = "busy"
	Corrupt    Kind = "corrupt"
	Internal   Kind = "internal"
)

type kindedError struct {
	kind Kind
	err  error
}

func (k *kindedError) Error() string { return k.err.Error() }
func (k *kindedError) Unwrap() error { return k.err }

// New wraps msg as a Kind-tagged error with a stack trace.
func New(kind Kind, msg string) error {
	return &kindedError{kind, errors.NewWithDepth(1, msg)}
}

// Wrap annotates err with kind and a stack trace if one isn't attached yet.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &kindedError{kind, errors.WrapWithDepth(1, err, msg)}
}

// KindOf extracts the Kind a snelerr-wrapped error carries, defaulting to
// Internal for errors that never passed through this package (matching
// an "unknown errors are treated as the worst case" posture).
func KindOf(err error) Kind {
	var ke *kindedError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return Internal
}

// Is reports whether err (or anything it wraps) carries kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
