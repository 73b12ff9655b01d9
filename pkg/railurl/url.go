// SPDX-License-Identifier: AGPL-3.0-or-later

// Package railurl classifies and manipulates the locations Rail-RNA reads
// and writes: local paths, cluster DFS paths, object-store paths, and
// HTTP/FTP URLs. Classification is syntactic and total; every variant
// knows the single external helper required to move bytes in or out of it.
package railurl

import (
	"fmt"
	"strings"
)

// Variant tags the kind of location a URL names.
type Variant int

const (
	// VariantLocal is a path on the local filesystem.
	VariantLocal Variant = iota
	// VariantDFS is a path on the cluster's distributed filesystem (hdfs://, dfs://).
	VariantDFS
	// VariantObjectStore is a path in an object store (s3://, gs://).
	VariantObjectStore
	// VariantHTTP is an http:// or https:// URL.
	VariantHTTP
	// VariantFTP is an ftp:// URL.
	VariantFTP
)

// String names the variant for diagnostics.
func (v Variant) String() string {
	switch v {
	case VariantLocal:
		return "local"
	case VariantDFS:
		return "dfs"
	case VariantObjectStore:
		return "object-store"
	case VariantHTTP:
		return "http"
	case VariantFTP:
		return "ftp"
	default:
		return "unknown"
	}
}

// HelperKind names the external collaborator a Variant requires to read
// or write it.
type HelperKind int

const (
	HelperFilesystem HelperKind = iota
	HelperDFSClient
	HelperObjectStore
	HelperHTTPClient
	HelperFTPClient
)

// URL is a tagged value over the raw string the user or manifest supplied.
type URL struct {
	Variant Variant
	Raw     string
}

// Classify parses s into a URL. Classification is syntactic and total:
// every input string produces some Variant, falling back to VariantLocal.
func Classify(s string) URL {
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "s3://"), strings.HasPrefix(lower, "gs://"):
		return URL{Variant: VariantObjectStore, Raw: s}
	case strings.HasPrefix(lower, "hdfs://"), strings.HasPrefix(lower, "dfs://"):
		return URL{Variant: VariantDFS, Raw: s}
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return URL{Variant: VariantHTTP, Raw: s}
	case strings.HasPrefix(lower, "ftp://"):
		return URL{Variant: VariantFTP, Raw: s}
	default:
		return URL{Variant: VariantLocal, Raw: s}
	}
}

// Helper names the external collaborator required to read/write u.
func (u URL) Helper() HelperKind {
	switch u.Variant {
	case VariantDFS:
		return HelperDFSClient
	case VariantObjectStore:
		return HelperObjectStore
	case VariantHTTP:
		return HelperHTTPClient
	case VariantFTP:
		return HelperFTPClient
	default:
		return HelperFilesystem
	}
}

// stripScheme removes the "scheme://" prefix, if any, returning the bare path/host+path.
func (u URL) stripScheme() string {
	if i := strings.Index(u.Raw, "://"); i >= 0 {
		return u.Raw[i+3:]
	}
	return u.Raw
}

// Native renders u in the form the owning backend helper expects on its
// command line. Every variant's helper takes the URL as written (e.g.
// "s3://bucket/key", "/absolute/path"), so Native returns Raw unchanged.
func (u URL) Native() string {
	switch u.Variant {
	case VariantLocal:
		return u.Raw
	default:
		return u.Raw
	}
}

// Display renders u for human-facing messages: always the original string
// the user or manifest supplied, unmodified.
func (u URL) Display() string {
	return u.Raw
}

// Join appends a path component beneath u, preserving u's variant.
func (u URL) Join(component string) URL {
	raw := strings.TrimRight(u.Raw, "/") + "/" + strings.TrimLeft(component, "/")
	return URL{Variant: u.Variant, Raw: raw}
}

// IsEmpty reports whether u carries no location at all.
func (u URL) IsEmpty() bool {
	return u.Raw == ""
}

// ErrorKind classifies why a URL operation failed.
type ErrorKind int

const (
	ErrNotFound ErrorKind = iota
	ErrPermission
	ErrTransport
	ErrNotSupported
)

// String names the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrNotFound:
		return "not-found"
	case ErrPermission:
		return "permission"
	case ErrTransport:
		return "transport"
	case ErrNotSupported:
		return "not-supported"
	default:
		return "unknown"
	}
}

// Error is returned by a URL operation that fails in its helper or in a
// filesystem probe. Failures while copying a local file in Get or Put,
// and a missing Put source, are returned as plain wrapped errors instead.
type Error struct {
	Kind ErrorKind
	URL  URL
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.URL.Display(), e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.URL.Display(), e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, u URL, kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, URL: u, Op: op, Err: err}
}
