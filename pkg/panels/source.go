// Package panels provides the panel source model: the tagged variant
// describing how a panel's rendered content is located. Exactly one
// variant governs every row of a collection.
package panels

import (
	"net/url"
	"path"

	"github.com/ajitpratap0/trellis/pkg/errors"
)

// SourceKind identifies a panel source variant.
type SourceKind string

const (
	// SourceLocalFile locates panels as files under the collection root
	SourceLocalFile SourceKind = "local_file"
	// SourceRemote locates panels behind an HTTP endpoint
	SourceRemote SourceKind = "remote"
	// SourceInlineFunction marks panels produced by in-process callables;
	// it must be materialized to another variant before serialization
	SourceInlineFunction SourceKind = "inline_function"
	// SourceRawMarkup stores panel markup inline in the metadata records
	SourceRawMarkup SourceKind = "raw_markup"
)

// Source describes how one row's panel content is located.
type Source interface {
	// Kind returns the variant tag
	Kind() SourceKind
	// Standalone reports whether the source resolves independently of
	// any enclosing collection root
	Standalone() bool
	// Resolve returns the concrete reference for the row with the given
	// stable key. root may be empty for the root-relative form that is
	// written into metadata records.
	Resolve(key, root string) (string, error)
	// Wire returns the serialized form
	Wire() WireSource
}

// LocalFile locates panels at {base}/{key}.{ext} under the collection root.
type LocalFile struct {
	Base string
	Ext  string
}

func (s *LocalFile) Kind() SourceKind { return SourceLocalFile }

func (s *LocalFile) Standalone() bool { return false }

func (s *LocalFile) Resolve(key, root string) (string, error) {
	if s.Ext == "" {
		return "", errors.New(errors.ErrorTypeValidation, "local file panel source has no extension")
	}
	rel := path.Join(s.Base, key+"."+s.Ext)
	if root == "" {
		return rel, nil
	}
	return path.Join(root, rel), nil
}

func (s *LocalFile) Wire() WireSource {
	return WireSource{Kind: string(SourceLocalFile), Base: s.Base, Ext: s.Ext}
}

// Remote locates panels at {base}/{key} behind an HTTP endpoint. The
// collaborator serving that path is responsible for content type and
// its own timeouts. Headers are passed through opaquely.
type Remote struct {
	BaseURL string
	Headers map[string]string
	Auth    *RemoteAuth
}

// RemoteAuth configures OAuth2 client-credentials authentication for a
// remote panel endpoint.
type RemoteAuth struct {
	TokenURL     string   `json:"token_url"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"-"`
	Scopes       []string `json:"scopes,omitempty"`
}

func (s *Remote) Kind() SourceKind { return SourceRemote }

func (s *Remote) Standalone() bool { return true }

func (s *Remote) Resolve(key, _ string) (string, error) {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeValidation, "invalid remote base URL")
	}
	if !u.IsAbs() {
		return "", errors.Newf(errors.ErrorTypeValidation,
			"remote base URL %q must be absolute", s.BaseURL)
	}
	u.Path = path.Join(u.Path, key)
	return u.String(), nil
}

func (s *Remote) Wire() WireSource {
	return WireSource{
		Kind:    string(SourceRemote),
		BaseURL: s.BaseURL,
		Headers: s.Headers,
	}
}

// InlineFunction marks panels produced by zero-argument callables. It
// carries nothing serializable; the render pipeline materializes it to
// LocalFile or RawMarkup before the specification is written.
type InlineFunction struct{}

func (s *InlineFunction) Kind() SourceKind { return SourceInlineFunction }

func (s *InlineFunction) Standalone() bool { return false }

func (s *InlineFunction) Resolve(key, _ string) (string, error) {
	return "", errors.Newf(errors.ErrorTypeValidation,
		"inline function panel source for key %q must be materialized before resolution", key)
}

func (s *InlineFunction) Wire() WireSource {
	return WireSource{Kind: string(SourceInlineFunction)}
}

// RawMarkup stores panel markup fragments inline in per-row metadata
// records; the reference is the row key itself.
type RawMarkup struct{}

func (s *RawMarkup) Kind() SourceKind { return SourceRawMarkup }

func (s *RawMarkup) Standalone() bool { return true }

func (s *RawMarkup) Resolve(key, _ string) (string, error) {
	return key, nil
}

func (s *RawMarkup) Wire() WireSource {
	return WireSource{Kind: string(SourceRawMarkup)}
}

// WireSource is the serialized form of a panel source.
type WireSource struct {
	Kind    string            `json:"kind"`
	Base    string            `json:"base,omitempty"`
	Ext     string            `json:"ext,omitempty"`
	BaseURL string            `json:"base_url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// FromWire reconstructs a Source from its serialized form.
func FromWire(w WireSource) (Source, error) {
	switch SourceKind(w.Kind) {
	case SourceLocalFile:
		return &LocalFile{Base: w.Base, Ext: w.Ext}, nil
	case SourceRemote:
		return &Remote{BaseURL: w.BaseURL, Headers: w.Headers}, nil
	case SourceRawMarkup:
		return &RawMarkup{}, nil
	case SourceInlineFunction:
		return nil, errors.New(errors.ErrorTypeSerialization,
			"inline function panel source cannot appear in a serialized specification")
	default:
		return nil, errors.Newf(errors.ErrorTypeSerialization, "unknown panel source kind %q", w.Kind)
	}
}
