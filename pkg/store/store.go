// Package store defines the cache backend contract consumed by the filter
// state machine: staged lookup/insert contexts built around a request
// fingerprint, plus the administrative operations a pluggable backend must
// expose. pkg/store/memstore and pkg/store/redisstore are concrete backends
// implementing this contract.
package store

import (
	"bytes"
	"encoding/gob"
	"net/http"
	"time"
)

// Entry is a committed cache entry: response headers and body, owned by the
// backend. Created by an InsertContext's commit; mutated only through
// UpdateHeaders.
type Entry struct {
	Headers http.Header
	Body    []byte

	// VaryNames lists the header names the origin's Vary response header
	// named at insert time.
	VaryNames []string

	// VaryIdentifier canonicalizes the values of VaryNames as seen in the
	// request that produced this entry, so a later lookup can tell whether
	// this entry is the right representation for a new request.
	VaryIdentifier string

	// StoredAt is when this entry was committed, independent of any Date
	// header value, used as a last-resort Age baseline.
	StoredAt time.Time
}

// gobEntry mirrors Entry as a concrete, gob-friendly shape (http.Header is
// already a plain map, but we spell it out to keep the wire format stable
// under renames of Entry's own fields).
type gobEntry struct {
	Headers        http.Header
	Body           []byte
	VaryNames      []string
	VaryIdentifier string
	StoredAt       int64
}

// Encode serializes an Entry for backends that store raw bytes (redisstore).
func (e *Entry) Encode() ([]byte, error) {
	var buf bytes.Buffer
	ge := gobEntry{
		Headers:        e.Headers,
		Body:           e.Body,
		VaryNames:      e.VaryNames,
		VaryIdentifier: e.VaryIdentifier,
		StoredAt:       e.StoredAt.Unix(),
	}
	if err := gob.NewEncoder(&buf).Encode(ge); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeEntry deserializes an Entry produced by Encode.
func DecodeEntry(data []byte) (*Entry, error) {
	var ge gobEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&ge); err != nil {
		return nil, err
	}
	return &Entry{
		Headers:        ge.Headers,
		Body:           ge.Body,
		VaryNames:      ge.VaryNames,
		VaryIdentifier: ge.VaryIdentifier,
		StoredAt:       time.Unix(ge.StoredAt, 0),
	}, nil
}
