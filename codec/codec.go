// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package codec provides the wire encoding for messages exchanged by
// network.ClusterNetwork: a two-byte version prefix followed by a
// gob-encoded payload, with a four-byte big-endian length prefix for
// framing over a stream transport.
package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// Version identifies the wire format of an encoded message. Bumping it is
// the escape hatch for a future binary-incompatible change; decoders reject
// anything other than CurrentVersion rather than guess.
type Version uint16

// CurrentVersion is the only version this build of the codec understands.
const CurrentVersion Version = 0

// Codec is the package-level marshaler used by network.ClusterNetwork. It
// holds no state and is safe for concurrent use.
var Codec = &GobCodec{}

// GobCodec implements versioned gob encoding for the Message union.
type GobCodec struct{}

// Marshal encodes v (expected to be a *Message) under CurrentVersion.
func (c *GobCodec) Marshal(v interface{}) ([]byte, error) {
	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(v); err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}

	out := make([]byte, 2+body.Len())
	binary.BigEndian.PutUint16(out, uint16(CurrentVersion))
	copy(out[2:], body.Bytes())
	return out, nil
}

// Unmarshal decodes data into v, rejecting anything not on CurrentVersion.
func (c *GobCodec) Unmarshal(data []byte, v interface{}) error {
	if len(data) < 2 {
		return fmt.Errorf("codec: short message: %d bytes", len(data))
	}
	version := Version(binary.BigEndian.Uint16(data))
	if version != CurrentVersion {
		return fmt.Errorf("codec: unsupported version: %d", version)
	}
	if err := gob.NewDecoder(bytes.NewReader(data[2:])).Decode(v); err != nil {
		return fmt.Errorf("codec: decode: %w", err)
	}
	return nil
}

// WriteFramed writes a length-prefixed, codec-encoded message to w: a
// four-byte big-endian length followed by Marshal's output, for use over a
// stream connection. network.ClusterNetwork itself hands its Transport
// Marshal's output without this length prefix.
func WriteFramed(w io.Writer, v interface{}) error {
	data, err := Codec.Marshal(v)
	if err != nil {
		return err
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(data)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("codec: write length prefix: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("codec: write body: %w", err)
	}
	return nil
}

// ReadFramed reads one length-prefixed message written by WriteFramed into
// v. maxSize bounds the accepted length prefix, guarding against a
// corrupted or hostile peer claiming an unbounded message.
func ReadFramed(r io.Reader, v interface{}, maxSize uint32) error {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return fmt.Errorf("codec: read length prefix: %w", err)
	}
	size := binary.BigEndian.Uint32(lenPrefix[:])
	if size > maxSize {
		return fmt.Errorf("codec: framed message too large: %d > %d", size, maxSize)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("codec: read body: %w", err)
	}
	return Codec.Unmarshal(body, v)
}
