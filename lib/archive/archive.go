// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive reads and writes machine export archives.
//
// An archive is a single file: the 8-byte magic "HUTCHAR1", a
// length-framed deterministic-CBOR header naming the machine and how
// the payload is encoded, then the payload — a raw zfs send stream,
// compressed and optionally age-encrypted. Compression runs before
// encryption; ciphertext does not compress.
//
// A BLAKE3 checksum of the complete archive file lives in a sidecar
// next to it (<file>.b3). Writers expose the running hash so the
// sidecar can be produced without re-reading the archive.
package archive

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"

	"github.com/hutch-systems/hutch/lib/codec"
)

// Magic identifies a hutch archive. It is the first 8 bytes of every
// archive file.
const Magic = "HUTCHAR1"

// FormatVersion is the header version this package writes. Readers
// reject anything else.
const FormatVersion = 1

// maxHeaderLength bounds the header frame a reader will accept. Real
// headers are under a kilobyte; anything larger is a corrupt or
// hostile file.
const maxHeaderLength = 1 << 20

// Compression names the algorithm applied to the payload stream. The
// value is stored in the archive header, so these strings are format
// constants.
type Compression string

const (
	// CompressionZstd is the default: good ratios on the mixed
	// filesystem content a machine image contains.
	CompressionZstd Compression = "zstd"

	// CompressionLZ4 trades ratio for speed.
	CompressionLZ4 Compression = "lz4"

	// CompressionNone stores the send stream as-is.
	CompressionNone Compression = "none"
)

// ParseCompression parses a compression name as given on the command
// line.
func ParseCompression(name string) (Compression, error) {
	switch Compression(name) {
	case CompressionZstd, CompressionLZ4, CompressionNone:
		return Compression(name), nil
	default:
		return "", fmt.Errorf("unknown compression %q (want zstd, lz4, or none)", name)
	}
}

// Header is the archive metadata record. CBOR on disk, JSON when a
// command renders it; the json tags serve both.
type Header struct {
	// Version is the archive format version. NewWriter sets it.
	Version int `json:"version"`

	// Machine is the identifier the archive was exported from.
	Machine string `json:"machine"`

	// Alias and Hostname capture the machine's names at export time,
	// for humans inspecting the archive. Import does not apply them.
	Alias    string `json:"alias,omitempty"`
	Hostname string `json:"hostname,omitempty"`

	// Snapshot is the label of the snapshot the payload was sent
	// from. Import destroys it on the received dataset once the
	// stream has landed.
	Snapshot string `json:"snapshot,omitempty"`

	// Compression names the payload encoding.
	Compression Compression `json:"compression"`

	// Encrypted reports whether the payload is age-encrypted.
	// NewWriter sets it from the recipient list.
	Encrypted bool `json:"encrypted"`

	// CreatedAt is when the export ran, UTC.
	CreatedAt time.Time `json:"created_at"`
}

// ErrIdentityRequired is returned by NewReader when the archive is
// encrypted and no identity was given.
var ErrIdentityRequired = errors.New("archive is encrypted and no identity was given")

// Writer writes one archive: construct, stream the zfs send payload
// through Write, then Close to flush. The underlying destination is
// not closed; that stays with the caller.
type Writer struct {
	payload io.Writer
	hash    *blake3.Hasher
	closers []io.Closer
	closed  bool
}

// NewWriter writes the archive envelope to dst and returns a Writer
// accepting the raw payload. The header's Machine, Alias, Hostname,
// Compression, and CreatedAt fields come from the caller; Version and
// Encrypted are owned by the writer. A non-empty recipient list
// encrypts the compressed payload to those recipients.
func NewWriter(dst io.Writer, header Header, recipients []age.Recipient) (*Writer, error) {
	if _, err := ParseCompression(string(header.Compression)); err != nil {
		return nil, err
	}
	header.Version = FormatVersion
	header.Encrypted = len(recipients) > 0

	headerBytes, err := codec.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("encoding archive header: %w", err)
	}

	// Everything written to the file runs through the hasher, magic
	// and header included, so the sidecar covers the whole file.
	hasher := blake3.New()
	out := io.MultiWriter(dst, hasher)

	if _, err := out.Write([]byte(Magic)); err != nil {
		return nil, fmt.Errorf("writing archive magic: %w", err)
	}
	var frame [4]byte
	binary.BigEndian.PutUint32(frame[:], uint32(len(headerBytes)))
	if _, err := out.Write(frame[:]); err != nil {
		return nil, fmt.Errorf("writing archive header: %w", err)
	}
	if _, err := out.Write(headerBytes); err != nil {
		return nil, fmt.Errorf("writing archive header: %w", err)
	}

	writer := &Writer{payload: out, hash: hasher}

	if len(recipients) > 0 {
		encryptor, err := age.Encrypt(writer.payload, recipients...)
		if err != nil {
			return nil, fmt.Errorf("creating age encryptor: %w", err)
		}
		writer.payload = encryptor
		writer.closers = append(writer.closers, encryptor)
	}

	switch header.Compression {
	case CompressionZstd:
		encoder, err := zstd.NewWriter(writer.payload,
			zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		writer.payload = encoder
		writer.closers = append(writer.closers, encoder)
	case CompressionLZ4:
		encoder := lz4.NewWriter(writer.payload)
		writer.payload = encoder
		writer.closers = append(writer.closers, encoder)
	}

	return writer, nil
}

// Write streams payload bytes into the archive.
func (w *Writer) Write(p []byte) (int, error) {
	return w.payload.Write(p)
}

// Close flushes the compression and encryption layers, innermost
// first. Idempotent. The checksum from Sum is only final once Close
// has returned.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i].Close(); err != nil {
			return fmt.Errorf("finalizing archive: %w", err)
		}
	}
	return nil
}

// Sum returns the BLAKE3 hex digest of every byte written to the
// destination. Call it after Close.
func (w *Writer) Sum() string {
	return hex.EncodeToString(w.hash.Sum(nil))
}

// Reader reads one archive: construct, inspect Header, stream the
// raw payload through Read, Close to release the decoder.
type Reader struct {
	header  Header
	payload io.Reader
	close   func() error
}

// NewReader parses the archive envelope from src and returns a Reader
// producing the decrypted, decompressed payload. Identities are only
// consulted when the header says the payload is encrypted; extras are
// ignored otherwise.
func NewReader(src io.Reader, identities []age.Identity) (*Reader, error) {
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(src, magic); err != nil {
		return nil, fmt.Errorf("reading archive magic: %w", err)
	}
	if string(magic) != Magic {
		return nil, fmt.Errorf("not a hutch archive (magic %q)", magic)
	}

	var frame [4]byte
	if _, err := io.ReadFull(src, frame[:]); err != nil {
		return nil, fmt.Errorf("reading archive header: %w", err)
	}
	length := binary.BigEndian.Uint32(frame[:])
	if length > maxHeaderLength {
		return nil, fmt.Errorf("archive header length %d is implausible", length)
	}
	headerBytes := make([]byte, length)
	if _, err := io.ReadFull(src, headerBytes); err != nil {
		return nil, fmt.Errorf("reading archive header: %w", err)
	}

	var header Header
	if err := codec.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("decoding archive header: %w", err)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported archive version %d (this build reads version %d)",
			header.Version, FormatVersion)
	}

	payload := src
	if header.Encrypted {
		if len(identities) == 0 {
			return nil, ErrIdentityRequired
		}
		decrypted, err := age.Decrypt(payload, identities...)
		if err != nil {
			return nil, fmt.Errorf("decrypting archive: %w", err)
		}
		payload = decrypted
	}

	reader := &Reader{header: header, close: func() error { return nil }}
	switch header.Compression {
	case CompressionZstd:
		decoder, err := zstd.NewReader(payload,
			zstd.WithDecoderMaxMemory(256*1024*1024))
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		reader.payload = decoder
		reader.close = func() error {
			decoder.Close()
			return nil
		}
	case CompressionLZ4:
		reader.payload = lz4.NewReader(payload)
	case CompressionNone:
		reader.payload = payload
	default:
		return nil, fmt.Errorf("unknown compression %q in archive header", header.Compression)
	}

	return reader, nil
}

// Header returns the archive metadata.
func (r *Reader) Header() Header {
	return r.header
}

// Read streams the raw payload.
func (r *Reader) Read(p []byte) (int, error) {
	return r.payload.Read(p)
}

// Close releases decoder resources. It does not close the underlying
// source.
func (r *Reader) Close() error {
	return r.close()
}
