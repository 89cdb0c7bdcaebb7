/*
Copyright © 2026 SUSE LLC
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package trace decodes the binary trace files written by the instrumented wrk
// event loop.
//
// A trace file is an 8 byte header (int32 version, uint32 record count)
// followed by that many 8 byte records.  Everything is written in the byte
// order of the machine that produced the trace; files are only portable
// between machines of the same endianness.
package trace

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/exp/mmap"
	"golang.org/x/sys/cpu"
)

const (
	// HeaderSize is the size of the file header, in bytes.
	HeaderSize = 8
	// RecordSize is the size of a single record, in bytes, for every version.
	RecordSize = 8
	// DefaultLimit is the number of records loaded by DefaultOptions.
	DefaultLimit = 5000
)

const (
	// Version1 records hold (tid:16, cid:16, us:32); every record is a request.
	Version1 int32 = 1
	// Version2 records hold (tid:8, event:8, cid:16, us:32).
	Version2 int32 = 2
)

var (
	ErrShortHeader        = errors.New("trace header is truncated")
	ErrUnsupportedVersion = errors.New("unsupported trace version")
	ErrTruncatedRecord    = errors.New("trace record is truncated")
	ErrOffsetOutOfRange   = errors.New("load offset is out of range")
	ErrUnknownEvent       = errors.New("unknown trace event")
)

// Header is the fixed file header.
type Header struct {
	Version     int32
	RecordCount uint32
}

// Supported reports whether the header names a version this package decodes.
func (h Header) Supported() bool {
	return h.Version == Version1 || h.Version == Version2
}

// Options shape how much of a trace is loaded.
type Options struct {
	// Offset is the number of leading records to skip.
	Offset int
	// Limit is the maximum number of records to decode; zero or less decodes
	// everything after Offset.
	Limit int
	// ByteOrder overrides the native byte order of this machine.
	ByteOrder binary.ByteOrder
}

// DefaultOptions returns the options used when nothing else is configured:
// no offset, and at most DefaultLimit records.
func DefaultOptions() Options {
	return Options{Limit: DefaultLimit}
}

func (o Options) byteOrder() binary.ByteOrder {
	if o.ByteOrder != nil {
		return o.ByteOrder
	}
	return NativeByteOrder()
}

// NativeByteOrder returns the byte order traces produced on this machine use.
func NativeByteOrder() binary.ByteOrder {
	if cpu.IsBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// window returns the index of the first record to decode and how many to
// decode, after applying the offset and limit.
func (h Header) window(opts Options) (int, int, error) {
	total := int(h.RecordCount)
	if opts.Offset < 0 || opts.Offset >= total {
		return 0, 0, fmt.Errorf("%w: offset %d, trace has %d records", ErrOffsetOutOfRange, opts.Offset, total)
	}
	count := total - opts.Offset
	if opts.Limit > 0 && count > opts.Limit {
		count = opts.Limit
	}
	return opts.Offset, count, nil
}

// Decode parses a complete trace held in memory.
func Decode(data []byte, opts Options) (*Trace, error) {
	return DecodeReaderAt(bytes.NewReader(data), int64(len(data)), opts)
}

// DecodeReaderAt parses a trace of the given size from r.  Only the header and
// the records selected by opts are read.
func DecodeReaderAt(r io.ReaderAt, size int64, opts Options) (*Trace, error) {
	order := opts.byteOrder()

	if size < HeaderSize {
		return nil, fmt.Errorf("%w: file has %d bytes", ErrShortHeader, size)
	}
	var head [HeaderSize]byte
	if n, err := r.ReadAt(head[:], 0); n < len(head) {
		return nil, fmt.Errorf("failed to read trace header: %w", err)
	}
	header := Header{
		Version:     int32(order.Uint32(head[0:4])),
		RecordCount: order.Uint32(head[4:8]),
	}
	if !header.Supported() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, header.Version)
	}

	first, count, err := header.window(opts)
	if err != nil {
		return nil, err
	}

	start := HeaderSize + int64(first)*RecordSize
	need := int64(count) * RecordSize
	if available := size - start; available < need {
		complete := int64(0)
		if available > 0 {
			complete = available / RecordSize
		}
		return nil, fmt.Errorf("%w: record %d of %d ends past the end of the file (%d bytes)",
			ErrTruncatedRecord, int64(first)+complete, header.RecordCount, size)
	}
	body := make([]byte, need)
	if n, err := r.ReadAt(body, start); n < len(body) {
		return nil, fmt.Errorf("failed to read trace records: %w", err)
	}

	events := make([]Event, count)
	for i := range events {
		event := decodeRecord(header.Version, order, body[i*RecordSize:(i+1)*RecordSize])
		event.Index = first + i
		if !event.Kind.Valid() {
			return nil, fmt.Errorf("record %d: %w: %d", event.Index, ErrUnknownEvent, uint8(event.Kind))
		}
		events[i] = event
	}

	return &Trace{
		Header: header,
		Size:   size,
		Offset: first,
		Events: events,
	}, nil
}

func decodeRecord(version int32, order binary.ByteOrder, rec []byte) Event {
	if version == Version1 {
		return Event{
			ThreadID:     order.Uint16(rec[0:2]),
			ConnectionID: order.Uint16(rec[2:4]),
			Timestamp:    order.Uint32(rec[4:8]),
			Kind:         KindReq,
		}
	}
	return Event{
		ThreadID:     uint16(rec[0]),
		Kind:         Kind(rec[1]),
		ConnectionID: order.Uint16(rec[2:4]),
		Timestamp:    order.Uint32(rec[4:8]),
	}
}

// Load memory-maps the trace file at path and decodes the records selected by
// opts.
func Load(path string, opts Options) (*Trace, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() < HeaderSize {
		return nil, fmt.Errorf("failed to decode %s: %w: file has %d bytes", path, ErrShortHeader, info.Size())
	}
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to map %s: %w", path, err)
	}
	defer reader.Close()

	result, err := DecodeReaderAt(reader, info.Size(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return result, nil
}
