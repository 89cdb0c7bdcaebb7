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

package trace_test

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rancher-sandbox/wrk-trace-report/pkg/trace"
)

var littleEndian = trace.Options{ByteOrder: binary.LittleEndian}

func encode(t *testing.T, header trace.Header, events []trace.Event) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, trace.Encode(&buf, header, events, binary.LittleEndian))
	return buf.Bytes()
}

func sequence(n int) []trace.Event {
	events := make([]trace.Event, n)
	for i := range events {
		events[i] = trace.Event{
			ThreadID:     uint16(i % 3),
			ConnectionID: uint16(100 + i),
			Timestamp:    uint32(1000 * i),
			Kind:         trace.KindReq,
		}
	}
	return events
}

func TestDecodeVersion1(t *testing.T) {
	t.Parallel()
	data := []byte{
		0x01, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x01, 0x00, 0xe8, 0x03, 0x00, 0x00,
		0x00, 0x00, 0x02, 0x00, 0xc4, 0x09, 0x00, 0x00,
	}
	result, err := trace.Decode(data, littleEndian)
	require.NoError(t, err)
	assert.Equal(t, trace.Header{Version: 1, RecordCount: 2}, result.Header)
	assert.Equal(t, []trace.Event{
		{Index: 0, ThreadID: 0, ConnectionID: 1, Timestamp: 1000, Kind: trace.KindReq},
		{Index: 1, ThreadID: 0, ConnectionID: 2, Timestamp: 2500, Kind: trace.KindReq},
	}, result.Events)
}

func TestDecodeVersion2(t *testing.T) {
	t.Parallel()
	data := []byte{
		0x02, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00,
		0x07, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x07, 0x05, 0x0a, 0x00, 0x10, 0x00, 0x00, 0x00,
		0x07, 0x00, 0x2a, 0x01, 0x00, 0x01, 0x00, 0x00,
	}
	result, err := trace.Decode(data, littleEndian)
	require.NoError(t, err)
	assert.Equal(t, int32(2), result.Version())
	assert.Equal(t, []trace.Event{
		{Index: 0, ThreadID: 7, ConnectionID: 0, Timestamp: 0, Kind: trace.KindLoopStart},
		{Index: 1, ThreadID: 7, ConnectionID: 10, Timestamp: 16, Kind: trace.KindEpollWait},
		{Index: 2, ThreadID: 7, ConnectionID: 0x12a, Timestamp: 256, Kind: trace.KindReq},
	}, result.Events)
}

func TestDecodeBigEndian(t *testing.T) {
	t.Parallel()
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x00, 0x03, 0x00, 0x04, 0x00, 0x00, 0x01, 0x00,
	}
	result, err := trace.Decode(data, trace.Options{ByteOrder: binary.BigEndian})
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, trace.Event{ThreadID: 3, ConnectionID: 4, Timestamp: 256, Kind: trace.KindReq}, result.Events[0])
}

func TestRoundTripVersion1(t *testing.T) {
	t.Parallel()
	events := sequence(17)
	data := encode(t, trace.HeaderFor(trace.Version1, events), events)

	result, err := trace.Decode(data, littleEndian)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, trace.Encode(&buf, result.Header, result.Events, binary.LittleEndian))
	assert.Equal(t, data, buf.Bytes())
}

func TestOffsetAndLimit(t *testing.T) {
	t.Parallel()
	const total = 7
	events := sequence(total)
	data := encode(t, trace.HeaderFor(trace.Version1, events), events)

	for offset := 0; offset < total; offset++ {
		for limit := 1; limit <= total+1; limit++ {
			t.Run(fmt.Sprintf("offset=%d,limit=%d", offset, limit), func(t *testing.T) {
				result, err := trace.Decode(data, trace.Options{
					Offset:    offset,
					Limit:     limit,
					ByteOrder: binary.LittleEndian,
				})
				require.NoError(t, err)
				count := min(limit, total-offset)
				require.Len(t, result.Events, count)
				assert.Equal(t, offset, result.Offset)
				for i, event := range result.Events {
					expected := events[offset+i]
					expected.Index = offset + i
					assert.Equal(t, expected, event)
				}
			})
		}
	}

	t.Run("no limit", func(t *testing.T) {
		result, err := trace.Decode(data, littleEndian)
		require.NoError(t, err)
		assert.Len(t, result.Events, total)
	})
}

func TestDefaultLimit(t *testing.T) {
	t.Parallel()
	events := sequence(trace.DefaultLimit + 10)
	data := encode(t, trace.HeaderFor(trace.Version1, events), events)

	opts := trace.DefaultOptions()
	opts.ByteOrder = binary.LittleEndian
	result, err := trace.Decode(data, opts)
	require.NoError(t, err)
	assert.Len(t, result.Events, trace.DefaultLimit)
}

func TestOffsetOutOfRange(t *testing.T) {
	t.Parallel()
	events := sequence(4)
	data := encode(t, trace.HeaderFor(trace.Version1, events), events)

	for _, offset := range []int{-1, 4, 5, 100} {
		_, err := trace.Decode(data, trace.Options{Offset: offset, ByteOrder: binary.LittleEndian})
		assert.ErrorIs(t, err, trace.ErrOffsetOutOfRange, "offset %d", offset)
	}
	for _, offset := range []int{0, 1, 2, 3} {
		_, err := trace.Decode(data, trace.Options{Offset: offset, ByteOrder: binary.LittleEndian})
		assert.NoError(t, err, "offset %d", offset)
	}

	empty := encode(t, trace.Header{Version: trace.Version1}, nil)
	_, err := trace.Decode(empty, littleEndian)
	assert.ErrorIs(t, err, trace.ErrOffsetOutOfRange)
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()
	events := sequence(3)

	t.Run("short header", func(t *testing.T) {
		t.Parallel()
		_, err := trace.Decode([]byte{1, 0, 0}, littleEndian)
		assert.ErrorIs(t, err, trace.ErrShortHeader)
	})

	t.Run("unsupported version", func(t *testing.T) {
		t.Parallel()
		for _, version := range []int32{0, 3, -1} {
			data := encode(t, trace.HeaderFor(trace.Version1, events), events)
			binary.LittleEndian.PutUint32(data[0:4], uint32(version))
			_, err := trace.Decode(data, littleEndian)
			assert.ErrorIs(t, err, trace.ErrUnsupportedVersion, "version %d", version)
		}
	})

	t.Run("declared count exceeds body", func(t *testing.T) {
		t.Parallel()
		data := encode(t, trace.Header{Version: trace.Version1, RecordCount: 5}, events)
		_, err := trace.Decode(data, littleEndian)
		assert.ErrorIs(t, err, trace.ErrTruncatedRecord)

		// Loading only the records that are present is fine.
		result, err := trace.Decode(data, trace.Options{Limit: 3, ByteOrder: binary.LittleEndian})
		require.NoError(t, err)
		assert.Len(t, result.Events, 3)
	})

	t.Run("huge declared count without limit", func(t *testing.T) {
		t.Parallel()
		data := encode(t, trace.Header{Version: trace.Version1, RecordCount: math.MaxUint32}, nil)
		require.Len(t, data, trace.HeaderSize)
		_, err := trace.Decode(data, trace.Options{Limit: 0, ByteOrder: binary.LittleEndian})
		assert.ErrorIs(t, err, trace.ErrTruncatedRecord)
	})

	t.Run("partial record", func(t *testing.T) {
		t.Parallel()
		data := encode(t, trace.HeaderFor(trace.Version1, events), events)
		_, err := trace.Decode(data[:len(data)-3], littleEndian)
		assert.ErrorIs(t, err, trace.ErrTruncatedRecord)
	})

	t.Run("unknown event kind", func(t *testing.T) {
		t.Parallel()
		v2 := []trace.Event{
			{Kind: trace.KindLoopStart},
			{Kind: trace.Kind(42), ConnectionID: 1, Timestamp: 5},
		}
		data := encode(t, trace.HeaderFor(trace.Version2, v2), v2)
		_, err := trace.Decode(data, littleEndian)
		assert.ErrorIs(t, err, trace.ErrUnknownEvent)
		assert.ErrorContains(t, err, "record 1")
	})
}

func TestEncodeRejectsWideThreadID(t *testing.T) {
	t.Parallel()
	events := []trace.Event{{ThreadID: 300, Kind: trace.KindLoopStart}}
	err := trace.Encode(&bytes.Buffer{}, trace.HeaderFor(trace.Version2, events), events, binary.LittleEndian)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	events := sequence(12)
	var buf bytes.Buffer
	require.NoError(t, trace.Encode(&buf, trace.HeaderFor(trace.Version1, events), events, nil))
	path := filepath.Join(dir, "wrk-thread0.trace")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	result, err := trace.Load(path, trace.Options{Offset: 2, Limit: 5})
	require.NoError(t, err)
	require.Len(t, result.Events, 5)
	assert.Equal(t, int64(buf.Len()), result.Size)
	assert.Equal(t, 2, result.Events[0].Index)
	assert.Equal(t, events[2].ConnectionID, result.Events[0].ConnectionID)

	first, last := result.TimeRange()
	assert.Equal(t, uint32(2000), first)
	assert.Equal(t, uint32(6000), last)

	short := filepath.Join(dir, "short.trace")
	require.NoError(t, os.WriteFile(short, []byte{2, 0}, 0o644))
	_, err = trace.Load(short, trace.DefaultOptions())
	assert.ErrorIs(t, err, trace.ErrShortHeader)

	_, err = trace.Load(filepath.Join(dir, "missing.trace"), trace.DefaultOptions())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
