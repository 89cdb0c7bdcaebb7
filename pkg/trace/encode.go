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

package trace

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Encode writes the header followed by one record per event, in the layout of
// the header's version.  The header is written as given, so its record count
// need not match len(events).  A nil order selects the native byte order.
func Encode(w io.Writer, header Header, events []Event, order binary.ByteOrder) error {
	if !header.Supported() {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, header.Version)
	}
	if order == nil {
		order = NativeByteOrder()
	}

	buf := make([]byte, HeaderSize+len(events)*RecordSize)
	order.PutUint32(buf[0:4], uint32(header.Version))
	order.PutUint32(buf[4:8], header.RecordCount)

	for i, event := range events {
		rec := buf[HeaderSize+i*RecordSize : HeaderSize+(i+1)*RecordSize]
		switch header.Version {
		case Version1:
			order.PutUint16(rec[0:2], event.ThreadID)
		case Version2:
			if event.ThreadID > math.MaxUint8 {
				return fmt.Errorf("event %d: thread id %d does not fit in a version %d record",
					i, event.ThreadID, header.Version)
			}
			rec[0] = byte(event.ThreadID)
			rec[1] = byte(event.Kind)
		}
		order.PutUint16(rec[2:4], event.ConnectionID)
		order.PutUint32(rec[4:8], event.Timestamp)
	}

	_, err := w.Write(buf)
	return err
}

// HeaderFor returns a header declaring exactly len(events) records.
func HeaderFor(version int32, events []Event) Header {
	return Header{Version: version, RecordCount: uint32(len(events))}
}
