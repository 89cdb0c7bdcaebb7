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

// Event is one decoded record.
type Event struct {
	// Index is the position of the record in the file body, counting records
	// skipped by the load offset.
	Index        int
	ThreadID     uint16
	ConnectionID uint16
	// Timestamp in microseconds since the producer started tracing.
	Timestamp uint32
	Kind      Kind
}

// Trace is the decoded content of one trace file.
type Trace struct {
	Header Header
	// Size of the whole file, in bytes.
	Size int64
	// Offset is the index of the first decoded record.
	Offset int
	Events []Event
}

// Version returns the schema version of the trace.
func (t *Trace) Version() int32 {
	return t.Header.Version
}

// TimeRange returns the smallest and largest timestamps of the decoded events.
// Both are zero if there are no events.
func (t *Trace) TimeRange() (uint32, uint32) {
	if len(t.Events) == 0 {
		return 0, 0
	}
	first, last := t.Events[0].Timestamp, t.Events[0].Timestamp
	for _, event := range t.Events[1:] {
		first = min(first, event.Timestamp)
		last = max(last, event.Timestamp)
	}
	return first, last
}

// KindCounts returns the number of decoded events of each kind.
func (t *Trace) KindCounts() map[Kind]int {
	counts := make(map[Kind]int)
	for _, event := range t.Events {
		counts[event.Kind]++
	}
	return counts
}
