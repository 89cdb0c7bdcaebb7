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

// Package timeline rebuilds spans and markers from the flat event sequence of
// a decoded trace.
//
// Every thread of the traced program gets one event loop track, and every
// connection seen on that thread gets its own track.  Track identifiers are
// chosen so that trace viewers, which group lanes by process and thread,
// show one process per event loop thread with one lane per connection.
package timeline

import "fmt"

// NoConnection is the Conn value of items that belong to no connection.
const NoConnection = -1

// Span categories and labels.
const (
	CategoryHandle  = "handle"
	CategoryRequest = "req"
	CategoryConnect = "connect"
	CategoryEpoll   = "epoll"
	CategoryLoop    = "loop"
	CategoryDelay   = "delay"
	CategoryExpect  = "expect"

	LabelRequest     = "Req"
	LabelConnect     = "Connect"
	LabelLoopStart   = "LoopStart"
	LabelDelayReqFE  = "DelayReqFE"
	LabelDelayReqTE  = "DelayReqTE"
	LabelExpectReqFE = "ExpectReqFE"
	LabelExpectReqTE = "ExpectReqTE"
)

// Attribute keys.
const (
	AttrTimeout    = "timeout"
	AttrReady      = "ready"
	AttrConnection = "cid"
)

// TrackID is the synthetic (process, thread) pair of a track.
type TrackID struct {
	PID int
	TID int
}

// EventLoopTrack returns the track of the event loop running on thread.
func EventLoopTrack(thread uint16) TrackID {
	return TrackID{PID: int(thread), TID: 0}
}

// ConnectionTrack returns the track of connection conn on thread.
func ConnectionTrack(thread, conn uint16) TrackID {
	return TrackID{PID: int(thread), TID: int(conn) + 1}
}

// TrackKind tells event loop tracks from connection tracks.
type TrackKind int

const (
	TrackEventLoop TrackKind = iota
	TrackConnection
)

// Track is a lane of the timeline.
type Track struct {
	ID       TrackID
	Kind     TrackKind
	ThreadID uint16
	// ConnectionID is NoConnection for event loop tracks.
	ConnectionID int
	Name         string
}

// Span is a closed interval on a track.  Times are in microseconds.
type Span struct {
	Track    TrackID
	Label    string
	Category string
	Begin    uint32
	End      uint32
	// Conn is the connection the span belongs to, or NoConnection.
	Conn       int
	Attributes map[string]any
}

// Duration of the span, in microseconds.
func (s Span) Duration() uint32 {
	return s.End - s.Begin
}

// Marker is an instantaneous event on a track.
type Marker struct {
	Track      TrackID
	Label      string
	Category   string
	Timestamp  uint32
	Conn       int
	Attributes map[string]any
}

// Warning describes a span that was still open when the trace ended.  It is
// up to the consumer whether to drop it, clamp it or keep it open-ended.
type Warning struct {
	Track      TrackID
	Label      string
	Category   string
	Begin      uint32
	Conn       int
	Attributes map[string]any
}

func (w Warning) String() string {
	return fmt.Sprintf("unterminated span %q on track %d/%d, begins at %dus", w.Label, w.Track.PID, w.Track.TID, w.Begin)
}

// Span returns the unterminated span closed at end.
func (w Warning) Span(end uint32) Span {
	return Span{
		Track:      w.Track,
		Label:      w.Label,
		Category:   w.Category,
		Begin:      w.Begin,
		End:        max(end, w.Begin),
		Conn:       w.Conn,
		Attributes: w.Attributes,
	}
}

// Timeline is the result of reconstructing one trace.
type Timeline struct {
	Version int32
	// Tracks, ordered by PID then TID.
	Tracks []Track
	// Spans, ordered by begin time; spans beginning together keep file order.
	Spans []Span
	// Markers, in record order.
	Markers []Marker
	// Warnings list unterminated spans in order of their begin time.
	Warnings []Warning
	// First and Last are the smallest and largest timestamps seen.
	First uint32
	Last  uint32
}

// Track returns the track with the given id.
func (t *Timeline) Track(id TrackID) (Track, bool) {
	for _, track := range t.Tracks {
		if track.ID == id {
			return track, true
		}
	}
	return Track{}, false
}

// ProcessCount returns one more than the largest process id used by the
// tracks, or zero when there are no tracks.
func (t *Timeline) ProcessCount() int {
	if len(t.Tracks) == 0 {
		return 0
	}
	return t.Tracks[len(t.Tracks)-1].ID.PID + 1
}
