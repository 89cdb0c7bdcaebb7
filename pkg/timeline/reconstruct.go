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

package timeline

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/rancher-sandbox/wrk-trace-report/pkg/trace"
)

var (
	ErrMalformedTrace = errors.New("malformed trace")
	ErrUnpairedEnd    = errors.New("end event without an open span")
	ErrUnpairedBegin  = errors.New("begin event while a span is already open")
	ErrTimeReversed   = errors.New("span ends before it begins")
)

// Reconstruct turns the events of a trace into a timeline.  Events must be in
// record order.  On error no timeline is returned.
func Reconstruct(version int32, events []trace.Event) (*Timeline, error) {
	r := newReconstructor(version)
	var err error
	switch version {
	case trace.Version1:
		err = r.version1(events)
	case trace.Version2:
		err = r.version2(events)
	default:
		err = fmt.Errorf("%w: %d", trace.ErrUnsupportedVersion, version)
	}
	if err != nil {
		return nil, err
	}
	return r.finish(events), nil
}

type pendingSpan struct {
	span   Span
	closed bool
}

type connKey struct {
	thread uint16
	conn   uint16
	kind   trace.Kind // the begin kind
}

// reconstructor holds the state of a single pass over one trace.
type reconstructor struct {
	version int32
	tracks  map[TrackID]Track
	// pending spans in order of their begin event.
	pending []pendingSpan
	markers []Marker
	// loops maps a thread to the index of its open event loop span.
	loops map[uint16]int
	// conns maps a connection and begin kind to the index of its open span.
	conns map[connKey]int
}

func newReconstructor(version int32) *reconstructor {
	return &reconstructor{
		version: version,
		tracks:  make(map[TrackID]Track),
		loops:   make(map[uint16]int),
		conns:   make(map[connKey]int),
	}
}

func recordError(event trace.Event, err error) error {
	return fmt.Errorf("record %d (%s tid=%d cid=%d us=%d): %w",
		event.Index, event.Kind, event.ThreadID, event.ConnectionID, event.Timestamp, err)
}

func (r *reconstructor) eventLoop(thread uint16) TrackID {
	id := EventLoopTrack(thread)
	if _, ok := r.tracks[id]; !ok {
		r.tracks[id] = Track{
			ID:           id,
			Kind:         TrackEventLoop,
			ThreadID:     thread,
			ConnectionID: NoConnection,
			Name:         "event loop",
		}
	}
	return id
}

func (r *reconstructor) connection(thread, conn uint16) TrackID {
	r.eventLoop(thread)
	id := ConnectionTrack(thread, conn)
	if _, ok := r.tracks[id]; !ok {
		r.tracks[id] = Track{
			ID:           id,
			Kind:         TrackConnection,
			ThreadID:     thread,
			ConnectionID: int(conn),
			Name:         fmt.Sprintf("conn %d", conn),
		}
	}
	return id
}

func (r *reconstructor) open(span Span) int {
	r.pending = append(r.pending, pendingSpan{span: span})
	return len(r.pending) - 1
}

func (r *reconstructor) close(index int, event trace.Event) error {
	pending := &r.pending[index]
	if event.Timestamp < pending.span.Begin {
		return recordError(event, fmt.Errorf("%w: %q began at %dus", ErrTimeReversed, pending.span.Label, pending.span.Begin))
	}
	pending.span.End = event.Timestamp
	pending.closed = true
	return nil
}

func (r *reconstructor) mark(marker Marker) {
	r.markers = append(r.markers, marker)
}

// version1 handles traces that only record when a request was sent.  The event
// loop is considered busy with a connection from one record until the next.
func (r *reconstructor) version1(events []trace.Event) error {
	for _, event := range events {
		loop := r.eventLoop(event.ThreadID)
		conn := r.connection(event.ThreadID, event.ConnectionID)
		if index, ok := r.loops[event.ThreadID]; ok {
			if err := r.close(index, event); err != nil {
				return err
			}
		}
		r.loops[event.ThreadID] = r.open(Span{
			Track:    loop,
			Label:    fmt.Sprintf("conn %d", event.ConnectionID),
			Category: CategoryHandle,
			Begin:    event.Timestamp,
			Conn:     int(event.ConnectionID),
		})
		r.mark(Marker{
			Track:     conn,
			Label:     LabelRequest,
			Category:  CategoryRequest,
			Timestamp: event.Timestamp,
			Conn:      int(event.ConnectionID),
		})
	}
	return nil
}

func (r *reconstructor) version2(events []trace.Event) error {
	if len(events) == 0 {
		return fmt.Errorf("%w: trace has no records", ErrMalformedTrace)
	}
	if first := events[0]; first.Kind != trace.KindLoopStart {
		return recordError(first, fmt.Errorf("%w: first record is not %s", ErrMalformedTrace, trace.KindLoopStart))
	}

	for _, event := range events {
		var err error
		switch event.Kind {
		case trace.KindLoopStart:
			r.mark(Marker{
				Track:     r.eventLoop(event.ThreadID),
				Label:     LabelLoopStart,
				Category:  CategoryLoop,
				Timestamp: event.Timestamp,
				Conn:      NoConnection,
			})
		case trace.KindReq:
			err = r.beginConnection(event, LabelRequest, CategoryRequest)
		case trace.KindConnStart:
			err = r.beginConnection(event, LabelConnect, CategoryConnect)
		case trace.KindResp, trace.KindConnected:
			err = r.endConnection(event)
		case trace.KindEpollWait:
			err = r.epollWait(event)
		case trace.KindEpollWake:
			err = r.epollWake(event)
		case trace.KindDelayReqFE:
			r.connectionMarker(event, LabelDelayReqFE, CategoryDelay)
		case trace.KindExpectReqFE:
			r.connectionMarker(event, LabelExpectReqFE, CategoryExpect)
		case trace.KindExpectReqTE:
			r.connectionMarker(event, LabelExpectReqTE, CategoryExpect)
		case trace.KindDelayReqTE:
			r.mark(Marker{
				Track:      r.eventLoop(event.ThreadID),
				Label:      LabelDelayReqTE,
				Category:   CategoryDelay,
				Timestamp:  event.Timestamp,
				Conn:       int(event.ConnectionID),
				Attributes: map[string]any{AttrConnection: int(event.ConnectionID)},
			})
		default:
			err = recordError(event, trace.ErrUnknownEvent)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *reconstructor) beginConnection(event trace.Event, label, category string) error {
	key := connKey{thread: event.ThreadID, conn: event.ConnectionID, kind: event.Kind}
	if index, ok := r.conns[key]; ok {
		return recordError(event, fmt.Errorf("%w: %q opened at %dus", ErrUnpairedBegin, label, r.pending[index].span.Begin))
	}
	r.conns[key] = r.open(Span{
		Track:    r.connection(event.ThreadID, event.ConnectionID),
		Label:    label,
		Category: category,
		Begin:    event.Timestamp,
		Conn:     int(event.ConnectionID),
	})
	return nil
}

func (r *reconstructor) endConnection(event trace.Event) error {
	key := connKey{thread: event.ThreadID, conn: event.ConnectionID, kind: event.Kind.Pair()}
	index, ok := r.conns[key]
	if !ok {
		return recordError(event, fmt.Errorf("%w: no %s on this connection", ErrUnpairedEnd, key.kind))
	}
	if err := r.close(index, event); err != nil {
		return err
	}
	delete(r.conns, key)
	return nil
}

func (r *reconstructor) connectionMarker(event trace.Event, label, category string) {
	r.mark(Marker{
		Track:     r.connection(event.ThreadID, event.ConnectionID),
		Label:     label,
		Category:  category,
		Timestamp: event.Timestamp,
		Conn:      int(event.ConnectionID),
	})
}

// The connection id of epoll records carries the timeout (for a wait) or the
// number of ready events (for a wake).
func (r *reconstructor) epollWait(event trace.Event) error {
	if index, ok := r.loops[event.ThreadID]; ok {
		return recordError(event, fmt.Errorf("%w: epoll wait opened at %dus", ErrUnpairedBegin, r.pending[index].span.Begin))
	}
	timeout := int(event.ConnectionID)
	r.loops[event.ThreadID] = r.open(Span{
		Track:      r.eventLoop(event.ThreadID),
		Label:      fmt.Sprintf("epoll_wait %d", timeout),
		Category:   CategoryEpoll,
		Begin:      event.Timestamp,
		Conn:       NoConnection,
		Attributes: map[string]any{AttrTimeout: timeout},
	})
	return nil
}

func (r *reconstructor) epollWake(event trace.Event) error {
	index, ok := r.loops[event.ThreadID]
	if !ok {
		return recordError(event, fmt.Errorf("%w: no %s on this thread", ErrUnpairedEnd, trace.KindEpollWait))
	}
	if err := r.close(index, event); err != nil {
		return err
	}
	r.pending[index].span.Attributes[AttrReady] = int(event.ConnectionID)
	delete(r.loops, event.ThreadID)
	return nil
}

func (r *reconstructor) finish(events []trace.Event) *Timeline {
	result := &Timeline{
		Version: r.version,
		Markers: r.markers,
	}
	for _, pending := range r.pending {
		if pending.closed {
			result.Spans = append(result.Spans, pending.span)
			continue
		}
		result.Warnings = append(result.Warnings, Warning{
			Track:      pending.span.Track,
			Label:      pending.span.Label,
			Category:   pending.span.Category,
			Begin:      pending.span.Begin,
			Conn:       pending.span.Conn,
			Attributes: pending.span.Attributes,
		})
	}

	slices.SortStableFunc(result.Spans, func(a, b Span) int {
		return cmp.Compare(a.Begin, b.Begin)
	})

	result.Tracks = make([]Track, 0, len(r.tracks))
	for _, track := range r.tracks {
		result.Tracks = append(result.Tracks, track)
	}
	slices.SortFunc(result.Tracks, func(a, b Track) int {
		if c := cmp.Compare(a.ID.PID, b.ID.PID); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.TID, b.ID.TID)
	})

	if len(events) > 0 {
		result.First, result.Last = events[0].Timestamp, events[0].Timestamp
		for _, event := range events[1:] {
			result.First = min(result.First, event.Timestamp)
			result.Last = max(result.Last, event.Timestamp)
		}
	}
	return result
}
