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

package render

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/rancher-sandbox/wrk-trace-report/pkg/connset"
	"github.com/rancher-sandbox/wrk-trace-report/pkg/model"
	"github.com/rancher-sandbox/wrk-trace-report/pkg/timeline"
)

// UnterminatedPolicy decides what happens to spans still open at the end of a
// trace.
type UnterminatedPolicy string

const (
	// UnterminatedOpen emits only the begin event.
	UnterminatedOpen = UnterminatedPolicy("open")
	// UnterminatedClamp ends the span at the last timestamp of the trace.
	UnterminatedClamp = UnterminatedPolicy("clamp")
	// UnterminatedDrop omits the span.
	UnterminatedDrop = UnterminatedPolicy("drop")
)

// UnterminatedPolicies lists the valid policies.
var UnterminatedPolicies = []UnterminatedPolicy{UnterminatedOpen, UnterminatedClamp, UnterminatedDrop}

// TraceOptions configure TraceEvents.
type TraceOptions struct {
	// Unterminated defaults to UnterminatedOpen.
	Unterminated UnterminatedPolicy
	Connections  connset.Set
	// ProcessBase is added to every pid, so that several traces with the same
	// thread ids can share one document.
	ProcessBase int
}

// ArgClamped is set on spans closed by UnterminatedClamp.
const ArgClamped = "clamped"

// TraceEvents renders a timeline as trace viewer events.  Each thread of the
// trace becomes a process named after the source and the thread; each track
// becomes a thread of that process.  The process id is the thread id plus
// opts.ProcessBase.
func TraceEvents(name string, tl *timeline.Timeline, opts TraceOptions) ([]*model.Event, error) {
	policy := opts.Unterminated
	if policy == "" {
		policy = UnterminatedOpen
	}
	if !slices.Contains(UnterminatedPolicies, policy) {
		return nil, fmt.Errorf("unknown policy for unterminated spans %q", policy)
	}

	metadata := trackMetadata(name, tl.Tracks, opts)

	var events []*model.Event
	keep := func(conn int) bool {
		return conn == timeline.NoConnection || opts.Connections.Allows(conn)
	}
	for _, span := range tl.Spans {
		if keep(span.Conn) {
			events = append(events, spanEvents(span, span.Attributes, opts.ProcessBase)...)
		}
	}
	for _, warning := range tl.Warnings {
		if !keep(warning.Conn) {
			continue
		}
		switch policy {
		case UnterminatedOpen:
			begin := spanEvents(warning.Span(warning.Begin), warning.Attributes, opts.ProcessBase)[0]
			// Sort as if it lasted until the end of the trace.
			begin.Duration = int64(max(tl.Last, warning.Begin)-warning.Begin) + 1
			events = append(events, begin)
		case UnterminatedClamp:
			args := maps.Clone(warning.Attributes)
			if args == nil {
				args = make(map[string]any)
			}
			args[ArgClamped] = true
			events = append(events, spanEvents(warning.Span(tl.Last), args, opts.ProcessBase)...)
		}
	}
	for _, marker := range tl.Markers {
		if !keep(marker.Conn) {
			continue
		}
		events = append(events, &model.Event{
			Name:     marker.Label,
			Category: marker.Category,
			Phase:    model.EventPhaseInstant,
			PID:      opts.ProcessBase + marker.Track.PID,
			TID:      marker.Track.TID,
			Scope:    model.InstantScopeThread,
			Args:     maps.Clone(marker.Attributes),
			Time:     int64(marker.Timestamp),
		})
	}

	sortEvents(events)
	return append(metadata, events...), nil
}

func spanEvents(span timeline.Span, args map[string]any, base int) []*model.Event {
	duration := int64(span.Duration())
	return []*model.Event{
		{
			Name:     span.Label,
			Category: span.Category,
			Phase:    model.EventPhaseBegin,
			PID:      base + span.Track.PID,
			TID:      span.Track.TID,
			Args:     maps.Clone(args),
			Time:     int64(span.Begin),
			Duration: duration,
		},
		{
			Name:     span.Label,
			Category: span.Category,
			Phase:    model.EventPhaseEnd,
			PID:      base + span.Track.PID,
			TID:      span.Track.TID,
			Time:     int64(span.End),
			Duration: duration,
		},
	}
}

func trackMetadata(name string, tracks []timeline.Track, opts TraceOptions) []*model.Event {
	var events []*model.Event
	meta := func(track timeline.Track, key string, args map[string]any) {
		events = append(events, &model.Event{
			Name:  key,
			Phase: model.EventPhaseMetadata,
			PID:   opts.ProcessBase + track.ID.PID,
			TID:   track.ID.TID,
			Args:  args,
		})
	}
	for _, track := range tracks {
		if track.Kind == timeline.TrackConnection && !opts.Connections.Allows(track.ConnectionID) {
			continue
		}
		if track.Kind == timeline.TrackEventLoop {
			process := fmt.Sprintf("thread %d", track.ThreadID)
			if name != "" {
				process = fmt.Sprintf("%s %s", name, process)
			}
			meta(track, model.MetadataProcessName, map[string]any{"name": process})
			meta(track, model.MetadataProcessSortIndex, map[string]any{"sort_index": opts.ProcessBase + track.ID.PID})
		}
		meta(track, model.MetadataThreadName, map[string]any{"name": track.Name})
		meta(track, model.MetadataThreadSortIndex, map[string]any{"sort_index": track.ID.TID})
	}
	return events
}

// Order of events sharing a timestamp: ends of spans that started earlier
// (shortest first, so nested spans close first), then begins (longest first,
// so they nest), then instants, then ends of zero-length spans (reverse order,
// matching their begins).
const (
	orderEnd = iota
	orderBegin
	orderInstant
	orderZeroEnd
)

func eventOrder(event *model.Event) int {
	switch event.Phase {
	case model.EventPhaseEnd:
		if event.Duration == 0 {
			return orderZeroEnd
		}
		return orderEnd
	case model.EventPhaseBegin:
		return orderBegin
	}
	return orderInstant
}

// sortEvents puts the events in timestamp order.
func sortEvents(events []*model.Event) {
	sequence := make(map[*model.Event]int, len(events))
	for i, event := range events {
		sequence[event] = i
	}
	slices.SortStableFunc(events, func(a, b *model.Event) int {
		if c := cmp.Compare(a.Time, b.Time); c != 0 {
			return c
		}
		orderA, orderB := eventOrder(a), eventOrder(b)
		if c := cmp.Compare(orderA, orderB); c != 0 {
			return c
		}
		switch orderA {
		case orderEnd:
			return cmp.Compare(a.Duration, b.Duration)
		case orderBegin:
			return -cmp.Compare(a.Duration, b.Duration)
		case orderZeroEnd:
			return -cmp.Compare(sequence[a], sequence[b])
		}
		return 0
	})
}

// NewDocument wraps trace events into the JSON object format.
func NewDocument(events []*model.Event) model.Document {
	if events == nil {
		events = make([]*model.Event, 0)
	}
	return model.Document{
		TraceEvents:     events,
		DisplayTimeUnit: "ms",
	}
}
