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
	"fmt"
	"maps"
	"slices"

	"github.com/rancher-sandbox/wrk-trace-report/pkg/connset"
	"github.com/rancher-sandbox/wrk-trace-report/pkg/trace"
)

// DefaultPointSize is the symbol size of scatter points.
const DefaultPointSize = 2

// Series is an ECharts scatter series.  Each point is (millisecond, microsecond
// within that millisecond), so requests sent in a regular rhythm show up as
// lines.
type Series struct {
	Type       string      `json:"type"`
	SymbolSize int         `json:"symbolSize"`
	Data       [][2]uint32 `json:"data"`
	Name       string      `json:"name,omitempty"`
}

// ScatterOptions configure ScatterSeries.
type ScatterOptions struct {
	PointSize int
	// GroupByConnection emits one series per connection.
	GroupByConnection bool
	Connections       connset.Set
}

func point(event trace.Event) [2]uint32 {
	return [2]uint32{event.Timestamp / 1000, event.Timestamp % 1000}
}

// ScatterSeries plots the requests of a trace.  Version 1 records are all
// requests; for version 2 only REQ records are used.
func ScatterSeries(name string, t *trace.Trace, opts ScatterOptions) []Series {
	size := opts.PointSize
	if size <= 0 {
		size = DefaultPointSize
	}
	newSeries := func(name string) *Series {
		return &Series{
			Type:       "scatter",
			SymbolSize: size,
			Data:       make([][2]uint32, 0),
			Name:       name,
		}
	}

	if !opts.GroupByConnection {
		series := newSeries(name)
		for _, event := range t.Events {
			if event.Kind == trace.KindReq && allowed(event, opts.Connections) {
				series.Data = append(series.Data, point(event))
			}
		}
		return []Series{*series}
	}

	byConnection := make(map[uint16]*Series)
	for _, event := range t.Events {
		if event.Kind != trace.KindReq || !allowed(event, opts.Connections) {
			continue
		}
		series, ok := byConnection[event.ConnectionID]
		if !ok {
			label := fmt.Sprintf("conn %d", event.ConnectionID)
			if name != "" {
				label = fmt.Sprintf("%s %s", name, label)
			}
			series = newSeries(label)
			byConnection[event.ConnectionID] = series
		}
		series.Data = append(series.Data, point(event))
	}
	result := make([]Series, 0, len(byConnection))
	for _, cid := range slices.Sorted(maps.Keys(byConnection)) {
		result = append(result, *byConnection[cid])
	}
	return result
}
