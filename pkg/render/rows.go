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

// Package render turns decoded traces and reconstructed timelines into the
// output formats: CSV rows, scatter series and trace viewer events.
package render

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rancher-sandbox/wrk-trace-report/pkg/connset"
	"github.com/rancher-sandbox/wrk-trace-report/pkg/trace"
)

// RowOptions configure WriteRows.
type RowOptions struct {
	// SplitMillis writes timestamps as separate millisecond and microsecond
	// columns.
	SplitMillis bool
	// Connections restricts the rows to these connections, if not empty.
	Connections connset.Set
}

// allowed reports whether the event passes the connection filter.  Events that
// do not belong to a connection always pass.
func allowed(event trace.Event, connections connset.Set) bool {
	return !event.Kind.ConnectionScoped() || connections.Allows(int(event.ConnectionID))
}

// WriteRows writes one CSV row per decoded event, preceded by a header.  When
// any trace is version 2 an event column is added.
func WriteRows(w io.Writer, traces []*trace.Trace, opts RowOptions) error {
	withKind := false
	for _, t := range traces {
		if t.Version() != trace.Version1 {
			withKind = true
		}
	}

	header := []string{"tid", "cid"}
	if opts.SplitMillis {
		header = append(header, "ms", "us")
	} else {
		header = append(header, "us")
	}
	if withKind {
		header = append(header, "event")
	}

	out := csv.NewWriter(w)
	if err := out.Write(header); err != nil {
		return err
	}
	row := make([]string, 0, len(header))
	for _, t := range traces {
		for _, event := range t.Events {
			if !allowed(event, opts.Connections) {
				continue
			}
			row = append(row[:0],
				strconv.Itoa(int(event.ThreadID)),
				strconv.Itoa(int(event.ConnectionID)))
			if opts.SplitMillis {
				row = append(row,
					strconv.FormatUint(uint64(event.Timestamp/1000), 10),
					strconv.FormatUint(uint64(event.Timestamp%1000), 10))
			} else {
				row = append(row, strconv.FormatUint(uint64(event.Timestamp), 10))
			}
			if withKind {
				row = append(row, event.Kind.String())
			}
			if err := out.Write(row); err != nil {
				return err
			}
		}
	}
	out.Flush()
	return out.Error()
}
