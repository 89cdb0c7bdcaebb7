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

package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/rancher-sandbox/wrk-trace-report/pkg/trace"
)

// Info loads every file, rebuilding all timelines whatever the format, and
// writes the summary table to w.
func Info(ctx context.Context, config Config, paths []string, w io.Writer) error {
	if len(paths) == 0 {
		return fmt.Errorf("no trace files given")
	}
	sources, err := load(ctx, config, paths, true)
	if err != nil {
		return err
	}
	return WriteInfo(w, sources)
}

// WriteInfo writes a summary table of the sources.  Sources without a
// timeline show "-" for the track and warning counts.
func WriteInfo(w io.Writer, sources []*Source) error {
	writer := tabwriter.NewWriter(w, 0, 4, 4, ' ', 0)
	fmt.Fprintf(writer, "FILE\tVERSION\tSIZE\tDECLARED\tLOADED\tFIRST\tLAST\tTRACKS\tWARNINGS\tKINDS\n")
	for _, source := range sources {
		t := source.Trace
		first, last := "-", "-"
		if len(t.Events) > 0 {
			begin, end := t.TimeRange()
			first = humanize.Comma(int64(begin))
			last = humanize.Comma(int64(end))
		}
		tracks, warnings := "-", "-"
		if source.Timeline != nil {
			tracks = fmt.Sprint(len(source.Timeline.Tracks))
			warnings = fmt.Sprint(len(source.Timeline.Warnings))
		}
		fmt.Fprintf(writer, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			source.Path,
			t.Version(),
			humanize.Bytes(uint64(t.Size)),
			humanize.Comma(int64(t.Header.RecordCount)),
			humanize.Comma(int64(len(t.Events))),
			first,
			last,
			tracks,
			warnings,
			kindSummary(t))
	}
	return writer.Flush()
}

// kindSummary lists the record count of each kind present, in catalog order.
func kindSummary(t *trace.Trace) string {
	counts := t.KindCounts()
	var parts []string
	for kind := trace.Kind(0); kind.Valid(); kind++ {
		if count := counts[kind]; count > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", kind, count))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}
