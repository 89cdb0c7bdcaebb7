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

// Package report runs the whole conversion for one invocation: load every
// trace file, rebuild timelines where the output needs them, and render the
// selected format.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/Masterminds/log-go"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/rancher-sandbox/wrk-trace-report/pkg/connset"
	"github.com/rancher-sandbox/wrk-trace-report/pkg/model"
	"github.com/rancher-sandbox/wrk-trace-report/pkg/render"
	"github.com/rancher-sandbox/wrk-trace-report/pkg/timeline"
	"github.com/rancher-sandbox/wrk-trace-report/pkg/trace"
)

// Format selects the output.
type Format string

const (
	// FormatCSV writes one row per record.
	FormatCSV = Format("csv")
	// FormatScatter writes a JSON array of scatter series.
	FormatScatter = Format("scatter")
	// FormatTrace writes a trace viewer document of nested spans.
	FormatTrace = Format("trace")
)

// Formats lists the supported formats.
var Formats = []Format{FormatCSV, FormatScatter, FormatTrace}

// Config is fixed for the whole invocation and shared by every file.
type Config struct {
	Format            Format
	Load              trace.Options
	PointSize         int
	GroupByConnection bool
	SplitMillis       bool
	Connections       connset.Set
	Unterminated      render.UnterminatedPolicy
	// Jobs is the number of files processed at once; zero or less uses
	// GOMAXPROCS.
	Jobs int
}

// Source is one loaded trace file.
type Source struct {
	Path  string
	Trace *trace.Trace
	// Timeline is nil unless the configuration needed it.
	Timeline *timeline.Timeline
}

// Load decodes every file, and rebuilds its timeline when the format needs it.
// The result is in the same order as paths.  The first failure stops the
// remaining work and is returned.
func Load(ctx context.Context, config Config, paths []string) ([]*Source, error) {
	return load(ctx, config, paths, config.Format == FormatTrace)
}

func load(ctx context.Context, config Config, paths []string, reconstruct bool) ([]*Source, error) {
	sources := make([]*Source, len(paths))
	group, ctx := errgroup.WithContext(ctx)
	jobs := config.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	group.SetLimit(jobs)

	for i, path := range paths {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			source, err := loadSource(config, path, reconstruct)
			if err != nil {
				return err
			}
			sources[i] = source
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return sources, nil
}

func loadSource(config Config, path string, reconstruct bool) (*Source, error) {
	decoded, err := trace.Load(path, config.Load)
	if err != nil {
		return nil, err
	}
	source := &Source{Path: path, Trace: decoded}
	log.Debugw("decoded trace", log.Fields{
		"path":     path,
		"size":     humanize.Bytes(uint64(decoded.Size)),
		"version":  decoded.Version(),
		"declared": decoded.Header.RecordCount,
		"loaded":   len(decoded.Events),
		"offset":   decoded.Offset,
	})

	if !reconstruct {
		return source, nil
	}
	source.Timeline, err = timeline.Reconstruct(decoded.Version(), decoded.Events)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct %s: %w", path, err)
	}
	for _, warning := range source.Timeline.Warnings {
		log.Debugw("unterminated span", log.Fields{
			"path":  path,
			"track": fmt.Sprintf("%d/%d", warning.Track.PID, warning.Track.TID),
			"label": warning.Label,
			"begin": warning.Begin,
		})
	}
	if count := len(source.Timeline.Warnings); count > 0 {
		log.Warnw("trace has unterminated spans", log.Fields{
			"path":   path,
			"count":  count,
			"policy": config.unterminated(),
		})
	}
	return source, nil
}

func (c Config) unterminated() render.UnterminatedPolicy {
	if c.Unterminated == "" {
		return render.UnterminatedOpen
	}
	return c.Unterminated
}

// Render writes the configured format for the given sources.
func Render(w io.Writer, config Config, sources []*Source) error {
	switch config.Format {
	case FormatCSV:
		traces := make([]*trace.Trace, 0, len(sources))
		for _, source := range sources {
			traces = append(traces, source.Trace)
		}
		return render.WriteRows(w, traces, render.RowOptions{
			SplitMillis: config.SplitMillis,
			Connections: config.Connections,
		})
	case FormatScatter:
		series := make([]render.Series, 0, len(sources))
		for _, source := range sources {
			series = append(series, render.ScatterSeries(source.Path, source.Trace, render.ScatterOptions{
				PointSize:         config.PointSize,
				GroupByConnection: config.GroupByConnection,
				Connections:       config.Connections,
			})...)
		}
		return json.NewEncoder(w).Encode(series)
	case FormatTrace:
		var events []*model.Event
		base := 0
		for _, source := range sources {
			if source.Timeline == nil {
				return fmt.Errorf("no timeline for %s", source.Path)
			}
			rendered, err := render.TraceEvents(source.Path, source.Timeline, render.TraceOptions{
				Unterminated: config.unterminated(),
				Connections:  config.Connections,
				ProcessBase:  base,
			})
			if err != nil {
				return fmt.Errorf("failed to render %s: %w", source.Path, err)
			}
			events = append(events, rendered...)
			base += source.Timeline.ProcessCount()
		}
		return json.NewEncoder(w).Encode(render.NewDocument(events))
	}
	return fmt.Errorf("unknown output format %q", config.Format)
}

// Run loads every file and writes the configured format to w.  Nothing is
// written unless every file was processed successfully.
func Run(ctx context.Context, config Config, paths []string, w io.Writer) error {
	if len(paths) == 0 {
		return fmt.Errorf("no trace files given")
	}
	sources, err := Load(ctx, config, paths)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := Render(&buf, config, sources); err != nil {
		return err
	}
	log.Debugf("writing %s of %s output", humanize.Bytes(uint64(buf.Len())), config.Format)
	_, err = buf.WriteTo(w)
	return err
}
