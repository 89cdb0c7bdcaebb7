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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rancher-sandbox/wrk-trace-report/pkg/trace"
)

func writeTrace(t *testing.T, version int32, events []trace.Event) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, trace.Encode(&buf, trace.HeaderFor(version, events), events, nil))
	path := filepath.Join(t.TempDir(), "wrk.trace")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func scenarioA(t *testing.T) string {
	return writeTrace(t, trace.Version1, []trace.Event{
		{ThreadID: 0, ConnectionID: 1, Timestamp: 1000, Kind: trace.KindReq},
		{ThreadID: 0, ConnectionID: 2, Timestamp: 2500, Kind: trace.KindReq},
	})
}

// execute runs the command line, returning standard output and standard error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestFormats(t *testing.T) {
	path := scenarioA(t)
	testCases := []struct {
		name     string
		args     []string
		expected string
	}{
		{
			name:     "csv",
			args:     []string{"--format", "csv"},
			expected: "tid,cid,us\n0,1,1000\n0,2,2500\n",
		},
		{
			name:     "csv split",
			args:     []string{"-f", "csv", "--split-ms", "--connections", "2"},
			expected: "tid,cid,ms,us\n0,2,2,500\n",
		},
		{
			name: "scatter",
			args: []string{"--point-size", "4"},
			expected: `[{"type":"scatter","symbolSize":4,"data":[[1,0],[2,500]],"name":` +
				strings.ReplaceAll(`"`+path+`"`, `\`, `\\`) + "}]\n",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			stdout, _, err := execute(t, append(tc.args, path)...)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, stdout)
		})
	}
}

func TestTraceFormat(t *testing.T) {
	path := scenarioA(t)
	stdout, _, err := execute(t, "-f", "trace", "--unterminated", "drop", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, `"displayTimeUnit":"ms"`)
	assert.Contains(t, stdout, `"name":"conn 1","cat":"handle","ph":"B","pid":0,"tid":0,"ts":1000`)
	assert.NotContains(t, stdout, `"name":"conn 2","cat":"handle"`)
}

func TestOutputFile(t *testing.T) {
	path := scenarioA(t)
	output := filepath.Join(t.TempDir(), "out.csv")
	stdout, _, err := execute(t, "-f", "csv", "-o", output, path)
	require.NoError(t, err)
	assert.Empty(t, stdout)
	contents, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "tid,cid,us\n0,1,1000\n0,2,2500\n", string(contents))
}

func TestFailureWritesNoOutputFile(t *testing.T) {
	path := writeTrace(t, trace.Version2, []trace.Event{
		{Kind: trace.KindReq, Timestamp: 5},
	})
	output := filepath.Join(t.TempDir(), "out.json")
	_, _, err := execute(t, "-f", "trace", "-o", output, path)
	require.Error(t, err)
	assert.NoFileExists(t, output)
}

func TestInvalidFlags(t *testing.T) {
	path := scenarioA(t)
	testCases := []struct {
		name string
		args []string
	}{
		{"format", []string{"--format", "xml"}},
		{"unterminated", []string{"--unterminated", "later"}},
		{"connections", []string{"--connections", "5-2"}},
		{"offset", []string{"--offset", "-1"}},
		{"out of range", []string{"--offset", "2"}},
		{"point size", []string{"--point-size", "0"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			stdout, _, err := execute(t, append(tc.args, path)...)
			assert.Error(t, err)
			assert.Empty(t, stdout)
		})
	}
}

func TestNoFiles(t *testing.T) {
	_, _, err := execute(t)
	assert.Error(t, err)
}

func TestEnvironment(t *testing.T) {
	path := scenarioA(t)
	t.Setenv("WRK_TRACE_FORMAT", "csv")
	t.Setenv("WRK_TRACE_SPLIT_MS", "true")
	stdout, _, err := execute(t, path)
	require.NoError(t, err)
	assert.Equal(t, "tid,cid,ms,us\n0,1,1,0\n0,2,2,500\n", stdout)

	t.Setenv("WRK_TRACE_FORMAT", "xml")
	_, _, err = execute(t, path)
	assert.ErrorContains(t, err, "invalid format")
}

func TestConfigFile(t *testing.T) {
	path := scenarioA(t)
	config := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(config, []byte("format: csv\nconnections: \"1\"\n"), 0o644))

	stdout, _, err := execute(t, "--config", config, path)
	require.NoError(t, err)
	assert.Equal(t, "tid,cid,us\n0,1,1000\n", stdout)

	// Flags take precedence over the config file.
	stdout, _, err = execute(t, "--config", config, "--connections", "2", path)
	require.NoError(t, err)
	assert.Equal(t, "tid,cid,us\n0,2,2500\n", stdout)

	_, _, err = execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), path)
	assert.ErrorContains(t, err, "does not exist")
}

func TestVerboseLogging(t *testing.T) {
	path := scenarioA(t)
	_, stderr, err := execute(t, "-v", "-f", "csv", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Configured report")
}

func TestInfo(t *testing.T) {
	path := scenarioA(t)
	stdout, _, err := execute(t, "info", "--limit", "1", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{path, "1", "24", "B", "2", "1", "1,000", "1,000", "2", "1", "REQ=1"},
		strings.Fields(lines[1]))
}
