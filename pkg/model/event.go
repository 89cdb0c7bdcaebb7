package model

type EventPhase string

const (
	EventPhaseBegin    = EventPhase("B")
	EventPhaseEnd      = EventPhase("E")
	EventPhaseInstant  = EventPhase("i")
	EventPhaseMetadata = EventPhase("M")
)

// InstantScopeThread limits an instant event to its own lane.
const InstantScopeThread = "t"

// Metadata event names.
const (
	MetadataProcessName      = "process_name"
	MetadataThreadName       = "thread_name"
	MetadataProcessSortIndex = "process_sort_index"
	MetadataThreadSortIndex  = "thread_sort_index"
)

// Event describes something happening.  It is in Google's Trace Event Format,
// as described in https://docs.google.com/document/d/1CvAClvFfyA5R-PhYUmn5OOQtYMH4h6I0nSsKchNAySU/preview?tab=t.0#heading=h.uxpopqvbjezh
type Event struct {
	Name     string         `json:"name"`
	Category string         `json:"cat,omitempty"`
	Phase    EventPhase     `json:"ph"`
	PID      int            `json:"pid"`
	TID      int            `json:"tid"`
	Scope    string         `json:"s,omitempty"`
	Args     map[string]any `json:"args,omitempty"`

	// Event time in microseconds since start of trace.
	Time int64 `json:"ts"`
	// Duration of "begin" events; only used for ordering.
	Duration int64 `json:"-"`
}

// Document is the JSON object format of a trace file.
type Document struct {
	TraceEvents     []*Event `json:"traceEvents"`
	DisplayTimeUnit string   `json:"displayTimeUnit,omitempty"`
}
