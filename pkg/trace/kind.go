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

import "fmt"

// Kind identifies what a version 2 record describes.  The numeric values are
// written by the producer and must not be renumbered.
type Kind uint8

const (
	KindReq Kind = iota
	KindResp
	KindConnStart
	KindConnected
	KindLoopStart
	KindEpollWait
	KindEpollWake
	KindDelayReqFE
	KindDelayReqTE
	KindExpectReqFE
	KindExpectReqTE

	kindCount
)

// Arity describes how a kind takes part in span reconstruction.
type Arity int

const (
	// ArityTrackStart marks the start of an event loop.
	ArityTrackStart Arity = iota
	// ArityBegin opens a span, closed by the kind returned from Kind.Pair.
	ArityBegin
	// ArityEnd closes the span opened by the kind returned from Kind.Pair.
	ArityEnd
	// ArityInstant is a point in time with no state.
	ArityInstant
)

type kindInfo struct {
	name   string
	arity  Arity
	pair   Kind
	scoped bool // connectionId is a real connection id
}

var kinds = [kindCount]kindInfo{
	KindReq:         {"REQ", ArityBegin, KindResp, true},
	KindResp:        {"RESP", ArityEnd, KindReq, true},
	KindConnStart:   {"CONN_START", ArityBegin, KindConnected, true},
	KindConnected:   {"CONNECTED", ArityEnd, KindConnStart, true},
	KindLoopStart:   {"LOOP_START", ArityTrackStart, KindLoopStart, false},
	KindEpollWait:   {"EPOLL_WAIT", ArityBegin, KindEpollWake, false},
	KindEpollWake:   {"EPOLL_WAKE", ArityEnd, KindEpollWait, false},
	KindDelayReqFE:  {"DELAY_REQ_FE", ArityInstant, KindDelayReqFE, true},
	KindDelayReqTE:  {"DELAY_REQ_TE", ArityInstant, KindDelayReqTE, true},
	KindExpectReqFE: {"EXPECT_REQ_FE", ArityInstant, KindExpectReqFE, true},
	KindExpectReqTE: {"EXPECT_REQ_TE", ArityInstant, KindExpectReqTE, true},
}

// Valid reports whether k is part of the catalog.
func (k Kind) Valid() bool {
	return k < kindCount
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kinds[k].name
}

// Arity returns the role of the kind; unknown kinds are treated as instants.
func (k Kind) Arity() Arity {
	if !k.Valid() {
		return ArityInstant
	}
	return kinds[k].arity
}

// Pair returns the kind that closes a begin kind, or opens an end kind.  For
// any other kind it returns k itself.
func (k Kind) Pair() Kind {
	if !k.Valid() {
		return k
	}
	return kinds[k].pair
}

// ConnectionScoped reports whether the connection id field of a record of this
// kind identifies a connection.  The epoll kinds reuse the field as a payload
// and LOOP_START leaves it zero.
func (k Kind) ConnectionScoped() bool {
	return k.Valid() && kinds[k].scoped
}

// ParseKind returns the kind with the given producer name, e.g. "EPOLL_WAIT".
func ParseKind(name string) (Kind, error) {
	for k, info := range kinds {
		if info.name == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
}
