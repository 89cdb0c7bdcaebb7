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

// Package connset implements sets of connection ids written as comma separated
// ids and inclusive ranges, such as "0-3,7".
package connset

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Set is a set of connection ids.  The zero value is an empty set.  Set
// implements github.com/spf13/pflag.Value.
type Set struct {
	ids map[int]struct{}
}

// Parse the given list of ids and ranges.  All invalid tokens are reported.
func Parse(list string) (Set, error) {
	var set Set
	if err := set.add(list); err != nil {
		return Set{}, err
	}
	return set, nil
}

// Of returns a set holding the given ids.
func Of(ids ...int) Set {
	set := Set{ids: make(map[int]struct{}, len(ids))}
	for _, id := range ids {
		set.ids[id] = struct{}{}
	}
	return set
}

func (s *Set) add(list string) error {
	var errs *multierror.Error
	ids := make(map[int]struct{})
	for _, token := range strings.Split(list, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		low, high, err := parseToken(token)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("invalid connection range %q: %w", token, err))
			continue
		}
		for id := low; id <= high; id++ {
			ids[id] = struct{}{}
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return err
	}
	if s.ids == nil {
		s.ids = ids
	} else {
		maps.Copy(s.ids, ids)
	}
	return nil
}

func parseToken(token string) (int, int, error) {
	lowText, highText, isRange := strings.Cut(token, "-")
	low, err := parseID(lowText)
	if err != nil {
		return 0, 0, err
	}
	if !isRange {
		return low, low, nil
	}
	high, err := parseID(highText)
	if err != nil {
		return 0, 0, err
	}
	if high < low {
		return 0, 0, fmt.Errorf("range end %d is before its start %d", high, low)
	}
	return low, high, nil
}

func parseID(text string) (int, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(text), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("expected an integer between 0 and %d: %w", math.MaxUint16, err)
	}
	return int(id), nil
}

// Len returns the number of ids in the set.
func (s Set) Len() int {
	return len(s.ids)
}

// Contains reports whether id is in the set.
func (s Set) Contains(id int) bool {
	_, ok := s.ids[id]
	return ok
}

// Allows reports whether id passes a filter made from this set: an empty set
// allows every id.
func (s Set) Allows(id int) bool {
	return s.Len() == 0 || s.Contains(id)
}

// IDs returns the ids of the set in ascending order.
func (s Set) IDs() []int {
	return slices.Sorted(maps.Keys(s.ids))
}

// String formats the set canonically, collapsing runs into ranges.
func (s *Set) String() string {
	ids := s.IDs()
	var parts []string
	for i := 0; i < len(ids); {
		j := i
		for j+1 < len(ids) && ids[j+1] == ids[j]+1 {
			j++
		}
		if i == j {
			parts = append(parts, strconv.Itoa(ids[i]))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", ids[i], ids[j]))
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}

// Set adds the ids in list to the set; it can be called repeatedly for a flag
// given more than once.
func (s *Set) Set(list string) error {
	return s.add(list)
}

func (s *Set) Type() string {
	return "connections"
}
