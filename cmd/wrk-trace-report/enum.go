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
	"fmt"
	"slices"
)

// enumValue is a github.com/spf13/pflag value restricted to a fixed set of
// strings.
type enumValue[T ~string] struct {
	allowed []T
	val     T
}

func newEnumValue[T ~string](val T, allowed []T) *enumValue[T] {
	return &enumValue[T]{allowed: allowed, val: val}
}

func (v *enumValue[T]) String() string {
	return string(v.val)
}

func (v *enumValue[T]) Set(newVal string) error {
	val, err := parseEnum(newVal, v.allowed)
	if err != nil {
		return err
	}
	v.val = val
	return nil
}

func (v *enumValue[T]) Type() string {
	return "enum"
}

// parseEnum also validates values that came from the environment or the
// config file, which bypass the flag.
func parseEnum[T ~string](val string, allowed []T) (T, error) {
	if slices.Contains(allowed, T(val)) {
		return T(val), nil
	}
	return "", fmt.Errorf("value %q is not one of the allowed values: %+v", val, allowed)
}
