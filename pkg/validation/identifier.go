// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks identifiers before they reach file names,
// storage keys, object paths and line-protocol tags.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Graph ids are user-chosen (-g) or derived from an edge list such as
// "0,1:1,2", so commas and colons are allowed.
var graphIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.,:\-]{0,127}$`)

// ValidateGraphID reports whether id is safe to use as a report name
// component, history key segment, object name segment and metric tag.
//
// Valid graph ids:
//   - 1-128 characters
//   - Letters, digits, underscore, dot, comma, colon and hyphen
//   - Starting with a letter or digit
//
// Example:
//
//	if err := validation.ValidateGraphID(id); err != nil {
//	    return fmt.Errorf("invalid graph id: %w", err)
//	}
func ValidateGraphID(id string) error {
	if id == "" {
		return fmt.Errorf("graph id cannot be empty")
	}
	if !graphIDPattern.MatchString(id) {
		return fmt.Errorf("invalid graph id %q (must be 1-128 letters, digits or _.,:- and start alphanumeric)", id)
	}
	return nil
}

// SanitizeGraphID drops all whitespace, so "0, 1 : 1, 2" becomes
// "0,1:1,2", then validates the result.
func SanitizeGraphID(id string) (string, error) {
	normalized := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, id)
	if err := ValidateGraphID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
