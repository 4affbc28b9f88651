// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"strings"
	"testing"
)

func TestValidateGraphID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"complete graph", "K4", false},
		{"edge list", "0,1:1,2:2,3:3,0", false},
		{"compact edges", "01,12,23", false},
		{"custom name", "ieee-14_bus.v2", false},
		{"max length", strings.Repeat("a", 128), false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", 129), true},
		{"path separator", "K4/../../etc", true},
		{"flux injection", `K4") |> drop()`, true},
		{"newline", "K4\nfoo", true},
		{"space", "K 4", true},
		{"starts with dot", ".K4", true},
		{"starts with hyphen", "-K4", true},
		{"unicode", "K4™", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGraphID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateGraphID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeGraphID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		want    string
		wantErr bool
	}{
		{"passthrough", "K4", "K4", false},
		{"trimmed", "  K4 ", "K4", false},
		{"inner spaces", "0, 1 : 1, 2", "0,1:1,2", false},
		{"tabs", "0,1\t:1,2", "0,1:1,2", false},
		{"invalid rejected", "a/b", "", true},
		{"only spaces", "   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeGraphID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("SanitizeGraphID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SanitizeGraphID(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}
