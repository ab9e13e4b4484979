// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routing

import (
	"reflect"
	"testing"
)

func TestDecompose(t *testing.T) {
	tests := []struct {
		name      string
		utterance string
		want      []string
	}{
		{
			name:      "single intent",
			utterance: "What is the weather in Paris",
			want:      []string{"What is the weather in Paris"},
		},
		{
			name:      "two intents joined by and",
			utterance: "Set an alarm for 7 AM and check the weather in Paris",
			want:      []string{"Set an alarm for 7 AM", "check the weather in Paris"},
		},
		{
			name:      "conjunction inside an entity is not split",
			utterance: "Send a message to Tom and Jerry",
			want:      []string{"Send a message to Tom and Jerry"},
		},
		{
			name:      "three intents across markers",
			utterance: "play jazz, set a timer for 5 minutes and text Bob saying hi",
			want:      []string{"play jazz", "set a timer for 5 minutes", "text Bob saying hi"},
		},
		{
			name:      "open then type",
			utterance: "open safari and type hello",
			want:      []string{"open safari", "type hello"},
		},
		{
			name:      "verb match is case-insensitive",
			utterance: "open Safari then Type hello",
			want:      []string{"open Safari", "Type hello"},
		},
		{
			name:      "surrounding whitespace is trimmed",
			utterance: "  play jazz  ",
			want:      []string{"play jazz"},
		},
		{
			name:      "blank input yields one element",
			utterance: "   ",
			want:      []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decompose(tt.utterance)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decompose(%q) = %q, want %q", tt.utterance, got, tt.want)
			}
		})
	}
}

func TestDecompose_Idempotent(t *testing.T) {
	inputs := []string{
		"What is the weather in Paris",
		"Send a message to Tom and Jerry",
		"  play jazz  ",
		"   ",
		"remind me to call mom at 5pm",
	}
	for _, in := range inputs {
		first := Decompose(in)
		if len(first) != 1 {
			t.Fatalf("Decompose(%q) = %q, want a single sub-query", in, first)
		}
		if again := Decompose(first[0]); !reflect.DeepEqual(again, first) {
			t.Errorf("Decompose(%q) = %q, want %q", first[0], again, first)
		}
	}
}

func TestDecompose_NeverEmpty(t *testing.T) {
	for _, in := range []string{"", " and ", ", , ", "and"} {
		if got := Decompose(in); len(got) == 0 {
			t.Errorf("Decompose(%q) returned no sub-queries", in)
		}
	}
}

func TestIsActionVerb(t *testing.T) {
	for _, w := range []string{"set", "SET", "Remind", "click", "press"} {
		if !IsActionVerb(w) {
			t.Errorf("IsActionVerb(%q) = false, want true", w)
		}
	}
	for _, w := range []string{"Jerry", "the", "", "then"} {
		if IsActionVerb(w) {
			t.Errorf("IsActionVerb(%q) = true, want false", w)
		}
	}
}

func TestResolvePronouns(t *testing.T) {
	t.Run("later sub-queries use the first name", func(t *testing.T) {
		in := []string{"send a message to Alice saying hi", "remind me to call her at 5pm"}
		got := ResolvePronouns(in)
		want := []string{"send a message to Alice saying hi", "remind me to call Alice at 5pm"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("first sub-query is never rewritten", func(t *testing.T) {
		in := []string{"find him", "text Bob saying hi"}
		got := ResolvePronouns(in)
		if got[0] != "find him" {
			t.Errorf("first sub-query rewritten to %q", got[0])
		}
	})

	t.Run("case-insensitive whole words only", func(t *testing.T) {
		in := []string{"look up Carol", "message Them saying hello", "play other music"}
		got := ResolvePronouns(in)
		if got[1] != "message Carol saying hello" {
			t.Errorf("got %q", got[1])
		}
		if got[2] != "play other music" {
			t.Errorf("partial word rewritten: %q", got[2])
		}
	})

	t.Run("no names leaves input unchanged", func(t *testing.T) {
		in := []string{"play jazz", "text her saying hi"}
		got := ResolvePronouns(in)
		if !reflect.DeepEqual(got, in) {
			t.Errorf("got %q, want %q", got, in)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if got := ResolvePronouns(nil); len(got) != 0 {
			t.Errorf("got %q, want empty", got)
		}
	})
}
