package model

import (
	"encoding/json"
	"testing"
)

func TestResourceStateString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		state    ResourceState
		expected string
	}{
		{ResourceStateProcessed, "processed"},
		{ResourceStateOutOfScope, "out_of_scope"},
		{ResourceStateOutOfContext, "out_of_context"},
		{ResourceStateExcluded, "excluded"},
		{ResourceStateIOError, "io_error"},
		{ResourceStateThirdParty, "third_party"},
		{ResourceState(99), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()
			if got := tc.state.String(); got != tc.expected {
				t.Errorf("got %q, expected %q", got, tc.expected)
			}
		})
	}
}

func TestParseResourceState(t *testing.T) {
	t.Parallel()

	for _, state := range AllResourceStates() {
		got, err := ParseResourceState(" " + state.String() + " ")
		if err != nil {
			t.Fatalf("ParseResourceState(%q) error: %v", state, err)
		}
		if got != state {
			t.Errorf("ParseResourceState(%q) = %v", state, got)
		}
	}

	if _, err := ParseResourceState("bogus"); err == nil {
		t.Error("expected error for unknown state")
	}
}

func TestResourceStateJSON(t *testing.T) {
	t.Parallel()

	ex := Exchange{State: ResourceStateThirdParty}
	data, err := json.Marshal(ex)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var decoded struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if decoded.State != "third_party" {
		t.Errorf("state = %q, want third_party", decoded.State)
	}
}

func TestResourceStateIsInScope(t *testing.T) {
	t.Parallel()

	inScope := map[ResourceState]bool{
		ResourceStateProcessed:  true,
		ResourceStateThirdParty: true,
	}
	for _, state := range AllResourceStates() {
		if got := state.IsInScope(); got != inScope[state] {
			t.Errorf("%v.IsInScope() = %v, want %v", state, got, inScope[state])
		}
	}
}

func TestParseScopeCheckPolicy(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input   string
		want    ScopeCheckPolicy
		wantErr bool
	}{
		{"strict", ScopeCheckStrict, false},
		{"", ScopeCheckStrict, false},
		{"FLEXIBLE", ScopeCheckFlexible, false},
		{"lenient", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseScopeCheckPolicy(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tc.wantErr)
			}
			if !tc.wantErr && got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for _, m := range []Mode{ModeStandard, ModeSafe, ModeProtect, ModeAttack} {
		got, err := ParseMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseMode(%q) = %v, %v", m, got, err)
		}
	}
	if _, err := ParseMode("chaos"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestAllowedResourceMatchesFullURL(t *testing.T) {
	t.Parallel()

	resources := DefaultAllowedResources()

	testCases := []struct {
		url  string
		want bool
	}{
		{"http://cdn.test/app.js", true},
		{"https://cdn.test/app.JS?v=3", true},
		{"http://cdn.test/site.css", true},
		{"http://cdn.test/app.js.map", false},
		{"ws://cdn.test/app.js", false},
		{"http://cdn.test/page.html", false},
	}

	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			t.Parallel()
			got := false
			for _, r := range resources {
				if r.Matches(tc.url) {
					got = true
				}
			}
			if got != tc.want {
				t.Errorf("match(%q) = %v, want %v", tc.url, got, tc.want)
			}
		})
	}

	disabled, err := NewAllowedResource(`.*`, false)
	if err != nil {
		t.Fatalf("NewAllowedResource error: %v", err)
	}
	if disabled.Matches("http://a.test/") {
		t.Error("disabled allowed resource must not match")
	}
}
