package traveler

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValueJSONShapes(t *testing.T) {
	raw := `{"trip_vibe":["Adventure",3],"activity_level":"High","discomfort_tolerance_score":4,"solo_travel_comfort":true,"extra_notes":null}`

	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if v := p.Get("trip_vibe"); !v.IsList() {
		t.Fatalf("trip_vibe should decode as list, got %#v", v)
	}
	if diff := cmp.Diff([]string{"Adventure", "3"}, p.Get("trip_vibe").Items()); diff != "" {
		t.Fatalf("trip_vibe items mismatch (-want +got):\n%s", diff)
	}
	if got := p.Get("discomfort_tolerance_score").String(); got != "4" {
		t.Fatalf("discomfort_tolerance_score = %q, want %q", got, "4")
	}
	if got := p.Get("solo_travel_comfort").String(); got != "true" {
		t.Fatalf("solo_travel_comfort = %q, want %q", got, "true")
	}
	if _, ok := p["extra_notes"]; ok {
		t.Fatalf("extra_notes should be unset")
	}
	if p.Get("activity_level").IsList() {
		t.Fatalf("activity_level should be scalar")
	}
}

func TestRecordRoundTripKeepsShapes(t *testing.T) {
	rec := Record{
		ID:         "r1",
		ExternalID: "42",
		Profile: Profile{
			"trip_vibe":      List("Beach"),
			"activity_level": Scalar("Low"),
		},
		LearnedExtras: map[string]any{"seat": "aisle"},
	}
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got Record
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !got.Profile.Get("trip_vibe").IsList() {
		t.Fatalf("trip_vibe lost its list shape: %s", b)
	}
	if got.Profile.Get("activity_level").String() != "Low" {
		t.Fatalf("activity_level = %q", got.Profile.Get("activity_level").String())
	}
	if got.LearnedExtras["seat"] != "aisle" {
		t.Fatalf("learned_extras = %#v", got.LearnedExtras)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	rec := Record{
		Profile:       Profile{"trip_vibe": List("A")},
		LearnedExtras: map[string]any{"k": "v"},
		History:       HistoryState{RecentMessages: []Exchange{{Role: RoleUser, Text: "hi"}}},
	}
	c := rec.Clone()
	c.Profile["trip_vibe"] = List("B")
	c.LearnedExtras["k"] = "w"
	c.History.RecentMessages[0].Text = "changed"

	if rec.Profile.Get("trip_vibe").String() != "A" {
		t.Fatalf("profile aliased")
	}
	if rec.LearnedExtras["k"] != "v" {
		t.Fatalf("extras aliased")
	}
	if rec.History.RecentMessages[0].Text != "hi" {
		t.Fatalf("history aliased")
	}
}

func TestFieldTables(t *testing.T) {
	if got := len(MergeableKeys()); got != 15 {
		t.Fatalf("len(MergeableKeys()) = %d, want 15", got)
	}
	wantLists := []string{
		"trip_vibe",
		"typical_trip_lengths",
		"absolute_avoidances",
		"travel_motivations",
		"next_trip_outcome_goals",
		"travel_deal_breakers",
	}
	if diff := cmp.Diff(wantLists, ListKeys()); diff != "" {
		t.Fatalf("ListKeys() mismatch (-want +got):\n%s", diff)
	}
	if IsMergeable("age_group") {
		t.Fatalf("age_group should not be mergeable")
	}
	if IsMergeable("preferred_airlines") {
		t.Fatalf("unknown key should not be mergeable")
	}
}
