package traveler

// Field describes one profile attribute.
type Field struct {
	Key   string
	Label string
	// List marks fields whose conventional shape is a list of strings.
	List bool
	// Mergeable marks fields the preference merger may write.
	Mergeable bool
	// Suffix is appended to the rendered value.
	Suffix string
}

// Fields is the closed profile field set in rendering order.
var Fields = []Field{
	{Key: "age_group", Label: "Age group"},
	{Key: "location", Label: "Home base"},

	{Key: "daily_rhythm", Label: "Daily rhythm", Mergeable: true},
	{Key: "weekday_energy", Label: "Weekday energy"},
	{Key: "activity_level", Label: "Activity level", Mergeable: true},

	{Key: "trip_vibe", Label: "Trip vibes", List: true, Mergeable: true},
	{Key: "structure_preference", Label: "Structure", Mergeable: true},
	{Key: "solo_travel_comfort", Label: "Solo comfort", Mergeable: true},

	{Key: "travel_budget_style", Label: "Budget style", Mergeable: true},
	{Key: "budget_priority", Label: "Budget priority", Mergeable: true},
	{Key: "typical_trip_lengths", Label: "Typical trip length", List: true, Mergeable: true},

	{Key: "personality_baseline", Label: "Personality"},
	{Key: "discomfort_tolerance_score", Label: "Discomfort tolerance", Suffix: "/5"},
	{Key: "cultural_spiritual_importance", Label: "Spiritual interest"},

	{Key: "absolute_avoidances", Label: "Hard avoidances", List: true, Mergeable: true},
	{Key: "absolute_avoidances_other", Label: "Also avoids"},

	{Key: "diet_lifestyle_constraints", Label: "Diet/lifestyle", Mergeable: true},

	{Key: "travel_motivations", Label: "Travel motivations", List: true, Mergeable: true},
	{Key: "next_trip_outcome_goals", Label: "Next trip goals", List: true, Mergeable: true},
	{Key: "dream_trip_style", Label: "Dream trip", Mergeable: true},

	{Key: "favorite_past_trip", Label: "Favorite past trip"},
	{Key: "disliked_trip_patterns", Label: "Disliked patterns"},

	{Key: "travel_deal_breakers", Label: "Deal breakers", List: true, Mergeable: true},

	{Key: "extra_notes", Label: "Extra notes", Mergeable: true},
}

var fieldIndex = func() map[string]Field {
	m := make(map[string]Field, len(Fields))
	for _, f := range Fields {
		m[f.Key] = f
	}
	return m
}()

// IsMergeable reports whether key names a field the preference merger writes directly.
func IsMergeable(key string) bool {
	f, ok := fieldIndex[key]
	return ok && f.Mergeable
}

// IsListField reports whether key is conventionally list-valued.
func IsListField(key string) bool {
	f, ok := fieldIndex[key]
	return ok && f.List
}

// MergeableKeys returns the mergeable field keys in rendering order.
func MergeableKeys() []string {
	out := make([]string, 0, len(Fields))
	for _, f := range Fields {
		if f.Mergeable {
			out = append(out, f.Key)
		}
	}
	return out
}

// ListKeys returns the mergeable list-valued keys in rendering order.
func ListKeys() []string {
	out := make([]string, 0, 8)
	for _, f := range Fields {
		if f.Mergeable && f.List {
			out = append(out, f.Key)
		}
	}
	return out
}
