package interpret

import (
	"reflect"
	"testing"
)

func TestMerge_PopulatedFieldNeverCleared(t *testing.T) {
	base := Interpretation{
		What: What{Topic: "AI news", Description: "daily digest"},
		When: When{Frequency: "daily"},
		Why:  Why{Intent: "stay current"},
	}
	next := Interpretation{
		What: What{Topic: ""},
		When: When{Frequency: ""},
	}

	got := Merge(base, next)
	if !reflect.DeepEqual(got, base) {
		t.Errorf("Merge with empty snapshot mutated result: %+v", got)
	}
}

func TestMerge_NewerPopulatedFieldWins(t *testing.T) {
	base := Interpretation{What: What{Topic: "ai"}}
	next := Interpretation{
		What: What{Topic: "AI news", Description: "fresh description"},
		Why:  Why{Intent: "stay current", Insights: []string{"fast-moving field"}},
	}

	got := Merge(base, next)
	if got.What.Topic != "AI news" {
		t.Errorf("Topic = %q, want refined value", got.What.Topic)
	}
	if got.What.Description != "fresh description" {
		t.Errorf("Description = %q, want %q", got.What.Description, "fresh description")
	}
	if len(got.Why.Insights) != 1 {
		t.Errorf("Insights = %v, want one entry", got.Why.Insights)
	}
}

func TestMerge_OptionsReplacedAsAWhole(t *testing.T) {
	base := Interpretation{When: When{Options: []CadenceOption{{Value: "daily"}}}}
	next := Interpretation{When: When{Options: []CadenceOption{
		{Value: "daily", IsRecommended: true},
		{Value: "weekly"},
	}}}

	got := Merge(base, next)
	if len(got.When.Options) != 2 {
		t.Fatalf("Options = %v, want refined list of 2", got.When.Options)
	}

	// Empty list in a later snapshot must not clear an earlier one.
	got = Merge(got, Interpretation{})
	if len(got.When.Options) != 2 {
		t.Errorf("Options cleared by empty snapshot: %v", got.When.Options)
	}
}

func TestIsComplete(t *testing.T) {
	tests := []struct {
		name string
		it   Interpretation
		want bool
	}{
		{"zero", Interpretation{}, false},
		{"topic only", Interpretation{What: What{Topic: "x"}}, false},
		{
			"all required",
			Interpretation{
				What: What{Topic: "x"},
				When: When{Frequency: "daily"},
				Why:  Why{Intent: "y"},
			},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.it.IsComplete(); got != tt.want {
				t.Errorf("IsComplete() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecommendedCadence(t *testing.T) {
	it := Interpretation{When: When{
		Frequency: "daily",
		Options: []CadenceOption{
			{Value: "hourly"},
			{Value: "weekly", IsRecommended: true},
		},
	}}
	if got := it.RecommendedCadence(); got != "weekly" {
		t.Errorf("RecommendedCadence() = %q, want %q", got, "weekly")
	}

	it.When.Options = nil
	if got := it.RecommendedCadence(); got != "daily" {
		t.Errorf("RecommendedCadence() fallback = %q, want %q", got, "daily")
	}
}
