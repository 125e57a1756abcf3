// Package interpret turns free-form user text into a structured radar
// proposal by streaming from the hosted interpretation service.
package interpret

// Interpretation is the structured reading of a user's free-text input:
// what to track, when to check it, and why the service believes the
// user cares. Partial snapshots arrive with fields absent; a field once
// populated is only ever refined, never removed, for the lifetime of a
// request.
type Interpretation struct {
	What What `json:"what"`
	When When `json:"when"`
	Why  Why  `json:"why"`
}

// What identifies the subject of a radar.
type What struct {
	Topic       string `json:"topic"`
	Description string `json:"description,omitempty"`
}

// When carries the suggested monitoring cadence.
type When struct {
	Frequency           string          `json:"frequency"`
	ScheduleDescription string          `json:"schedule_description,omitempty"`
	Options             []CadenceOption `json:"options,omitempty"`
}

// CadenceOption is one selectable cadence. At most one option is
// flagged as recommended by the service.
type CadenceOption struct {
	Value         string `json:"value"`
	Label         string `json:"label,omitempty"`
	IsRecommended bool   `json:"is_recommended,omitempty"`
}

// Why explains the service's reading of the user's intent.
type Why struct {
	Intent   string   `json:"intent"`
	Insights []string `json:"insights,omitempty"`
}

// IsZero reports whether no field has been populated yet.
func (it Interpretation) IsZero() bool {
	return it.What == (What{}) &&
		it.When.Frequency == "" && it.When.ScheduleDescription == "" && len(it.When.Options) == 0 &&
		it.Why.Intent == "" && len(it.Why.Insights) == 0
}

// IsComplete reports whether the interpretation has everything the
// review step needs: a topic, a cadence, and an intent.
func (it Interpretation) IsComplete() bool {
	return it.What.Topic != "" && it.When.Frequency != "" && it.Why.Intent != ""
}

// RecommendedCadence returns the value of the option flagged as
// recommended, falling back to the suggested frequency.
func (it Interpretation) RecommendedCadence() string {
	for _, opt := range it.When.Options {
		if opt.IsRecommended {
			return opt.Value
		}
	}
	return it.When.Frequency
}

// Merge folds a newer snapshot into base, field-wise. A populated field
// in base is never replaced by an empty one in next; populated fields
// in next win. This keeps the partial-result sequence monotonic even if
// the upstream stream misbehaves.
func Merge(base, next Interpretation) Interpretation {
	out := base

	if next.What.Topic != "" {
		out.What.Topic = next.What.Topic
	}
	if next.What.Description != "" {
		out.What.Description = next.What.Description
	}
	if next.When.Frequency != "" {
		out.When.Frequency = next.When.Frequency
	}
	if next.When.ScheduleDescription != "" {
		out.When.ScheduleDescription = next.When.ScheduleDescription
	}
	if len(next.When.Options) > 0 {
		out.When.Options = next.When.Options
	}
	if next.Why.Intent != "" {
		out.Why.Intent = next.Why.Intent
	}
	if len(next.Why.Insights) > 0 {
		out.Why.Insights = next.Why.Insights
	}

	return out
}
