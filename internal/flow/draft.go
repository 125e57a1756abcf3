package flow

import "github.com/radarhq/radar/internal/interpret"

// Field names a user-editable draft field.
type Field string

const (
	FieldTopic       Field = "topic"
	FieldDescription Field = "description"
	FieldCadence     Field = "cadence"
)

// Draft is the editable projection of an interpretation: the values the
// user will confirm into a radar. A field the user has edited keeps its
// override; later suggested values only fill fields the user has not
// touched.
type Draft struct {
	Topic               string                   `json:"topic"`
	Description         string                   `json:"description"`
	Cadence             string                   `json:"cadence"`
	ScheduleDescription string                   `json:"schedule_description"`
	Intent              string                   `json:"intent"`
	CadenceOptions      []interpret.CadenceOption `json:"cadence_options,omitempty"`

	topicEdited       bool
	descriptionEdited bool
	cadenceEdited     bool
}

// newDraft initializes a draft from an interpretation, selecting the
// recommended cadence option as the default.
func newDraft(it interpret.Interpretation) Draft {
	return Draft{
		Topic:               it.What.Topic,
		Description:         it.What.Description,
		Cadence:             it.RecommendedCadence(),
		ScheduleDescription: it.When.ScheduleDescription,
		Intent:              it.Why.Intent,
		CadenceOptions:      it.When.Options,
	}
}

// applySuggestion refreshes un-edited fields from a newer snapshot.
func (d *Draft) applySuggestion(it interpret.Interpretation) {
	if !d.topicEdited && it.What.Topic != "" {
		d.Topic = it.What.Topic
	}
	if !d.descriptionEdited && it.What.Description != "" {
		d.Description = it.What.Description
	}
	if !d.cadenceEdited {
		if v := it.RecommendedCadence(); v != "" {
			d.Cadence = v
		}
	}
	if it.When.ScheduleDescription != "" {
		d.ScheduleDescription = it.When.ScheduleDescription
	}
	if it.Why.Intent != "" {
		d.Intent = it.Why.Intent
	}
	if len(it.When.Options) > 0 {
		d.CadenceOptions = it.When.Options
	}
}

// set records a user edit. The override wins over any later suggestion.
func (d *Draft) set(f Field, value string) {
	switch f {
	case FieldTopic:
		d.Topic = value
		d.topicEdited = true
	case FieldDescription:
		d.Description = value
		d.descriptionEdited = true
	case FieldCadence:
		d.Cadence = value
		d.cadenceEdited = true
	}
}

// complete reports whether the required fields are filled in.
func (d *Draft) complete() bool {
	return d.Topic != "" && d.Cadence != ""
}
