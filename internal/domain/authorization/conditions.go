package authorization

import (
	"encoding/json"
	"fmt"
)

// ConditionType tags the structured conditions payload attached to override
// authorizations.
type ConditionType string

const (
	ConditionEmergency ConditionType = "emergency"
	ConditionSecret    ConditionType = "secret"
)

// EmergencyConditions carries the mandatory justification of an emergency
// grant.
type EmergencyConditions struct {
	Justification string `json:"justification"`
}

// SecretConditions marks a grant whose patient-facing notification is
// suppressed.
type SecretConditions struct {
	NotifyDisabled bool `json:"notification_disabled"`
}

// Conditions is a tagged union over the per-access-type condition payloads.
// It serializes to the store's generic JSON representation at the boundary;
// application code switches on Type and reads exactly one variant.
type Conditions struct {
	Type      ConditionType
	Emergency *EmergencyConditions
	Secret    *SecretConditions
}

type conditionsWire struct {
	Type          ConditionType `json:"type"`
	Justification *string       `json:"justification,omitempty"`
	NotifyOff     *bool         `json:"notification_disabled,omitempty"`
}

func (c Conditions) MarshalJSON() ([]byte, error) {
	w := conditionsWire{Type: c.Type}
	switch c.Type {
	case ConditionEmergency:
		if c.Emergency == nil {
			return nil, fmt.Errorf("emergency conditions payload is missing")
		}
		w.Justification = &c.Emergency.Justification
	case ConditionSecret:
		if c.Secret == nil {
			return nil, fmt.Errorf("secret conditions payload is missing")
		}
		w.NotifyOff = &c.Secret.NotifyDisabled
	default:
		return nil, fmt.Errorf("unknown condition type %q", c.Type)
	}
	return json.Marshal(w)
}

func (c *Conditions) UnmarshalJSON(data []byte) error {
	var w conditionsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case ConditionEmergency:
		var justification string
		if w.Justification != nil {
			justification = *w.Justification
		}
		*c = Conditions{Type: ConditionEmergency, Emergency: &EmergencyConditions{Justification: justification}}
	case ConditionSecret:
		var off bool
		if w.NotifyOff != nil {
			off = *w.NotifyOff
		}
		*c = Conditions{Type: ConditionSecret, Secret: &SecretConditions{NotifyDisabled: off}}
	default:
		return fmt.Errorf("unknown condition type %q", w.Type)
	}
	return nil
}
