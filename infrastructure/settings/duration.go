package settings

import (
	"encoding/json"
	"time"
)

// HumanReadableDuration round-trips through JSON as a Go duration string,
// e.g. "2m" or "90s", instead of raw nanoseconds.
type HumanReadableDuration time.Duration

func (d HumanReadableDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *HumanReadableDuration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	duration, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = HumanReadableDuration(duration)
	return nil
}
