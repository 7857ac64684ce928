package telemetry

import (
	"fmt"
	"strings"

	"github.com/nerrad567/envsensor/internal/fault"
)

// Valid reports whether the message passes the validity gate:
// temperature, humidity and CO must all be present.
// LPG, smoke, light and motion never block publishing.
func (m Message) Valid() bool {
	return m.Data.Temp.Valid() && m.Data.Humidity.Valid() && m.Data.CO.Valid()
}

// Missing returns the names of the gate fields that are absent.
func (m Message) Missing() []string {
	var missing []string
	if !m.Data.Temp.Valid() {
		missing = append(missing, "temp")
	}
	if !m.Data.Humidity.Valid() {
		missing = append(missing, "humidity")
	}
	if !m.Data.CO.Valid() {
		missing = append(missing, "co")
	}
	return missing
}

// Gate returns nil when the message may be published, or an error wrapping
// fault.ErrValidityGate that names the missing fields.
func (m Message) Gate() error {
	if m.Valid() {
		return nil
	}
	return fmt.Errorf("%w: missing %s", fault.ErrValidityGate, strings.Join(m.Missing(), ","))
}
