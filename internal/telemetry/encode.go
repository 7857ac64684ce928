package telemetry

import (
	"encoding/json"
	"fmt"
)

// wireData mirrors Data with fields declared in sorted key order, which is
// the order encoding/json emits them in.
type wireData struct {
	CO       Reading `json:"co"`
	Humidity Reading `json:"humidity"`
	Light    bool    `json:"light"`
	LPG      Reading `json:"lpg"`
	Motion   bool    `json:"motion"`
	Smoke    Reading `json:"smoke"`
	Temp     Reading `json:"temp"`
}

type wireMessage struct {
	Data     wireData `json:"data"`
	DeviceID string   `json:"device_id"`
	TS       float64  `json:"ts"`
}

// Encode serialises m as compact JSON with sorted keys.
func Encode(m Message) ([]byte, error) {
	w := wireMessage{
		Data: wireData{
			CO:       m.Data.CO,
			Humidity: m.Data.Humidity,
			Light:    m.Data.Light,
			LPG:      m.Data.LPG,
			Motion:   m.Data.Motion,
			Smoke:    m.Data.Smoke,
			Temp:     m.Data.Temp,
		},
		DeviceID: m.DeviceID,
		TS:       unixSeconds(m),
	}

	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encoding telemetry: %w", err)
	}
	return b, nil
}

func unixSeconds(m Message) float64 {
	return float64(m.Timestamp.Unix()) + float64(m.Timestamp.Nanosecond())/1e9
}
