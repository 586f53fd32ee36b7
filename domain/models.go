package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

type Credential struct {
	Token     string
	AccountID string
}

type LoginResponse struct {
	TokenID string `json:"token_id"`
	User    struct {
		AccountUsers []AccountUser `json:"account_users"`
	} `json:"user"`
}

type AccountUser struct {
	AccountID ID `json:"account_id"`
}

type HubsResponse struct {
	AccountHubs []Hub `json:"account_hubs"`
}

type HubDetailResponse struct {
	Devices []*Device `json:"devices"`
}

type Hub struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

type Device struct {
	ID            ID       `json:"id"`
	Name          string   `json:"name"`
	ModelCode     string   `json:"model_code"`
	BatteryLevel  string   `json:"battery_level"`
	StatusCode    string   `json:"status_code"`
	LastCheckInAt string   `json:"last_check_in_at"`
	Sensors       []Sensor `json:"sensors"`
	WiredSensors  []Sensor `json:"wired_sensors"`
}

type Sensor struct {
	SensorCode       string  `json:"sensor_code"`
	LastReadingValue Reading `json:"last_reading_value"`
	ChartUnit        string  `json:"chart_unit"`
}

// ID is a vendor identifier that is sent either as a number or a string.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())

	return nil
}

func (id ID) String() string {
	return string(id)
}

// Reading holds a sensor value. The vendor sends numbers, numeric strings,
// empty strings and nulls; anything that is not a number is absent.
type Reading struct {
	value float64
	valid bool
}

func NewReading(v float64) Reading {
	return Reading{value: v, valid: true}
}

func (r *Reading) UnmarshalJSON(b []byte) error {
	*r = Reading{}

	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	raw := string(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			return nil
		}
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}

	r.value = v
	r.valid = true

	return nil
}

func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.value)
}

func (r Reading) Float() (float64, bool) {
	return r.value, r.valid
}
