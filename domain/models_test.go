package domain

import (
	"encoding/json"
	"testing"

	"github.com/matryer/is"
)

func TestThatReadingsAcceptNumbersAndNumericStrings(t *testing.T) {
	is := is.New(t)

	s := []Sensor{}
	err := json.Unmarshal([]byte(`[
		{"sensor_code":"Temperature","last_reading_value":72.5},
		{"sensor_code":"Humidity","last_reading_value":"45"},
		{"sensor_code":"Rainfall","last_reading_value":""},
		{"sensor_code":"Wind Speed","last_reading_value":null},
		{"sensor_code":"Lightning","last_reading_value":"n/a"}
	]`), &s)
	is.NoErr(err)
	is.Equal(len(s), 5)

	v, ok := s[0].LastReadingValue.Float()
	is.True(ok)
	is.Equal(v, 72.5)

	v, ok = s[1].LastReadingValue.Float()
	is.True(ok)
	is.Equal(v, 45.0)

	for _, absent := range s[2:] {
		_, ok := absent.LastReadingValue.Float()
		is.True(!ok) // blank, null and non numeric readings are absent
	}
}

func TestThatIDsAcceptNumbersAndStrings(t *testing.T) {
	is := is.New(t)

	user := AccountUser{}
	is.NoErr(json.Unmarshal([]byte(`{"account_id":12345}`), &user))
	is.Equal(user.AccountID.String(), "12345")

	hub := Hub{}
	is.NoErr(json.Unmarshal([]byte(`{"id":"hub-7","name":"Home"}`), &hub))
	is.Equal(hub.ID, ID("hub-7"))
}

func TestThatInvalidReadingsMarshalAsNull(t *testing.T) {
	is := is.New(t)

	b, err := json.Marshal([]Reading{NewReading(1.5), {}})
	is.NoErr(err)
	is.Equal(string(b), "[1.5,null]")
}
