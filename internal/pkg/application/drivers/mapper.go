package drivers

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/diwise/integration-acurite/domain"
	"github.com/rs/zerolog"
)

var ErrBadTimestamp = errors.New("bad timestamp")

// Attributes maps driver ids to the values that should be reported.
type Attributes map[string]float64

type Mapper struct {
	enums EnumTables
	now   func() time.Time
	log   zerolog.Logger
}

type MapperOption func(*Mapper)

func WithClock(now func() time.Time) MapperOption {
	return func(m *Mapper) {
		m.now = now
	}
}

func WithLogger(log zerolog.Logger) MapperOption {
	return func(m *Mapper) {
		m.log = log
	}
}

func NewMapper(enums EnumTables, opts ...MapperOption) *Mapper {
	m := &Mapper{
		enums: enums,
		now:   time.Now,
		log:   zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Map translates a device payload into the driver values of its variant.
// The result always contains every driver of the variant and nothing else.
func (m *Mapper) Map(device domain.Device) (Attributes, error) {
	d := descriptors[Classify(device.ModelCode)]
	return m.MapAs(d, device)
}

func (m *Mapper) MapAs(d Descriptor, device domain.Device) (Attributes, error) {
	battery, err := m.enums.Battery(device.BatteryLevel)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", device.ID, err)
	}

	status, err := m.enums.Status(device.StatusCode)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", device.ID, err)
	}

	readings := map[string]float64{}
	for _, s := range device.Sensors {
		if v, ok := s.LastReadingValue.Float(); ok {
			readings[s.SensorCode] = v
		}
	}

	attrs := make(Attributes, len(d.Drivers))
	for _, drv := range d.Drivers {
		attrs[drv.ID] = 0
	}

	for code, driverID := range d.Sensors {
		if v, ok := readings[code]; ok {
			attrs[driverID] = v
		}
	}

	attrs[Battery] = float64(battery)
	attrs[Status] = float64(status)

	if d.FeelsLike {
		attrs[FeelsLike] = feelsLike(readings)
	}

	if d.Lightning {
		m.mapLightning(d, device.WiredSensors, attrs)
	}

	elapsed, err := ElapsedMinutes(device.LastCheckInAt, m.now())
	if err != nil {
		m.log.Warn().Err(err).Str("device_id", device.ID.String()).Msg("could not compute elapsed check-in time, using 0")
		elapsed = 0
	}
	attrs[LastCheckIn] = float64(elapsed)

	return attrs, nil
}

func (m *Mapper) mapLightning(d Descriptor, wired []domain.Sensor, attrs Attributes) {
	count := 0.0
	hasCount := false

	for _, s := range wired {
		driverID, ok := d.WiredSensors[s.SensorCode]
		if !ok {
			continue
		}

		v, ok := s.LastReadingValue.Float()
		if !ok {
			continue
		}

		attrs[driverID] = v

		if s.SensorCode == lightningStrikeCntCode {
			count, hasCount = v, true
		}
	}

	if !hasCount || count <= 0 {
		attrs[StrikeCount] = 0
		attrs[LastStrikeDist] = 0
		attrs[ClosestStrike] = 0
	}
}

// feelsLike resolves the composite value: Feels Like, then Heat Index,
// then the raw temperature, then zero.
func feelsLike(readings map[string]float64) float64 {
	if v, ok := readings[feelsLikeCode]; ok && v > 0 {
		return v
	}
	if v, ok := readings[heatIndexCode]; ok && v > 0 {
		return v
	}
	if v, ok := readings[temperatureCode]; ok {
		return v
	}
	return 0
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ElapsedMinutes returns whole minutes between lastCheckIn and now, floored.
// An empty timestamp yields 0.
func ElapsedMinutes(lastCheckIn string, now time.Time) (int, error) {
	lastCheckIn = strings.TrimSpace(lastCheckIn)
	if lastCheckIn == "" {
		return 0, nil
	}

	var t time.Time
	var err error

	for _, layout := range timestampLayouts {
		t, err = time.Parse(layout, lastCheckIn)
		if err == nil {
			break
		}
	}

	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadTimestamp, lastCheckIn)
	}

	return int(math.Floor(now.UTC().Sub(t).Minutes())), nil
}
