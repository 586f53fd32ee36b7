package drivers

import (
	"strings"
)

type Variant string

const (
	Standard   Variant = "acuritedevice"
	Atlas      Variant = "acuriteatlas"
	LightningT Variant = "acuritelightningt"
)

const (
	Temperature    string = "CLITEMP"
	Humidity       string = "CLIHUM"
	Pressure       string = "BARPRES"
	DewPoint       string = "DEWPT"
	Battery        string = "GV1"
	Status         string = "GV2"
	LastCheckIn    string = "GV3"
	FeelsLike      string = "GV4"
	StrikeCount    string = "GV5"
	LastStrikeDist string = "GV6"
	WindSpeedAvg   string = "GV7"
	ClosestStrike  string = "GV8"
	WindDirection  string = "WINDDIR"
	WindSpeed      string = "SPEED"
	RainRate       string = "RAINRT"
	Luminance      string = "LUMIN"
	UVIndex        string = "UV"
)

const (
	feelsLikeCode          string = "Feels Like"
	heatIndexCode          string = "Heat Index"
	temperatureCode        string = "Temperature"
	lightningStrikeCntCode string = "LightningStrikeCnt"
)

type Driver struct {
	ID  string
	UOM int
}

// Descriptor describes which drivers a variant reports and which vendor
// sensor codes feed them.
type Descriptor struct {
	Variant      Variant
	Drivers      []Driver
	Sensors      map[string]string
	WiredSensors map[string]string
	FeelsLike    bool
	Lightning    bool
}

func (d Descriptor) DriverIDs() []string {
	ids := make([]string, 0, len(d.Drivers))
	for _, drv := range d.Drivers {
		ids = append(ids, drv.ID)
	}
	return ids
}

func (d Descriptor) UOM(driverID string) (int, bool) {
	for _, drv := range d.Drivers {
		if drv.ID == driverID {
			return drv.UOM, true
		}
	}
	return 0, false
}

var standardDrivers = []Driver{
	{Temperature, 17},
	{Humidity, 22},
	{Pressure, 23},
	{DewPoint, 17},
	{Battery, 25},
	{Status, 25},
	{LastCheckIn, 45},
}

var standardSensors = map[string]string{
	"Temperature":         Temperature,
	"Humidity":            Humidity,
	"Dew Point":           DewPoint,
	"Barometric Pressure": Pressure,
}

var lightningSensors = map[string]string{
	lightningStrikeCntCode:       StrikeCount,
	"LightningLastStrikeDist":    LastStrikeDist,
	"LightningClosestStrikeDist": ClosestStrike,
}

var descriptors = map[Variant]Descriptor{
	Standard: {
		Variant: Standard,
		Drivers: standardDrivers,
		Sensors: standardSensors,
	},
	Atlas: {
		Variant: Atlas,
		Drivers: concat(standardDrivers, []Driver{
			{FeelsLike, 17},
			{WindDirection, 14},
			{WindSpeed, 48},
			{RainRate, 120},
			{Luminance, 36},
			{UVIndex, 71},
			{StrikeCount, 0},
			{LastStrikeDist, 116},
			{WindSpeedAvg, 48},
			{ClosestStrike, 116},
		}),
		Sensors: merge(standardSensors, map[string]string{
			"Wind Direction": WindDirection,
			"Wind Speed":     WindSpeed,
			"Rainfall":       RainRate,
			"LightIntensity": Luminance,
			"UVIndex":        UVIndex,
			"WindSpeedAvg":   WindSpeedAvg,
		}),
		WiredSensors: lightningSensors,
		FeelsLike:    true,
		Lightning:    true,
	},
	LightningT: {
		Variant: LightningT,
		Drivers: concat(standardDrivers, []Driver{
			{FeelsLike, 17},
			{StrikeCount, 0},
			{LastStrikeDist, 116},
			{ClosestStrike, 116},
		}),
		Sensors:      standardSensors,
		WiredSensors: lightningSensors,
		FeelsLike:    true,
		Lightning:    true,
	},
}

var atlasModels = map[string]struct{}{
	"06006RM": {},
	"06008RM": {},
	"06058RM": {},
}

var lightningTModels = map[string]struct{}{
	"06045M":  {},
	"06045RM": {},
}

// Classify returns the variant for a vendor model code. Unknown codes are
// treated as Standard devices.
func Classify(modelCode string) Variant {
	code := strings.ToUpper(strings.TrimSpace(modelCode))

	if _, ok := atlasModels[code]; ok || strings.Contains(code, "ATLAS") {
		return Atlas
	}

	if _, ok := lightningTModels[code]; ok || strings.Contains(code, "LIGHTNING") {
		return LightningT
	}

	return Standard
}

func DescriptorFor(v Variant) (Descriptor, bool) {
	d, ok := descriptors[v]
	return d, ok
}

func concat(a, b []Driver) []Driver {
	out := make([]Driver, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

func merge(a, b map[string]string) map[string]string {
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
