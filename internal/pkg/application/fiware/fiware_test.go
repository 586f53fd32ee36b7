package fiware

import (
	"context"
	"testing"

	"github.com/diwise/integration-acurite/internal/pkg/application/nodes"
	"github.com/matryer/is"
)

func TestThatOnlyWeatherDriversBecomeProperties(t *testing.T) {
	is := is.New(t)

	node := nodes.Snapshot{
		Address:   "9001",
		Name:      "Backyard",
		NodeDefID: "acuriteatlas",
		Drivers: []nodes.DriverValue{
			{Driver: "CLITEMP", Value: 72, UOM: 17},
			{Driver: "CLIHUM", Value: 45, UOM: 22},
			{Driver: "UV", Value: 3, UOM: 71},
			{Driver: "GV1", Value: 1, UOM: 25},
			{Driver: "GV3", Value: 5, UOM: 45},
		},
	}

	readings := createDecoratorsFromDrivers(node, node.DriverIDs(), "2023-08-28T12:00:00Z")
	is.Equal(len(readings), 3) // battery, status and check-in drivers have no weather property

	readings = createDecoratorsFromDrivers(node, []string{"CLIHUM", "GV8"}, "2023-08-28T12:00:00Z")
	is.Equal(len(readings), 1)
}

func TestThatNodesWithoutWeatherDriversAreSkipped(t *testing.T) {
	is := is.New(t)

	r := NewReporter(nil)

	err := r.NodeAdded(context.Background(), nodes.Snapshot{
		Address:   "controller",
		NodeDefID: "acurite",
		Drivers:   []nodes.DriverValue{{Driver: "ST", Value: 1, UOM: 2}},
	})
	is.NoErr(err) // controller node carries no weather data and must not reach the broker
}
