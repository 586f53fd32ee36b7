package lwm2m

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/diwise/integration-acurite/internal/pkg/application/nodes"
	testutils "github.com/diwise/service-chassis/pkg/test/http"
	"github.com/diwise/service-chassis/pkg/test/http/expects"
	"github.com/diwise/service-chassis/pkg/test/http/response"
	"github.com/farshidtz/senml/v2"
	"github.com/matryer/is"
)

var Expects = testutils.Expects
var Returns = testutils.Returns
var method = expects.RequestMethod

var backyard = nodes.Snapshot{
	Address:   "9001",
	Name:      "Backyard",
	NodeDefID: "acuritedevice",
	Drivers: []nodes.DriverValue{
		{Driver: "CLITEMP", Value: 72, UOM: 17},
		{Driver: "CLIHUM", Value: 45, UOM: 22},
		{Driver: "BARPRES", Value: 29.9, UOM: 23},
		{Driver: "GV1", Value: 1, UOM: 25},
	},
}

func TestSendingTemperaturePack(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodPost),
		),
		Returns(
			response.Code(http.StatusCreated),
			response.Body([]byte("")),
		),
	)

	r := NewReporter(s.URL(), Send)

	err := r.DriversChanged(context.Background(), backyard, []string{"CLITEMP"})
	is.NoErr(err)
}

func TestThatSendFailsOnUnexpectedStatus(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodPost),
		),
		Returns(
			response.Code(http.StatusBadRequest),
			response.Body([]byte("")),
		),
	)

	r := NewReporter(s.URL(), Send)

	err := r.DriversChanged(context.Background(), backyard, []string{"CLIHUM"})
	is.True(err != nil)
}

func TestThatNewNodesSendOnePackPerObject(t *testing.T) {
	is := is.New(t)

	var sent []senml.Pack
	r := NewReporter("http://lwm2m.local", func(ctx context.Context, url string, p senml.Pack) error {
		sent = append(sent, p)
		return nil
	})

	err := r.NodeAdded(context.Background(), backyard)
	is.NoErr(err)
	is.Equal(len(sent), 3) // battery level is not an ipso object

	is.Equal(sent[0][0].BaseName, TemperatureURN)
	is.Equal(sent[0][0].StringValue, "9001")
	is.Equal(*sent[0][1].Value, 72.0)
}

func TestCreatePacks(t *testing.T) {
	is := is.New(t)

	ts := time.Date(2023, 8, 28, 12, 0, 0, 0, time.UTC)

	packs := CreatePacks(backyard, []string{"CLIHUM", "GV3"}, ts)
	is.Equal(len(packs), 1)
	is.Equal(packs[0][0].BaseName, HumidityURN)
	is.Equal(packs[0][1].Unit, senml.UnitRelativeHumidity)
	is.Equal(packs[0][1].Time, float64(ts.Unix()))
}
