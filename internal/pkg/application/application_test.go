package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/diwise/integration-acurite/internal/pkg/application/acurite"
	"github.com/diwise/integration-acurite/internal/pkg/application/drivers"
	"github.com/diwise/integration-acurite/internal/pkg/application/nodes"
	"github.com/diwise/integration-acurite/internal/pkg/infrastructure/registry"
	"github.com/go-chi/chi"
	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

var now = time.Date(2023, 8, 28, 12, 0, 0, 0, time.UTC)

type mockVendor struct {
	logins      atomic.Int32
	hubCalls    atomic.Int32
	deviceCalls atomic.Int32
	loginStatus atomic.Int32
	devices     atomic.Value
}

func newMockVendor(devices string) (*mockVendor, *httptest.Server) {
	v := &mockVendor{}
	v.loginStatus.Store(http.StatusOK)
	v.devices.Store(devices)

	r := chi.NewRouter()
	r.Post("/users/login", func(w http.ResponseWriter, r *http.Request) {
		v.logins.Add(1)
		w.WriteHeader(int(v.loginStatus.Load()))
		w.Write([]byte(`{"token_id":"abc123","user":{"account_users":[{"account_id":4711}]}}`))
	})
	r.Get("/accounts/4711/dashboard/hubs", func(w http.ResponseWriter, r *http.Request) {
		v.hubCalls.Add(1)
		w.Write([]byte(`{"account_hubs":[{"id":100,"name":"Home"}]}`))
	})
	r.Get("/accounts/4711/dashboard/hubs/100", func(w http.ResponseWriter, r *http.Request) {
		v.deviceCalls.Add(1)
		w.Write([]byte(v.devices.Load().(string)))
	})

	return v, httptest.NewServer(r)
}

func newTestApp(is *is.I, baseUrl string) (*integrationAcurite, *registry.Registry) {
	host := registry.New(zerolog.Nop())
	mapper := drivers.NewMapper(drivers.DefaultEnumTables(), drivers.WithClock(func() time.Time { return now }))

	app := New(acurite.New(baseUrl, time.Second), host, mapper, zerolog.Nop())
	a, ok := app.(*integrationAcurite)
	is.True(ok)

	return a, host
}

func configured() map[string]string {
	return map[string]string{UserParam: "user@example.com", PasswordParam: "secret"}
}

func driverValue(is *is.I, host *registry.Registry, address, driver string) float64 {
	n, ok := host.Node(address)
	is.True(ok) // node should exist
	d, ok := n.Driver(driver)
	is.True(ok) // driver should exist
	return d.Value
}

func TestThatAtlasDeviceIsDiscoveredAndMapped(t *testing.T) {
	is := is.New(t)

	checkIn := now.Add(-5 * time.Minute).Format(time.RFC3339)
	_, ts := newMockVendor(fmt.Sprintf(atlasDevice, checkIn, "Normal"))
	defer ts.Close()

	a, host := newTestApp(is, ts.URL)

	err := a.ParameterHandler(context.Background(), configured())
	is.NoErr(err)
	is.Equal(a.State(), Ready)

	n, ok := host.Node("9001")
	is.True(ok)
	is.Equal(n.NodeDefID, string(drivers.Atlas))
	is.Equal(n.Name, "Backyard")
	is.Equal(len(n.Drivers), 17)

	expected := map[string]float64{
		"CLITEMP": 72, "CLIHUM": 45, "GV5": 0, "GV6": 0, "GV8": 0, "GV3": 5, "GV4": 72,
		"GV1": 1, "GV2": 1, "SPEED": 0, "WINDDIR": 0,
	}
	for driver, value := range expected {
		is.Equal(driverValue(is, host, "9001", driver), value) // emitted attribute differs
	}
}

func TestThatMissingCredentialsRaiseNotices(t *testing.T) {
	is := is.New(t)

	v, ts := newMockVendor(`{"devices":[]}`)
	defer ts.Close()

	a, host := newTestApp(is, ts.URL)

	err := a.ParameterHandler(context.Background(), map[string]string{UserParam: "", PasswordParam: ""})
	is.True(errors.Is(err, ErrConfig))
	is.True(errors.Is(err, ErrMissingUser))
	is.True(errors.Is(err, ErrMissingPassword))
	is.Equal(a.State(), Unconfigured)
	is.Equal(len(host.Notices()), 2)
	is.Equal(v.logins.Load(), int32(0)) // no login without credentials

	err = a.ParameterHandler(context.Background(), map[string]string{UserParam: "user@example.com"})
	is.True(errors.Is(err, ErrMissingPassword))
	_, hasUserNotice := host.Notices()["user"]
	is.True(!hasUserNotice) // corrected field should clear its notice

	err = a.ParameterHandler(context.Background(), configured())
	is.NoErr(err)
	is.Equal(len(host.Notices()), 0)
	is.Equal(a.State(), Ready)
}

func TestThatPollsAreSkippedUntilConfigured(t *testing.T) {
	is := is.New(t)

	v, ts := newMockVendor(`{"devices":[]}`)
	defer ts.Close()

	a, _ := newTestApp(is, ts.URL)

	is.NoErr(a.Poll(context.Background(), nodes.ShortPoll))
	is.Equal(v.logins.Load(), int32(0))
}

func TestThatEveryPassLogsInAgain(t *testing.T) {
	is := is.New(t)

	v, ts := newMockVendor(fmt.Sprintf(atlasDevice, "", "Normal"))
	defer ts.Close()

	a, _ := newTestApp(is, ts.URL)
	ctx := context.Background()

	is.NoErr(a.ParameterHandler(ctx, configured()))
	is.NoErr(a.Poll(ctx, nodes.ShortPoll))
	is.NoErr(a.Discover(ctx))

	is.Equal(v.logins.Load(), int32(3)) // token must not be cached across passes
}

func TestThatFailedLoginLeavesValuesUntouched(t *testing.T) {
	is := is.New(t)

	v, ts := newMockVendor(fmt.Sprintf(atlasDevice, "", "Normal"))
	defer ts.Close()

	a, host := newTestApp(is, ts.URL)
	ctx := context.Background()

	is.NoErr(a.ParameterHandler(ctx, configured()))
	hubCalls := v.hubCalls.Load()

	v.loginStatus.Store(http.StatusForbidden)

	err := a.Discover(ctx)
	is.True(errors.Is(err, acurite.ErrAuth))
	is.Equal(v.hubCalls.Load(), hubCalls) // no calls after a failed login
	is.Equal(driverValue(is, host, "9001", "CLITEMP"), 72.0)
}

func TestThatUnknownEnumCodeOnlyAffectsThatDevice(t *testing.T) {
	is := is.New(t)

	_, ts := newMockVendor(twoDevices)
	defer ts.Close()

	a, host := newTestApp(is, ts.URL)

	err := a.ParameterHandler(context.Background(), configured())
	is.True(errors.Is(err, drivers.ErrUnknownEnumCode))

	_, ok := host.Node("9001")
	is.True(!ok) // device with unknown battery code should not be created

	is.Equal(driverValue(is, host, "9002", "CLIHUM"), 40.0)
}

func TestThatUpdatesReuseExistingNodes(t *testing.T) {
	is := is.New(t)

	v, ts := newMockVendor(fmt.Sprintf(atlasDevice, "", "Normal"))
	defer ts.Close()

	a, host := newTestApp(is, ts.URL)
	ctx := context.Background()

	is.NoErr(a.ParameterHandler(ctx, configured()))

	v.devices.Store(fmt.Sprintf(atlasDevice, "", "Low"))
	is.NoErr(a.Discover(ctx))

	is.Equal(len(host.Nodes()), 1)
	is.Equal(driverValue(is, host, "9001", "GV1"), 2.0)
}

func TestThatStartAddsControllerNode(t *testing.T) {
	is := is.New(t)

	_, ts := newMockVendor(`{"devices":[]}`)
	defer ts.Close()

	a, host := newTestApp(is, ts.URL)

	is.NoErr(a.Start(context.Background()))
	is.Equal(driverValue(is, host, nodes.ControllerAddress, "ST"), 1.0)
}

func TestThatLongPollReportsKnownValues(t *testing.T) {
	is := is.New(t)

	v, ts := newMockVendor(fmt.Sprintf(atlasDevice, "", "Normal"))
	defer ts.Close()

	a, _ := newTestApp(is, ts.URL)
	ctx := context.Background()

	is.NoErr(a.ParameterHandler(ctx, configured()))
	logins := v.logins.Load()

	is.NoErr(a.Poll(ctx, nodes.LongPoll))
	is.Equal(v.logins.Load(), logins) // long poll does not contact the vendor
}

const atlasDevice string = `{
	"devices": [
		{
			"id": 9001,
			"name": "Backyard",
			"model_code": "06008RM",
			"battery_level": "%[2]s",
			"status_code": "Active",
			"last_check_in_at": "%[1]s",
			"sensors": [
				{"sensor_code": "Temperature", "last_reading_value": "72", "chart_unit": "F"},
				{"sensor_code": "Humidity", "last_reading_value": 45, "chart_unit": "%%"}
			],
			"wired_sensors": []
		}
	]
}`

const twoDevices string = `{
	"devices": [
		{
			"id": 9001,
			"name": "Backyard",
			"model_code": "06044M",
			"battery_level": "Glowing",
			"status_code": "Active",
			"sensors": []
		},
		null,
		{
			"id": 9002,
			"name": "Garage",
			"model_code": "06044M",
			"battery_level": "Normal",
			"status_code": "Active",
			"sensors": [{"sensor_code": "Humidity", "last_reading_value": "40"}]
		}
	]
}`
