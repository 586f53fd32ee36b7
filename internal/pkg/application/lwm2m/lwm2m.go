package lwm2m

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/diwise/integration-acurite/internal/pkg/application/nodes"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/farshidtz/senml/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

var tlsSkipVerify bool

func init() {
	tlsSkipVerify = env.GetVariableOrDefault(zerolog.Logger{}, "TLS_SKIP_VERIFY", "0") == "1"
}

var tracer = otel.Tracer("integration-acurite/lwm2m")

const (
	IlluminanceURN string = "urn:oma:lwm2m:ext:3301"
	TemperatureURN string = "urn:oma:lwm2m:ext:3303"
	HumidityURN    string = "urn:oma:lwm2m:ext:3304"
	PressureURN    string = "urn:oma:lwm2m:ext:3315"

	sensorValue string = "5700"
)

type object struct {
	urn  string
	unit string
}

var objects = map[string]object{
	"CLITEMP": {TemperatureURN, "Far"},
	"CLIHUM":  {HumidityURN, senml.UnitRelativeHumidity},
	"BARPRES": {PressureURN, "inHg"},
	"LUMIN":   {IlluminanceURN, "lx"},
}

type SenderFunc = func(context.Context, string, senml.Pack) error

type reporter struct {
	url    string
	sender SenderFunc
	now    func() time.Time
}

func NewReporter(url string, sender SenderFunc) nodes.Reporter {
	if sender == nil {
		sender = Send
	}
	return &reporter{url: url, sender: sender, now: time.Now}
}

func (r *reporter) NodeAdded(ctx context.Context, node nodes.Snapshot) error {
	return r.DriversChanged(ctx, node, node.DriverIDs())
}

func (r *reporter) DriversChanged(ctx context.Context, node nodes.Snapshot, drivers []string) error {
	logger := logging.GetFromContext(ctx).With().Str("address", node.Address).Logger()

	var errs []error

	for _, p := range CreatePacks(node, drivers, r.now()) {
		err := r.sender(ctx, r.url, p)
		if err != nil {
			logger.Error().Err(err).Msg("could not send pack")
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// CreatePacks builds one SenML pack per IPSO object for the given drivers.
func CreatePacks(node nodes.Snapshot, drivers []string, timestamp time.Time) []senml.Pack {
	packs := []senml.Pack{}

	for _, id := range drivers {
		obj, ok := objects[id]
		if !ok {
			continue
		}

		d, ok := node.Driver(id)
		if !ok {
			continue
		}

		packs = append(packs, newPack(obj.urn, sensorValue, node.Address, d.Value, obj.unit, timestamp, timestamp))
	}

	return packs
}

func newPack(baseName, name, id string, v float64, u string, bt, t time.Time) senml.Pack {
	p := senml.Pack{
		senml.Record{
			BaseName:    baseName,
			BaseTime:    float64(bt.Unix()),
			Name:        "0",
			StringValue: id,
		},
		newRec(name, v, u, t),
	}
	return p
}

func newRec(name string, v float64, u string, t time.Time) senml.Record {
	return senml.Record{
		Name:  name,
		Value: &v,
		Time:  float64(t.Unix()),
		Unit:  u,
	}
}

func Send(ctx context.Context, url string, pack senml.Pack) error {
	var err error

	ctx, span := tracer.Start(ctx, "send-object")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	var httpClient http.Client

	if tlsSkipVerify {
		customTransport := http.DefaultTransport.(*http.Transport).Clone()
		customTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		httpClient = http.Client{
			Transport: otelhttp.NewTransport(customTransport),
		}
	} else {
		httpClient = http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	httpClient.Timeout = 10 * time.Second

	var b []byte
	b, err = json.Marshal(pack)
	if err != nil {
		return err
	}

	var req *http.Request
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(b))
	if err != nil {
		return err
	}

	req.Header.Add("Content-Type", "application/senml+json")

	var resp *http.Response
	resp, err = httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		err = fmt.Errorf("unexpected response code %d", resp.StatusCode)
	}

	return err
}
