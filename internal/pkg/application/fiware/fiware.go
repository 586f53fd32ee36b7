package fiware

import (
	"context"
	"errors"
	"time"

	"github.com/diwise/context-broker/pkg/ngsild/client"
	ngsierrors "github.com/diwise/context-broker/pkg/ngsild/errors"
	"github.com/diwise/context-broker/pkg/ngsild/types"
	"github.com/diwise/context-broker/pkg/ngsild/types/entities"
	. "github.com/diwise/context-broker/pkg/ngsild/types/entities/decorators"
	"github.com/diwise/context-broker/pkg/ngsild/types/properties"
	"github.com/diwise/integration-acurite/internal/pkg/application/nodes"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
)

const (
	WeatherObservedIDPrefix string = "urn:ngsi-ld:WeatherObserved:acurite-"
	WeatherObservedTypeName string = "WeatherObserved"
)

var tracer = otel.Tracer("integration-acurite/fiware")

type reporter struct {
	cbClient client.ContextBrokerClient
	now      func() time.Time
}

func NewReporter(cbClient client.ContextBrokerClient) nodes.Reporter {
	return &reporter{cbClient: cbClient, now: time.Now}
}

func (r *reporter) NodeAdded(ctx context.Context, node nodes.Snapshot) error {
	return r.CreateOrUpdateWeatherObserved(ctx, node, node.DriverIDs())
}

func (r *reporter) DriversChanged(ctx context.Context, node nodes.Snapshot, drivers []string) error {
	return r.CreateOrUpdateWeatherObserved(ctx, node, drivers)
}

func (r *reporter) CreateOrUpdateWeatherObserved(ctx context.Context, node nodes.Snapshot, drivers []string) error {
	var err error

	readings := createDecoratorsFromDrivers(node, drivers, r.now().UTC().Format(time.RFC3339))
	if len(readings) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "create-weather-observed")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	_, ctx, logger := o11y.AddTraceIDToLoggerAndStoreInContext(span, logging.GetFromContext(ctx), ctx)

	headers := map[string][]string{"Content-Type": {"application/ld+json"}}

	decorators := []entities.EntityDecoratorFunc{
		entities.DefaultContext(),
		Text("name", node.Name),
		DateTime(properties.DateObserved, r.now().UTC().Format(time.RFC3339)),
	}
	decorators = append(decorators, readings...)

	entityID := WeatherObservedIDPrefix + node.Address

	var fragment types.EntityFragment
	fragment, err = entities.NewFragment(decorators...)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create entity fragment")
		return err
	}

	_, err = r.cbClient.MergeEntity(ctx, entityID, fragment, headers)
	if err == nil {
		logger.Debug().Msgf("updated entity %s", entityID)
		return nil
	}

	if !errors.Is(err, ngsierrors.ErrNotFound) {
		logger.Error().Err(err).Msg("failed to merge entity")
		return err
	}

	var entity types.Entity
	entity, err = entities.New(entityID, WeatherObservedTypeName, decorators...)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create new entity")
		return err
	}

	_, err = r.cbClient.CreateEntity(ctx, entity, headers)
	if err != nil {
		logger.Error().Err(err).Msg("failed to post entity to context broker")
		return err
	}

	logger.Info().Msgf("created entity %s", entityID)

	return nil
}

func createDecoratorsFromDrivers(node nodes.Snapshot, drivers []string, timestamp string) []entities.EntityDecoratorFunc {
	readings := []entities.EntityDecoratorFunc{}

	for _, id := range drivers {
		name, ok := propertyNames[id]
		if !ok {
			continue
		}

		d, ok := node.Driver(id)
		if !ok {
			continue
		}

		if unit, ok := unitCodes[d.UOM]; ok {
			readings = append(readings, Number(name, d.Value, properties.UnitCode(unit), properties.ObservedAt(timestamp)))
		} else {
			readings = append(readings, Number(name, d.Value, properties.ObservedAt(timestamp)))
		}
	}

	return readings
}

var unitCodes map[int]string = map[int]string{
	14:  "DD",
	17:  "FAH",
	22:  "P1",
	23:  "F79",
	36:  "LUX",
	48:  "HM",
	116: "SMI",
	120: "K65",
}

var propertyNames map[string]string = map[string]string{
	"CLITEMP": "temperature",
	"CLIHUM":  "relativeHumidity",
	"BARPRES": "atmosphericPressure",
	"DEWPT":   "dewPoint",
	"GV4":     "feelsLikeTemperature",
	"WINDDIR": "windDirection",
	"SPEED":   "windSpeed",
	"RAINRT":  "precipitation",
	"LUMIN":   "illuminance",
	"UV":      "uVIndexMax",
}
