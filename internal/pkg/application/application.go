package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/diwise/integration-acurite/domain"
	"github.com/diwise/integration-acurite/internal/pkg/application/acurite"
	"github.com/diwise/integration-acurite/internal/pkg/application/drivers"
	"github.com/diwise/integration-acurite/internal/pkg/application/nodes"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

const (
	UserParam     string = "acurite_user"
	PasswordParam string = "acurite_password"

	userNotice     string = "user"
	passwordNotice string = "password"

	controllerName      string = "Acurite Controller"
	controllerNodeDefID string = "acurite"
)

var (
	ErrConfig          = errors.New("configuration error")
	ErrMissingUser     = errors.New("acurite user is blank")
	ErrMissingPassword = errors.New("acurite password is blank")
	ErrNotReady        = errors.New("controller is not configured")
)

type State int

const (
	Unconfigured State = iota
	Configuring
	Ready
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Configuring:
		return "configuring"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type IntegrationAcurite interface {
	ParameterHandler(ctx context.Context, params map[string]string) error
	Start(ctx context.Context) error
	Poll(ctx context.Context, kind nodes.PollKind) error
	Query(ctx context.Context) error
	Discover(ctx context.Context) error
	Stop(ctx context.Context) error
	RemoveNoticesAll()
	State() State
}

type integrationAcurite struct {
	client   acurite.Client
	host     nodes.Host
	mapper   *drivers.Mapper
	emitter  *nodes.Emitter
	handlers nodes.Handlers
	log      zerolog.Logger

	mu       sync.Mutex
	pass     sync.Mutex
	state    State
	user     string
	password string
	devices  map[string]nodes.DeviceHandler
	order    []string
}

var tracer = otel.Tracer("integration-acurite/app")

func New(client acurite.Client, host nodes.Host, mapper *drivers.Mapper, log zerolog.Logger) IntegrationAcurite {
	return &integrationAcurite{
		client:   client,
		host:     host,
		mapper:   mapper,
		emitter:  nodes.NewEmitter(host, false),
		handlers: nodes.DefaultHandlers(),
		log:      log,
		state:    Unconfigured,
		devices:  map[string]nodes.DeviceHandler{},
	}
}

func (a *integrationAcurite) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// ParameterHandler receives the custom parameters from the host. Missing
// credentials are surfaced as notices until they are corrected.
func (a *integrationAcurite) ParameterHandler(ctx context.Context, params map[string]string) error {
	a.mu.Lock()
	a.state = Configuring
	a.mu.Unlock()

	user := strings.TrimSpace(params[UserParam])
	password := params[PasswordParam]

	a.host.ClearNotices()

	var errs []error

	if user == "" {
		a.log.Error().Msg("acurite user is blank")
		a.host.SetNotice(userNotice, "Acurite User must be configured.")
		errs = append(errs, ErrMissingUser)
	}

	if password == "" {
		a.log.Error().Msg("acurite password is blank")
		a.host.SetNotice(passwordNotice, "Acurite Password must be configured.")
		errs = append(errs, ErrMissingPassword)
	}

	a.mu.Lock()
	if len(errs) > 0 {
		a.state = Unconfigured
		a.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
	}

	a.user = user
	a.password = password
	a.state = Ready
	a.mu.Unlock()

	a.log.Info().Str("acurite_user", user).Msg("configuration accepted")

	return a.Discover(ctx)
}

func (a *integrationAcurite) Start(ctx context.Context) error {
	a.log.Info().Msg("starting acurite integration")

	if _, ok := a.host.GetNode(nodes.ControllerAddress); !ok {
		err := a.host.AddNode(ctx, nodes.NodeDefinition{
			Address:   nodes.ControllerAddress,
			Primary:   nodes.ControllerAddress,
			Name:      controllerName,
			NodeDefID: controllerNodeDefID,
			Drivers:   []nodes.DriverValue{{Driver: "ST", Value: 1, UOM: 2}},
		})
		if err != nil {
			a.log.Error().Err(err).Msg("failed to add controller node")
		}
	}

	for _, h := range a.knownDevices() {
		if err := h.OnStart(ctx); err != nil {
			a.log.Error().Err(err).Str("address", h.Address()).Msg("failed to start device node")
		}
	}

	return a.Query(ctx)
}

func (a *integrationAcurite) Poll(ctx context.Context, kind nodes.PollKind) error {
	if a.State() != Ready {
		a.log.Debug().Str("poll", string(kind)).Msg("skipping poll, controller is not configured")
		return nil
	}

	if kind == nodes.ShortPoll {
		a.log.Info().Msg("shortPoll (controller)")
		return a.Query(ctx)
	}

	a.log.Info().Msg("longPoll (controller)")

	var errs []error
	for _, h := range a.knownDevices() {
		if err := h.OnPoll(ctx, kind); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (a *integrationAcurite) Query(ctx context.Context) error {
	if a.State() != Ready {
		return nil
	}

	err := a.Discover(ctx)
	a.log.Info().Msg("controller query")

	return err
}

// Discover runs one discovery pass. It logs in again on every pass and
// leaves already reported values untouched when authentication or
// fetching fails.
func (a *integrationAcurite) Discover(ctx context.Context) error {
	var err error

	a.pass.Lock()
	defer a.pass.Unlock()

	ctx, span := tracer.Start(ctx, "discover")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	_, ctx, logger := o11y.AddTraceIDToLoggerAndStoreInContext(span, a.log, ctx)

	a.mu.Lock()
	state, user, password := a.state, a.user, a.password
	a.mu.Unlock()

	if state != Ready {
		err = ErrNotReady
		return err
	}

	logger.Info().Msg("starting acurite device discovery")

	cred, err := a.client.Login(ctx, user, password)
	if err != nil {
		logger.Error().Err(err).Msg("failed to login to acurite")
		return err
	}

	devices, err := a.client.FetchDevices(ctx, cred)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch acurite devices")
		return err
	}

	logger.Info().Int("count", len(devices)).Msg("got acurite devices")

	var errs []error

	for _, device := range devices {
		if device == nil {
			continue
		}

		devLogger := logger.With().Str("device_id", device.ID.String()).Str("device_name", device.Name).Logger()
		devCtx := logging.NewContextWithLogger(ctx, devLogger)

		h, e := a.handlerFor(*device)
		if e != nil {
			devLogger.Error().Err(e).Msg("no handler for device")
			errs = append(errs, e)
			continue
		}

		if _, exists := a.host.GetNode(nodes.Address(device.ID.String())); exists {
			devLogger.Debug().Msg("node already exists, updating")
		}

		if e := h.MapAndEmit(devCtx, *device); e != nil {
			devLogger.Error().Err(e).Msg("failed to update device")
			errs = append(errs, e)
		}
	}

	err = errors.Join(errs...)

	return err
}

func (a *integrationAcurite) handlerFor(device domain.Device) (nodes.DeviceHandler, error) {
	id := device.ID.String()
	variant := drivers.Classify(device.ModelCode)

	a.mu.Lock()
	defer a.mu.Unlock()

	if h, ok := a.devices[id]; ok && h.Variant() == variant {
		return h, nil
	}

	h, err := a.handlers.New(variant, a.mapper, a.emitter, a.host)
	if err != nil {
		return nil, err
	}

	if _, ok := a.devices[id]; !ok {
		a.order = append(a.order, id)
	}
	a.devices[id] = h

	return h, nil
}

func (a *integrationAcurite) knownDevices() []nodes.DeviceHandler {
	a.mu.Lock()
	defer a.mu.Unlock()

	handlers := make([]nodes.DeviceHandler, 0, len(a.order))
	for _, id := range a.order {
		handlers = append(handlers, a.devices[id])
	}

	return handlers
}

func (a *integrationAcurite) Stop(ctx context.Context) error {
	a.log.Info().Msg("stopping acurite integration")
	return nil
}

func (a *integrationAcurite) RemoveNoticesAll() {
	a.host.ClearNotices()
}
