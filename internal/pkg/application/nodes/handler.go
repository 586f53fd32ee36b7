package nodes

import (
	"context"
	"fmt"
	"sync"

	"github.com/diwise/integration-acurite/domain"
	"github.com/diwise/integration-acurite/internal/pkg/application/drivers"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

type PollKind string

const (
	ShortPoll PollKind = "short"
	LongPoll  PollKind = "long"
)

// DeviceHandler receives the lifecycle callbacks for one device node.
type DeviceHandler interface {
	Address() string
	Variant() drivers.Variant

	OnStart(ctx context.Context) error
	OnPoll(ctx context.Context, kind PollKind) error
	OnQuery(ctx context.Context) error
	MapAndEmit(ctx context.Context, device domain.Device) error
}

type HandlerFactory func(d drivers.Descriptor, mapper *drivers.Mapper, emitter *Emitter, host Host) DeviceHandler

// Handlers is a dispatch table from variant tag to handler constructor.
type Handlers map[drivers.Variant]HandlerFactory

func DefaultHandlers() Handlers {
	return Handlers{
		drivers.Standard:   newDeviceNode,
		drivers.Atlas:      newDeviceNode,
		drivers.LightningT: newDeviceNode,
	}
}

func (h Handlers) New(v drivers.Variant, mapper *drivers.Mapper, emitter *Emitter, host Host) (DeviceHandler, error) {
	factory, ok := h[v]
	if !ok {
		return nil, fmt.Errorf("no handler registered for variant %q", v)
	}

	d, ok := drivers.DescriptorFor(v)
	if !ok {
		return nil, fmt.Errorf("no descriptor registered for variant %q", v)
	}

	return factory(d, mapper, emitter, host), nil
}

type deviceNode struct {
	descriptor drivers.Descriptor
	mapper     *drivers.Mapper
	emitter    *Emitter
	host       Host

	mu      sync.Mutex
	address string
	last    *domain.Device
}

func newDeviceNode(d drivers.Descriptor, mapper *drivers.Mapper, emitter *Emitter, host Host) DeviceHandler {
	return &deviceNode{
		descriptor: d,
		mapper:     mapper,
		emitter:    emitter,
		host:       host,
	}
}

func (n *deviceNode) Address() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.address
}

func (n *deviceNode) Variant() drivers.Variant {
	return n.descriptor.Variant
}

func (n *deviceNode) MapAndEmit(ctx context.Context, device domain.Device) error {
	return n.mapAndEmit(ctx, device, n.emitter.force)
}

func (n *deviceNode) mapAndEmit(ctx context.Context, device domain.Device, force bool) error {
	logger := logging.GetFromContext(ctx).With().
		Str("device_id", device.ID.String()).
		Str("node_def", string(n.descriptor.Variant)).
		Logger()

	attrs, err := n.mapper.MapAs(n.descriptor, device)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.address = Address(device.ID.String())
	n.last = &device
	n.mu.Unlock()

	for _, id := range n.descriptor.DriverIDs() {
		logger.Debug().Str("driver", id).Float64("value", attrs[id]).Msg("mapped driver value")
	}

	return n.emitter.emit(ctx, Identity{
		ID:      device.ID.String(),
		Name:    device.Name,
		Variant: n.descriptor.Variant,
	}, attrs, force)
}

// OnStart re-emits the last known payload and forces a full report.
func (n *deviceNode) OnStart(ctx context.Context) error {
	n.mu.Lock()
	last := n.last
	n.mu.Unlock()

	if last == nil {
		return nil
	}

	return n.mapAndEmit(ctx, *last, true)
}

func (n *deviceNode) OnPoll(ctx context.Context, kind PollKind) error {
	if kind != LongPoll {
		return nil
	}
	return n.OnQuery(ctx)
}

func (n *deviceNode) OnQuery(ctx context.Context) error {
	address := n.Address()
	if address == "" {
		return nil
	}

	if _, ok := n.host.GetNode(address); !ok {
		return nil
	}

	return n.host.ReportAll(ctx, address)
}
