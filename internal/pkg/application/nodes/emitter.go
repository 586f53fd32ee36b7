package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/diwise/integration-acurite/internal/pkg/application/drivers"
)

const ControllerAddress string = "controller"

type Emitter struct {
	host  Host
	force bool
}

func NewEmitter(host Host, force bool) *Emitter {
	return &Emitter{host: host, force: force}
}

// Emit pushes attrs to the host, requesting node creation if the host does
// not know the node yet.
func (e *Emitter) Emit(ctx context.Context, id Identity, attrs drivers.Attributes) error {
	return e.emit(ctx, id, attrs, e.force)
}

func (e *Emitter) emit(ctx context.Context, id Identity, attrs drivers.Attributes, force bool) error {
	d, ok := drivers.DescriptorFor(id.Variant)
	if !ok {
		return fmt.Errorf("no descriptor registered for variant %q", id.Variant)
	}

	address := Address(id.ID)
	if address == "" {
		return fmt.Errorf("device id %q does not yield a valid node address", id.ID)
	}

	if _, exists := e.host.GetNode(address); !exists {
		def := NodeDefinition{
			Address:   address,
			Primary:   ControllerAddress,
			Name:      id.Name,
			NodeDefID: string(id.Variant),
			Drivers:   make([]DriverValue, 0, len(d.Drivers)),
		}

		for _, drv := range d.Drivers {
			def.Drivers = append(def.Drivers, DriverValue{Driver: drv.ID, Value: attrs[drv.ID], UOM: drv.UOM})
		}

		return e.host.AddNode(ctx, def)
	}

	var errs []error
	for _, drv := range d.Drivers {
		err := e.host.SetAttribute(ctx, address, drv.ID, attrs[drv.ID], force)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
