package nodes

import (
	"context"
	"regexp"
	"strings"

	"github.com/diwise/integration-acurite/internal/pkg/application/drivers"
)

// Host is the automation controller that owns the node registry and the
// per-node attribute cache.
type Host interface {
	GetNode(address string) (NodeHandle, bool)
	AddNode(ctx context.Context, def NodeDefinition) error
	SetAttribute(ctx context.Context, address, driver string, value float64, force bool) error
	ReportAll(ctx context.Context, address string) error

	SetNotice(key, text string)
	ClearNotice(key string)
	ClearNotices()
}

type NodeHandle interface {
	Address() string
	Name() string
	NodeDefID() string
}

type DriverValue struct {
	Driver string  `json:"driver"`
	Value  float64 `json:"value"`
	UOM    int     `json:"uom"`
}

type NodeDefinition struct {
	Address   string
	Primary   string
	Name      string
	NodeDefID string
	Drivers   []DriverValue
}

type Snapshot struct {
	Address   string        `json:"address"`
	Primary   string        `json:"primary"`
	Name      string        `json:"name"`
	NodeDefID string        `json:"nodeDefId"`
	Drivers   []DriverValue `json:"drivers"`
}

func (s Snapshot) Driver(id string) (DriverValue, bool) {
	for _, d := range s.Drivers {
		if d.Driver == id {
			return d, true
		}
	}
	return DriverValue{}, false
}

func (s Snapshot) DriverIDs() []string {
	ids := make([]string, 0, len(s.Drivers))
	for _, d := range s.Drivers {
		ids = append(ids, d.Driver)
	}
	return ids
}

// Reporter receives every value the host decides to report.
type Reporter interface {
	NodeAdded(ctx context.Context, node Snapshot) error
	DriversChanged(ctx context.Context, node Snapshot, drivers []string) error
}

// Identity is the vendor side view of a node.
type Identity struct {
	ID      string
	Name    string
	Variant drivers.Variant
}

const maxAddressLength int = 14

var invalidAddressChars = regexp.MustCompile(`[^a-z0-9_]`)

// Address turns a vendor id into a host node address: lowercase, limited
// to [a-z0-9_] and at most 14 characters.
func Address(id string) string {
	a := invalidAddressChars.ReplaceAllString(strings.ToLower(id), "")
	if len(a) > maxAddressLength {
		a = a[len(a)-maxAddressLength:]
	}
	return a
}
