package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/diwise/integration-acurite/internal/pkg/application/nodes"
	"github.com/rs/zerolog"
)

var ErrNodeNotFound = errors.New("node not found")

type Registry struct {
	mu        sync.RWMutex
	nodes     map[string]*node
	notices   map[string]string
	reporters []nodes.Reporter
	log       zerolog.Logger
}

type node struct {
	address   string
	primary   string
	name      string
	nodeDefID string
	drivers   []nodes.DriverValue
}

func (n *node) Address() string   { return n.address }
func (n *node) Name() string      { return n.name }
func (n *node) NodeDefID() string { return n.nodeDefID }

func (n *node) snapshot() nodes.Snapshot {
	drv := make([]nodes.DriverValue, len(n.drivers))
	copy(drv, n.drivers)

	return nodes.Snapshot{
		Address:   n.address,
		Primary:   n.primary,
		Name:      n.name,
		NodeDefID: n.nodeDefID,
		Drivers:   drv,
	}
}

var _ nodes.Host = (*Registry)(nil)

func New(log zerolog.Logger, reporters ...nodes.Reporter) *Registry {
	return &Registry{
		nodes:     map[string]*node{},
		notices:   map[string]string{},
		reporters: reporters,
		log:       log,
	}
}

func (r *Registry) GetNode(address string) (nodes.NodeHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[address]
	if !ok {
		return nil, false
	}

	return n, true
}

func (r *Registry) AddNode(ctx context.Context, def nodes.NodeDefinition) error {
	if def.Address == "" {
		return fmt.Errorf("cannot add node %q without an address", def.Name)
	}

	r.mu.Lock()
	if _, exists := r.nodes[def.Address]; exists {
		r.mu.Unlock()
		return fmt.Errorf("node %s already exists", def.Address)
	}

	n := &node{
		address:   def.Address,
		primary:   def.Primary,
		name:      def.Name,
		nodeDefID: def.NodeDefID,
		drivers:   make([]nodes.DriverValue, len(def.Drivers)),
	}
	copy(n.drivers, def.Drivers)

	r.nodes[def.Address] = n
	snapshot := n.snapshot()
	r.mu.Unlock()

	r.log.Info().Str("address", def.Address).Str("node_def", def.NodeDefID).Msgf("added node %s", def.Name)

	var errs []error
	for _, rep := range r.reporters {
		if err := rep.NodeAdded(ctx, snapshot); err != nil {
			r.log.Error().Err(err).Str("address", def.Address).Msg("failed to report new node")
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// SetAttribute stores the value and reports it if it changed or force is set.
func (r *Registry) SetAttribute(ctx context.Context, address, driver string, value float64, force bool) error {
	r.mu.Lock()
	n, ok := r.nodes[address]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeNotFound, address)
	}

	changed := true
	found := false
	for i := range n.drivers {
		if n.drivers[i].Driver == driver {
			found = true
			changed = n.drivers[i].Value != value
			n.drivers[i].Value = value
			break
		}
	}

	if !found {
		n.drivers = append(n.drivers, nodes.DriverValue{Driver: driver, Value: value})
	}

	snapshot := n.snapshot()
	r.mu.Unlock()

	if !changed && !force {
		return nil
	}

	return r.report(ctx, snapshot, []string{driver})
}

func (r *Registry) ReportAll(ctx context.Context, address string) error {
	r.mu.RLock()
	n, ok := r.nodes[address]
	if !ok {
		r.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrNodeNotFound, address)
	}
	snapshot := n.snapshot()
	r.mu.RUnlock()

	return r.report(ctx, snapshot, snapshot.DriverIDs())
}

func (r *Registry) report(ctx context.Context, snapshot nodes.Snapshot, drivers []string) error {
	var errs []error
	for _, rep := range r.reporters {
		if err := rep.DriversChanged(ctx, snapshot, drivers); err != nil {
			r.log.Error().Err(err).Str("address", snapshot.Address).Msg("failed to report drivers")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) Nodes() []nodes.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := make([]nodes.Snapshot, 0, len(r.nodes))
	for _, n := range r.nodes {
		s = append(s, n.snapshot())
	}

	sort.Slice(s, func(i, j int) bool { return s[i].Address < s[j].Address })

	return s
}

func (r *Registry) Node(address string) (nodes.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[address]
	if !ok {
		return nodes.Snapshot{}, false
	}

	return n.snapshot(), true
}

func (r *Registry) SetNotice(key, text string) {
	r.mu.Lock()
	r.notices[key] = text
	r.mu.Unlock()

	r.log.Warn().Str("notice", key).Msg(text)
}

func (r *Registry) ClearNotice(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.notices, key)
}

func (r *Registry) ClearNotices() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = map[string]string{}
}

func (r *Registry) Notices() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := make(map[string]string, len(r.notices))
	for k, v := range r.notices {
		n[k] = v
	}
	return n
}
