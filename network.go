package labnet

//
// Network lifecycle
//

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the lifecycle state of a [Network].
type State string

// StateValidated means the topology has been validated and no OS
// resource exists yet. This is the state of a new [Network].
const StateValidated = State("validated")

// StateProvisioned means all nodes, switches, and links have been
// realized at the OS level but addresses are not yet configured.
const StateProvisioned = State("provisioned")

// StateRunning means the network is fully configured and traffic
// can flow. Reachability probes require this state.
const StateRunning = State("running")

// StateStopped means the network's resources have been released.
// This state is terminal.
const StateStopped = State("stopped")

// DefaultPingTimeout is the per-probe timeout used by PingAll.
const DefaultPingTimeout = time.Second

// Network realizes a [Topology] through a [Backend] and owns the
// lifecycle of the resulting OS resources. The zero value is
// invalid; construct using [New].
//
// A Network is single threaded: Start, PingAll, and Stop must be
// called sequentially from the same goroutine.
type Network struct {
	// backend realizes OS-level resources.
	backend Backend

	// closeOnce gives Stop a "once" semantics.
	closeOnce sync.Once

	// handles maps node names to provisioned node handles.
	handles map[string]NodeHandle

	// logger is the logger to use.
	logger Logger

	// pingTimeout is the per-probe timeout.
	pingTimeout time.Duration

	// state is the lifecycle state.
	state State

	// switches maps switch names to provisioned segment handles.
	switches map[string]SwitchHandle

	// topology is the declaration we realize.
	topology *Topology
}

// New creates a new [Network] in the [StateValidated] state for the
// given built topology. No OS resource is touched until Start.
func New(topology *Topology, backend Backend, logger Logger) *Network {
	return &Network{
		backend:     backend,
		closeOnce:   sync.Once{},
		handles:     map[string]NodeHandle{},
		logger:      logger,
		pingTimeout: DefaultPingTimeout,
		state:       StateValidated,
		switches:    map[string]SwitchHandle{},
		topology:    topology,
	}
}

// State returns the current lifecycle state.
func (n *Network) State() State {
	return n.state
}

// Topology returns the topology this network realizes.
func (n *Network) Topology() *Topology {
	return n.topology
}

// Node returns the handle of a provisioned node, or nil when the
// node does not exist or the network has not been started.
func (n *Network) Node(name string) NodeHandle {
	return n.handles[name]
}

// Start realizes the topology: it provisions switches, then nodes,
// then links, and finally applies per-node configuration, enabling
// forwarding on routers last. Start blocks until every resource is
// realized. On failure it tears down whatever it already created
// and returns an error wrapping [ErrProvision].
func (n *Network) Start() error {
	if n.state != StateValidated {
		return fmt.Errorf("%w: state is %s", ErrAlreadyStarted, n.state)
	}
	n.logger.Info("labnet: starting network")
	if err := n.provision(); err != nil {
		n.abort()
		return err
	}
	n.state = StateProvisioned
	if err := n.activate(); err != nil {
		n.abort()
		return err
	}
	n.state = StateRunning
	n.logger.Info("labnet: network is running")
	return nil
}

// provision realizes switches, nodes, and links, in this order, so
// that every link endpoint already exists when the link is created.
func (n *Network) provision() error {
	for _, node := range n.topology.NodesWithRole(RoleSwitch) {
		n.logger.Debugf("labnet: create switch %s", node.Name)
		handle, err := n.backend.CreateSwitch(node.Name)
		if err != nil {
			return fmt.Errorf("%w: create switch %s: %s", ErrProvision, node.Name, err.Error())
		}
		n.switches[node.Name] = handle
	}
	for _, node := range n.topology.Nodes() {
		if node.Role == RoleSwitch {
			continue
		}
		n.logger.Debugf("labnet: create node %s", node.Name)
		handle, err := n.backend.CreateNode(node.Name)
		if err != nil {
			return fmt.Errorf("%w: create node %s: %s", ErrProvision, node.Name, err.Error())
		}
		if node.Role == RoleRouter {
			handle = WithForwarding(handle, n.logger)
		}
		n.handles[node.Name] = handle
	}
	for _, link := range n.topology.Links() {
		n.logger.Debugf("labnet: create link %s <-> %s", link.A.Node, link.B.Node)
		if err := n.backend.CreateLink(link); err != nil {
			return fmt.Errorf("%w: create link %s-%s: %s",
				ErrProvision, link.A.Node, link.B.Node, err.Error())
		}
	}
	return nil
}

// activate applies addresses and routes to every provisioned node.
// Routers get forwarding enabled here, after their interfaces have
// been configured, through the [WithForwarding] wrapper.
func (n *Network) activate() error {
	for _, node := range n.topology.Nodes() {
		handle := n.handles[node.Name]
		if handle == nil {
			continue
		}
		n.logger.Debugf("labnet: configure %s", node.Name)
		if err := handle.Configure(n.topology.ConfigFor(node.Name)); err != nil {
			return fmt.Errorf("%w: configure %s: %s", ErrProvision, node.Name, err.Error())
		}
	}
	return nil
}

// PingAll probes reachability between every unordered pair of host
// nodes and returns a [PingReport]. Unreachable pairs are recorded
// in the report rather than returned as errors: reachability is a
// runtime property and a partial outage must not prevent teardown.
func (n *Network) PingAll(ctx context.Context) (*PingReport, error) {
	if n.state != StateRunning {
		return nil, ErrNotRunning
	}
	hosts := n.topology.NodesWithRole(RoleHost)
	report := &PingReport{}
	for i := 0; i < len(hosts); i++ {
		for j := i + 1; j < len(hosts); j++ {
			result := n.pingPair(ctx, hosts[i].Name, hosts[j].Name)
			report.Results = append(report.Results, result)
		}
	}
	n.logger.Infof("labnet: %s", report.Summary())
	return report, nil
}

// pingPair probes a single host pair.
func (n *Network) pingPair(ctx context.Context, from, to string) PingResult {
	result := PingResult{
		From: from,
		To:   to,
		Addr: n.topology.PrimaryAddr(to),
	}
	if result.Addr == "" {
		result.Failure = "destination has no address"
		return result
	}
	rtt, err := n.backend.Ping(ctx, from, result.Addr, n.pingTimeout)
	if err != nil {
		n.logger.Debugf("labnet: ping %s -> %s (%s): %s", from, to, result.Addr, err.Error())
		result.Failure = err.Error()
		return result
	}
	n.logger.Debugf("labnet: ping %s -> %s (%s): rtt %s", from, to, result.Addr, rtt)
	result.RTT = rtt
	return result
}

// Stop releases every OS resource owned by this network. Teardown
// is best effort: it visits every node and switch even when some of
// them fail to terminate, and returns the collected failures. Stop
// is idempotent and subsequent calls return nil.
func (n *Network) Stop() error {
	var err error
	n.closeOnce.Do(func() {
		n.logger.Info("labnet: stopping network")
		err = n.teardown()
		n.state = StateStopped
	})
	return err
}

// abort tears down after a failed Start. It shares Stop's once so
// that a later Stop does not attempt a second teardown.
func (n *Network) abort() {
	n.closeOnce.Do(func() {
		n.teardown()
		n.state = StateStopped
	})
}

// teardown terminates nodes first, so that forwarding flags are
// restored while namespaces still exist, and then switches.
func (n *Network) teardown() error {
	var failures []error
	for _, node := range n.topology.Nodes() {
		handle := n.handles[node.Name]
		if handle == nil {
			continue
		}
		if err := handle.Terminate(); err != nil {
			n.logger.Warnf("labnet: terminate %s: %s", node.Name, err.Error())
			failures = append(failures, fmt.Errorf("terminate %s: %w", node.Name, err))
		}
	}
	for _, node := range n.topology.NodesWithRole(RoleSwitch) {
		handle := n.switches[node.Name]
		if handle == nil {
			continue
		}
		if err := handle.Terminate(); err != nil {
			n.logger.Warnf("labnet: terminate %s: %s", node.Name, err.Error())
			failures = append(failures, fmt.Errorf("terminate %s: %w", node.Name, err))
		}
	}
	return errors.Join(failures...)
}
