package labnet

//
// IP forwarding lifecycle
//

// Command lines toggling IPv4 forwarding inside a node.
const (
	enableForwarding  = "sysctl -w net.ipv4.ip_forward=1"
	disableForwarding = "sysctl -w net.ipv4.ip_forward=0"
)

// WithForwarding wraps a [NodeHandle] such that IP forwarding is
// enabled right after the node's base configuration has been applied
// and disabled again when the node terminates. This is how a plain
// node becomes a router: the OS relays packets between the node's
// interfaces and everything else stays the same.
//
// The wrapper guarantees that disabling is attempted exactly once per
// Configure call that succeeded, and that Terminate never fails just
// because forwarding was never enabled.
func WithForwarding(handle NodeHandle, logger Logger) NodeHandle {
	return &forwardingNode{
		enabled: false,
		handle:  handle,
		logger:  logger,
	}
}

// forwardingNode decorates a [NodeHandle] with forwarding semantics.
type forwardingNode struct {
	// enabled records whether we successfully enabled forwarding.
	enabled bool

	// handle is the wrapped handle.
	handle NodeHandle

	// logger is the logger to use.
	logger Logger
}

var _ NodeHandle = &forwardingNode{}

// Name implements NodeHandle
func (fn *forwardingNode) Name() string {
	return fn.handle.Name()
}

// Configure implements NodeHandle. We apply the base configuration
// first: forwarding across interfaces that do not exist yet is
// meaningless.
func (fn *forwardingNode) Configure(config *NodeConfig) error {
	if err := fn.handle.Configure(config); err != nil {
		return err
	}
	if _, err := fn.handle.Cmd(enableForwarding); err != nil {
		return err
	}
	fn.logger.Debugf("labnet: %s: forwarding enabled", fn.Name())
	fn.enabled = true
	return nil
}

// Cmd implements NodeHandle
func (fn *forwardingNode) Cmd(command string) (string, error) {
	return fn.handle.Cmd(command)
}

// Terminate implements NodeHandle. Disabling forwarding is best
// effort: failures are logged, never returned, so that termination
// of the underlying node always runs.
func (fn *forwardingNode) Terminate() error {
	if fn.enabled {
		fn.enabled = false
		if _, err := fn.handle.Cmd(disableForwarding); err != nil {
			fn.logger.Warnf("labnet: %s: cannot disable forwarding: %s",
				fn.Name(), err.Error())
		} else {
			fn.logger.Debugf("labnet: %s: forwarding disabled", fn.Name())
		}
	}
	return fn.handle.Terminate()
}
