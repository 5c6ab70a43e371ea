package labnet

//
// Data model
//

import (
	"context"
	"time"
)

// Role is the role of a node inside a [Topology].
type Role string

// RoleHost is a leaf node with addressed interfaces that does
// not forward traffic between them.
const RoleHost = Role("host")

// RoleRouter is a node that forwards IP traffic between its
// interfaces and acts as a gateway for attached segments.
const RoleRouter = Role("router")

// RoleSwitch is an L2 segment: every endpoint linked to it shares
// a single broadcast domain and a single subnet.
const RoleSwitch = Role("switch")

// Logger is the logger we're using.
type Logger interface {
	// Debugf formats and emits a debug message.
	Debugf(format string, v ...any)

	// Debug emits a debug message.
	Debug(message string)

	// Infof formats and emits an informational message.
	Infof(format string, v ...any)

	// Info emits an informational message.
	Info(message string)

	// Warnf formats and emits a warning message.
	Warnf(format string, v ...any)

	// Warn emits a warning message.
	Warn(message string)
}

// NullLogger is a [Logger] that does not emit logs.
type NullLogger struct{}

var _ Logger = &NullLogger{}

// Debug implements Logger
func (nl *NullLogger) Debug(message string) {
	// nothing
}

// Debugf implements Logger
func (nl *NullLogger) Debugf(format string, v ...any) {
	// nothing
}

// Info implements Logger
func (nl *NullLogger) Info(message string) {
	// nothing
}

// Infof implements Logger
func (nl *NullLogger) Infof(format string, v ...any) {
	// nothing
}

// Warn implements Logger
func (nl *NullLogger) Warn(message string) {
	// nothing
}

// Warnf implements Logger
func (nl *NullLogger) Warnf(format string, v ...any) {
	// nothing
}

// InterfaceConfig is the configuration to apply to a single
// realized interface of a node.
type InterfaceConfig struct {
	// Name is the interface name inside the node.
	Name string

	// Addr is the OPTIONAL address to assign in CIDR notation.
	Addr string
}

// RouteConfig is a static route to install into a node.
type RouteConfig struct {
	// Prefix is the destination in CIDR notation.
	Prefix string

	// NextHop is the next-hop IP address.
	NextHop string
}

// NodeConfig is the configuration a [NodeHandle] applies when
// the node is activated. Interfaces must already be realized.
type NodeConfig struct {
	// Interfaces lists the per-interface configuration.
	Interfaces []InterfaceConfig

	// DefaultRoute is the OPTIONAL default next-hop IP address.
	DefaultRoute string

	// Routes lists OPTIONAL static routes.
	Routes []RouteConfig
}

// NodeHandle is the per-node surface exposed by a [Backend] once a
// node has been provisioned. The handle stays valid until Terminate.
type NodeHandle interface {
	// Name returns the node name.
	Name() string

	// Configure applies addresses and routes to the node. The
	// interfaces named by the config must already exist, which
	// implies links have been realized before Configure runs.
	Configure(config *NodeConfig) error

	// Cmd executes a shell-like command line inside the node and
	// returns its combined output.
	Cmd(command string) (string, error)

	// Terminate releases the node's OS resources. Terminate is
	// idempotent: calling it twice must not fail.
	Terminate() error
}

// SwitchHandle is the per-segment surface exposed by a [Backend]
// once a switch has been provisioned.
type SwitchHandle interface {
	// Name returns the switch name.
	Name() string

	// Terminate releases the segment's OS resources. Idempotent.
	Terminate() error
}

// Backend is the capability set a [Network] needs to realize a
// [Topology] as actual OS-level resources. The reference
// implementation is [NetnsBackend], which uses Linux network
// namespaces, veth pairs, and bridges.
type Backend interface {
	// CreateNode provisions an isolated node (host or router).
	CreateNode(name string) (NodeHandle, error)

	// CreateSwitch provisions an L2 segment.
	CreateSwitch(name string) (SwitchHandle, error)

	// CreateLink realizes a declared link. Both endpoints must
	// have been provisioned already.
	CreateLink(link *Link) error

	// Ping sends a single ICMP echo request from the given node
	// to the given IP address and returns the round-trip time.
	Ping(ctx context.Context, fromNode, destAddr string, timeout time.Duration) (time.Duration, error)
}
