//go:build linux

package labnet

//
// Linux network-namespace backend
//

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/google/shlex"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// NetnsBackend is a [Backend] that realizes nodes as named Linux
// network namespaces, switches as bridges in the root namespace, and
// links as veth pairs. The zero value is invalid; construct using
// [NewNetnsBackend]. Provisioning requires CAP_NET_ADMIN, which in
// practice means running as root.
type NetnsBackend struct {
	// logger is the logger to use.
	logger Logger

	// nodes maps node names to realized nodes.
	nodes map[string]*netnsNode

	// prefix is prepended to namespace names so that concurrent
	// labs on the same machine do not clash.
	prefix string

	// switches maps switch names to realized bridges.
	switches map[string]*netnsSwitch
}

var _ Backend = &NetnsBackend{}

// NewNetnsBackend creates a new [NetnsBackend]. The prefix is
// prepended to every namespace name; use the empty string to get
// the default ("labnet-").
func NewNetnsBackend(logger Logger, prefix string) *NetnsBackend {
	if prefix == "" {
		prefix = "labnet-"
	}
	return &NetnsBackend{
		logger:   logger,
		nodes:    map[string]*netnsNode{},
		prefix:   prefix,
		switches: map[string]*netnsSwitch{},
	}
}

// CreateNode implements Backend. It creates a named network
// namespace and brings up its loopback interface.
func (b *NetnsBackend) CreateNode(name string) (NodeHandle, error) {
	nsName := b.prefix + name
	b.logger.Debugf("labnet: ip netns add %s", nsName)
	handle, err := createNamedNamespace(nsName)
	if err != nil {
		return nil, fmt.Errorf("create namespace %s: %w", nsName, err)
	}
	node := &netnsNode{
		closeOnce: sync.Once{},
		logger:    b.logger,
		name:      name,
		ns:        handle,
		nsName:    nsName,
	}
	nl, err := netlink.NewHandleAt(handle)
	if err != nil {
		node.Terminate()
		return nil, err
	}
	defer nl.Close()
	lo, err := nl.LinkByName("lo")
	if err != nil {
		node.Terminate()
		return nil, err
	}
	if err := nl.LinkSetUp(lo); err != nil {
		node.Terminate()
		return nil, err
	}
	b.nodes[name] = node
	return node, nil
}

// CreateSwitch implements Backend. It creates a bridge in the root
// namespace; segment members are attached by CreateLink.
func (b *NetnsBackend) CreateSwitch(name string) (SwitchHandle, error) {
	attrs := netlink.NewLinkAttrs()
	attrs.Name = "br-" + name
	bridge := &netlink.Bridge{LinkAttrs: attrs}
	b.logger.Debugf("labnet: ip link add %s type bridge", attrs.Name)
	if err := netlink.LinkAdd(bridge); err != nil {
		return nil, fmt.Errorf("create bridge %s: %w", attrs.Name, err)
	}
	if err := netlink.LinkSetUp(bridge); err != nil {
		_ = netlink.LinkDel(bridge)
		return nil, err
	}
	sw := &netnsSwitch{
		bridge:    attrs.Name,
		closeOnce: sync.Once{},
		logger:    b.logger,
		name:      name,
	}
	b.switches[name] = sw
	return sw, nil
}

// CreateLink implements Backend. It creates a veth pair named after
// the two endpoints, then moves each end into its node's namespace
// or attaches it to its switch's bridge.
func (b *NetnsBackend) CreateLink(link *Link) error {
	attrs := netlink.NewLinkAttrs()
	attrs.Name = link.A.Ifname
	veth := &netlink.Veth{LinkAttrs: attrs, PeerName: link.B.Ifname}
	b.logger.Debugf("labnet: ip link add %s type veth peer name %s",
		link.A.Ifname, link.B.Ifname)
	if err := netlink.LinkAdd(veth); err != nil {
		return fmt.Errorf("create veth %s/%s: %w", link.A.Ifname, link.B.Ifname, err)
	}
	for _, ep := range []*Endpoint{&link.A, &link.B} {
		if err := b.placeEndpoint(ep); err != nil {
			return err
		}
	}
	return nil
}

// placeEndpoint moves one end of a freshly created veth pair to
// where the topology says it belongs.
func (b *NetnsBackend) placeEndpoint(ep *Endpoint) error {
	iflink, err := netlink.LinkByName(ep.Ifname)
	if err != nil {
		return fmt.Errorf("endpoint %s/%s: %w", ep.Node, ep.Ifname, err)
	}
	if node := b.nodes[ep.Node]; node != nil {
		// the interface comes up during node configuration
		if err := netlink.LinkSetNsFd(iflink, int(node.ns)); err != nil {
			return fmt.Errorf("move %s into %s: %w", ep.Ifname, node.nsName, err)
		}
		return nil
	}
	if sw := b.switches[ep.Node]; sw != nil {
		bridge, err := netlink.LinkByName(sw.bridge)
		if err != nil {
			return err
		}
		if err := netlink.LinkSetMaster(iflink, bridge); err != nil {
			return fmt.Errorf("attach %s to %s: %w", ep.Ifname, sw.bridge, err)
		}
		return netlink.LinkSetUp(iflink)
	}
	return fmt.Errorf("%w: %s", ErrUnknownNode, ep.Node)
}

// netnsNode is a node realized as a named network namespace.
type netnsNode struct {
	// closeOnce gives Terminate a "once" semantics.
	closeOnce sync.Once

	// logger is the logger to use.
	logger Logger

	// name is the node name.
	name string

	// ns is an open handle to the namespace.
	ns netns.NsHandle

	// nsName is the name under /run/netns.
	nsName string
}

var _ NodeHandle = &netnsNode{}

// Name implements NodeHandle
func (node *netnsNode) Name() string {
	return node.name
}

// Configure implements NodeHandle. It assigns addresses, brings
// interfaces up, and installs routes, operating entirely through a
// netlink handle scoped to the node's namespace.
func (node *netnsNode) Configure(config *NodeConfig) error {
	nl, err := netlink.NewHandleAt(node.ns)
	if err != nil {
		return err
	}
	defer nl.Close()
	for _, iface := range config.Interfaces {
		iflink, err := nl.LinkByName(iface.Name)
		if err != nil {
			return fmt.Errorf("%s: %s: %w", node.name, iface.Name, err)
		}
		if iface.Addr != "" {
			addr, err := netlink.ParseAddr(iface.Addr)
			if err != nil {
				return fmt.Errorf("%s: parse %s: %w", node.name, iface.Addr, err)
			}
			node.logger.Debugf("labnet: %s: ip addr add %s dev %s",
				node.name, iface.Addr, iface.Name)
			if err := nl.AddrAdd(iflink, addr); err != nil {
				return fmt.Errorf("%s: assign %s: %w", node.name, iface.Addr, err)
			}
		}
		if err := nl.LinkSetUp(iflink); err != nil {
			return fmt.Errorf("%s: set %s up: %w", node.name, iface.Name, err)
		}
	}
	if config.DefaultRoute != "" {
		gateway := net.ParseIP(config.DefaultRoute)
		if gateway == nil {
			return fmt.Errorf("%s: invalid gateway %q", node.name, config.DefaultRoute)
		}
		node.logger.Debugf("labnet: %s: ip route add default via %s",
			node.name, config.DefaultRoute)
		if err := nl.RouteAdd(&netlink.Route{Gw: gateway}); err != nil {
			return fmt.Errorf("%s: default route: %w", node.name, err)
		}
	}
	for _, route := range config.Routes {
		_, dst, err := net.ParseCIDR(route.Prefix)
		if err != nil {
			return fmt.Errorf("%s: invalid route prefix %q", node.name, route.Prefix)
		}
		gateway := net.ParseIP(route.NextHop)
		if gateway == nil {
			return fmt.Errorf("%s: invalid next hop %q", node.name, route.NextHop)
		}
		node.logger.Debugf("labnet: %s: ip route add %s via %s",
			node.name, route.Prefix, route.NextHop)
		if err := nl.RouteAdd(&netlink.Route{Dst: dst, Gw: gateway}); err != nil {
			return fmt.Errorf("%s: route %s: %w", node.name, route.Prefix, err)
		}
	}
	return nil
}

// Cmd implements NodeHandle. The command line is split with shlex
// and executed inside the node's namespace. Writes to sysctl keys
// are implemented natively through procfs so that nodes do not
// depend on the sysctl binary being installed.
func (node *netnsNode) Cmd(command string) (string, error) {
	argv, err := shlex.Split(command)
	if err != nil {
		return "", err
	}
	if len(argv) <= 0 {
		return "", errors.New("labnet: empty command")
	}
	if argv[0] == "sysctl" {
		return node.sysctl(argv[1:])
	}
	var output []byte
	err = withNamespace(node.ns, func() error {
		var cmdErr error
		output, cmdErr = exec.Command(argv[0], argv[1:]...).CombinedOutput()
		return cmdErr
	})
	return string(output), err
}

// sysctl emulates the sysctl command for key reads and writes.
func (node *netnsNode) sysctl(args []string) (string, error) {
	var b strings.Builder
	err := withNamespace(node.ns, func() error {
		for _, arg := range args {
			if strings.HasPrefix(arg, "-") {
				continue // flags such as -w
			}
			key, value, isWrite := strings.Cut(arg, "=")
			path := "/proc/sys/" + strings.ReplaceAll(key, ".", "/")
			if isWrite {
				if err := os.WriteFile(path, []byte(value), 0644); err != nil {
					return err
				}
				fmt.Fprintf(&b, "%s = %s\n", key, value)
				continue
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(&b, "%s = %s\n", key, strings.TrimSpace(string(data)))
		}
		return nil
	})
	return b.String(), err
}

// Terminate implements NodeHandle. Deleting the named namespace
// also destroys the veth ends living inside it.
func (node *netnsNode) Terminate() error {
	var err error
	node.closeOnce.Do(func() {
		node.logger.Debugf("labnet: ip netns del %s", node.nsName)
		node.ns.Close()
		err = netns.DeleteNamed(node.nsName)
	})
	return err
}

// netnsSwitch is a switch realized as a bridge in the root namespace.
type netnsSwitch struct {
	// bridge is the bridge interface name.
	bridge string

	// closeOnce gives Terminate a "once" semantics.
	closeOnce sync.Once

	// logger is the logger to use.
	logger Logger

	// name is the switch name.
	name string
}

var _ SwitchHandle = &netnsSwitch{}

// Name implements SwitchHandle
func (sw *netnsSwitch) Name() string {
	return sw.name
}

// Terminate implements SwitchHandle. Deleting the bridge also
// releases the veth ends attached to it.
func (sw *netnsSwitch) Terminate() error {
	var err error
	sw.closeOnce.Do(func() {
		sw.logger.Debugf("labnet: ip link del %s", sw.bridge)
		bridge, lookupErr := netlink.LinkByName(sw.bridge)
		if lookupErr != nil {
			return // already gone
		}
		err = netlink.LinkDel(bridge)
	})
	return err
}

// createNamedNamespace creates a named network namespace without
// leaving the calling goroutine inside it.
func createNamedNamespace(name string) (netns.NsHandle, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	origin, err := netns.Get()
	if err != nil {
		return netns.None(), err
	}
	defer origin.Close()
	handle, err := netns.NewNamed(name)
	if err != nil {
		return netns.None(), err
	}
	if err := netns.Set(origin); err != nil {
		handle.Close()
		_ = netns.DeleteNamed(name)
		return netns.None(), err
	}
	return handle, nil
}

// withNamespace runs fn with the calling thread joined to the given
// namespace and rejoins the original namespace before returning.
func withNamespace(ns netns.NsHandle, fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	origin, err := netns.Get()
	if err != nil {
		return err
	}
	defer origin.Close()
	if err := netns.Set(ns); err != nil {
		return err
	}
	defer func() {
		_ = netns.Set(origin)
	}()
	return fn()
}
