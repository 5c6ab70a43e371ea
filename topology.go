package labnet

//
// Topology declaration and validation
//

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"
)

// maxNodeName is the maximum length of a node name. We generate
// interface names shaped like "<node>-eth<N>" and the kernel limits
// interface names to 15 bytes (IFNAMSIZ minus the terminator).
const maxNodeName = 9

// Node describes a declared node. Nodes are value types owned by a
// [Topology]; mutating one after Build has no effect on the network.
type Node struct {
	// Name is the unique node name.
	Name string

	// Role is the node role.
	Role Role

	// Addr is the OPTIONAL primary address in CIDR notation. During
	// Build we attach this address to the node's first unaddressed
	// link endpoint, which mirrors how hosts are usually declared:
	// one address, one uplink to a switch.
	Addr string

	// DefaultRoute is the OPTIONAL next-hop IP address for traffic
	// outside the node's local subnets.
	DefaultRoute string

	// Routes lists OPTIONAL static routes. Routers interconnected
	// over a backbone need these to reach each other's segments,
	// since we do not run any routing protocol.
	Routes []RouteConfig
}

// Endpoint is one side of a [Link].
type Endpoint struct {
	// Node is the name of the node this endpoint belongs to.
	Node string

	// Ifname is the interface name realized for this endpoint. Leave
	// empty to let Build generate "<node>-eth<N>" names in
	// link-declaration order.
	Ifname string

	// Addr is the OPTIONAL address to assign to this endpoint's
	// interface, in CIDR notation.
	Addr string
}

// Link is an undirected link between two endpoints.
type Link struct {
	// A is the first endpoint.
	A Endpoint

	// B is the second endpoint.
	B Endpoint
}

// LinkOptions contains the optional knobs of [TopologyBuilder.AddLink].
type LinkOptions struct {
	// IfnameA overrides the generated interface name on the A side.
	IfnameA string

	// IfnameB overrides the generated interface name on the B side.
	IfnameB string

	// AddrA assigns an address (CIDR notation) to the A side.
	AddrA string

	// AddrB assigns an address (CIDR notation) to the B side.
	AddrB string
}

// Topology is an immutable, validated network declaration. The zero
// value is invalid; obtain one through [TopologyBuilder.Build]. A
// Topology owns no OS resource: hand it to [New] to realize it.
//
// A built Topology is read-only and safe for concurrent inspection.
type Topology struct {
	// nodes maps a node name to its declaration.
	nodes map[string]*Node

	// order records node insertion order.
	order []string

	// links lists the declared links.
	links []*Link
}

// Nodes returns the declared nodes in insertion order. The caller
// must treat the returned values as read-only.
func (t *Topology) Nodes() []*Node {
	all := make([]*Node, 0, len(t.order))
	for _, name := range t.order {
		all = append(all, t.nodes[name])
	}
	return all
}

// NodesWithRole returns the declared nodes with the given role,
// in insertion order.
func (t *Topology) NodesWithRole(role Role) []*Node {
	var out []*Node
	for _, name := range t.order {
		if node := t.nodes[name]; node.Role == role {
			out = append(out, node)
		}
	}
	return out
}

// Node returns the named node or nil.
func (t *Topology) Node(name string) *Node {
	return t.nodes[name]
}

// Links returns the declared links in insertion order. The caller
// must treat the returned values as read-only.
func (t *Topology) Links() []*Link {
	return t.links
}

// ConfigFor derives the [NodeConfig] to apply when activating the
// given node, or nil if the node does not exist.
func (t *Topology) ConfigFor(name string) *NodeConfig {
	node := t.nodes[name]
	if node == nil {
		return nil
	}
	config := &NodeConfig{
		DefaultRoute: node.DefaultRoute,
		Routes:       append([]RouteConfig{}, node.Routes...),
	}
	for _, link := range t.links {
		for _, ep := range []*Endpoint{&link.A, &link.B} {
			if ep.Node != name {
				continue
			}
			config.Interfaces = append(config.Interfaces, InterfaceConfig{
				Name: ep.Ifname,
				Addr: ep.Addr,
			})
		}
	}
	return config
}

// PrimaryAddr returns the IP address (without prefix length) of the
// first addressed interface of the given node, or the empty string
// when the node has no address.
func (t *Topology) PrimaryAddr(name string) string {
	for _, link := range t.links {
		for _, ep := range []*Endpoint{&link.A, &link.B} {
			if ep.Node != name || ep.Addr == "" {
				continue
			}
			prefix, err := netip.ParsePrefix(ep.Addr)
			if err != nil {
				continue
			}
			return prefix.Addr().String()
		}
	}
	return ""
}

// TopologyBuilder declares the static shape of a network before any
// OS resource exists. The zero value is invalid; construct using
// [NewTopologyBuilder]. The builder is not safe for concurrent use.
type TopologyBuilder struct {
	// nodes maps node names to declarations.
	nodes map[string]*Node

	// order records node insertion order.
	order []string

	// links lists declared links.
	links []*Link
}

// NewTopologyBuilder creates a new, empty [TopologyBuilder].
func NewTopologyBuilder() *TopologyBuilder {
	return &TopologyBuilder{
		nodes: map[string]*Node{},
		order: []string{},
		links: []*Link{},
	}
}

// AddNode registers a node with the given name and role. It fails
// with [ErrDuplicateNode] when the name has already been used,
// regardless of the node's role.
func (b *TopologyBuilder) AddNode(node Node) error {
	if _, found := b.nodes[node.Name]; found {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, node.Name)
	}
	clone := node
	clone.Routes = append([]RouteConfig{}, node.Routes...)
	b.nodes[node.Name] = &clone
	b.order = append(b.order, node.Name)
	return nil
}

// AddHost registers a host node with an optional primary address in
// CIDR notation and an optional default-route next hop.
func (b *TopologyBuilder) AddHost(name, addr, defaultRoute string) error {
	return b.AddNode(Node{
		Name:         name,
		Role:         RoleHost,
		Addr:         addr,
		DefaultRoute: defaultRoute,
	})
}

// AddRouter registers a router node. Routers get IP forwarding
// enabled when the network starts and disabled when it stops. The
// optional routes are static routes to install at activation time.
func (b *TopologyBuilder) AddRouter(name string, routes ...RouteConfig) error {
	return b.AddNode(Node{
		Name:   name,
		Role:   RoleRouter,
		Routes: routes,
	})
}

// AddSwitch registers a switch node, i.e., an L2 segment.
func (b *TopologyBuilder) AddSwitch(name string) error {
	return b.AddNode(Node{
		Name: name,
		Role: RoleSwitch,
	})
}

// AddLink registers an undirected link between two previously added
// nodes. It fails with [ErrUnknownNode] when either endpoint has not
// been registered and with [ErrLinkToSelf] when both endpoints name
// the same node. Pass nil options to accept generated interface
// names and no addresses.
func (b *TopologyBuilder) AddLink(nodeA, nodeB string, options *LinkOptions) error {
	if _, found := b.nodes[nodeA]; !found {
		return fmt.Errorf("%w: %s", ErrUnknownNode, nodeA)
	}
	if _, found := b.nodes[nodeB]; !found {
		return fmt.Errorf("%w: %s", ErrUnknownNode, nodeB)
	}
	if nodeA == nodeB {
		return fmt.Errorf("%w: %s", ErrLinkToSelf, nodeA)
	}
	if options == nil {
		options = &LinkOptions{}
	}
	b.links = append(b.links, &Link{
		A: Endpoint{Node: nodeA, Ifname: options.IfnameA, Addr: options.AddrA},
		B: Endpoint{Node: nodeB, Ifname: options.IfnameB, Addr: options.AddrB},
	})
	return nil
}

// Build validates the declaration and returns an immutable
// [Topology]. On failure it returns a [ValidationError] that
// enumerates every violation found. Build never touches OS
// resources, so a failed Build leaves nothing to clean up.
func (b *TopologyBuilder) Build() (*Topology, error) {
	// deep copy so that further builder mutations cannot reach
	// into the topology we are about to validate
	nodes := make(map[string]*Node, len(b.nodes))
	for name, node := range b.nodes {
		clone := *node
		clone.Routes = append([]RouteConfig{}, node.Routes...)
		nodes[name] = &clone
	}
	order := append([]string{}, b.order...)
	links := make([]*Link, 0, len(b.links))
	for _, link := range b.links {
		clone := *link
		links = append(links, &clone)
	}

	assignInterfaceNames(nodes, links)
	attachNodeAddrs(nodes, order, links)

	if violations := validateTopology(nodes, order, links); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	return &Topology{nodes: nodes, order: order, links: links}, nil
}

// assignInterfaceNames generates "<node>-eth<N>" names for endpoints
// that do not carry an explicit interface name.
func assignInterfaceNames(nodes map[string]*Node, links []*Link) {
	used := map[string]map[string]bool{}
	mark := func(node, ifname string) {
		if used[node] == nil {
			used[node] = map[string]bool{}
		}
		used[node][ifname] = true
	}

	// explicit names win, so reserve them first
	for _, link := range links {
		for _, ep := range []*Endpoint{&link.A, &link.B} {
			if ep.Ifname != "" {
				mark(ep.Node, ep.Ifname)
			}
		}
	}

	counters := map[string]int{}
	for _, link := range links {
		for _, ep := range []*Endpoint{&link.A, &link.B} {
			if ep.Ifname != "" {
				continue
			}
			for {
				candidate := fmt.Sprintf("%s-eth%d", ep.Node, counters[ep.Node])
				counters[ep.Node]++
				if !used[ep.Node][candidate] {
					ep.Ifname = candidate
					mark(ep.Node, candidate)
					break
				}
			}
		}
	}
}

// attachNodeAddrs moves node-level primary addresses onto the first
// unaddressed link endpoint of each node.
func attachNodeAddrs(nodes map[string]*Node, order []string, links []*Link) {
	for _, name := range order {
		node := nodes[name]
		if node.Addr == "" || node.Role == RoleSwitch {
			continue
		}
		attachAddr(links, name, node.Addr)
	}
}

// attachAddr assigns addr to the first unaddressed endpoint
// belonging to the given node.
func attachAddr(links []*Link, name, addr string) {
	for _, link := range links {
		for _, ep := range []*Endpoint{&link.A, &link.B} {
			if ep.Node == name && ep.Addr == "" {
				ep.Addr = addr
				return
			}
		}
	}
}

// validateTopology checks every topology invariant and returns the
// violations it found. The checks are ordered so that the resulting
// message list is deterministic.
func validateTopology(nodes map[string]*Node, order []string, links []*Link) []error {
	var violations []error

	// per-node checks
	for _, name := range order {
		node := nodes[name]
		if name == "" {
			violations = append(violations, fmt.Errorf("node with empty name"))
			continue
		}
		if len(name) > maxNodeName {
			violations = append(violations, fmt.Errorf(
				"node %s: name longer than %d characters", name, maxNodeName))
		}
		if strings.ContainsAny(name, " \t\n/") {
			violations = append(violations, fmt.Errorf(
				"node %s: name contains whitespace or a slash", name))
		}
		switch node.Role {
		case RoleHost, RoleRouter, RoleSwitch:
		default:
			violations = append(violations, fmt.Errorf(
				"node %s: unknown role %q", name, node.Role))
		}
		if node.Addr != "" {
			if node.Role == RoleSwitch {
				violations = append(violations, fmt.Errorf(
					"switch %s: switches cannot carry addresses", name))
			} else if countEndpoints(links, name) <= 0 {
				violations = append(violations, fmt.Errorf(
					"node %s: declares address %s but has no link to carry it",
					name, node.Addr))
			}
			if _, err := netip.ParsePrefix(node.Addr); err != nil {
				violations = append(violations, fmt.Errorf(
					"node %s: invalid address %q", name, node.Addr))
			}
		}
		if node.DefaultRoute != "" {
			if _, err := netip.ParseAddr(node.DefaultRoute); err != nil {
				violations = append(violations, fmt.Errorf(
					"node %s: invalid default route %q", name, node.DefaultRoute))
			}
		}
		for _, route := range node.Routes {
			if _, err := netip.ParsePrefix(route.Prefix); err != nil {
				violations = append(violations, fmt.Errorf(
					"node %s: invalid route prefix %q", name, route.Prefix))
			}
			if _, err := netip.ParseAddr(route.NextHop); err != nil {
				violations = append(violations, fmt.Errorf(
					"node %s: invalid route next hop %q", name, route.NextHop))
			}
		}
	}

	// per-link checks
	ifaceUsers := map[string]int{}
	addrUsers := map[netip.Addr][]string{}
	for _, link := range links {
		if link.A.Node == link.B.Node {
			violations = append(violations, fmt.Errorf(
				"%w: %s", ErrLinkToSelf, link.A.Node))
		}
		for _, ep := range []*Endpoint{&link.A, &link.B} {
			node := nodes[ep.Node]
			if node == nil {
				violations = append(violations, fmt.Errorf(
					"%w: %s", ErrUnknownNode, ep.Node))
				continue
			}
			ifaceUsers[ep.Node+"/"+ep.Ifname]++
			if ep.Addr == "" {
				continue
			}
			if node.Role == RoleSwitch {
				violations = append(violations, fmt.Errorf(
					"switch %s: switch-side endpoint carries address %s",
					ep.Node, ep.Addr))
				continue
			}
			prefix, err := netip.ParsePrefix(ep.Addr)
			if err != nil {
				violations = append(violations, fmt.Errorf(
					"node %s: invalid endpoint address %q", ep.Node, ep.Addr))
				continue
			}
			addrUsers[prefix.Addr()] = append(addrUsers[prefix.Addr()], ep.Node+"/"+ep.Ifname)
		}
	}

	// an interface realized by more than one link either carries
	// conflicting addresses or cannot be realized at all
	var ifaceKeys []string
	for key, count := range ifaceUsers {
		if count > 1 {
			ifaceKeys = append(ifaceKeys, key)
		}
	}
	sort.Strings(ifaceKeys)
	for _, key := range ifaceKeys {
		violations = append(violations, fmt.Errorf(
			"interface %s is declared by %d links", key, ifaceUsers[key]))
	}

	// topology-wide duplicate addresses
	var dupAddrs []netip.Addr
	for addr, users := range addrUsers {
		if len(users) > 1 {
			dupAddrs = append(dupAddrs, addr)
		}
	}
	sort.Slice(dupAddrs, func(i, j int) bool {
		return dupAddrs[i].Less(dupAddrs[j])
	})
	for _, addr := range dupAddrs {
		users := addrUsers[addr]
		sort.Strings(users)
		violations = append(violations, fmt.Errorf(
			"address %s assigned to multiple interfaces: %s",
			addr, strings.Join(users, ", ")))
	}

	// subnet consistency: all addressed endpoints facing one switch
	// must share a single subnet
	for _, name := range order {
		if nodes[name].Role != RoleSwitch {
			continue
		}
		type member struct {
			node   string
			prefix netip.Prefix
		}
		var members []member
		for _, link := range links {
			var peer *Endpoint
			switch {
			case link.A.Node == name:
				peer = &link.B
			case link.B.Node == name:
				peer = &link.A
			default:
				continue
			}
			if peer.Addr == "" {
				continue
			}
			prefix, err := netip.ParsePrefix(peer.Addr)
			if err != nil {
				continue // already reported above
			}
			members = append(members, member{node: peer.Node, prefix: prefix.Masked()})
		}
		for i := 1; i < len(members); i++ {
			if members[i].prefix != members[0].prefix {
				violations = append(violations, fmt.Errorf(
					"segment %s mixes subnets: %s is in %s while %s is in %s",
					name, members[0].node, members[0].prefix,
					members[i].node, members[i].prefix))
				break
			}
		}
	}

	return violations
}

// countEndpoints returns the number of link endpoints belonging
// to the given node.
func countEndpoints(links []*Link, name string) int {
	var count int
	for _, link := range links {
		if link.A.Node == name {
			count++
		}
		if link.B.Node == name {
			count++
		}
	}
	return count
}
