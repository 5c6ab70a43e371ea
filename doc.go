// Package labnet declares static network topologies and realizes
// them as real OS-level resources for lab and test purposes.
//
// You declare a topology with a [TopologyBuilder]: hosts, routers,
// and switches are nodes, and links connect them, optionally carrying
// interface names and addresses. Calling [TopologyBuilder.Build]
// validates the declaration as a whole and returns an immutable
// [Topology]; every invariant violation is reported at once and no
// OS resource is touched before validation passes.
//
// A [Topology] alone is inert. Hand it to [New] together with a
// [Backend] to obtain a [Network], which owns the realized
// resources: Start provisions everything and blocks until the
// network is ready, PingAll runs an all-pairs reachability probe
// across the declared hosts, and Stop releases every resource.
// Stop is idempotent and best effort, so it is always safe to
// defer it right after Start.
//
// The [Backend] interface is the boundary towards the operating
// system. The included [NetnsBackend] realizes nodes as Linux
// network namespaces, switches as bridges, and links as veth
// pairs; it requires root. Tests can substitute their own backend
// to exercise lifecycle logic without privileges.
//
// Routers are ordinary nodes wrapped by [WithForwarding], which
// enables IP forwarding once the node's interfaces are configured
// and disables it again at termination. There is no routing
// protocol: inter-segment reachability comes from default routes
// on hosts and static routes on routers.
package labnet
