//go:build linux

package main

import "github.com/netlab-go/labnet"

// Addressing plan: three LANs with variable-length prefixes sized to
// their host-count requirements (62, 126, and 30 usable addresses)
// plus a /24 backbone joining the three routers.
const (
	lanAPrefix  = "20.10.172.128/26"
	lanAGateway = "20.10.172.129"
	hostA1Addr  = "20.10.172.130"
	hostA2Addr  = "20.10.172.131"

	lanBPrefix  = "20.10.172.0/25"
	lanBGateway = "20.10.172.1"
	hostB1Addr  = "20.10.172.2"
	hostB2Addr  = "20.10.172.3"

	lanCPrefix  = "20.10.172.192/27"
	lanCGateway = "20.10.172.193"
	hostC1Addr  = "20.10.172.194"
	hostC2Addr  = "20.10.172.195"

	backbonePrefix = "20.10.100.0/24"
	backboneA      = "20.10.100.1"
	backboneB      = "20.10.100.2"
	backboneC      = "20.10.100.3"
)

// newLayer3Topology declares the three-router topology: one switch
// and one gateway router per LAN, two hosts per LAN, and a fourth
// switch interconnecting the routers on the backbone.
func newLayer3Topology() (*labnet.Topology, error) {
	builder := labnet.NewTopologyBuilder()

	// routers: there is no routing protocol, so each router carries
	// static routes towards the two LANs it does not own
	labnet.Must0(builder.AddRouter("rA",
		labnet.RouteConfig{Prefix: lanBPrefix, NextHop: backboneB},
		labnet.RouteConfig{Prefix: lanCPrefix, NextHop: backboneC},
	))
	labnet.Must0(builder.AddRouter("rB",
		labnet.RouteConfig{Prefix: lanAPrefix, NextHop: backboneA},
		labnet.RouteConfig{Prefix: lanCPrefix, NextHop: backboneC},
	))
	labnet.Must0(builder.AddRouter("rC",
		labnet.RouteConfig{Prefix: lanAPrefix, NextHop: backboneA},
		labnet.RouteConfig{Prefix: lanBPrefix, NextHop: backboneB},
	))

	// one switch per LAN plus the router interconnect
	labnet.Must0(builder.AddSwitch("sA"))
	labnet.Must0(builder.AddSwitch("sB"))
	labnet.Must0(builder.AddSwitch("sC"))
	labnet.Must0(builder.AddSwitch("s4"))

	// hosts default-route through their LAN's router
	labnet.Must0(builder.AddHost("hA1", hostA1Addr+"/26", lanAGateway))
	labnet.Must0(builder.AddHost("hA2", hostA2Addr+"/26", lanAGateway))
	labnet.Must0(builder.AddHost("hB1", hostB1Addr+"/25", lanBGateway))
	labnet.Must0(builder.AddHost("hB2", hostB2Addr+"/25", lanBGateway))
	labnet.Must0(builder.AddHost("hC1", hostC1Addr+"/27", lanCGateway))
	labnet.Must0(builder.AddHost("hC2", hostC2Addr+"/27", lanCGateway))

	// backbone links carry the routers' interconnect addresses
	labnet.Must0(builder.AddLink("s4", "rA", &labnet.LinkOptions{
		IfnameB: "rA-eth1",
		AddrB:   backboneA + "/24",
	}))
	labnet.Must0(builder.AddLink("s4", "rB", &labnet.LinkOptions{
		IfnameB: "rB-eth1",
		AddrB:   backboneB + "/24",
	}))
	labnet.Must0(builder.AddLink("s4", "rC", &labnet.LinkOptions{
		IfnameB: "rC-eth1",
		AddrB:   backboneC + "/24",
	}))

	// LAN-facing router interfaces act as each LAN's gateway
	labnet.Must0(builder.AddLink("sA", "rA", &labnet.LinkOptions{
		IfnameB: "rA-eth0",
		AddrB:   lanAGateway + "/26",
	}))
	labnet.Must0(builder.AddLink("sB", "rB", &labnet.LinkOptions{
		IfnameB: "rB-eth0",
		AddrB:   lanBGateway + "/25",
	}))
	labnet.Must0(builder.AddLink("sC", "rC", &labnet.LinkOptions{
		IfnameB: "rC-eth0",
		AddrB:   lanCGateway + "/27",
	}))

	// host uplinks
	labnet.Must0(builder.AddLink("hA1", "sA", nil))
	labnet.Must0(builder.AddLink("hA2", "sA", nil))
	labnet.Must0(builder.AddLink("hB1", "sB", nil))
	labnet.Must0(builder.AddLink("hB2", "sB", nil))
	labnet.Must0(builder.AddLink("hC1", "sC", nil))
	labnet.Must0(builder.AddLink("hC2", "sC", nil))

	return builder.Build()
}
