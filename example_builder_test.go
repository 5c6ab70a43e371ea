package labnet_test

import (
	"fmt"

	"github.com/netlab-go/labnet"
)

// This example declares and validates a small routed LAN without
// touching any OS resource.
func ExampleTopologyBuilder() {
	builder := labnet.NewTopologyBuilder()
	labnet.Must0(builder.AddRouter("r1"))
	labnet.Must0(builder.AddSwitch("s1"))
	labnet.Must0(builder.AddHost("h1", "10.0.0.2/24", "10.0.0.1"))
	labnet.Must0(builder.AddHost("h2", "10.0.0.3/24", "10.0.0.1"))
	labnet.Must0(builder.AddLink("s1", "r1", &labnet.LinkOptions{
		IfnameB: "r1-eth0",
		AddrB:   "10.0.0.1/24",
	}))
	labnet.Must0(builder.AddLink("h1", "s1", nil))
	labnet.Must0(builder.AddLink("h2", "s1", nil))

	topology, err := builder.Build()
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(len(topology.Nodes()), len(topology.Links()))
	// Output: 4 3
}
