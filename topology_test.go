package labnet

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"
)

func TestTopologyBuilder(t *testing.T) {
	t.Run("AddNode", func(t *testing.T) {
		t.Run("we cannot add the same name twice", func(t *testing.T) {
			builder := NewTopologyBuilder()
			if err := builder.AddHost("h1", "", ""); err != nil {
				t.Fatal(err)
			}

			// a duplicate fails regardless of the role
			err := builder.AddSwitch("h1")
			if !errors.Is(err, ErrDuplicateNode) {
				t.Fatal("not the error we expected", err)
			}
		})

		t.Run("duplicates fail also after a successful build", func(t *testing.T) {
			builder := NewTopologyBuilder()
			if err := builder.AddHost("h1", "", ""); err != nil {
				t.Fatal(err)
			}
			if _, err := builder.Build(); err != nil {
				t.Fatal(err)
			}
			err := builder.AddHost("h1", "", "")
			if !errors.Is(err, ErrDuplicateNode) {
				t.Fatal("not the error we expected", err)
			}
		})
	})

	t.Run("AddLink", func(t *testing.T) {
		t.Run("unknown endpoints fail", func(t *testing.T) {
			builder := NewTopologyBuilder()
			if err := builder.AddHost("h1", "", ""); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddLink("h1", "nonesuch", nil); !errors.Is(err, ErrUnknownNode) {
				t.Fatal("not the error we expected", err)
			}
			if err := builder.AddLink("nonesuch", "h1", nil); !errors.Is(err, ErrUnknownNode) {
				t.Fatal("not the error we expected", err)
			}
		})

		t.Run("linking a node to itself fails", func(t *testing.T) {
			builder := NewTopologyBuilder()
			if err := builder.AddHost("h1", "", ""); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddLink("h1", "h1", nil); !errors.Is(err, ErrLinkToSelf) {
				t.Fatal("not the error we expected", err)
			}
		})
	})

	t.Run("Build", func(t *testing.T) {
		t.Run("a consistent LAN builds and gets generated interface names", func(t *testing.T) {
			builder := NewTopologyBuilder()
			if err := builder.AddSwitch("s1"); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddHost("h1", "10.0.0.1/24", ""); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddHost("h2", "10.0.0.2/24", ""); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddLink("h1", "s1", nil); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddLink("h2", "s1", nil); err != nil {
				t.Fatal(err)
			}
			topology, err := builder.Build()
			if err != nil {
				t.Fatal(err)
			}
			expect := &NodeConfig{
				Interfaces: []InterfaceConfig{{
					Name: "h1-eth0",
					Addr: "10.0.0.1/24",
				}},
				Routes: []RouteConfig{},
			}
			if diff := cmp.Diff(expect, topology.ConfigFor("h1")); diff != "" {
				t.Fatal(diff)
			}
			if addr := topology.PrimaryAddr("h2"); addr != "10.0.0.2" {
				t.Fatal("unexpected primary address", addr)
			}
		})

		t.Run("explicit interface names are reserved before generation", func(t *testing.T) {
			builder := NewTopologyBuilder()
			if err := builder.AddRouter("r1"); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddSwitch("s1"); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddSwitch("s2"); err != nil {
				t.Fatal(err)
			}
			// the first link takes the name a later generated name
			// would otherwise produce
			if err := builder.AddLink("s1", "r1", &LinkOptions{IfnameB: "r1-eth0"}); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddLink("s2", "r1", nil); err != nil {
				t.Fatal(err)
			}
			topology, err := builder.Build()
			if err != nil {
				t.Fatal(err)
			}
			var names []string
			for _, iface := range topology.ConfigFor("r1").Interfaces {
				names = append(names, iface.Name)
			}
			if diff := cmp.Diff([]string{"r1-eth0", "r1-eth1"}, names); diff != "" {
				t.Fatal(diff)
			}
		})

		t.Run("mixed subnets on one segment fail validation", func(t *testing.T) {
			builder := NewTopologyBuilder()
			if err := builder.AddSwitch("s1"); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddHost("h1", "10.0.0.1/24", ""); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddHost("h2", "10.0.1.2/24", ""); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddLink("h1", "s1", nil); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddLink("h2", "s1", nil); err != nil {
				t.Fatal(err)
			}
			_, err := builder.Build()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatal("not the error we expected", err)
			}
			if !strings.Contains(verr.Error(), "mixes subnets") {
				t.Fatal("unexpected violation", verr)
			}
		})

		t.Run("prefix length differences also break a segment", func(t *testing.T) {
			builder := NewTopologyBuilder()
			if err := builder.AddSwitch("s1"); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddHost("h1", "10.0.0.1/24", ""); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddHost("h2", "10.0.0.2/25", ""); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddLink("h1", "s1", nil); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddLink("h2", "s1", nil); err != nil {
				t.Fatal(err)
			}
			if _, err := builder.Build(); err == nil {
				t.Fatal("expected a validation error")
			}
		})

		t.Run("duplicate addresses fail validation", func(t *testing.T) {
			builder := NewTopologyBuilder()
			if err := builder.AddSwitch("s1"); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddHost("h1", "10.0.0.1/24", ""); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddHost("h2", "10.0.0.1/24", ""); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddLink("h1", "s1", nil); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddLink("h2", "s1", nil); err != nil {
				t.Fatal(err)
			}
			_, err := builder.Build()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatal("not the error we expected", err)
			}
			if !strings.Contains(verr.Error(), "assigned to multiple interfaces") {
				t.Fatal("unexpected violation", verr)
			}
		})

		t.Run("addresses on switch endpoints fail validation", func(t *testing.T) {
			builder := NewTopologyBuilder()
			if err := builder.AddSwitch("s1"); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddHost("h1", "", ""); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddLink("s1", "h1", &LinkOptions{AddrA: "10.0.0.1/24"}); err != nil {
				t.Fatal(err)
			}
			if _, err := builder.Build(); err == nil {
				t.Fatal("expected a validation error")
			}
		})

		t.Run("all violations are reported at once", func(t *testing.T) {
			builder := NewTopologyBuilder()
			if err := builder.AddSwitch("s1"); err != nil {
				t.Fatal(err)
			}
			// bogus address and no link to carry it
			if err := builder.AddHost("h1", "not-an-address", ""); err != nil {
				t.Fatal(err)
			}
			// bogus default route
			if err := builder.AddHost("h2", "", "not-an-ip"); err != nil {
				t.Fatal(err)
			}
			_, err := builder.Build()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatal("not the error we expected", err)
			}
			if len(verr.Violations) < 3 {
				t.Fatal("expected at least three violations, got", verr.Violations)
			}
		})

		t.Run("overlong node names fail validation", func(t *testing.T) {
			builder := NewTopologyBuilder()
			if err := builder.AddHost("averylonghostname", "", ""); err != nil {
				t.Fatal(err)
			}
			if _, err := builder.Build(); err == nil {
				t.Fatal("expected a validation error")
			}
		})

		t.Run("further builder mutations do not leak into a built topology", func(t *testing.T) {
			builder := NewTopologyBuilder()
			if err := builder.AddHost("h1", "", ""); err != nil {
				t.Fatal(err)
			}
			topology, err := builder.Build()
			if err != nil {
				t.Fatal(err)
			}
			if err := builder.AddHost("h2", "", ""); err != nil {
				t.Fatal(err)
			}
			if topology.Node("h2") != nil {
				t.Fatal("the built topology should not see h2")
			}
		})
	})
}

func TestValidateTopology(t *testing.T) {
	t.Run("dangling link endpoints are violations", func(t *testing.T) {
		// the builder prevents dangling references, but validation
		// must still catch them for topologies assembled by hand
		nodes := map[string]*Node{
			"h1": {Name: "h1", Role: RoleHost},
		}
		links := []*Link{{
			A: Endpoint{Node: "h1", Ifname: "h1-eth0"},
			B: Endpoint{Node: "ghost", Ifname: "ghost-eth0"},
		}}
		violations := validateTopology(nodes, []string{"h1"}, links)
		if len(violations) != 1 {
			t.Fatal("expected a single violation, got", violations)
		}
		if !errors.Is(violations[0], ErrUnknownNode) {
			t.Fatal("not the error we expected", violations[0])
		}
	})

	t.Run("an interface declared by two links is a violation", func(t *testing.T) {
		nodes := map[string]*Node{
			"r1": {Name: "r1", Role: RoleRouter},
			"s1": {Name: "s1", Role: RoleSwitch},
			"s2": {Name: "s2", Role: RoleSwitch},
		}
		links := []*Link{
			{
				A: Endpoint{Node: "s1", Ifname: "s1-eth0"},
				B: Endpoint{Node: "r1", Ifname: "r1-eth0", Addr: "10.0.0.1/24"},
			},
			{
				A: Endpoint{Node: "s2", Ifname: "s2-eth0"},
				B: Endpoint{Node: "r1", Ifname: "r1-eth0", Addr: "10.0.1.1/24"},
			},
		}
		violations := validateTopology(nodes, []string{"r1", "s1", "s2"}, links)
		var found bool
		for _, violation := range violations {
			found = found || strings.Contains(violation.Error(), "declared by 2 links")
		}
		if !found {
			t.Fatal("expected an interface conflict violation, got", violations)
		}
	})
}

func TestBuilderProperties(t *testing.T) {
	nameGen := rapid.StringMatching(`[a-z][a-z0-9]{0,4}`)

	t.Run("adding an already-seen name always fails", rapid.MakeCheck(func(t *rapid.T) {
		names := rapid.SliceOfN(nameGen, 1, 16).Draw(t, "names")
		builder := NewTopologyBuilder()
		seen := map[string]bool{}
		for _, name := range names {
			err := builder.AddHost(name, "", "")
			if seen[name] && !errors.Is(err, ErrDuplicateNode) {
				t.Fatalf("expected ErrDuplicateNode for %q, got %v", name, err)
			}
			if !seen[name] && err != nil {
				t.Fatalf("unexpected error for fresh name %q: %v", name, err)
			}
			seen[name] = true
		}
	}))

	t.Run("a star topology always builds and resolves", rapid.MakeCheck(func(t *rapid.T) {
		hostCount := rapid.IntRange(1, 60).Draw(t, "hostCount")
		builder := NewTopologyBuilder()
		if err := builder.AddSwitch("s1"); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < hostCount; i++ {
			name := fmt.Sprintf("h%d", i)
			addr := fmt.Sprintf("10.0.0.%d/24", i+1)
			if err := builder.AddHost(name, addr, ""); err != nil {
				t.Fatal(err)
			}
			if err := builder.AddLink(name, "s1", nil); err != nil {
				t.Fatal(err)
			}
		}
		topology, err := builder.Build()
		if err != nil {
			t.Fatal(err)
		}
		for _, link := range topology.Links() {
			if topology.Node(link.A.Node) == nil || topology.Node(link.B.Node) == nil {
				t.Fatalf("dangling endpoint in link %+v", link)
			}
		}
	}))
}
