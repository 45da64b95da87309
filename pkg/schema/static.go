package schema

import (
	"errors"
	"sync"
)

// StaticProvider serves the built-in dependency-focused module set: the
// slice of the OpenConfig-style models that actually declares cross-object
// references (ACL application, VLAN membership, routing policy usage).
// The same tree is returned for every known (vendor, os, version) tuple,
// which keeps the reference-map cache at a single entry.
type StaticProvider struct {
	once sync.Once
	root *Node
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

// GetSchema implements Provider.
func (p *StaticProvider) GetSchema(vendor, os, version string) (*Node, error) {
	if vendor == "" {
		return nil, &Error{Vendor: vendor, OS: os, Version: version, Err: errors.New("vendor tag required")}
	}
	p.once.Do(func() {
		p.root = dependencyFocusedSet()
	})
	return p.root, nil
}

// dependencyFocusedSet declares the built-in schema tree. Paths referenced
// by leafrefs here are what the dependency discoverer matches changed values
// against.
func dependencyFocusedSet() *Node {
	return Container("",
		Container("interfaces",
			List("interface", "name",
				Leaf("name"),
				Container("config",
					Leaf("name"),
					Leaf("description"),
					Leaf("mtu"),
					Leaf("enabled"),
				),
				Container("acl",
					LeafRef("ingress-acl-set", "/acl/acl-sets/acl-set/name"),
					LeafRef("egress-acl-set", "/acl/acl-sets/acl-set/name"),
				),
				Container("ethernet",
					Container("switched-vlan",
						Container("config",
							LeafRef("access-vlan", "/vlans/vlan/vlan-id"),
							LeafListRef("trunk-vlans", "/vlans/vlan/vlan-id"),
							LeafRef("native-vlan", "/vlans/vlan/vlan-id"),
						),
					),
				),
				Container("subinterfaces",
					List("subinterface", "index",
						Leaf("index"),
						Container("ipv4",
							Container("addresses",
								List("address", "ip",
									Leaf("ip"),
									Container("config",
										Leaf("ip"),
										Leaf("prefix-length"),
									),
								),
							),
						),
					),
				),
			),
		),
		Container("vlans",
			List("vlan", "vlan-id",
				Leaf("vlan-id"),
				Container("config",
					Leaf("name"),
					Leaf("status"),
				),
			),
		),
		Container("acl",
			Container("acl-sets",
				List("acl-set", "name",
					Leaf("name"),
					Leaf("type"),
					Container("acl-entries",
						List("acl-entry", "sequence-id",
							Leaf("sequence-id"),
							Container("config",
								Leaf("description"),
							),
							Container("ipv4",
								Container("config",
									Leaf("source-address"),
									Leaf("destination-address"),
									Leaf("protocol"),
								),
							),
							Container("actions",
								Container("config",
									Leaf("forwarding-action"),
									Leaf("log-action"),
								),
							),
						),
					),
				),
			),
		),
		Container("routing",
			Container("bgp",
				Container("global",
					Container("config",
						Leaf("as"),
						Leaf("router-id"),
					),
				),
				Container("neighbors",
					List("neighbor", "neighbor-address",
						Leaf("neighbor-address"),
						Container("config",
							Leaf("peer-as"),
							Leaf("description"),
						),
						Container("apply-policy",
							Container("config",
								LeafListRef("import-policy", "/routing/policy-definitions/policy-definition/name"),
								LeafListRef("export-policy", "/routing/policy-definitions/policy-definition/name"),
							),
						),
					),
				),
			),
			Container("policy-definitions",
				List("policy-definition", "name",
					Leaf("name"),
					Container("statements",
						List("statement", "name",
							Leaf("name"),
							Container("conditions",
								LeafRef("match-prefix-set", "/routing/defined-sets/prefix-sets/prefix-set/name"),
							),
							Container("actions",
								Leaf("policy-result"),
							),
						),
					),
				),
			),
			Container("defined-sets",
				Container("prefix-sets",
					List("prefix-set", "name",
						Leaf("name"),
						LeafList("prefixes"),
					),
				),
			),
		),
		Container("qos",
			List("service-policies", "name",
				Leaf("name"),
				Leaf("type"),
				LeafRef("target-interface", "/interfaces/interface/name"),
			),
		),
	)
}
