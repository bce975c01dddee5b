package nodes

import (
	"context"
	"errors"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/graph"
	"github.com/ragflow/agentcore/mcpclient"
)

// DiscoverServices calls MCP discovery and populates discovered_services.
// Registry unavailability only fails the request when tools are actually
// required downstream; since that isn't known yet at this point in the
// graph, a failed discovery is recorded and analyze_request decides whether
// it can still proceed without tools (§4.6.2).
func DiscoverServices(d *Deps) graph.NodeFunc[agent.State] {
	return func(ctx context.Context, state agent.State) graph.NodeResult[agent.State] {
		services, err := d.MCP.Discover(ctx)
		if err != nil {
			var unavailable *mcpclient.RegistryUnavailable
			delta := agent.State{
				RegistryUnreachable: errors.As(err, &unavailable),
				ServicesDiscovered:  true,
				DiscoveredServices:  map[string]agent.ServiceDescriptor{},
				LastErrorKind:       agent.ErrorKindTransientNetwork,
			}
			return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("analyze_request")}
		}

		delta := agent.State{
			ServicesDiscovered: true,
			DiscoveredServices: services,
		}
		return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("analyze_request")}
	}
}
