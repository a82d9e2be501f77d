package gatewayconfig

import (
	"github.com/kachegate/gatekache/pkg/adminapi"
	"github.com/kachegate/gatekache/pkg/peers"
)

// BuildPeerLister constructs a peers.Lister from cfg, or returns nil if
// peer discovery is disabled or unconfigured.
func BuildPeerLister(cfg *ClusterConfig) (adminapi.PeerLister, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	portName := cfg.PortName
	if portName == "" {
		portName = "api"
	}
	return peers.New(cfg.Namespace, cfg.Service, portName)
}
