// Package peers lists the other filter instances behind a Kubernetes
// Service, for cache_info() introspection only. It is read-only topology
// reporting: unlike the teacher's pkg/cluster, it does not broadcast
// invalidations or attempt cache coherence across peers.
package peers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Endpoint is one peer instance's address.
type Endpoint struct {
	Name string
	Host string
	Port int
}

// String renders an Endpoint as host:port, for the cache_info() peer
// list's human-readable form.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Lister lists the peer instances of one Kubernetes Service's Endpoints
// object, filtered to a named port.
type Lister struct {
	clientset kubernetes.Interface
	namespace string
	service   string
	portName  string
}

// New creates a Lister using in-cluster credentials, falling back to
// $HOME/.kube/config for local development, matching the teacher's
// pkg/cluster.NewKubernetesClient fallback order.
func New(namespace, service, portName string) (*Lister, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := filepath.Join(os.Getenv("HOME"), ".kube", "config")
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("peers: load kubernetes config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("peers: create kubernetes client: %w", err)
	}

	return NewWithClient(clientset, namespace, service, portName), nil
}

// NewWithClient builds a Lister over an already-constructed clientset, for
// tests driving a fake clientset.
func NewWithClient(clientset kubernetes.Interface, namespace, service, portName string) *Lister {
	return &Lister{clientset: clientset, namespace: namespace, service: service, portName: portName}
}

// Endpoints returns every ready address behind the configured Service,
// restricted to the configured port name.
func (l *Lister) Endpoints(ctx context.Context) ([]Endpoint, error) {
	eps, err := l.clientset.CoreV1().Endpoints(l.namespace).
		Get(ctx, l.service, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("peers: get endpoints %s/%s: %w", l.namespace, l.service, err)
	}

	var port int32
	var endpoints []Endpoint
	for _, subset := range eps.Subsets {
		for _, p := range subset.Ports {
			if p.Name == l.portName {
				port = p.Port
			}
		}
		if port == 0 {
			continue
		}
		for _, addr := range subset.Addresses {
			name := addr.IP
			if addr.TargetRef != nil {
				name = addr.TargetRef.Name
			}
			endpoints = append(endpoints, Endpoint{Name: name, Host: addr.IP, Port: int(port)})
		}
	}

	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i].Name < endpoints[j].Name })
	return endpoints, nil
}

// ListPeers implements adminapi.PeerLister: the host:port of every peer
// behind the configured Service.
func (l *Lister) ListPeers(ctx context.Context) ([]string, error) {
	endpoints, err := l.Endpoints(ctx)
	if err != nil {
		log.Error().Err(err).Msg("peers: listing endpoints")
		return nil, err
	}
	out := make([]string, len(endpoints))
	for i, e := range endpoints {
		out[i] = e.String()
	}
	return out, nil
}
