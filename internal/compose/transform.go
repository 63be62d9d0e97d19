package compose

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// SharedNetwork is the external network the reverse proxy and every
	// deployed service join so Traefik can reach the containers.
	SharedNetwork = "hackerrun"

	// DefaultPort is the container port Traefik forwards to unless the
	// operator picked another one.
	DefaultPort = "80"

	portLabelMarker = "loadbalancer.server.port="
)

// RoutingLabels returns the five Traefik labels that publish a service under
// the given domain, in their fixed order. The port binding starts at the
// default and is overridden separately.
func RoutingLabels(service, domain string) []string {
	return []string{
		"traefik.enable=true",
		fmt.Sprintf("traefik.http.routers.%s.rule=Host(`%s`)", service, domain),
		fmt.Sprintf("traefik.http.routers.%s.entrypoints=websecure", service),
		fmt.Sprintf("traefik.http.routers.%s.tls.certresolver=letsencrypt", service),
		fmt.Sprintf("traefik.http.services.%s.%s%s", service, portLabelMarker, DefaultPort),
	}
}

// InjectRoutingLabels attaches the routing label set for one service.
// Mapping-form labels are normalized to the sequence form first so the
// original pairs survive as "key=value" strings. A non-default port rewrites
// the port label in place rather than appending a second one. Repeated calls
// append a second label set; deduplication is deliberately not attempted.
func (d *Document) InjectRoutingLabels(service, domain, port string) error {
	svc, err := d.serviceNode(service)
	if err != nil {
		return err
	}
	labels := normalizeToSequence(svc, "labels", labelPair)
	for _, l := range RoutingLabels(service, domain) {
		labels.Content = append(labels.Content, scalarNode(l))
	}
	if port != "" && port != DefaultPort {
		overridePortLabel(labels, port)
	}
	return nil
}

// overridePortLabel rewrites the first label carrying a loadbalancer port
// binding. The label is located by substring so the service name in the key
// does not matter.
func overridePortLabel(labels *yaml.Node, port string) {
	for _, item := range labels.Content {
		idx := strings.Index(item.Value, portLabelMarker)
		if idx < 0 {
			continue
		}
		item.Value = item.Value[:idx+len(portLabelMarker)] + port
		return
	}
}

// AttachSharedNetwork declares the shared proxy network at the top level
// (external, managed outside this document) and joins every service to it.
// Calling it twice leaves the document unchanged.
func (d *Document) AttachSharedNetwork() error {
	svcs, err := d.servicesNode()
	if err != nil {
		return err
	}

	networks := mapValue(d.root, "networks")
	if networks == nil || networks.Kind != yaml.MappingNode {
		networks = mapSet(d.root, "networks", mappingNode())
	}
	if mapValue(networks, SharedNetwork) == nil {
		ext := mappingNode()
		ext.Content = append(ext.Content, scalarNode("external"),
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: "true"})
		mapSet(networks, SharedNetwork, ext)
	}

	for i := 1; i < len(svcs.Content); i += 2 {
		svc := svcs.Content[i]
		if svc.Kind != yaml.MappingNode {
			continue
		}
		seq := normalizeToSequence(svc, "networks", networkName)
		if !sequenceContains(seq, SharedNetwork) {
			seq.Content = append(seq.Content, scalarNode(SharedNetwork))
		}
	}
	return nil
}

// AttachEnvFile points every service at the single env file, overwriting any
// env_file value already present.
func (d *Document) AttachEnvFile(name string) error {
	svcs, err := d.servicesNode()
	if err != nil {
		return err
	}
	for i := 1; i < len(svcs.Content); i += 2 {
		svc := svcs.Content[i]
		if svc.Kind != yaml.MappingNode {
			continue
		}
		mapSet(svc, "env_file", sequenceNode(name))
	}
	return nil
}

// normalizeToSequence canonicalizes a service field that compose allows in
// either mapping or sequence form. Mappings are converted pair by pair in
// iteration order using entry; sequences are left untouched; a missing or
// unusable field becomes an empty sequence.
func normalizeToSequence(svc *yaml.Node, key string, entry func(k, v *yaml.Node) string) *yaml.Node {
	field := mapValue(svc, key)
	if field != nil && field.Kind == yaml.SequenceNode {
		return field
	}
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	if field != nil && field.Kind == yaml.MappingNode {
		for i := 0; i < len(field.Content)-1; i += 2 {
			seq.Content = append(seq.Content, scalarNode(entry(field.Content[i], field.Content[i+1])))
		}
	}
	return mapSet(svc, key, seq)
}

func labelPair(k, v *yaml.Node) string { return k.Value + "=" + v.Value }

// networkName keeps only the network's name; per-service network options
// (aliases and the like) are dropped by the normalization.
func networkName(k, _ *yaml.Node) string { return k.Value }

func sequenceContains(seq *yaml.Node, value string) bool {
	for _, item := range seq.Content {
		if item.Value == value {
			return true
		}
	}
	return false
}
