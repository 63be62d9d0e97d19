package provision

import _ "embed"

// installScript is executed on the host when no container engine is found.
//
//go:embed scripts/install-docker.sh
var installScript []byte

// Remote layout for the proxy. Paths are relative to the SSH user's home
// directory.
const (
	ProxyDir         = "hackerrun/traefik"
	ProxyConfigPath  = ProxyDir + "/traefik.yml"
	ProxyComposePath = ProxyDir + "/docker-compose.yml"
	ProxyStorePath   = ProxyDir + "/acme.json"

	// PlaceholderEmail is written into the proxy configuration at provision
	// time and replaced with the operator's address on the first deploy.
	PlaceholderEmail = "placeholder@example.com"
)

// proxyConfig is the fixed-shape Traefik static configuration. HTTP is
// redirected to HTTPS and certificates come from Let's Encrypt via the
// http-01 challenge.
const proxyConfig = `entryPoints:
  web:
    address: ":80"
    http:
      redirections:
        entryPoint:
          to: websecure
          scheme: https
  websecure:
    address: ":443"

certificatesResolvers:
  letsencrypt:
    acme:
      email: ` + PlaceholderEmail + `
      storage: /etc/traefik/acme.json
      httpChallenge:
        entryPoint: web

providers:
  docker:
    exposedByDefault: false
    network: hackerrun

api:
  dashboard: false
`

// proxyCompose runs the proxy itself. The shared network is external; it is
// created once during provisioning and joined by every deployed stack.
const proxyCompose = `services:
  traefik:
    image: traefik:v3.1
    restart: unless-stopped
    ports:
      - "80:80"
      - "443:443"
    volumes:
      - /var/run/docker.sock:/var/run/docker.sock:ro
      - ./traefik.yml:/etc/traefik/traefik.yml:ro
      - ./acme.json:/etc/traefik/acme.json
    networks:
      - hackerrun

networks:
  hackerrun:
    external: true
`
