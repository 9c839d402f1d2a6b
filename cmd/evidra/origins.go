package main

import (
	"net/url"
	"strings"
)

// originHosts turns CORS origins such as https://app.example.com into the
// host patterns the WebSocket handshake checks against.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			hosts = append(hosts, "*")
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			hosts = append(hosts, strings.TrimSuffix(o, "/"))
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}
