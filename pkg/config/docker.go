package config

import (
	"net/url"
	"os"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker returns true if the application is running inside a Docker
// container. Detection is based on the presence of /.dockerenv, which exists
// in all Docker containers. The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveClusterURL rewrites localhost cluster URLs to host.docker.internal
// when running inside a container, so a Kusto emulator listening on the host
// machine stays reachable. Any other host is returned unchanged.
func ResolveClusterURL(clusterURL string) string {
	if !IsRunningInDocker() {
		return clusterURL
	}

	u, err := url.Parse(clusterURL)
	if err != nil {
		return clusterURL
	}

	switch u.Hostname() {
	case "localhost", "127.0.0.1":
		host := "host.docker.internal"
		if port := u.Port(); port != "" {
			host += ":" + port
		}
		u.Host = host
		return u.String()
	}
	return clusterURL
}
