// Package config manages user-level settings stored at
// ~/.security-controls/config.yaml. Every key can be overridden with a
// SECURITY_CONTROLS_ environment variable (dots become underscores), for
// example SECURITY_CONTROLS_NETWORK_TIMEOUT=5s.
package config
