package models

import "net"

// DefaultServerHost keeps the facade on the loopback interface. It has no
// authentication, so binding wider is an explicit choice.
const DefaultServerHost = "127.0.0.1"

// ServerConfig holds settings for the local HTTP facade and process logging
type ServerConfig struct {
	Host        string `json:"host,omitzero" yaml:"host"`
	Port        string `json:"port,omitzero" yaml:"port"`
	Environment string `json:"environment,omitzero" yaml:"environment"`
	LogLevel    string `json:"log_level,omitzero" yaml:"log_level"`
}

// ListenAddr returns the host:port the facade binds to
func (s ServerConfig) ListenAddr() string {
	host := s.Host
	if host == "" {
		host = DefaultServerHost
	}
	return net.JoinHostPort(host, s.Port)
}
