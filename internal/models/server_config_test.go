package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerConfigListenAddr(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{name: "defaults to loopback", cfg: ServerConfig{Port: "8080"}, want: "127.0.0.1:8080"},
		{name: "explicit host", cfg: ServerConfig{Host: "0.0.0.0", Port: "9000"}, want: "0.0.0.0:9000"},
		{name: "ipv6 host", cfg: ServerConfig{Host: "::1", Port: "8080"}, want: "[::1]:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.ListenAddr())
		})
	}
}
