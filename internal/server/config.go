package server

import "fmt"

// HttpConfig configures the control server listener.
type HttpConfig struct {
	// Host is the interface to bind to.
	Host string

	// Port is the port to listen on.
	Port int

	// H2c enables cleartext http/2 upgrades.
	H2c bool
}

// Addr is the listen address in host:port form.
func (c HttpConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
