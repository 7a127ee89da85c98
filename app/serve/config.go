package serve

type Config struct {
	// Host is the interface the control server binds to.
	Host string

	// Port is the port the control server listens on.
	Port int

	// H2c enables cleartext http/2 upgrades on the control server.
	H2c bool
}
