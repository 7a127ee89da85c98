package util

import "fmt"

// Must unwraps a (value, error) pair, panicking on error. Reserved for
// initialization paths where the error is a programming mistake, such
// as compiling an embedded schema.
func Must[V any](v V, err error) V {
	if err != nil {
		panic(fmt.Errorf("util.Must: %w", err))
	}

	return v
}
