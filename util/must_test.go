package util_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pyscope/pyscope/util"
)

func TestMust_ReturnsValue(t *testing.T) {
	value := util.Must(42, nil)
	assert.Equal(t, 42, value)
}

func TestMust_PanicsOnError(t *testing.T) {
	assert.Panics(t, func() {
		util.Must("", errors.New("boom"))
	})
}
