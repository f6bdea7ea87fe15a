// shared/model/build_test.go
package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildConfigName(t *testing.T) {
	b := &Build{Defconfig: "defconfig"}
	assert.Equal(t, "defconfig", b.ConfigName())

	b.DefconfigFull = "defconfig+CONFIG_FOO"
	assert.Equal(t, "defconfig+CONFIG_FOO", b.ConfigName())
}

func TestIsValidArchitecture(t *testing.T) {
	for _, arch := range ValidArchitectures {
		assert.True(t, IsValidArchitecture(arch))
	}
	assert.False(t, IsValidArchitecture("sparc"))
	assert.False(t, IsValidArchitecture(""))
}

func TestJobName(t *testing.T) {
	j := &Job{Job: "next", Kernel: "next-20260830"}
	assert.Equal(t, "next-next-20260830", j.Name())
}
