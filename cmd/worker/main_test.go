package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_InvalidConfigurationExitsTwo(t *testing.T) {
	t.Setenv("AQI_PROFILE", "unknown_profile")

	assert.Equal(t, 2, run(context.Background(), ""))
}

func TestSplitZones(t *testing.T) {
	assert.Nil(t, splitZones(""))
	assert.Nil(t, splitZones(" , "))
	assert.Equal(t, []string{"gulmarg", "sonamarg"}, splitZones("gulmarg, sonamarg,"))
}
