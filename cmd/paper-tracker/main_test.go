package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-tracker/pkg/types"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 2, exitCode(&exitError{code: 2}))
	assert.Equal(t, 130, exitCode(&exitError{code: 130}))
	assert.Equal(t, "exit status 2", (&exitError{code: 2}).Error())
	assert.Equal(t, "bad key", (&exitError{code: 1, err: errors.New("bad key")}).Error())
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "****", maskSecret("short"))
	assert.Equal(t, "****wxyz", maskSecret("sk-abcdefghijklmnopqrstuvwxyz"))

	c := types.DefaultConfig()
	c.LLM.APIKey = "sk-abcdefghijklmnopqrstuvwxyz"
	m := masked(c)
	assert.Equal(t, "****wxyz", m.LLM.APIKey)
	assert.Equal(t, "sk-abcdefghijklmnopqrstuvwxyz", c.LLM.APIKey, "original untouched")
}

// The YAML written by config init must load back to the defaults through
// viper, durations included.
func TestDefaultConfigRoundTripsThroughViper(t *testing.T) {
	data, err := yaml.Marshal(types.DefaultConfig())
	require.NoError(t, err)

	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewReader(data)))

	var got types.Config
	require.NoError(t, v.Unmarshal(&got))
	assert.Equal(t, types.DefaultConfig(), got)
	assert.Equal(t, 120*time.Second, got.LLM.Timeout)
	assert.Equal(t, 2*time.Second, got.Classic.RequestDelay)
}

func TestSearchParams(t *testing.T) {
	saved := cfg
	defer func() { cfg = saved }()

	cfg = types.DefaultConfig()
	p := searchParams(false)
	assert.Equal(t, 7, p.Days)
	assert.False(t, p.Classic)

	cfg.Classic.UseScholarAPI = true
	p = searchParams(true)
	assert.True(t, p.Classic)
	assert.True(t, p.CitationFilter)
	assert.Equal(t, 3, p.YearsBack)
	assert.Equal(t, 10, p.MinCitations)
	assert.Equal(t, 5, p.MinInfluential)
	assert.Zero(t, p.Days)
}
