package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoolean(t *testing.T) {
	for _, s := range []string{"true", "True", "TRUE", "on", "On", "ON", "yes", "Yes", "YES", "1"} {
		assert.True(t, Boolean(s), "%s did not evaluate to true", s)
	}
	for _, s := range []string{"", "false", "False", "FALSE", "off", "Off", "OFF", "no", "No", "NO", "0"} {
		assert.False(t, Boolean(s), "%s did not evaluate to false", s)
	}
}

func TestIntervalValid(t *testing.T) {
	cases := map[string]time.Duration{
		"":     0,
		"1":    time.Second,
		"1s":   time.Second,
		"5m":   5 * time.Minute,
		"5M":   5 * time.Minute,
		"500s": 500 * time.Second,
		"007m": 7 * time.Minute,
	}
	for in, want := range cases {
		got, err := Interval(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}
}

func TestIntervalInvalid(t *testing.T) {
	_, err := Interval("1g")
	assert.Error(t, err)
	_, err = Interval("abc")
	assert.Error(t, err)
}

func TestBytesizeValid(t *testing.T) {
	cases := map[string]int64{
		"":   0,
		"1":  1,
		"1k": 1024,
		"1m": 1048576,
		"1g": 1073741824,
		"5g": 5368709120,
		"5G": 5368709120,
		"1t": 1099511627776,
	}
	for in, want := range cases {
		got, err := Bytesize(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}
}

func TestBytesizeInvalid(t *testing.T) {
	_, err := Bytesize("1s")
	assert.Error(t, err)
	_, err = Bytesize("g")
	assert.Error(t, err)
}
