package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPresetAcceptsKnownRegisters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preset.yaml")
	require.NoError(t, os.WriteFile(path, []byte("trig_delay: 30\nacp_per_arp: 450\n"), 0o644))

	preset, err := LoadPreset(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(30), preset["trig_delay"])
	assert.Equal(t, uint32(450), preset["acp_per_arp"])
}

func TestLoadPresetRejectsUnknownRegister(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preset.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not_a_real_register: 1\n"), 0o644))

	_, err := LoadPreset(path)
	assert.Error(t, err)
}
