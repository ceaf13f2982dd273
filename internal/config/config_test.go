package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/cyciot/cyciot-app/internal/coach"
)

// isolate points HOME at an empty dir and disables the dotenv file so the
// developer's own settings never leak into a test
func isolate(t *testing.T) []string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	return []string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(isolate(t))
	require.NoError(t, err)

	assert.Equal(t, "SensorBLE", cfg.Device.Name)
	assert.Equal(t, "4fafc201-1fb5-459e-8fcc-c5c9c331914b", cfg.Device.ServiceUUID)
	assert.Equal(t, "beb5483e-36e1-4688-b7f5-ea07361b26a8", cfg.Device.CharacteristicUUID)
	assert.Equal(t, 10*time.Second, cfg.Device.ConnectTimeout)
	assert.False(t, cfg.Mock.Enabled)
	assert.Equal(t, 8099, cfg.Mock.Port)
	assert.Equal(t, "gemini-2.0-flash", cfg.Gemini.Model)
	assert.Equal(t, 30*time.Second, cfg.Analysis.Timeout)
	assert.Equal(t, "TURKISH", cfg.Analysis.Language)
	assert.Equal(t, coach.RebuildFromFresh, cfg.RebuildPolicy())
	assert.True(t, cfg.Speech.Enabled)
	assert.Equal(t, []string{"-v", "tr"}, cfg.SpeechArgs())
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	args := isolate(t)
	t.Setenv("CYCIOT_DEVICE_NAME", "BikeSensor")
	t.Setenv("CYCIOT_ANALYSIS_TIMEOUT", "45s")
	t.Setenv("CYCIOT_MOCK_ENABLED", "true")

	cfg, err := Load(args)
	require.NoError(t, err)
	assert.Equal(t, "BikeSensor", cfg.Device.Name)
	assert.Equal(t, 45*time.Second, cfg.Analysis.Timeout)
	assert.True(t, cfg.Mock.Enabled)
}

func TestLoad_GeminiKeyFallback(t *testing.T) {
	args := isolate(t)
	t.Setenv("GEMINI_API_KEY", "plain-key")

	cfg, err := Load(args)
	require.NoError(t, err)
	assert.Equal(t, "plain-key", cfg.Gemini.APIKey)

	t.Setenv("CYCIOT_GEMINI_API_KEY", "prefixed-key")
	cfg, err = Load(args)
	require.NoError(t, err)
	assert.Equal(t, "prefixed-key", cfg.Gemini.APIKey)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	args := isolate(t)
	t.Setenv("CYCIOT_DEVICE_NAME", "FromEnv")

	cfg, err := Load(append(args, "--device-name", "FromFlag", "--rebuild", "window-tail", "--speech=false", "--mock", "--mock-port", "9000"))
	require.NoError(t, err)
	assert.Equal(t, "FromFlag", cfg.Device.Name)
	assert.Equal(t, coach.RebuildFromWindowTail, cfg.RebuildPolicy())
	assert.False(t, cfg.Speech.Enabled)
	assert.True(t, cfg.Mock.Enabled)
	assert.Equal(t, 9000, cfg.Mock.Port)
}

func TestLoad_ConfigFile(t *testing.T) {
	args := isolate(t)
	path := writeFile(t, "config.yaml", `
device:
  name: FileSensor
analysis:
  language: english
  timeout: 12s
speech:
  args: "-v en -s 150"
`)
	t.Setenv("CYCIOT_ANALYSIS_LANGUAGE", "german")

	cfg, err := Load(append(args, "--config", path))
	require.NoError(t, err)
	assert.Equal(t, "FileSensor", cfg.Device.Name)
	assert.Equal(t, 12*time.Second, cfg.Analysis.Timeout)
	// environment wins over the file
	assert.Equal(t, "german", cfg.Analysis.Language)
	assert.Equal(t, []string{"-v", "en", "-s", "150"}, cfg.SpeechArgs())
}

func TestLoad_HomeConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, DefaultDirName), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, DefaultDirName, "config.yaml"), []byte("mock:\n  port: 9100\n"), 0o600))

	cfg, err := Load([]string{"--env-file", ""})
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Mock.Port)
}

func TestLoad_DotEnvFile(t *testing.T) {
	args := []string{"--env-file", writeFile(t, "test.env", "CYCIOT_GEMINI_MODEL=gemini-from-dotenv\n")}
	t.Setenv("HOME", t.TempDir())
	t.Cleanup(func() { _ = os.Unsetenv("CYCIOT_GEMINI_MODEL") })

	cfg, err := Load(args)
	require.NoError(t, err)
	assert.Equal(t, "gemini-from-dotenv", cfg.Gemini.Model)
}

func TestLoad_Errors(t *testing.T) {
	args := isolate(t)

	_, err := Load(append(args, "--rebuild", "newest"))
	assert.Error(t, err)

	_, err = Load(append(args, "--config", filepath.Join(t.TempDir(), "nope.yaml")))
	assert.Error(t, err)

	_, err = Load(append(args, "--no-such-flag"))
	assert.Error(t, err)

	_, err = Load(append(args, "--mock", "--mock-port", "70000"))
	assert.Error(t, err)
}
