package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
addr: ":8080"
redis:
  addr: "localhost:6379"
database:
  driver: sqlite
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestMustLoad_Defaults(t *testing.T) {
	cfg := MustLoad(writeConfig(t, baseYAML))

	assert.Equal(t, DriverLocal, cfg.Queue.Driver)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 3, cfg.Archive.MaxRetries)
	assert.Equal(t, 2, cfg.Archive.Workers)
	assert.Zero(t, cfg.RowLimit)
}

func TestMustLoad_ArchiveRetries(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want int
	}{
		{name: "disabled", yaml: "archive:\n  max_retries: 0\n", want: 0},
		{name: "explicit", yaml: "archive:\n  max_retries: 5\n", want: 5},
		{name: "negative selects default", yaml: "archive:\n  max_retries: -1\n", want: 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := MustLoad(writeConfig(t, baseYAML+tc.yaml))
			assert.Equal(t, tc.want, cfg.Archive.MaxRetries)
		})
	}
}
