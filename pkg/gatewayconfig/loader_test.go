package gatewayconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
listeners:
  default:
    addr: ":8080"
upstreams:
  - name: origin
    addr: "http://127.0.0.1:9000"
    path: "/"
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gatekache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestNewLoader_LoadsAndValidates(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)

	l, err := NewLoader(path, false, 0)
	require.NoError(t, err)

	cfg := l.Config()
	require.NotNil(t, cfg)
	assert.Equal(t, ":8080", cfg.Listeners["default"].Addr)
	require.Len(t, cfg.Upstreams, 1)
	assert.Equal(t, "origin", cfg.Upstreams[0].Name)
}

func TestNewLoader_RejectsMissingUpstreams(t *testing.T) {
	path := writeTempConfig(t, `
listeners:
  default:
    addr: ":8080"
upstreams: []
`)
	_, err := NewLoader(path, false, 0)
	assert.Error(t, err)
}

func TestNewLoader_RejectsUnknownFields(t *testing.T) {
	path := writeTempConfig(t, minimalYAML+"\nbogus_field: true\n")
	_, err := NewLoader(path, false, 0)
	assert.Error(t, err)
}

func TestLoad_UnchangedFileSkipsReparse(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)
	l, err := NewLoader(path, false, 0)
	require.NoError(t, err)

	changed, err := l.Load()
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestWatch_ReloadsOnChangeAndNotifies(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)
	l, err := NewLoader(path, true, 20*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Watch(ctx)
	defer l.Close()

	updated := minimalYAML + "\napi:\n  port: 9090\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case <-l.Events:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload notification")
	}

	cfg := l.Config()
	require.NotNil(t, cfg.API)
	assert.Equal(t, 9090, cfg.API.Port)
}

func TestAPIConfig_GetPrefix(t *testing.T) {
	var a *APIConfig
	assert.Equal(t, "/api", a.GetPrefix())

	a = &APIConfig{}
	assert.Equal(t, "/api", a.GetPrefix())

	a = &APIConfig{Prefix: "/admin"}
	assert.Equal(t, "/admin", a.GetPrefix())
}
