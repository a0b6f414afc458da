package fileloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbview/dispatch/internal/config"
)

func TestLoadParsesWorkerDocument(t *testing.T) {
	doc := `
workers:
  - worker_type: geo-extractor
    content_types:
      - imagery
      - telemetry
  - worker_type: doc-indexer
    content_types:
      - documents
`
	path := filepath.Join(t.TempDir(), "workers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := NewFileLoader(path).Load(context.Background())
	require.NoError(t, err)

	require.Len(t, cfg.Workers, 2)
	assert.Equal(t, config.WorkerConfig{
		WorkerType:   "geo-extractor",
		ContentTypes: []string{"imagery", "telemetry"},
	}, cfg.Workers[0])
	assert.True(t, cfg.Workers[1].ConsumesContentType("documents"))
	assert.False(t, cfg.Workers[1].ConsumesContentType("imagery"))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewFileLoader(filepath.Join(t.TempDir(), "nope.yaml")).Load(context.Background())
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: [unclosed"), 0o600))

	_, err := NewFileLoader(path).Load(context.Background())
	assert.Error(t, err)
}
