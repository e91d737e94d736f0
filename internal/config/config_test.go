package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(10_000_000), cfg.Ingest.MaxPDFSizeBytes())
	assert.Equal(t, 2*time.Second, cfg.Ingest.EmbedRetryDelay())
	assert.Equal(t, 10*time.Second, cfg.Chat.SourcesTimeout())
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr())
}

func TestParseVectorBackend(t *testing.T) {
	tests := []struct {
		raw     string
		want    VectorBackend
		wantErr bool
	}{
		{raw: "pgvector", want: VectorBackendPGVector},
		{raw: " PGVector ", want: VectorBackendPGVector},
		{raw: "memory", want: VectorBackendMemory},
		{raw: "pinecone", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseVectorBackend(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedVectorBackend)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := map[string]func(*Config){
		"backend":     func(c *Config) { c.VectorStore.Backend = "chroma" },
		"pdf size":    func(c *Config) { c.Ingest.MaxPDFSize = "lots" },
		"doc cap":     func(c *Config) { c.Ingest.MaxDocumentsPerUser = 0 },
		"overlap":     func(c *Config) { c.Ingest.ChunkOverlap = c.Ingest.ChunkSize },
		"attempts":    func(c *Config) { c.Ingest.EmbedAttempts = 0 },
		"retrieval k": func(c *Config) { c.Chat.TopK = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := defaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadLayersFileEnvFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
[app]
port = 9090

[vector_store]
backend = "memory"

[ingest]
max_pdf_size = "20MB"
`), 0o644))
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("LLM_API_KEY=from-dotenv\n"), 0o644))

	t.Setenv("CONFIG_FILE", configPath)
	t.Setenv("ENV_FILE", envPath)
	t.Setenv("APP_HOST", "127.0.0.1")
	t.Setenv("CHAT_TOP_K", "6")
	t.Setenv("INGEST_CHUNK_SIZE", "800")
	t.Setenv("INGEST_CHUNK_OVERLAP", "100")
	t.Setenv("LLM_API_KEY", "")
	require.NoError(t, os.Unsetenv("LLM_API_KEY"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.HTTPAddr())
	assert.Equal(t, "memory", cfg.VectorStore.Backend)
	assert.Equal(t, int64(20_000_000), cfg.Ingest.MaxPDFSizeBytes())
	assert.Equal(t, "from-dotenv", cfg.LLM.APIKey)
	assert.Equal(t, 6, cfg.Chat.TopK)
	assert.Equal(t, 800, cfg.Ingest.ChunkSize)
	assert.Equal(t, 100, cfg.Ingest.ChunkOverlap)
}

func TestGetEnvAsIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("PDFCHAT_TEST_INT", "nope")
	assert.Equal(t, 7, getEnvAsInt("PDFCHAT_TEST_INT", 7))
	t.Setenv("PDFCHAT_TEST_INT", "12")
	assert.Equal(t, 12, getEnvAsInt("PDFCHAT_TEST_INT", 7))
}
