package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heatline/internal/config"
)

func TestFileStoreUpload(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, "http://localhost:8080/files/")
	require.NoError(t, s.Upload(context.Background(), "p1/handover_protocol_file_1700000000000.pdf", strings.NewReader("%PDF"), "application/pdf"))

	data, err := os.ReadFile(filepath.Join(dir, "p1", "handover_protocol_file_1700000000000.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))
	assert.Equal(t, "http://localhost:8080/files/p1/handover_protocol_file_1700000000000.pdf",
		s.PublicURL("p1/handover_protocol_file_1700000000000.pdf"))
}

func TestFileStoreStaysInsideDir(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, "")
	require.NoError(t, s.Upload(context.Background(), "../../escape.txt", strings.NewReader("x"), ""))
	_, err := os.Stat(filepath.Join(dir, "escape.txt"))
	require.NoError(t, err)

	assert.Error(t, s.Upload(context.Background(), "", strings.NewReader("x"), ""))
	assert.True(t, strings.HasPrefix(s.PublicURL("p1/a.pdf"), "file://"))
}

func TestFileStoreHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewFileStore(t.TempDir(), "")
	assert.Error(t, s.Upload(ctx, "p1/a.pdf", strings.NewReader("x"), ""))
}

func TestS3PublicURL(t *testing.T) {
	s := &S3Store{bucket: "project_documents", region: "eu-central-1", prefix: "docs/"}
	assert.Equal(t, "https://project_documents.s3.eu-central-1.amazonaws.com/docs/p1/a%20b.pdf", s.PublicURL("p1/a b.pdf"))

	s.endpoint = "http://minio:9000"
	assert.Equal(t, "http://minio:9000/project_documents/docs/p1/a.pdf", s.PublicURL("p1/a.pdf"))

	s.publicBaseURL = "https://cdn.example.com"
	assert.Equal(t, "https://cdn.example.com/docs/p1/a.pdf", s.PublicURL("p1/a.pdf"))
}

func TestNewDefaultsToFileStore(t *testing.T) {
	ws := t.TempDir()
	st, err := New(context.Background(), config.Blobs{}, ws)
	require.NoError(t, err)
	fs, ok := st.(*FileStore)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(ws, ".heatline", "blobs"), fs.Dir)

	_, err = New(context.Background(), config.Blobs{Backend: "gcs"}, ws)
	assert.Error(t, err)
}
