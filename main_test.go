package main

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmartland/askpdf/internal/backend"
	"github.com/pmartland/askpdf/internal/chat"
)

func newTestApp() *App {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &App{
		config: defaultConfig(),
		client: backend.New("http://localhost:8000", log),
		log:    log,
	}
}

func testDoc(id string, pages int) *backend.DocumentInfo {
	return &backend.DocumentInfo{
		DocumentID: id,
		Filename:   id + ".pdf",
		NumPages:   pages,
		FileURL:    "/files/" + id + ".pdf",
	}
}

func TestSetDocumentStartsAtPageOne(t *testing.T) {
	app := newTestApp()
	app.SetDocument(testDoc("doc-1", 10))

	require.NotNil(t, app.doc)
	require.NotNil(t, app.view)
	require.NotNil(t, app.chatState)
	assert.Equal(t, 1, app.view.Page())
	assert.Equal(t, 10, app.view.TotalPages())
	assert.Equal(t, "doc-1", app.chatState.DocumentID())

	msgs := app.chatState.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.Greeting, msgs[0].Content)
}

func TestCitationClickBounds(t *testing.T) {
	app := newTestApp()
	app.SetDocument(testDoc("doc-1", 10))

	app.CitationClick(7)
	assert.Equal(t, 7, app.view.Page())

	app.CitationClick(42)
	assert.Equal(t, 7, app.view.Page(), "out-of-range citation is ignored")

	app.CitationClick(0)
	assert.Equal(t, 7, app.view.Page())
}

func TestCitationClickWithoutDocument(t *testing.T) {
	app := newTestApp()
	app.CitationClick(3) // must not panic
	assert.Nil(t, app.view)
}

func TestResetClearsState(t *testing.T) {
	app := newTestApp()
	app.SetDocument(testDoc("doc-1", 10))
	app.CitationClick(5)
	app.finishUpload("previous error")

	app.Reset()

	assert.Nil(t, app.doc)
	assert.Nil(t, app.view)
	assert.Nil(t, app.chatState)
	assert.Empty(t, app.uploadErr)
}

func TestResetCancelsDocumentContext(t *testing.T) {
	app := newTestApp()
	app.SetDocument(testDoc("doc-1", 10))
	ctx := app.docCtx
	require.NotNil(t, ctx)

	app.Reset()

	select {
	case <-ctx.Done():
	default:
		t.Fatal("document context not cancelled on reset")
	}
}

func TestNewDocumentReplacesOldState(t *testing.T) {
	app := newTestApp()
	app.SetDocument(testDoc("doc-a", 10))
	app.CitationClick(7)
	oldCtx := app.docCtx

	app.SetDocument(testDoc("doc-b", 4))

	assert.Equal(t, 1, app.view.Page(), "page resets for the new document")
	assert.Equal(t, 4, app.view.TotalPages())
	assert.Equal(t, "doc-b", app.chatState.DocumentID())
	assert.Len(t, app.chatState.Messages(), 1, "transcript is scoped to the document")

	select {
	case <-oldCtx.Done():
	default:
		t.Fatal("previous document context not cancelled")
	}
}

func TestBeginUploadGuard(t *testing.T) {
	app := newTestApp()

	assert.True(t, app.beginUpload())
	assert.False(t, app.beginUpload(), "second upload while one is in flight is rejected")

	app.finishUpload("")
	assert.True(t, app.beginUpload())
}

func TestFinishUploadKeepsError(t *testing.T) {
	app := newTestApp()
	app.beginUpload()
	app.finishUpload("backend says no")

	assert.False(t, app.uploading)
	assert.Equal(t, "backend says no", app.uploadErr)
}

func TestIsPDF(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		want        bool
	}{
		{"pdf extension", "report.pdf", "", true},
		{"uppercase extension", "REPORT.PDF", "application/octet-stream", true},
		{"mime type only", "upload", "application/pdf", true},
		{"word document", "report.docx", "application/msword", false},
		{"no hints", "file", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isPDF(tt.filename, tt.contentType))
		})
	}
}

func TestUploadErrorMessage(t *testing.T) {
	assert.Equal(t, "file too big", uploadErrorMessage(&backend.APIError{Message: "file too big"}))
	assert.Equal(t, "Failed to upload PDF", uploadErrorMessage(errors.New("something else")))
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig("does-not-exist.yaml")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("ASKPDF_BACKEND_URL", "http://backend.test:9000")
	t.Setenv("ASKPDF_ADDR", ":9999")

	cfg := defaultConfig()
	applyEnv(&cfg)

	assert.Equal(t, "http://backend.test:9000", cfg.BackendURL)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
}
