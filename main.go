package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/pmartland/askpdf/internal/backend"
	"github.com/pmartland/askpdf/internal/chat"
	"github.com/pmartland/askpdf/internal/viewer"
)

//go:embed templates/*.html
var templateFS embed.FS

const configFileName = "askpdf.yaml"

// --- Config ---

const defaultBackendURL = "http://localhost:8000"

type Config struct {
	BackendURL string `yaml:"backend_url"`
	Addr       string `yaml:"addr"`
	LogLevel   string `yaml:"log_level,omitempty"`
}

func defaultConfig() Config {
	return Config{
		BackendURL: defaultBackendURL,
		Addr:       ":8080",
		LogLevel:   "info",
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnv overlays environment variables (and a .env file, if present) on
// top of the file config.
func applyEnv(cfg *Config) {
	_ = godotenv.Load()
	cfg.BackendURL = getenv("ASKPDF_BACKEND_URL", cfg.BackendURL)
	cfg.Addr = getenv("ASKPDF_ADDR", cfg.Addr)
	cfg.LogLevel = getenv("ASKPDF_LOG_LEVEL", cfg.LogLevel)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func writeExampleConfig(path string) error {
	data, err := yaml.Marshal(defaultConfig())
	if err != nil {
		return err
	}
	header := "# askpdf configuration\n# backend_url points at the PDF question-answering backend.\n\n"
	return os.WriteFile(path, []byte(header+string(data)), 0644)
}

// --- Upload limits ---

const maxUploadSize = 50 << 20 // 50MB, matching the backend's limit

// isPDF accepts a file by extension, falling back to the reported mime type
// since browsers are inconsistent about which one they fill in.
func isPDF(filename, contentType string) bool {
	if strings.ToLower(filepath.Ext(filename)) == ".pdf" {
		return true
	}
	return contentType == "application/pdf"
}

func uploadErrorMessage(err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return "Failed to upload PDF"
}

// --- App ---

// App owns the top-level mode: either no document is loaded and the upload
// page is shown, or one document is active and the viewer and chat panes are
// shown side by side. All fields are guarded by mu; handlers are the only
// writers, one event at a time.
type App struct {
	mu         sync.Mutex
	config     Config
	configFile string
	client     *backend.Client
	log        *logrus.Logger

	doc       *backend.DocumentInfo
	view      *viewer.Viewer
	chatState *chat.Chat
	docCtx    context.Context
	docCancel context.CancelFunc

	uploading bool
	uploadErr string
}

// SetDocument makes doc the active document: the viewer starts on page 1 and
// a fresh transcript is seeded. Any chat send still in flight for a previous
// document is cancelled and its transcript discarded.
func (app *App) SetDocument(doc *backend.DocumentInfo) {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.docCancel != nil {
		app.docCancel()
	}
	app.docCtx, app.docCancel = context.WithCancel(context.Background())
	app.doc = doc
	app.view = viewer.New(doc.FileURL, doc.NumPages)
	app.chatState = chat.New(doc.DocumentID, app.client, app.log)
	app.uploadErr = ""
}

// Reset returns to the no-document mode and clears any upload error. The
// transcript is scoped to the document, so it goes too.
func (app *App) Reset() {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.docCancel != nil {
		app.docCancel()
		app.docCancel = nil
		app.docCtx = nil
	}
	app.doc = nil
	app.view = nil
	app.chatState = nil
	app.uploadErr = ""
}

// CitationClick jumps the viewer to the cited page. Same bounds policy as
// the toolbar: out-of-range pages are ignored.
func (app *App) CitationClick(page int) {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.view != nil {
		app.view.SetPage(page)
	}
}

func (app *App) withViewer(f func(*viewer.Viewer)) {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.view != nil {
		f(app.view)
	}
}

// chatSession hands out the active transcript and its document-scoped
// context. Submit runs outside the app lock so a "new document" event can
// still be handled while a send is in flight.
func (app *App) chatSession() (*chat.Chat, context.Context) {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.chatState, app.docCtx
}

func (app *App) beginUpload() bool {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.uploading {
		return false
	}
	app.uploading = true
	app.uploadErr = ""
	return true
}

func (app *App) finishUpload(errMsg string) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.uploading = false
	app.uploadErr = errMsg
}

// --- Page data ---

type uploadPageData struct {
	Page      string
	Uploading bool
	Error     string
}

type documentPageData struct {
	Page        string
	Filename    string
	CurrentPage int
	TotalPages  int
	Zoom        int
	Scale       float64
	FrameURL    string
	Messages    []chat.Message
	Pending     bool
}

type aboutPageData struct {
	Page         string
	Config       Config
	ConfigSource string
	Health       string
	HealthErr    string
	Documents    []backend.DocumentInfo
	DocumentsErr string
}

// --- Main ---

func main() {
	initCfg := flag.Bool("init", false, "Write an example "+configFileName+" and exit")
	addr := flag.String("addr", "", "Override listen address (e.g. :9090)")
	flag.Usage = printUsage
	flag.Parse()

	if *initCfg {
		if err := writeExampleConfig(configFileName); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", configFileName)
		return
	}

	cfg, err := loadConfig(configFileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	applyEnv(&cfg)
	if *addr != "" {
		cfg.Addr = *addr
	}

	log := newLogger(cfg.LogLevel)
	client := backend.New(cfg.BackendURL, log)

	// Probe the backend once at startup. Not fatal on failure: the app must
	// stay usable and every later request surfaces its own error.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if _, err := client.Health(ctx); err != nil {
		log.Warnf("backend at %s not reachable: %v", cfg.BackendURL, err)
	} else {
		log.Infof("connected to backend at %s", cfg.BackendURL)
	}
	cancel()

	configFile, _ := filepath.Abs(configFileName)
	app := &App{config: cfg, configFile: configFile, client: client, log: log}
	serve(app)
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `askpdf - chat with a PDF through your browser

Usage:
  askpdf               Run using %s (or defaults if absent)
  askpdf -init         Create an example %s
  askpdf -addr :9090   Override listen address

Config file fields:
  backend_url   URL of the PDF chat backend (default: %s)
  addr          Listen address (default: :8080)
  log_level     debug, info, warn or error (default: info)

Environment overrides: ASKPDF_BACKEND_URL, ASKPDF_ADDR, ASKPDF_LOG_LEVEL
(a .env file in the working directory is read if present).

`, configFileName, configFileName, defaultBackendURL)
	flag.PrintDefaults()
}

// --- Server ---

func serve(app *App) {
	tmpl := template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))

	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		app.mu.Lock()
		defer app.mu.Unlock()

		if app.doc == nil {
			data := uploadPageData{
				Page:      "upload",
				Uploading: app.uploading,
				Error:     app.uploadErr,
			}
			tmpl.ExecuteTemplate(w, "upload.html", data)
			return
		}

		data := documentPageData{
			Page:        "document",
			Filename:    app.doc.Filename,
			CurrentPage: app.view.Page(),
			TotalPages:  app.view.TotalPages(),
			Zoom:        app.view.Zoom(),
			Scale:       app.view.Scale(),
			FrameURL:    app.view.FrameURL(app.client.BaseURL()),
			Messages:    app.chatState.Messages(),
			Pending:     app.chatState.Pending(),
		}
		tmpl.ExecuteTemplate(w, "document.html", data)
	})

	r.Post("/upload", func(w http.ResponseWriter, r *http.Request) {
		if !app.beginUpload() {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			app.finishUpload("File is too large or the form is invalid (max 50MB)")
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		file, header, err := r.FormFile("pdf")
		if err != nil {
			app.finishUpload("No file provided")
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		defer file.Close()
		if !isPDF(header.Filename, header.Header.Get("Content-Type")) {
			app.finishUpload("Only PDF files are supported")
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}

		doc, err := app.client.UploadPDF(r.Context(), header.Filename, file)
		if err != nil {
			app.finishUpload(uploadErrorMessage(err))
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}

		app.finishUpload("")
		app.SetDocument(doc)
		app.log.Infof("loaded %s (%d pages)", doc.Filename, doc.NumPages)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})

	r.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
		c, ctx := app.chatSession()
		if c != nil {
			c.Submit(ctx, r.FormValue("message"))
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})

	r.Post("/page/prev", func(w http.ResponseWriter, r *http.Request) {
		app.withViewer(func(v *viewer.Viewer) { v.Prev() })
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})

	r.Post("/page/next", func(w http.ResponseWriter, r *http.Request) {
		app.withViewer(func(v *viewer.Viewer) { v.Next() })
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})

	r.Post("/page/goto", func(w http.ResponseWriter, r *http.Request) {
		if n, err := strconv.Atoi(r.FormValue("page")); err == nil {
			app.withViewer(func(v *viewer.Viewer) { v.SetPage(n) })
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})

	r.Post("/zoom/in", func(w http.ResponseWriter, r *http.Request) {
		app.withViewer(func(v *viewer.Viewer) { v.ZoomIn() })
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})

	r.Post("/zoom/out", func(w http.ResponseWriter, r *http.Request) {
		app.withViewer(func(v *viewer.Viewer) { v.ZoomOut() })
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})

	r.Post("/cite", func(w http.ResponseWriter, r *http.Request) {
		if n, err := strconv.Atoi(r.FormValue("page")); err == nil {
			app.CitationClick(n)
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})

	r.Post("/new", func(w http.ResponseWriter, r *http.Request) {
		app.Reset()
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})

	r.Get("/about", func(w http.ResponseWriter, r *http.Request) {
		data := aboutPageData{
			Page:         "about",
			Config:       app.config,
			ConfigSource: app.configFile,
		}

		ctx, cancel := context.WithTimeout(r.Context(), backend.RequestTimeout)
		defer cancel()
		if payload, err := app.client.Health(ctx); err != nil {
			data.HealthErr = err.Error()
		} else {
			b, _ := json.MarshalIndent(payload, "", "  ")
			data.Health = string(b)
		}
		if docs, err := app.client.Documents(ctx); err != nil {
			data.DocumentsErr = err.Error()
		} else {
			data.Documents = docs
		}

		tmpl.ExecuteTemplate(w, "about.html", data)
	})

	app.log.Infof("askpdf serving on http://localhost%s", app.config.Addr)
	app.log.Infof("  backend: %s", app.config.BackendURL)
	app.log.Fatal(http.ListenAndServe(app.config.Addr, r))
}
