package frontend

import (
	"bytes"
	_ "embed"
	"html"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/forgo/negotiator/internal/handler"
	"github.com/forgo/negotiator/internal/model"
)

const (
	// IndexFile is the entry page of the publish directory
	IndexFile = "index.html"
	// APIPrefix paths never fall back to the entry page
	APIPrefix = "/v1/"
)

//go:embed static/index.html
var embeddedIndex []byte

// localHosts are the hostnames a developer's browser reports for a page
// served from the same machine
var localHosts = map[string]bool{
	"":          true,
	"localhost": true,
	"127.0.0.1": true,
	"0.0.0.0":   true,
	"::1":       true,
}

// IsLocalHost reports whether a browser hostname refers to the local machine
func IsLocalHost(hostname string) bool {
	h := strings.ToLower(strings.TrimSpace(hostname))
	h = strings.TrimSuffix(strings.TrimPrefix(h, "["), "]")
	return localHosts[h]
}

// ResolveAPIBase picks the API base URL for a page served from hostname:
// the local endpoint during development and the production endpoint
// everywhere else
func ResolveAPIBase(hostname, local, production string) string {
	if IsLocalHost(hostname) {
		return local
	}
	return production
}

// Config holds frontend serving settings
type Config struct {
	// Dir is the publish directory holding index.html. When it has no
	// index.html the embedded page is served instead.
	Dir           string
	LocalAPIURL   string
	ProductionURL string
	Logger        *slog.Logger
}

type site struct {
	cfg   Config
	files http.Handler
	index []byte
}

// Handler serves /config.json and the publish directory. Paths that do not
// name a file fall back to the entry page, which carries the resolved API
// base URL in a meta tag.
func Handler(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	h := &site{cfg: cfg, index: embeddedIndex}
	if cfg.Dir != "" {
		if page, err := os.ReadFile(filepath.Join(cfg.Dir, IndexFile)); err == nil {
			h.index = page
			h.files = http.FileServer(http.Dir(cfg.Dir))
		} else {
			cfg.Logger.Warn("frontend directory has no entry page, serving the built-in page",
				slog.String("dir", cfg.Dir),
				slog.String("error", err.Error()),
			)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /config.json", h.config)
	mux.HandleFunc("GET /", h.static)
	return mux
}

func (h *site) config(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	handler.WriteJSON(w, http.StatusOK, model.FrontendConfig{APIBaseURL: h.apiBase(r)})
}

func (h *site) static(w http.ResponseWriter, r *http.Request) {
	clean := path.Clean("/" + r.URL.Path)
	if strings.HasPrefix(clean, APIPrefix) {
		handler.WriteError(w, model.NewNotFoundError("route"))
		return
	}
	if clean != "/" && clean != "/"+IndexFile && h.files != nil && h.exists(clean) {
		h.files.ServeHTTP(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(InjectAPIBase(h.index, h.apiBase(r)))
}

// exists reports whether urlPath names a regular file in the publish
// directory. Any stat failure counts as missing so the page is served.
func (h *site) exists(urlPath string) bool {
	info, err := os.Stat(filepath.Join(h.cfg.Dir, filepath.FromSlash(urlPath)))
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// apiBase resolves the base URL for the browser that sent r. Without a
// configured production URL the page talks to the origin that served it.
func (h *site) apiBase(r *http.Request) string {
	production := h.cfg.ProductionURL
	if production == "" {
		production = requestOrigin(r)
	}
	return ResolveAPIBase(Hostname(r.Host), h.cfg.LocalAPIURL, production)
}

// Hostname strips the port from a Host header value
func Hostname(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme, _, _ = strings.Cut(proto, ",")
		scheme = strings.TrimSpace(scheme)
	}
	return scheme + "://" + r.Host
}

// InjectAPIBase adds a meta tag carrying the API base URL to an HTML page,
// before </head> when there is one
func InjectAPIBase(page []byte, apiBase string) []byte {
	tag := []byte(`<meta name="api-base-url" content="` + html.EscapeString(apiBase) + `">`)

	idx := bytes.Index(bytes.ToLower(page), []byte("</head>"))
	if idx < 0 {
		return append(append(tag, '\n'), page...)
	}

	out := make([]byte, 0, len(page)+len(tag)+1)
	out = append(out, page[:idx]...)
	out = append(out, tag...)
	out = append(out, '\n')
	out = append(out, page[idx:]...)
	return out
}
