// Package web serves the operator page, the websocket hub and persisted topic data.
package web

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/tribeca/internal/storage"
)

const (
	defaultDataLimit = 100
	maxDataLimit     = 10000
	dataReadTimeout  = 5 * time.Second
)

// Server exposes the HTML UI, the websocket endpoint and the data endpoint.
type Server struct {
	Addr string
	Hub  http.Handler
	Data map[string]storage.RawLoader

	l *zap.Logger
}

// NewServer creates a new web server instance. data maps topic names to their persisted rows.
func NewServer(l *zap.Logger, addr string, hub http.Handler, data map[string]storage.RawLoader) *Server {
	return &Server{Addr: addr, Hub: hub, Data: data, l: l.With(zap.String("component", "web"))}
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("/ws", s.Hub)
	mux.HandleFunc("GET /data/{topic}", s.handleData)
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.l.Info("listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "web server")
	}
	return nil
}

// StartWithAutoTLS serves HTTPS with ACME certificates for domains. A plain HTTP server on :80
// answers the HTTP-01 challenges and redirects everything else.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if len(domains) == 0 {
		return errors.New("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			s.l.Warn("acme server shutdown", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil {
			s.l.Warn("https server shutdown", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Error("acme server", zap.Error(err))
		}
	}()

	s.l.Info("listening with automatic TLS", zap.String("addr", s.Addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "https server")
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	topic := r.PathValue("topic")
	loader, ok := s.Data[topic]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown topic %q", topic), http.StatusNotFound)
		return
	}

	limit := defaultDataLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxDataLimit)
	}

	ctx, cancel := context.WithTimeout(r.Context(), dataReadTimeout)
	defer cancel()

	rows, err := loader.LoadRaw(ctx, limit)
	if err != nil {
		s.l.Error("failed to load topic data", zap.String("topic", topic), zap.Error(err))
		http.Error(w, "failed to load data", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []json.RawMessage{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		s.l.Warn("failed to write topic data", zap.String("topic", topic), zap.Error(err))
	}
}

// Minimal operator page: latest value per topic plus the quoting switch.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Tribeca</title>
  <style>
    :root { --bg:#ffffff; --ink:#111111; --ink-soft:#9c9c9c; --panel:#f6f6f6; }
    * { box-sizing:border-box; }
    body { margin:0; padding:2rem; background:var(--bg); color:var(--ink); font-family:'Space Mono','JetBrains Mono',monospace; }
    h1 { font-size:1.2rem; letter-spacing:.1em; }
    #status { color:var(--ink-soft); }
    .grid { display:grid; grid-template-columns:repeat(auto-fill, minmax(320px, 1fr)); gap:1rem; }
    .card { background:var(--panel); padding:1rem; border-radius:4px; }
    .card h2 { margin:0 0 .5rem; font-size:.8rem; text-transform:uppercase; color:var(--ink-soft); }
    pre { margin:0; font-size:.75rem; white-space:pre-wrap; word-break:break-all; }
    button { font-family:inherit; margin-right:.5rem; }
  </style>
</head>
<body>
  <h1>TRIBECA <span id="status">connecting</span></h1>
  <p>
    <button onclick="send('ac', true)">Start quoting</button>
    <button onclick="send('ac', false)">Stop quoting</button>
    <button onclick="send('cao', {})">Cancel all orders</button>
  </p>
  <div class="grid" id="cards"></div>
<script>
const topics = ['pa','ec','ac','q','qs','fv','md','pos','tbp','tsv','osr','t','mt','msg','qp-sub'];
const cards = {};
let ws;

function card(topic){
  if (cards[topic]) return cards[topic];
  const el = document.createElement('div');
  el.className = 'card';
  el.innerHTML = '<h2>' + topic + '</h2><pre></pre>';
  document.getElementById('cards').appendChild(el);
  cards[topic] = el.querySelector('pre');
  return cards[topic];
}

function send(topic, data){
  if (ws && ws.readyState === WebSocket.OPEN) {
    ws.send(JSON.stringify({topic: topic, kind: 'm', data: data}));
  }
}

function connect(){
  const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
  ws = new WebSocket(proto + location.host + '/ws');
  ws.onopen = () => {
    document.getElementById('status').textContent = 'connected';
    topics.forEach(t => ws.send(JSON.stringify({topic: t, kind: 'u'})));
  };
  ws.onmessage = (ev) => {
    const f = JSON.parse(ev.data);
    let data = f.data;
    if (f.kind === 'n' && Array.isArray(data)) data = data[data.length - 1];
    if (data === undefined) return;
    card(f.topic).textContent = JSON.stringify(data, null, 2);
  };
  ws.onclose = () => {
    document.getElementById('status').textContent = 'disconnected';
    setTimeout(connect, 2000);
  };
}

topics.forEach(card);
connect();
</script>
</body>
</html>
`
