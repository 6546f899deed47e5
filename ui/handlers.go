package main

import (
	"embed"
	"html/template"
	"net/http"
	"strconv"
	"strings"
)

//go:embed templates/*
var templatesFS embed.FS

// Handler handles HTTP requests for the UI.
type Handler struct {
	inspector *Inspector
	templates map[string]*template.Template
}

// NewHandler creates a new Handler.
func NewHandler(inspector *Inspector) (*Handler, error) {
	funcMap := template.FuncMap{
		"add": func(a, b int64) int64 { return a + b },
	}

	pages := []string{"dashboard.html", "queues.html", "jobs.html"}
	templates := make(map[string]*template.Template)

	for _, page := range pages {
		tmpl := template.New("base.html").Funcs(funcMap)
		// Parse base.html + the specific page
		if _, err := tmpl.ParseFS(templatesFS, "templates/base.html", "templates/"+page); err != nil {
			return nil, err
		}
		templates[page] = tmpl
	}

	return &Handler{
		inspector: inspector,
		templates: templates,
	}, nil
}

// RegisterRoutes registers HTTP routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", h.handleDashboard)
	mux.HandleFunc("/queues", h.handleQueues)
	mux.HandleFunc("/queues/", h.handleQueueJobs)
	mux.HandleFunc("/api/stats", h.handleAPIStats)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	stats, err := h.inspector.GetDashboardStats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	queues, _ := h.inspector.GetQueues(r.Context())

	data := map[string]interface{}{
		"Stats":  stats,
		"Queues": queues,
		"Page":   "dashboard",
	}

	h.render(w, "dashboard.html", data)
}

func (h *Handler) handleQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := h.inspector.GetQueues(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := map[string]interface{}{
		"Queues": queues,
		"Page":   "queues",
	}

	h.render(w, "queues.html", data)
}

func (h *Handler) handleQueueJobs(w http.ResponseWriter, r *http.Request) {
	// Extract queue name from path: /queues/{name}
	path := strings.TrimPrefix(r.URL.Path, "/queues/")
	parts := strings.Split(path, "/")
	qname := parts[0]

	if qname == "" {
		http.Redirect(w, r, "/queues", http.StatusFound)
		return
	}

	collection := r.URL.Query().Get("state")
	if collection == "" {
		collection = "wait"
	}

	jobs, err := h.inspector.GetJobs(r.Context(), qname, collection, 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	queueInfo, _ := h.inspector.getQueueInfo(r.Context(), qname)

	data := map[string]interface{}{
		"Queue": queueInfo,
		"Jobs":  jobs,
		"State": collection,
		"Page":  "jobs",
	}

	h.render(w, "jobs.html", data)
}

func (h *Handler) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.inspector.GetDashboardStats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"total_queues":` + strconv.Itoa(stats.TotalQueues) +
		`,"total_waiting":` + strconv.FormatInt(stats.TotalWaiting, 10) +
		`,"total_active":` + strconv.FormatInt(stats.TotalActive, 10) +
		`,"total_failed":` + strconv.FormatInt(stats.TotalFailed, 10) + `}`))
}

func (h *Handler) render(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	tmpl, ok := h.templates[name]
	if !ok {
		http.Error(w, "Template not found: "+name, http.StatusInternalServerError)
		return
	}
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
