package brokertest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// FakeRegistry is a minimal in-process stand-in for a Confluent-compatible
// schema registry, implementing only the subset wire.Registry calls:
// subject registration, lookup by id, and subject deletion.
type FakeRegistry struct {
	server *httptest.Server

	mu        sync.Mutex
	nextID    int
	byID      map[int]string
	bySubject map[string]int
}

type registerRequest struct {
	Schema string `json:"schema"`
}

type registerResponse struct {
	ID int `json:"id"`
}

type schemaResponse struct {
	Schema string `json:"schema"`
}

func newFakeRegistry() *FakeRegistry {
	r := &FakeRegistry{
		nextID:    1,
		byID:      make(map[int]string),
		bySubject: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /subjects/{subject}/versions", r.handleRegister)
	mux.HandleFunc("GET /schemas/ids/{id}", r.handleLookup)
	mux.HandleFunc("DELETE /subjects/{subject}", r.handleDelete)
	r.server = httptest.NewServer(mux)

	return r
}

// URL is the fake registry's base address, suitable for
// LSST_SCHEMA_REGISTRY_URL or wire.NewRegistry.
func (r *FakeRegistry) URL() string { return r.server.URL }

// Close shuts down the underlying HTTP server.
func (r *FakeRegistry) Close() { r.server.Close() }

func (r *FakeRegistry) handleRegister(w http.ResponseWriter, req *http.Request) {
	var body registerRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	subject := req.PathValue("subject")

	r.mu.Lock()
	id, ok := r.bySubject[subject]
	if !ok || r.byID[id] != body.Schema {
		id = r.nextID
		r.nextID++
		r.byID[id] = body.Schema
		r.bySubject[subject] = id
	}
	r.mu.Unlock()

	writeJSON(w, registerResponse{ID: id})
}

func (r *FakeRegistry) handleLookup(w http.ResponseWriter, req *http.Request) {
	id, err := strconv.Atoi(req.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	r.mu.Lock()
	schema, ok := r.byID[id]
	r.mu.Unlock()
	if !ok {
		http.Error(w, "schema not found", http.StatusNotFound)
		return
	}

	writeJSON(w, schemaResponse{Schema: schema})
}

func (r *FakeRegistry) handleDelete(w http.ResponseWriter, req *http.Request) {
	subject := req.PathValue("subject")

	r.mu.Lock()
	id, ok := r.bySubject[subject]
	if ok {
		delete(r.bySubject, subject)
		delete(r.byID, id)
	}
	r.mu.Unlock()

	writeJSON(w, []int{id})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/vnd.schemaregistry.v1+json")
	_ = json.NewEncoder(w).Encode(v)
}
