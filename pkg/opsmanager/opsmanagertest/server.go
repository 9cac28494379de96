// Package opsmanagertest provides an in-memory Ops Manager API for tests.
package opsmanagertest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/cuemby/opsmgr/pkg/opsmanager"
	"github.com/cuemby/opsmgr/pkg/types"
)

// Request is one request received by the server
type Request struct {
	Method string
	Path   string
	Query  string
	Body   []byte
}

// Server serves the subset of the public API used by opsmgr from memory
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	groups   []types.Group
	hosts    map[string][]types.Host
	alerts   map[string][]types.Alert
	configs  map[string][]byte
	statuses map[string][]types.AutomationStatus
	windows  map[string][]types.MaintenanceWindow
	failures map[string]int
	requests []Request
	nextID   int
	pageSize int
}

// NewServer starts a server that is closed when the test ends
func NewServer(t testing.TB) *Server {
	s := &Server{
		hosts:    make(map[string][]types.Host),
		alerts:   make(map[string][]types.Alert),
		configs:  make(map[string][]byte),
		statuses: make(map[string][]types.AutomationStatus),
		windows:  make(map[string][]types.MaintenanceWindow),
		failures: make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Client returns an API client pointed at the server
func (s *Server) Client() *opsmanager.Client {
	return opsmanager.NewWithHTTPClient(s.URL, s.Server.Client())
}

// AddGroup registers a group and the hosts it monitors
func (s *Server) AddGroup(g types.Group, hosts ...types.Host) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = append(s.groups, g)
	s.hosts[g.ID] = append(s.hosts[g.ID], hosts...)
}

// SetAlerts replaces the alerts of a group
func (s *Server) SetAlerts(group string, alerts ...types.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[group] = alerts
}

// SetConfig stores a raw automation configuration document
func (s *Server) SetConfig(group, doc string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[group] = []byte(doc)
}

// Config decodes the automation configuration currently stored
func (s *Server) Config(t testing.TB, group string) *types.AutomationConfig {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var cfg types.AutomationConfig
	if err := json.Unmarshal(s.configs[group], &cfg); err != nil {
		t.Fatalf("stored config of %s: %v", group, err)
	}
	return &cfg
}

// QueueStatus appends automation status responses. Each GET consumes one;
// the last one is repeated forever.
func (s *Server) QueueStatus(group string, statuses ...types.AutomationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[group] = append(s.statuses[group], statuses...)
}

// SetWindows replaces the maintenance windows of a group
func (s *Server) SetWindows(group string, windows ...types.MaintenanceWindow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[group] = windows
}

// Windows returns the maintenance windows of a group
func (s *Server) Windows(group string) []types.MaintenanceWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.MaintenanceWindow(nil), s.windows[group]...)
}

// Fail makes every request matching method and path suffix answer status
func (s *Server) Fail(method, suffix string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+suffix] = status
}

// SetPageSize limits the alert and maintenance window listings to n items
// per page. Zero serves everything on the first page.
func (s *Server) SetPageSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageSize = n
}

// Requests returns the requests received so far
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many requests matched method and path suffix
func (s *Server) Count(method, suffix string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasSuffix(r.Path, suffix) {
			n++
		}
	}
	return n
}

// Puts decodes every automation configuration PUT to group, in order
func (s *Server) Puts(t testing.TB, group string) []*types.AutomationConfig {
	t.Helper()
	var puts []*types.AutomationConfig
	for _, r := range s.Requests() {
		if r.Method != http.MethodPut || r.Path != opsmanager.APIPrefix+"/groups/"+group+"/automationConfig" {
			continue
		}
		var cfg types.AutomationConfig
		if err := json.Unmarshal(r.Body, &cfg); err != nil {
			t.Fatalf("PUT body: %v", err)
		}
		puts = append(puts, &cfg)
	}
	return puts
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: body})

	for key, status := range s.failures {
		method, suffix, _ := strings.Cut(key, " ")
		if r.Method == method && strings.HasSuffix(r.URL.Path, suffix) {
			http.Error(w, `{"detail":"injected failure"}`, status)
			return
		}
	}

	rest, ok := strings.CutPrefix(r.URL.Path, opsmanager.APIPrefix+"/groups")
	if !ok {
		http.NotFound(w, r)
		return
	}
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] == "" && r.Method == http.MethodGet:
		s.listGroups(w, r)
	case len(parts) == 2 && parts[0] == "byName" && r.Method == http.MethodGet:
		for _, g := range s.groups {
			if g.Name == parts[1] {
				writeJSON(w, g)
				return
			}
		}
		http.Error(w, `{"detail":"no group"}`, http.StatusNotFound)
	case len(parts) >= 2:
		s.serveGroup(w, r, parts[0], parts[1:], body)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	page := 1
	if v := r.URL.Query().Get("pageNum"); v != "" {
		page, _ = strconv.Atoi(v)
	}
	perPage := opsmanager.DefaultPageSize
	if v := r.URL.Query().Get("itemsPerPage"); v != "" {
		perPage, _ = strconv.Atoi(v)
	}
	// The first page is small so tests exercise pagination
	if page == 1 {
		perPage = 1
	}

	start := 0
	if page > 1 {
		start = 1 + (page-2)*perPage
	}
	end := min(start+perPage, len(s.groups))
	if start > len(s.groups) {
		start = len(s.groups)
	}

	p := types.Page[types.Group]{Results: s.groups[start:end], TotalCount: len(s.groups)}
	p.Links = []types.Link{{Rel: "self"}}
	if end < len(s.groups) {
		p.Links = append(p.Links, types.Link{Rel: "next"})
	}
	writeJSON(w, p)
}

func (s *Server) serveGroup(w http.ResponseWriter, r *http.Request, group string, parts []string, body []byte) {
	resource := parts[0]
	switch {
	case resource == "hosts" && r.Method == http.MethodGet:
		writeJSON(w, types.Page[types.Host]{Results: s.hosts[group]})

	case resource == "alerts" && r.Method == http.MethodGet:
		writeJSON(w, paginate(r, s.pageSize, s.alerts[group]))

	case resource == "automationConfig" && r.Method == http.MethodGet:
		doc, ok := s.configs[group]
		if !ok {
			http.Error(w, `{"detail":"no config"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)

	case resource == "automationConfig" && r.Method == http.MethodPut:
		s.configs[group] = body
		writeJSON(w, json.RawMessage(body))

	case resource == "automationStatus" && r.Method == http.MethodGet:
		queue := s.statuses[group]
		switch len(queue) {
		case 0:
			writeJSON(w, types.AutomationStatus{GoalVersion: 1})
		case 1:
			writeJSON(w, queue[0])
		default:
			writeJSON(w, queue[0])
			s.statuses[group] = queue[1:]
		}

	case resource == "maintenanceWindows" && len(parts) == 1 && r.Method == http.MethodGet:
		writeJSON(w, paginate(r, s.pageSize, s.windows[group]))

	case resource == "maintenanceWindows" && len(parts) == 1 && r.Method == http.MethodPost:
		var mw types.MaintenanceWindow
		if err := json.Unmarshal(body, &mw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.nextID++
		mw.ID = "mw" + strconv.Itoa(s.nextID)
		mw.GroupID = group
		s.windows[group] = append(s.windows[group], mw)
		writeJSON(w, mw)

	case resource == "maintenanceWindows" && len(parts) == 2 && r.Method == http.MethodDelete:
		windows := s.windows[group]
		for i, mw := range windows {
			if mw.ID == parts[1] {
				s.windows[group] = append(windows[:i:i], windows[i+1:]...)
				writeJSON(w, struct{}{})
				return
			}
		}
		http.Error(w, `{"detail":"no window"}`, http.StatusNotFound)

	default:
		http.NotFound(w, r)
	}
}

// paginate returns the page of items requested by r
func paginate[T any](r *http.Request, size int, items []T) types.Page[T] {
	p := types.Page[T]{TotalCount: len(items), Links: []types.Link{{Rel: "self"}}}
	if size <= 0 {
		p.Results = items
		return p
	}

	page := 1
	if v := r.URL.Query().Get("pageNum"); v != "" {
		page, _ = strconv.Atoi(v)
	}
	start := min((page-1)*size, len(items))
	end := min(start+size, len(items))
	p.Results = items[start:end]
	if end < len(items) {
		p.Links = append(p.Links, types.Link{Rel: "next"})
	}
	return p
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
