package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pfrederiksen/fomc-docs/internal/calendar"
	"github.com/pfrederiksen/fomc-docs/internal/filter"
	"github.com/pfrederiksen/fomc-docs/internal/logger"
	"github.com/pfrederiksen/fomc-docs/internal/meeting"
	"github.com/pfrederiksen/fomc-docs/internal/storage"
)

// Statement is one meeting's saved documents. A meeting is listed only once
// its statement is saved; the projection path is null when none is.
type Statement struct {
	Date           string  `json:"date"`
	Label          string  `json:"label"`
	StatementPath  string  `json:"statement_path"`
	ProjectionPath *string `json:"projection_path"`
	SourceURL      string  `json:"source_url"`
}

// YearGroup is one year's statements, oldest first
type YearGroup struct {
	Year       int
	Statements []Statement
}

// Grouped is a year-keyed result ordered newest year first. It encodes as a
// JSON object whose keys keep that order.
type Grouped []YearGroup

// MarshalJSON implements json.Marshaler
func (g Grouped) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, group := range g {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '"')
		buf = strconv.AppendInt(buf, int64(group.Year), 10)
		buf = append(buf, '"', ':')
		statements := group.Statements
		if statements == nil {
			statements = []Statement{}
		}
		body, err := json.Marshal(statements)
		if err != nil {
			return nil, err
		}
		buf = append(buf, body...)
	}
	return append(buf, '}'), nil
}

// GroupByYear groups Saved entries by year and meeting date. Meetings without
// a saved statement are left out.
func GroupByYear(entries []meeting.LogEntry) Grouped {
	byDate := make(map[string]*Statement)
	for _, e := range entries {
		if e.Outcome != meeting.Saved {
			continue
		}
		key := e.Date.Format(meeting.DateLayout)
		st, ok := byDate[key]
		if !ok {
			st = &Statement{Date: key, Label: e.Label, SourceURL: e.SourceURL}
			byDate[key] = st
		}
		path := e.LocalPath
		switch e.Category {
		case meeting.Statement:
			st.StatementPath = path
		case meeting.Projection:
			st.ProjectionPath = &path
		}
	}

	var dates []string
	for key, st := range byDate {
		if st.StatementPath != "" {
			dates = append(dates, key)
		}
	}
	sort.Strings(dates)

	var groups Grouped
	index := make(map[int]int)
	for _, d := range dates {
		st := byDate[d]
		year, _ := strconv.Atoi(d[:4])
		i, ok := index[year]
		if !ok {
			groups = append(groups, YearGroup{Year: year})
			i = len(groups) - 1
			index[year] = i
		}
		groups[i].Statements = append(groups[i].Statements, *st)
	}

	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Year > groups[j].Year })
	return groups
}

// savedOnDisk drops Saved entries whose document is no longer in the data
// directory, so served paths always resolve
func (s *Server) savedOnDisk(entries []meeting.LogEntry) []meeting.LogEntry {
	out := make([]meeting.LogEntry, 0, len(entries))
	for _, e := range entries {
		if e.Outcome != meeting.Saved {
			continue
		}
		if _, err := os.Stat(e.LocalPath); err != nil {
			s.log.Warn("logged document missing on disk", logger.Fields{
				"date":     e.Date.Format(meeting.DateLayout),
				"category": string(e.Category),
				"path":     e.LocalPath,
			})
			continue
		}
		out = append(out, e)
	}
	return out
}

// loadEntries reads the persisted log; a missing log is an empty one
func (s *Server) loadEntries() ([]meeting.LogEntry, error) {
	entries, err := storage.ReadLog(s.root)
	if err != nil {
		s.log.Error("reading collection log", logger.Fields{"data_dir": s.root}, err)
		return nil, err
	}
	return entries, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	entries, err := s.loadEntries()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "FOMC Statements API",
		"data_dir": s.root,
		"summary":  storage.Summarize(entries),
		"endpoints": []string{
			"/years",
			"/statements",
			"/statements/{year}",
			"/calendar.ics",
			"/health",
			"/metrics",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, err := os.Stat(s.root)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"data_present": err == nil,
	})
}

func (s *Server) handleYears(w http.ResponseWriter, r *http.Request) {
	entries, err := s.loadEntries()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	years := []string{}
	for _, g := range GroupByYear(s.savedOnDisk(entries)) {
		years = append(years, strconv.Itoa(g.Year))
	}
	writeJSON(w, http.StatusOK, years)
}

func (s *Server) handleStatements(w http.ResponseWriter, r *http.Request) {
	f, err := filter.FromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entries, err := s.loadEntries()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, GroupByYear(s.savedOnDisk(f.Apply(entries))))
}

func (s *Server) handleStatementsByYear(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "year")
	year, err := strconv.Atoi(raw)
	if err != nil || len(raw) != 4 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid year %q", raw))
		return
	}
	entries, err := s.loadEntries()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	for _, g := range GroupByYear(s.savedOnDisk(entries)) {
		if g.Year == year {
			writeJSON(w, http.StatusOK, g.Statements)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":      fmt.Sprintf("no statements found for %d", year),
		"statements": []Statement{},
	})
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	entries, err := s.loadEntries()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="fomc-meetings.ics"`)
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, calendar.GenerateICS(entries, s.now()))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
