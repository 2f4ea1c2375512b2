// Package server serves a secure clock over HTTP.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/newgrp/lockbox"
	"github.com/newgrp/lockbox/sema"
)

const (
	// Request parameter names.
	argTime = "time"

	// REST method names.
	methodNow    = "now"
	methodIsPast = "is_past"
	methodStats  = "stats"
)

type NowResp struct {
	Instance string `json:"instance"`
	Time     string `json:"time"`
	Unix     int64  `json:"unix"`
}

type IsPastResp struct {
	Instance string `json:"instance"`
	Time     string `json:"time"`
	Past     bool   `json:"past"`
}

type StatsResp struct {
	Instance string         `json:"instance"`
	Requests map[string]int `json:"requests"`
}

// Parses a time string, which may be either:
//
//   - integer seconds since Unix epoch
//   - RFC 3339 formatted time string
func parseTime(s string) (time.Time, error) {
	var sec int64
	if _, err := fmt.Sscanf(s, "%d", &sec); err == nil {
		return time.Unix(sec, 0), nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("time must be given either as integer seconds since the Unix epoch or RFC 3339 string")
}

// HTTP handler that only depends on URL parameters. Returns (JSON-encodable value, HTTP status
// code, error message).
type simpleHandler = func(url.Values) (any, int, string)

// makeHandler converts a simpleHandler to an http.HandlerFunc.
func (s *Server) makeHandler(method string, h simpleHandler) http.HandlerFunc {
	return func(resp http.ResponseWriter, req *http.Request) {
		s.countRequest(method)

		query, err := url.ParseQuery(req.URL.RawQuery)
		if err != nil {
			resp.WriteHeader(http.StatusBadRequest)
			resp.Write([]byte(fmt.Sprintf("Could not parse request parameters: %v\n", err)))
			return
		}

		value, status, message := h(query)

		var body string
		if status == http.StatusOK {
			b := &strings.Builder{}
			e := json.NewEncoder(b)
			e.SetEscapeHTML(false)
			if err = e.Encode(value); err != nil {
				s.log.WithError(err).Errorf("Failed to encode value of type %T as JSON", value)
				resp.WriteHeader(http.StatusInternalServerError)
				return
			}
			body = b.String()
			resp.Header().Set("Content-Type", "application/json")
		} else {
			body = message
		}
		if len(body) != 0 && body[len(body)-1] != '\n' {
			body = fmt.Sprintf("%s\n", body)
		}

		resp.WriteHeader(status)
		resp.Write([]byte(body))
	}
}

// The part of clock.SecureClock the server needs.
type Clock interface {
	Now() (time.Time, error)
}

// Server options.
type Options struct {
	Clock Clock
	// Identifies this server instance in responses. Random if unset.
	ID uuid.UUID
	// Served at /metrics if set.
	Gatherer prometheus.Gatherer
	Logger   logrus.FieldLogger
}

// Server that handles HTTP requests for the current time.
type Server struct {
	clock    Clock
	id       uuid.UUID
	gatherer prometheus.Gatherer
	log      logrus.FieldLogger

	// Request counts by method name.
	requests *lockbox.RWMutex[map[string]int, *sema.RWMutex]
}

func NewServer(opts Options) (*Server, error) {
	if opts.Clock == nil {
		return nil, fmt.Errorf("a clock is required")
	}
	if opts.ID == uuid.Nil {
		opts.ID = uuid.New()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return &Server{
		clock:    opts.Clock,
		id:       opts.ID,
		gatherer: opts.Gatherer,
		log:      opts.Logger.WithField("instance", opts.ID.String()),
		requests: lockbox.NewRWMutex(map[string]int{}),
	}, nil
}

// The instance ID reported in responses.
func (s *Server) ID() uuid.UUID {
	return s.id
}

func (s *Server) countRequest(method string) {
	s.requests.WithWrite(func(g *lockbox.Guard[map[string]int]) {
		(*g.Ptr())[method]++
	})
}

// Simple handler for current time requests.
func (s *Server) getNow(url.Values) (*NowResp, int, string) {
	now, err := s.clock.Now()
	if err != nil {
		s.log.WithError(err).Error("Failed to read secure clock")
		return nil, http.StatusServiceUnavailable, "Server could not securely determine the current time"
	}
	return &NowResp{
		Instance: s.id.String(),
		Time:     now.UTC().Format(time.RFC3339Nano),
		Unix:     now.Unix(),
	}, http.StatusOK, ""
}

// Simple handler that reports whether a time has already passed.
func (s *Server) getIsPast(query url.Values) (*IsPastResp, int, string) {
	if !query.Has(argTime) {
		return nil, http.StatusBadRequest, fmt.Sprintf("%q parameter is required", argTime)
	}
	t, err := parseTime(query.Get(argTime))
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Sprintf("Invalid %q parameter: %v", argTime, err)
	}

	now, err := s.clock.Now()
	if err != nil {
		s.log.WithError(err).Error("Failed to read secure clock")
		return nil, http.StatusServiceUnavailable, "Server could not securely determine the current time"
	}
	return &IsPastResp{
		Instance: s.id.String(),
		Time:     t.UTC().Format(time.RFC3339),
		Past:     !t.After(now),
	}, http.StatusOK, ""
}

// Simple handler for request statistics.
func (s *Server) getStats(url.Values) (*StatsResp, int, string) {
	g := s.requests.RLock()
	defer g.Unlock()

	// The map is shared with writers, so hand out a copy.
	counts := make(map[string]int, len(g.Get()))
	for k, v := range g.Get() {
		counts[k] = v
	}
	return &StatsResp{Instance: s.id.String(), Requests: counts}, http.StatusOK, ""
}

// Registers handlers for the following methods:
//
//   - GET /v0/now
//   - GET /v0/is_past
//   - GET /v0/stats
//   - GET /metrics, if the server has a gatherer
func (s *Server) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc(fmt.Sprintf("GET /v0/%s", methodNow), s.makeHandler(methodNow, func(query url.Values) (any, int, string) {
		return s.getNow(query)
	}))
	mux.HandleFunc(fmt.Sprintf("GET /v0/%s", methodIsPast), s.makeHandler(methodIsPast, func(query url.Values) (any, int, string) {
		return s.getIsPast(query)
	}))
	mux.HandleFunc(fmt.Sprintf("GET /v0/%s", methodStats), s.makeHandler(methodStats, func(query url.Values) (any, int, string) {
		return s.getStats(query)
	}))
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}
