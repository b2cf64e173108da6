package visualization

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/nvandessel/flightbreak/internal/breaker"
	"github.com/nvandessel/flightbreak/internal/calendar"
	"github.com/nvandessel/flightbreak/internal/constants"
	"github.com/nvandessel/flightbreak/internal/estimate"
	"github.com/nvandessel/flightbreak/internal/ratelimit"
)

// ChartTool is the limiter key charged for estimates run by the chart server.
const ChartTool = "chart"

// Request describes one estimate served by the chart server.
type Request struct {
	Probabilities breaker.Probabilities
	Weeks         int
	Simulations   int
	FirstDate     time.Time
}

// Response is the JSON body of /api/estimate.
type Response struct {
	Small       float64          `json:"p2"`
	Big         float64          `json:"p4"`
	Weeks       int              `json:"weeks"`
	Simulations int              `json:"simulations"`
	Seed        int64            `json:"seed"`
	Points      []calendar.Point `json:"points"`
}

// errBadRequest marks query errors that map to 400 responses.
var errBadRequest = errors.New("bad request")

// Server serves the chart page and runs estimates on request.
type Server struct {
	estimator *estimate.Estimator
	limiters  *ratelimit.ToolLimiters

	mu         sync.Mutex
	current    Request
	points     []calendar.Point
	httpServer *http.Server
	addr       string
}

// NewServer creates a chart server. initial is shown on / until another
// estimate is requested; points may be nil to estimate it lazily. Every
// estimate is charged to limiters under ChartTool; nil admits everything.
func NewServer(est *estimate.Estimator, initial Request, points []calendar.Point, limiters *ratelimit.ToolLimiters) *Server {
	if est == nil {
		est = &estimate.Estimator{}
	}
	return &Server{
		estimator: est,
		limiters:  limiters,
		current:   initial,
		points:    points,
	}
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the HTTP routes served by the chart server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/estimate", s.handleEstimate)
	return mux
}

// ListenAndServe starts the HTTP server on an OS-assigned port and blocks
// until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.httpServer = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// run estimates req and makes it the chart shown on /.
func (s *Server) run(ctx context.Context, req Request) (estimate.Result, []calendar.Point, error) {
	if err := s.limiters.Check(ChartTool, req.Weeks*req.Simulations); err != nil {
		return estimate.Result{}, nil, err
	}
	res, err := s.estimator.Estimate(ctx, req.Probabilities, req.Weeks, req.Simulations)
	if err != nil {
		return estimate.Result{}, nil, err
	}
	points := calendar.Dated(req.FirstDate, res.Series)

	s.mu.Lock()
	s.current = req
	s.points = points
	s.mu.Unlock()
	return res, points, nil
}

// handleIndex serves the chart page. Query parameters, when present, run a
// new estimate first.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	req, points := s.current, s.points
	s.mu.Unlock()

	var errMsg string
	if len(r.URL.Query()) > 0 || points == nil {
		parsed, err := parseRequest(r.URL.Query(), req)
		if err == nil {
			_, points, err = s.run(r.Context(), parsed)
			req = parsed
		}
		if err != nil {
			errMsg = err.Error()
		}
	}

	page := newChartPage(title(req), points, &FormValues{
		Small:       req.Probabilities.Small,
		Big:         req.Probabilities.Big,
		Weeks:       req.Weeks,
		MinWeeks:    constants.MinChartWeeks,
		Simulations: req.Simulations,
		First:       calendar.Format(req.FirstDate),
	}, errMsg)

	var buf bytes.Buffer
	if err := renderPage(&buf, page); err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// handleEstimate runs an estimate and returns the dated series as JSON.
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	base := s.current
	s.mu.Unlock()

	req, err := parseRequest(r.URL.Query(), base)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, points, err := s.run(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ratelimit.ErrRateLimited):
			status = http.StatusTooManyRequests
		case errors.Is(err, breaker.ErrConfiguration), errors.Is(err, estimate.ErrInvalidSimulations):
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Response{
		Small:       req.Probabilities.Small,
		Big:         req.Probabilities.Big,
		Weeks:       req.Weeks,
		Simulations: res.Simulations,
		Seed:        res.Seed,
		Points:      points,
	})
}

// parseRequest overrides base with the p2, p4, weeks, simulations and first
// query parameters.
func parseRequest(q url.Values, base Request) (Request, error) {
	req := base
	var err error

	if v := q.Get("p2"); v != "" {
		if req.Probabilities.Small, err = strconv.ParseFloat(v, 64); err != nil {
			return Request{}, fmt.Errorf("%w: invalid p2 %q", errBadRequest, v)
		}
	}
	if v := q.Get("p4"); v != "" {
		if req.Probabilities.Big, err = strconv.ParseFloat(v, 64); err != nil {
			return Request{}, fmt.Errorf("%w: invalid p4 %q", errBadRequest, v)
		}
	}
	if v := q.Get("weeks"); v != "" {
		if req.Weeks, err = strconv.Atoi(v); err != nil {
			return Request{}, fmt.Errorf("%w: invalid weeks %q", errBadRequest, v)
		}
	}
	if v := q.Get("simulations"); v != "" {
		if req.Simulations, err = strconv.Atoi(v); err != nil {
			return Request{}, fmt.Errorf("%w: invalid simulations %q", errBadRequest, v)
		}
	}
	if v := q.Get("first"); v != "" {
		if req.FirstDate, err = calendar.ParseDate(v); err != nil {
			return Request{}, fmt.Errorf("%w: %v", errBadRequest, err)
		}
	}

	if req.Weeks < constants.MinChartWeeks || req.Weeks > constants.MaxToolWeeks {
		return Request{}, fmt.Errorf("%w: weeks must be between %d and %d, got %d",
			errBadRequest, constants.MinChartWeeks, constants.MaxToolWeeks, req.Weeks)
	}
	if req.Simulations > constants.MaxToolSimulations {
		return Request{}, fmt.Errorf("%w: simulations must be at most %d, got %d",
			errBadRequest, constants.MaxToolSimulations, req.Simulations)
	}
	return req, nil
}

func title(req Request) string {
	return fmt.Sprintf("Weekly cancellation probability (p2=%g, p4=%g, %d runs)",
		req.Probabilities.Small, req.Probabilities.Big, req.Simulations)
}
