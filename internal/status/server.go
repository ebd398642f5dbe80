// Package status serves a small read-only HTTP view of the monitor.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"stockwatch/internal/monitor"
	"stockwatch/internal/runtime/supervisor"
	"stockwatch/internal/throttle"
	logx "stockwatch/pkg/logx"
)

// Source is what the status server reads from.
type Source struct {
	Scheduler interface{ Status() monitor.Status }
	Settings  func() monitor.Settings
	Throttle  *throttle.Throttle
	// Tasks is optional.
	Tasks func() []supervisor.TaskStats
}

type Server struct {
	addr string
	src  Source
	log  logx.Logger
	mux  chi.Router

	profiler   bool
	pprofToken string
}

func New(addr string, src Source, log logx.Logger, opts ...Option) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{addr: addr, src: src, log: log}
	for _, o := range opts {
		o(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	s.mux = r
	if s.profiler {
		s.mountProfiler()
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

// SetTasks attaches supervisor stats to /status. Call before Run.
func (s *Server) SetTasks(fn func() []supervisor.TaskStats) { s.src.Tasks = fn }

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("status server listening", logx.String("addr", s.addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.src.Scheduler == nil || !s.src.Scheduler.Status().Running {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("scheduler not running\n"))
		return
	}
	_, _ = w.Write([]byte("ok\n"))
}

type productView struct {
	Name         string     `json:"name"`
	URL          string     `json:"url"`
	LastNotified *time.Time `json:"last_notified,omitempty"`
}

type cycleView struct {
	Cycle         uint64    `json:"cycle"`
	StartedAt     time.Time `json:"started_at"`
	TookMS        int64     `json:"took_ms"`
	Checked       int       `json:"checked"`
	Failed        int       `json:"failed"`
	Available     []string  `json:"available"`
	Eligible      []string  `json:"eligible"`
	Notified      bool      `json:"notified"`
	DeliveryError string    `json:"delivery_error,omitempty"`
}

type statusView struct {
	Running   bool                   `json:"running"`
	Cycles    uint64                 `json:"cycles"`
	Failures  uint64                 `json:"failures"`
	NextRun   *time.Time             `json:"next_run,omitempty"`
	LastError string                 `json:"last_error,omitempty"`
	LastCycle *cycleView             `json:"last_cycle,omitempty"`
	Cooldown  string                 `json:"cooldown"`
	Products  []productView          `json:"products"`
	Tasks     []supervisor.TaskStats `json:"tasks,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var v statusView
	if s.src.Scheduler != nil {
		st := s.src.Scheduler.Status()
		v.Running, v.Cycles, v.Failures, v.LastError = st.Running, st.Cycles, st.Failures, st.LastErr
		if !st.NextRun.IsZero() {
			next := st.NextRun
			v.NextRun = &next
		}
		if st.Last != nil {
			v.LastCycle = newCycleView(*st.Last)
		}
	}

	var snap map[string]time.Time
	if s.src.Throttle != nil {
		v.Cooldown = s.src.Throttle.Cooldown().String()
		snap = make(map[string]time.Time)
		for k, at := range s.src.Throttle.Snapshot() {
			snap[string(k)] = at
		}
	}
	v.Products = []productView{}
	if s.src.Settings != nil {
		for _, p := range s.src.Settings().Products {
			pv := productView{Name: p.DisplayName(), URL: p.URL}
			if at, ok := snap[string(p.Key())]; ok {
				at := at
				pv.LastNotified = &at
			}
			v.Products = append(v.Products, pv)
		}
	}
	if s.src.Tasks != nil {
		v.Tasks = s.src.Tasks()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("status encode failed", logx.Err(err))
	}
}

func newCycleView(res monitor.CycleResult) *cycleView {
	cv := &cycleView{
		Cycle:     res.Cycle,
		StartedAt: res.StartedAt,
		TookMS:    res.Took.Milliseconds(),
		Checked:   len(res.Outcomes),
		Failed:    res.Failed(),
		Available: []string{},
		Eligible:  []string{},
		Notified:  res.Notified,
	}
	for _, p := range res.Available {
		cv.Available = append(cv.Available, p.URL)
	}
	for _, p := range res.Eligible {
		cv.Eligible = append(cv.Eligible, p.URL)
	}
	if res.DeliveryErr != nil {
		cv.DeliveryError = res.DeliveryErr.Error()
	}
	return cv
}
