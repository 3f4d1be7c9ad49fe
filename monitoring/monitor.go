// Package monitoring turns a simulation into a web server that reports the
// progress of the accelerators and lets an operator pause the engine.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/nnaccel/accel"
	"github.com/sarchlab/nnaccel/monitoring/web"
	"github.com/sarchlab/nnaccel/sim/id"
	"github.com/sarchlab/nnaccel/sim/naming"
	"github.com/sarchlab/nnaccel/sim/timing"
)

// ErrNotStarted is returned when the server is used before StartServer.
var ErrNotStarted = errors.New("monitoring server not started")

// Monitor can turn a simulation into a server and allows external monitoring
// controlling of the simulation.
type Monitor struct {
	engine     timing.Engine
	accels     []*accel.Accelerator
	portNumber int
	logger     *slog.Logger

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
	tracked          map[string]trackedSession

	listener net.Listener
	server   *http.Server
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		logger:  slog.Default(),
		tracked: make(map[string]trackedSession),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithLogger sets the logger used for server events.
func (m *Monitor) WithLogger(logger *slog.Logger) *Monitor {
	m.logger = logger
	return m
}

// RegisterEngine registers the engine that is used in the simulation.
func (m *Monitor) RegisterEngine(e timing.Engine) {
	m.engine = e
}

// RegisterAccelerator registers an accelerator to be monitored. Each of its
// sessions gets a progress bar while it runs.
func (m *Monitor) RegisterAccelerator(a *accel.Accelerator) {
	m.accels = append(m.accels, a)
	a.AcceptHook(&sessionProgressHook{m: m})
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        id.Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.removeBar(pb)
}

func (m *Monitor) removeBar(pb *ProgressBar) {
	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// ProgressBars returns a snapshot of the bars being shown.
func (m *Monitor) ProgressBars() []ProgressSnapshot {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	for _, t := range m.tracked {
		t.bar.SetFinished(t.session.ResultWords)
	}

	res := make([]ProgressSnapshot, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		res = append(res, b.Snapshot())
	}

	return res
}

func (m *Monitor) trackSession(domain any, s *accel.Session) {
	name := s.Mode.String()
	if n, ok := domain.(naming.Named); ok {
		name = n.Name() + " " + name
	}

	bar := m.CreateProgressBar(name, uint64(s.ExpectedResultWords))

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.tracked[s.ID] = trackedSession{bar: bar, session: s}
}

func (m *Monitor) untrackSession(s *accel.Session) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	t, ok := m.tracked[s.ID]
	if !ok {
		return
	}

	delete(m.tracked, s.ID)
	m.removeBar(t.bar)
}

// Handler returns the routes of the monitoring API and the dashboard.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseEngine)
	r.HandleFunc("/api/continue", m.continueEngine)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/tick/{name}", m.tick)
	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/state/{name}", m.reportState)
	r.HandleFunc("/api/sessions/{name}", m.listSessions)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() (string, error) {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", actualPort, err)
	}

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	url := m.URL()
	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("monitoring server stopped", "err", err)
		}
	}()

	return url, nil
}

// URL returns the address of the running server.
func (m *Monitor) URL() string {
	if m.listener == nil {
		return ""
	}

	return fmt.Sprintf("http://localhost:%d",
		m.listener.Addr().(*net.TCPAddr).Port)
}

// OpenInBrowser opens the dashboard in the default browser.
func (m *Monitor) OpenInBrowser() error {
	if m.listener == nil {
		return ErrNotStarted
	}

	return browser.OpenURL(m.URL())
}

// StopServer shuts the server down.
func (m *Monitor) StopServer(ctx context.Context) error {
	if m.server == nil {
		return ErrNotStarted
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	m.engine.Pause()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	m.engine.Continue()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	now := m.engine.CurrentTime()
	fmt.Fprintf(w, "{\"now\":%d}", uint64(now))
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.accels))
	for _, a := range m.accels {
		names = append(names, a.Name())
	}

	writeJSON(w, names)
}

func (m *Monitor) tick(w http.ResponseWriter, r *http.Request) {
	a := m.findAcceleratorOr404(w, mux.Vars(r)["name"])
	if a == nil {
		return
	}

	a.TickLater()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) listComponentDetails(w http.ResponseWriter, r *http.Request) {
	a := m.findAcceleratorOr404(w, mux.Vars(r)["name"])
	if a == nil {
		return
	}

	insp := a.Inspect()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&insp)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}

	err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a := m.findAcceleratorOr404(w, req.CompName)
	if a == nil {
		return
	}

	insp := a.Inspect()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&insp)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

type stateRsp struct {
	State    string `json:"state"`
	Mode     string `json:"mode"`
	Busy     bool   `json:"busy"`
	Kernel   int    `json:"kernel"`
	RowGroup int    `json:"row_group"`
	Chunk    int    `json:"chunk"`
	L1Col    int    `json:"l1_col"`
	L2Col    int    `json:"l2_col"`
	Cycle    uint64 `json:"cycle"`
}

func (m *Monitor) reportState(w http.ResponseWriter, r *http.Request) {
	a := m.findAcceleratorOr404(w, mux.Vars(r)["name"])
	if a == nil {
		return
	}

	ctrl := a.Controller()
	c := ctrl.Counters()
	rsp := stateRsp{
		State:    ctrl.State().String(),
		Busy:     ctrl.Busy(),
		Kernel:   c.Kernel,
		RowGroup: c.RowGroup,
		Chunk:    c.Chunk,
		L1Col:    c.L1Col,
		L2Col:    c.L2Col,
		Cycle:    ctrl.Cycle(),
	}

	if mode, ok := ctrl.Mode(); ok {
		rsp.Mode = mode.String()
	}

	writeJSON(w, rsp)
}

type sessionRsp struct {
	ID         string  `json:"id"`
	Mode       string  `json:"mode"`
	Running    bool    `json:"running"`
	Done       bool    `json:"done"`
	Aborted    bool    `json:"aborted"`
	StartCycle uint64  `json:"start_cycle"`
	EndCycle   uint64  `json:"end_cycle"`
	Words      uint64  `json:"result_words"`
	Progress   float64 `json:"progress"`
}

func (m *Monitor) listSessions(w http.ResponseWriter, r *http.Request) {
	a := m.findAcceleratorOr404(w, mux.Vars(r)["name"])
	if a == nil {
		return
	}

	sessions := a.Sessions()
	rsp := make([]sessionRsp, 0, len(sessions))

	for _, s := range sessions {
		rsp = append(rsp, sessionRsp{
			ID:         s.ID,
			Mode:       s.Mode.String(),
			Running:    s.Running,
			Done:       s.Done,
			Aborted:    s.Aborted,
			StartCycle: uint64(s.StartCycle),
			EndCycle:   uint64(s.EndCycle),
			Words:      s.ResultWords,
			Progress:   s.Progress(),
		})
	}

	writeJSON(w, rsp)
}

func (m *Monitor) findAcceleratorOr404(
	w http.ResponseWriter,
	name string,
) *accel.Accelerator {
	for _, a := range m.accels {
		if a.Name() == name {
			return a
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Component not found"))
	dieOnErr(err)

	return nil
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.ProgressBars())
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memInfo.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(data)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
