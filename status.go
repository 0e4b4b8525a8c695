package stackup

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/stackup-dev/stackup/process"
	"github.com/stackup-dev/stackup/procusage"
)

// DefaultLogLines is the number of output lines returned by the log
// endpoint when none is requested.
const DefaultLogLines = 100

// ProcessStatus is the status server's view of a process.
type ProcessStatus struct {
	process.ProcessInfo
	Usage *procusage.ResourceUsage `json:"usage,omitempty"`
}

// Handler returns the HTTP handler of the status server:
//
//	GET /processes                 all processes
//	GET /processes/{name}          one process, with its resource usage
//	GET /processes/{name}/log      the last lines of output (?lines=N)
//	GET /ports                     the port assignment
//	GET /version                   the stackup version
func (s *Supervisor) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/processes", s.handleProcesses).Methods(http.MethodGet)
	r.HandleFunc("/processes/{name}", s.handleProcess).Methods(http.MethodGet)
	r.HandleFunc("/processes/{name}/log", s.handleLog).Methods(http.MethodGet)
	r.HandleFunc("/ports", s.handlePorts).Methods(http.MethodGet)
	r.HandleFunc("/version", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]string{"version": Version})
	}).Methods(http.MethodGet)
	return r
}

func (s *Supervisor) handleProcesses(w http.ResponseWriter, req *http.Request) {
	infos := s.Processes()
	statuses := make([]ProcessStatus, 0, len(infos))
	for _, info := range infos {
		statuses = append(statuses, ProcessStatus{ProcessInfo: info})
	}
	writeJSON(w, statuses)
}

func (s *Supervisor) handleProcess(w http.ResponseWriter, req *http.Request) {
	info, ok := s.findProcess(mux.Vars(req)["name"])
	if !ok {
		http.Error(w, "no such process", http.StatusNotFound)
		return
	}
	status := ProcessStatus{ProcessInfo: info}
	if info.Pid != 0 {
		usage, err := procusage.Stat(req.Context(), info.Pid)
		if err != nil {
			zap.L().Debug("cannot get resource usage", zap.String("prog", info.Name), zap.Error(err))
		} else {
			status.Usage = usage
		}
	}
	writeJSON(w, status)
}

func (s *Supervisor) handleLog(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	if _, ok := s.findProcess(name); !ok {
		http.Error(w, "no such process", http.StatusNotFound)
		return
	}
	lines := DefaultLogLines
	if v := req.URL.Query().Get("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid lines parameter", http.StatusBadRequest)
			return
		}
		lines = n
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if l := s.logger(name); l != nil {
		w.Write(l.Tail(lines))
	}
}

func (s *Supervisor) handlePorts(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, s.Assignment())
}

func (s *Supervisor) findProcess(name string) (process.ProcessInfo, bool) {
	for _, info := range s.Processes() {
		if info.Name == name {
			return info, true
		}
	}
	return process.ProcessInfo{}, false
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("cannot write response", zap.Error(err))
	}
}
