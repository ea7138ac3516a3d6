package defender

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/angeloszaimis/defender/internal/executor"
)

// KeyStats is the observable state of one command key.
type KeyStats struct {
	State    string        `json:"state"`
	Success  uint32        `json:"success"`
	Error    uint32        `json:"error"`
	Timeout  uint32        `json:"timeout"`
	Rejected uint32        `json:"rejected"`
	P50      time.Duration `json:"p50"`
	P95      time.Duration `json:"p95"`
	P99      time.Duration `json:"p99"`
}

// Stats returns the breaker state and current window counters for every
// key that has seen a submission.
func (d *Defender) Stats() map[string]KeyStats {
	d.mutex.RLock()
	executors := make(map[string]*executor.Executor, len(d.executors))
	for key, exec := range d.executors {
		executors[key] = exec
	}
	d.mutex.RUnlock()

	result := make(map[string]KeyStats, len(executors))
	for key, exec := range executors {
		ks := exec.Stats()
		result[key] = KeyStats{
			State:    ks.State.String(),
			Success:  ks.Snapshot.Calls.Success,
			Error:    ks.Snapshot.Calls.Error,
			Timeout:  ks.Snapshot.Calls.Timeout,
			Rejected: ks.Snapshot.Calls.Rejected,
			P50:      ks.Snapshot.P50,
			P95:      ks.Snapshot.P95,
			P99:      ks.Snapshot.P99,
		}
	}

	return result
}

// Handler serves the per-key stats as JSON.
func (d *Defender) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(d.Stats()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}
