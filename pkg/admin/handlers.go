package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/arlenko/cellhive/pkg/txsupervisor"
)

// Handlers holds the supervisor and decommission controller an operator
// surface acts on.
type Handlers struct {
	sup    *txsupervisor.Supervisor
	decomm *txsupervisor.DecommissionController
}

func NewHandlers(sup *txsupervisor.Supervisor, decomm *txsupervisor.DecommissionController) *Handlers {
	return &Handlers{sup: sup, decomm: decomm}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"ok":      false,
		"message": message,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

func writeSuccess(w http.ResponseWriter, result interface{}) {
	response := map[string]interface{}{
		"ok":     true,
		"result": result,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// Health reports process liveness and whether this replica currently
// leads its cell.
func (h *Handlers) Health(startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w, map[string]interface{}{
			"status": "healthy",
			"uptime": time.Since(startTime).String(),
			"leader": h.sup.IsLeader(),
		})
	}
}

// Commits lists every commit this cell is still carrying persistent
// state for. Status only: no transaction payload ever crosses this
// surface.
func (h *Handlers) Commits(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, commitSummaryViews(h.sup.PersistentCommitSummaries()))
}

// DownedParticipants reports which of all known participant cells this
// replica currently considers unreachable. It reads no query
// parameters, so the list cannot be filtered.
func (h *Handlers) DownedParticipants(w http.ResponseWriter, r *http.Request) {
	down := h.sup.Registry().GetDownedParticipants(nil)
	out := make([]string, len(down))
	for i, c := range down {
		out[i] = c.String()
	}
	writeSuccess(w, map[string]interface{}{"downed": out})
}

// TriggerDecommission marks this cell as decommissioning: new
// distributed commits are refused from this point on.
func (h *Handlers) TriggerDecommission(w http.ResponseWriter, r *http.Request) {
	if err := h.decomm.TriggerDecommission(r.Context()); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeSuccess(w, map[string]interface{}{"decommissioning": true})
}

// RescindDecommission clears the decommission flag.
func (h *Handlers) RescindDecommission(w http.ResponseWriter, r *http.Request) {
	if err := h.decomm.Rescind(r.Context()); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeSuccess(w, map[string]interface{}{"decommissioning": false})
}

// DecommissionStatus reports whether this cell is decommissioning and,
// if so, whether every persistent commit has drained.
func (h *Handlers) DecommissionStatus(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, map[string]interface{}{
		"decommissioning": h.decomm.IsDecommissioning(),
		"drained":         h.decomm.Drained(),
	})
}

// TriggerSnapshot asks the consensus layer to write a snapshot now, if
// it supports on-demand snapshotting.
func (h *Handlers) TriggerSnapshot(w http.ResponseWriter, r *http.Request) {
	var buf jsonDiscardWriter
	supported, err := h.sup.TriggerSnapshot(buf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !supported {
		writeError(w, http.StatusNotImplemented, "consensus layer does not support on-demand snapshotting")
		return
	}
	writeSuccess(w, map[string]interface{}{"snapshotted": true})
}

// jsonDiscardWriter satisfies io.Writer while discarding bytes: the
// admin surface triggers a snapshot for its side effect on the
// consensus layer's own storage, not to capture the bytes itself.
type jsonDiscardWriter struct{}

func (jsonDiscardWriter) Write(p []byte) (int, error) { return len(p), nil }

func commitSummaryViews(summaries []txsupervisor.CommitSummary) []map[string]interface{} {
	out := make([]map[string]interface{}, len(summaries))
	for i, s := range summaries {
		cells := make([]string, len(s.ParticipantCellIds))
		for j, c := range s.ParticipantCellIds {
			cells[j] = c.String()
		}
		out[i] = map[string]interface{}{
			"txId":               s.TxId.String(),
			"userName":           s.UserName,
			"participantCellIds": cells,
			"distributed":        s.Distributed,
			"persistentState":    s.PersistentState.String(),
		}
	}
	return out
}
