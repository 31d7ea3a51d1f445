package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/mediasysintegrity/integrity"
)

type IntegrityHandler struct {
	Engine *integrity.Engine
}

// GetAudit runs a full audit and returns the report.
func (h *IntegrityHandler) GetAudit(w http.ResponseWriter, r *http.Request) {
	report, err := h.Engine.Audit(r.Context())
	if err != nil {
		log.Printf("Error running integrity audit: %v", err)
		writeFailure(w, http.StatusInternalServerError, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *IntegrityHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, integrity.Categories())
}

func (h *IntegrityHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.Engine.Policy.Policy(r.Context())
	if err != nil {
		log.Printf("Error loading policy: %v", err)
		writeFailure(w, http.StatusInternalServerError, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// RepairCategory repairs one category. The body is always a RepairResult;
// the status tells a bad category (400) from a failed write (500).
func (h *IntegrityHandler) RepairCategory(w http.ResponseWriter, r *http.Request) {
	category := integrity.Category(chi.URLParam(r, "category"))
	res := h.Engine.Repair(r.Context(), category)
	if res.Success {
		writeJSON(w, http.StatusOK, res)
		return
	}

	status := http.StatusInternalServerError
	if info, err := integrity.Lookup(category); errors.Is(err, integrity.ErrUnknownCategory) || !info.AutoFixable {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, res)
}

// RepairAll runs every automatic repair once.
func (h *IntegrityHandler) RepairAll(w http.ResponseWriter, r *http.Request) {
	results := h.Engine.RepairAll(r.Context())
	var fixed int64
	success := true
	for _, res := range results {
		fixed += res.Fixed
		success = success && res.Success
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": success,
		"fixed":   fixed,
		"results": results,
	})
}
