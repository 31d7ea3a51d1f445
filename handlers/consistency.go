package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/camden-git/mediasysintegrity/consistency"
)

type ConsistencyHandler struct {
	Auditor *consistency.Auditor
}

type linkSelection struct {
	LinkIDs []uint `json:"link_ids"`
	// Outliers selects every current outlier instead of LinkIDs.
	Outliers bool `json:"outliers"`
}

func (ch *ConsistencyHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, consistency.ErrIdentityNotFound):
		writeNotFound(w, err)
	case errors.Is(err, consistency.ErrNoLinks):
		writeValidationError(w, codeNoLinks, err)
	default:
		log.Printf("Error in consistency operation: %v", err)
		writeFailure(w, http.StatusInternalServerError, err, nil)
	}
}

func (ch *ConsistencyHandler) GetConsistency(w http.ResponseWriter, r *http.Request) {
	personID, err := uintParam(r, "person_id")
	if err != nil {
		writeValidationError(w, codeInvalidID, err)
		return
	}
	res, err := ch.Auditor.AuditIdentity(r.Context(), personID)
	if err != nil {
		ch.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// selection parses the person id and link selection shared by the exclude,
// restore and clear endpoints. It writes the error response itself.
func selection(w http.ResponseWriter, r *http.Request) (uint, linkSelection, bool) {
	var sel linkSelection
	personID, err := uintParam(r, "person_id")
	if err != nil {
		writeValidationError(w, codeInvalidID, err)
		return 0, sel, false
	}
	if err := decodeBody(r, &sel); err != nil {
		writeValidationError(w, codeInvalidBody, err)
		return 0, sel, false
	}
	return personID, sel, true
}

func mutationResult(action string, personID uint, affected int64) map[string]interface{} {
	return map[string]interface{}{
		"success":   true,
		"action":    action,
		"person_id": personID,
		"affected":  affected,
	}
}

func (ch *ConsistencyHandler) ExcludeLinks(w http.ResponseWriter, r *http.Request) {
	personID, sel, ok := selection(w, r)
	if !ok {
		return
	}
	if sel.Outliers {
		res, n, err := ch.Auditor.ExcludeOutliers(r.Context(), personID)
		if err != nil {
			ch.writeError(w, err)
			return
		}
		body := mutationResult("exclude", personID, n)
		body["audit"] = res
		writeJSON(w, http.StatusOK, body)
		return
	}

	n, err := ch.Auditor.Exclude(r.Context(), personID, sel.LinkIDs)
	if err != nil {
		ch.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResult("exclude", personID, n))
}

func (ch *ConsistencyHandler) RestoreLinks(w http.ResponseWriter, r *http.Request) {
	personID, sel, ok := selection(w, r)
	if !ok {
		return
	}
	n, err := ch.Auditor.Restore(r.Context(), personID, sel.LinkIDs)
	if err != nil {
		ch.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResult("restore", personID, n))
}

func (ch *ConsistencyHandler) ClearLinks(w http.ResponseWriter, r *http.Request) {
	personID, sel, ok := selection(w, r)
	if !ok {
		return
	}
	n, err := ch.Auditor.Clear(r.Context(), personID, sel.LinkIDs)
	if err != nil {
		ch.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResult("clear", personID, n))
}

func (ch *ConsistencyHandler) AuditAll(w http.ResponseWriter, r *http.Request) {
	var opts consistency.MassOptions
	if err := decodeBody(r, &opts); err != nil {
		writeValidationError(w, codeInvalidBody, err)
		return
	}
	res, err := ch.Auditor.AuditAll(r.Context(), opts)
	if err != nil {
		log.Printf("Error running mass consistency audit: %v", err)
		writeFailure(w, http.StatusInternalServerError, err, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
