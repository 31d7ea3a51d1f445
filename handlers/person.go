package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/camden-git/mediasysintegrity/duplicates"
)

type PersonHandler struct {
	Resolver *duplicates.Resolver
}

func (ph *PersonHandler) ListDuplicates(w http.ResponseWriter, r *http.Request) {
	groups, err := ph.Resolver.FindGroups(r.Context())
	if err != nil {
		log.Printf("Error finding duplicate people: %v", err)
		writeFailure(w, http.StatusInternalServerError, err, nil)
		return
	}
	if groups == nil {
		groups = []duplicates.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (ph *PersonHandler) MergePeople(w http.ResponseWriter, r *http.Request) {
	var req duplicates.MergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, codeInvalidBody, fmt.Errorf("invalid request body: %w", err))
		return
	}

	res, err := ph.Resolver.Merge(r.Context(), req)
	switch {
	case errors.Is(err, duplicates.ErrInvalidMerge):
		writeValidationError(w, codeInvalidMerge, err)
	case errors.Is(err, duplicates.ErrIdentityNotFound):
		writeNotFound(w, err)
	case err != nil:
		log.Printf("Error merging %v into person %d: %v", req.MergeIDs, req.KeepID, err)
		writeFailure(w, http.StatusInternalServerError, err, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (ph *PersonHandler) DeletePerson(w http.ResponseWriter, r *http.Request) {
	personID, err := uintParam(r, "person_id")
	if err != nil {
		writeValidationError(w, codeInvalidID, err)
		return
	}

	res, err := ph.Resolver.DeleteWithUnlink(r.Context(), personID)
	switch {
	case errors.Is(err, duplicates.ErrIdentityNotFound):
		writeNotFound(w, err)
	case err != nil:
		log.Printf("Error deleting person %d: %v", personID, err)
		writeFailure(w, http.StatusInternalServerError, err, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}
