package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/fpindex/fpindex/engine"
	"github.com/fpindex/fpindex/ferrors"
	"github.com/fpindex/fpindex/multiindex"
)

type getIndexHandler struct {
	mi *multiindex.MultiIndex
}

func (h *getIndexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["idx"]
	idx, err := h.mi.GetIndex(name)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.Method == "HEAD" {
		writeResponse(w, http.StatusOK, struct{}{})
		return
	}

	type response struct {
		Revision uint64 `json:"revision"`
	}
	writeResponse(w, http.StatusOK, response{Revision: idx.Revision()})
}

type putIndexHandler struct {
	mi *multiindex.MultiIndex
}

func (h *putIndexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["idx"]
	idx, _, err := h.mi.GetOrCreateIndex(name)
	if err != nil {
		writeError(w, err)
		return
	}

	type response struct {
		Revision uint64 `json:"revision"`
	}
	writeResponse(w, http.StatusOK, response{Revision: idx.Revision()})
}

type getDocHandler struct {
	mi *multiindex.MultiIndex
}

func (h *getDocHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	idx, err := h.mi.GetIndex(vars["idx"])
	if err != nil {
		writeError(w, err)
		return
	}

	docID, err := strconv.ParseUint(vars["id"], 10, 32)
	if err != nil {
		writeError(w, ferrors.InvalidArgument("invalid document id"))
		return
	}

	ok, err := idx.ContainsDocument(uint32(docID))
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, ferrors.NotFound("document", vars["id"]))
		return
	}

	type response struct {
		ID uint32 `json:"id"`
	}
	writeResponse(w, http.StatusOK, response{ID: uint32(docID)})
}

type putDocHandler struct {
	mi *multiindex.MultiIndex
}

func (h *putDocHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	idx, err := h.mi.GetIndex(vars["idx"])
	if err != nil {
		writeError(w, err)
		return
	}

	docID, err := strconv.ParseUint(vars["id"], 10, 32)
	if err != nil {
		writeError(w, ferrors.InvalidArgument("invalid document id"))
		return
	}

	var input struct {
		Terms termList `json:"terms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, ferrors.InvalidArgument("invalid request body: "+err.Error()))
		return
	}

	if _, err := idx.Upsert(uint32(docID), input.Terms); err != nil {
		writeError(w, err)
		return
	}

	writeResponse(w, http.StatusOK, struct{}{})
}

type deleteDocHandler struct {
	mi *multiindex.MultiIndex
}

func (h *deleteDocHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	idx, err := h.mi.GetIndex(vars["idx"])
	if err != nil {
		writeError(w, err)
		return
	}

	docID, err := strconv.ParseUint(vars["id"], 10, 32)
	if err != nil {
		writeError(w, ferrors.InvalidArgument("invalid document id"))
		return
	}

	if _, err := idx.Delete(uint32(docID)); err != nil {
		writeError(w, err)
		return
	}

	writeResponse(w, http.StatusOK, struct{}{})
}

type searchHandler struct {
	mi *multiindex.MultiIndex
}

func (h *searchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	idx, err := h.mi.GetIndex(vars["idx"])
	if err != nil {
		writeError(w, err)
		return
	}

	query, err := parseTermsParam(r.URL.Query().Get("query"))
	if err != nil {
		writeError(w, ferrors.InvalidArgument("invalid query: "+err.Error()))
		return
	}

	var opts engine.SearchOptions
	if s := r.URL.Query(); s.Has("limit") {
		limit, err := strconv.Atoi(s.Get("limit"))
		if err != nil {
			writeError(w, ferrors.InvalidArgument("invalid limit"))
			return
		}
		opts.Limit = &limit
	}
	if s := r.URL.Query(); s.Has("min_score") {
		minScore, err := strconv.ParseUint(s.Get("min_score"), 10, 32)
		if err != nil {
			writeError(w, ferrors.InvalidArgument("invalid min_score"))
			return
		}
		v := uint32(minScore)
		opts.MinScore = &v
	}

	result, err := idx.Search(r.Context(), query, opts)
	if err != nil {
		writeError(w, err)
		return
	}

	type hit struct {
		ID    uint32 `json:"id"`
		Score uint32 `json:"score"`
	}
	type response struct {
		Results []hit `json:"results"`
	}
	out := response{Results: make([]hit, len(result.Hits))}
	for i, h := range result.Hits {
		out.Results[i] = hit{ID: h.DocID, Score: h.Score}
	}
	writeResponse(w, http.StatusOK, out)
}

type flushHandler struct {
	mi *multiindex.MultiIndex
}

func (h *flushHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	idx, err := h.mi.GetIndex(mux.Vars(r)["idx"])
	if err != nil {
		writeError(w, err)
		return
	}
	if err := idx.Flush(); err != nil {
		writeError(w, err)
		return
	}
	writeResponse(w, http.StatusOK, struct{}{})
}
