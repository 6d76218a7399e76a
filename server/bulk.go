package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fpindex/fpindex/engine"
	"github.com/fpindex/fpindex/ferrors"
	"github.com/fpindex/fpindex/multiindex"
)

// bulkOp is the tagged variant spec §9's "Design Notes" calls for: decoded
// once at this front-end boundary, then applied against the engine
// unchanged. Exactly one of Upsert, Delete, Set is non-nil per op.
type bulkOp struct {
	Upsert *bulkUpsertOp `json:"upsert,omitempty"`
	Delete *bulkDeleteOp `json:"delete,omitempty"`
	Set    *bulkSetOp    `json:"set,omitempty"`
}

type bulkUpsertOp struct {
	ID    uint32   `json:"id"`
	Terms termList `json:"terms"`
}

type bulkDeleteOp struct {
	ID uint32 `json:"id"`
}

type bulkSetOp struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// decodeBulkBody accepts either a bare JSON array of ops or
// `{"operations":[...]}`, per spec §6 and the original's
// TestBulkArrayForm/TestBulkOperationsForm equivalence.
func decodeBulkBody(data []byte) ([]bulkOp, error) {
	var ops []bulkOp
	if err := json.Unmarshal(data, &ops); err == nil {
		return ops, nil
	}

	var wrapped struct {
		Operations []bulkOp `json:"operations"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Operations, nil
}

type bulkHandler struct {
	mi *multiindex.MultiIndex
}

func (h *bulkHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	idx, err := h.mi.GetIndex(mux.Vars(r)["idx"])
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, ferrors.InvalidArgument("failed to read request body"))
		return
	}

	ops, err := decodeBulkBody(body)
	if err != nil {
		writeError(w, ferrors.InvalidArgument("invalid bulk body: "+err.Error()))
		return
	}
	for _, op := range ops {
		if err := validateBulkOp(op); err != nil {
			writeError(w, err)
			return
		}
	}

	if err := applyBulkOps(idx, ops); err != nil {
		writeError(w, err)
		return
	}

	writeResponse(w, http.StatusOK, struct{}{})
}

func validateBulkOp(op bulkOp) error {
	n := 0
	if op.Upsert != nil {
		n++
	}
	if op.Delete != nil {
		n++
	}
	if op.Set != nil {
		n++
	}
	if n != 1 {
		return ferrors.InvalidArgument("each bulk operation must set exactly one of upsert, delete, set")
	}
	return nil
}

// applyBulkOps applies every op in order. Ops are fully parsed and
// validated by the caller before this runs, so the only failures possible
// here are engine-level (closed index, I/O); spec §6's "all-or-nothing" is
// achieved at the validation boundary, matching the teacher's
// index.Transaction, which likewise never rolls back a partially-applied
// batch once individual ops start succeeding.
func applyBulkOps(idx *engine.Index, ops []bulkOp) error {
	for _, op := range ops {
		switch {
		case op.Upsert != nil:
			if _, err := idx.Upsert(op.Upsert.ID, op.Upsert.Terms); err != nil {
				return err
			}
		case op.Delete != nil:
			if _, err := idx.Delete(op.Delete.ID); err != nil {
				return err
			}
		case op.Set != nil:
			if _, err := idx.SetAttribute(op.Set.Name, op.Set.Value); err != nil {
				return err
			}
		}
	}
	return nil
}
