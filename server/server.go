// Package server implements the HTTP front-end fixed by spec §6: route
// dispatch and JSON encoding over a multiindex.MultiIndex. Grounded on the
// teacher's index/server/server.go and handlers.go, which use gorilla/mux
// and a pair of writeResponse/writeErrorResponse JSON helpers with one
// handler struct per route; generalized here from the teacher's
// single-DB, fixed-route-set shape to the multi-index, richer route set
// spec §6 and the original C++ `server/http_test.cpp` fixture confirm.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fpindex/fpindex/ferrors"
	"github.com/fpindex/fpindex/multiindex"
)

func writeResponse(w http.ResponseWriter, status int, response interface{}) {
	body, err := json.Marshal(response)
	if err != nil {
		log.Printf("server: failed to serialize JSON response: %v", err)
		writeRawError(w, http.StatusInternalServerError, "internal_error", "JSON serialization error")
		return
	}
	body = append(body, '\n')
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	w.Write(body)
}

// errorEnvelope is the JSON error shape fixed by spec §6/§7 and confirmed
// by the original `server/http_test.cpp` fixture:
// `{"error":{"description":...,"type":"not_found"},"status":404}`.
type errorEnvelope struct {
	Error  errorBody `json:"error"`
	Status int       `json:"status"`
}

type errorBody struct {
	Description string `json:"description"`
	Type        string `json:"type"`
}

func writeRawError(w http.ResponseWriter, status int, errType, description string) {
	writeResponse(w, status, errorEnvelope{Error: errorBody{Description: description, Type: errType}, Status: status})
}

// writeError maps an engine/ferrors error to the front-end's status code
// and JSON envelope (spec §7 "User-visible mapping").
func writeError(w http.ResponseWriter, err error) {
	switch e := err.(type) {
	case *ferrors.NotFoundError:
		writeRawError(w, http.StatusNotFound, "not_found", fmt.Sprintf("%s does not exist", e.What))
	case *ferrors.AlreadyExistsError:
		writeRawError(w, http.StatusConflict, "already_exists", fmt.Sprintf("%s already exists", e.What))
	case *ferrors.InvalidArgumentError:
		writeRawError(w, http.StatusBadRequest, "invalid_argument", e.Detail)
	default:
		log.Printf("server: internal error: %v", err)
		writeRawError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// Handler builds the full HTTP surface fixed by spec §6 over mi.
func Handler(mi *multiindex.MultiIndex) http.Handler {
	r := mux.NewRouter()

	r.Path("/_health/ready").Methods("GET").HandlerFunc(healthHandler)
	r.Path("/_health/alive").Methods("GET").HandlerFunc(healthHandler)
	r.Path("/_metrics").Methods("GET").Handler(promhttp.Handler())

	const idxPat = "/{idx:[A-Za-z0-9_-]+}"

	r.Path(idxPat).Methods("HEAD", "GET").Handler(&getIndexHandler{mi: mi})
	r.Path(idxPat).Methods("PUT").Handler(&putIndexHandler{mi: mi})

	r.Path(idxPat + "/_doc/{id:[0-9]+}").Methods("HEAD", "GET").Handler(&getDocHandler{mi: mi})
	r.Path(idxPat + "/_doc/{id:[0-9]+}").Methods("PUT").Handler(&putDocHandler{mi: mi})
	r.Path(idxPat + "/_doc/{id:[0-9]+}").Methods("DELETE").Handler(&deleteDocHandler{mi: mi})

	r.Path(idxPat + "/_search").Methods("GET").Handler(&searchHandler{mi: mi})
	r.Path(idxPat + "/_flush").Methods("POST").Handler(&flushHandler{mi: mi})
	r.Path(idxPat + "/_bulk").Methods("POST").Handler(&bulkHandler{mi: mi})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK\n"))
}

// ListenAndServe serves the HTTP surface for mi on addr.
func ListenAndServe(addr string, mi *multiindex.MultiIndex) error {
	return http.ListenAndServe(addr, Handler(mi))
}
