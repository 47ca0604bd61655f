package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/forklens/internal/auth"
	"github.com/sakif/forklens/internal/model"
	"github.com/sakif/forklens/internal/service"
)

// GraphHandler exposes the fork read path and the saved-graph CRUD.
//
// ROUTES:
//
//	GET    /api/forks/{owner}/{repo}  (optional auth — the service decides
//	                                   between the cached and anonymous paths)
//	GET    /api/graphs                (auth required)
//	POST   /api/graphs                (auth required)
//	DELETE /api/graphs/{id}           (auth required)
type GraphHandler struct {
	graphs *service.GraphService
	logger *slog.Logger
}

// NewGraphHandler creates a GraphHandler.
func NewGraphHandler(graphs *service.GraphService, logger *slog.Logger) *GraphHandler {
	return &GraphHandler{graphs: graphs, logger: logger}
}

// HandleGetForks serves the fork report for a repository.
//
// HTTP: GET /api/forks/{owner}/{repo}
//
// The userID comes from OptionalAuth: empty for anonymous visitors, which
// routes them past the snapshot cache and the quota entirely.
func (h *GraphHandler) HandleGetForks(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	repo := r.PathValue("repo")

	userID, _ := auth.UserIDFromContext(r.Context())

	report, err := h.graphs.GetForkData(r.Context(), userID, owner, repo)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// HandleList returns the caller's saved graphs, newest update first.
//
// HTTP: GET /api/graphs
func (h *GraphHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	graphs, err := h.graphs.ListGraphs(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, graphs)
}

// saveGraphRequest is the POST /api/graphs body. The report is the payload
// the client just rendered — saving pins exactly what the user is looking
// at, without spending another fetch.
type saveGraphRequest struct {
	RepoOwner string            `json:"repoOwner"`
	RepoName  string            `json:"repoName"`
	Report    *model.ForkReport `json:"report"`
}

// HandleSave pins a graph to the caller's dashboard.
//
// HTTP: POST /api/graphs
func (h *GraphHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req saveGraphRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid save-graph JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	graph, err := h.graphs.SaveGraph(r.Context(), userID, req.RepoOwner, req.RepoName, req.Report)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, graph)
}

// HandleDelete removes a saved graph owned by the caller.
//
// HTTP: DELETE /api/graphs/{id}
func (h *GraphHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.graphs.DeleteGraph(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
