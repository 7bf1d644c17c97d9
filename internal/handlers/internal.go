package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/prasathkrishna17/Botique-maid/internal/platform/auth"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/httpx"
	"github.com/prasathkrishna17/Botique-maid/internal/services"
)

// InternalHandlers serves scheduler-triggered jobs. Mount behind the OIDC validator.
type InternalHandlers struct {
	reconciliations services.ReconciliationService
}

// NewInternalHandlers constructs internal job handlers.
func NewInternalHandlers(reconciliations services.ReconciliationService) *InternalHandlers {
	return &InternalHandlers{reconciliations: reconciliations}
}

// Routes registers internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/reports/reconciliations", h.exportReconciliations)
}

type exportResponse struct {
	Object     string `json:"object"`
	URI        string `json:"uri"`
	Count      int    `json:"count"`
	ExportedAt string `json:"exportedAt"`
	Caller     string `json:"caller,omitempty"`
}

func (h *InternalHandlers) exportReconciliations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciliations == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reconciliation_unavailable", "reconciliation service unavailable", http.StatusServiceUnavailable))
		return
	}

	export, err := h.reconciliations.Export(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := exportResponse{
		Object:     export.Object.Name,
		URI:        export.Object.URI(),
		Count:      export.Count,
		ExportedAt: export.ExportedAt.UTC().Format(time.RFC3339),
	}
	if identity, ok := auth.ServiceIdentityFromContext(ctx); ok && identity != nil {
		payload.Caller = identity.Email
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}
