package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fidus-platform/fidus/internal/domain"
	"github.com/fidus-platform/fidus/internal/pnl"
)

// GetAdminView handles GET /api/v1/pnl/admin.
func (h *Handler) GetAdminView(w http.ResponseWriter, r *http.Request) {
	view, err := h.pnl.AdminView(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to compute admin view")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetClientPnL handles GET /api/v1/pnl/clients/{clientID}. With strict=true a client
// with no accounts is a 404 instead of a zero result.
func (h *Handler) GetClientPnL(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	result, err := h.pnl.ClientView(r.Context(), clientID)
	if err == nil && r.URL.Query().Get("strict") == "true" {
		err = pnl.RequireAccounts(result)
	}
	if err != nil {
		writeServiceError(w, err, "failed to compute client pnl", "client", clientID)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetTierPnL handles GET /api/v1/pnl/tiers/{tier}. The client tier takes ?clientId=.
func (h *Handler) GetTierPnL(w http.ResponseWriter, r *http.Request) {
	tier, err := domain.ParseTier(chi.URLParam(r, "tier"))
	if err != nil {
		writeServiceError(w, err, "invalid tier")
		return
	}
	result, err := h.pnl.CalculateTier(r.Context(), tier, r.URL.Query().Get("clientId"))
	if err != nil {
		writeServiceError(w, err, "failed to compute tier pnl", "tier", tier)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetFundPnL handles GET /api/v1/pnl/funds/{fund}.
func (h *Handler) GetFundPnL(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFundParam(w, r)
	if !ok {
		return
	}
	result, err := h.pnl.CalculateFund(r.Context(), f)
	if err != nil {
		writeServiceError(w, err, "failed to compute fund pnl", "fund", f)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetManagerPnL handles GET /api/v1/pnl/managers/{managerID}.
func (h *Handler) GetManagerPnL(w http.ResponseWriter, r *http.Request) {
	managerID := chi.URLParam(r, "managerID")
	result, err := h.pnl.CalculateManager(r.Context(), managerID)
	if err != nil {
		writeServiceError(w, err, "failed to compute manager pnl", "manager", managerID)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetFundGap handles GET /api/v1/funds/gap.
func (h *Handler) GetFundGap(w http.ResponseWriter, r *http.Request) {
	report, err := h.gap.FundGap(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to compute fund gap")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetFundObligation handles GET /api/v1/funds/{fund}/obligation.
func (h *Handler) GetFundObligation(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFundParam(w, r)
	if !ok {
		return
	}
	obligation, err := h.gap.ObligationFor(r.Context(), f)
	if err != nil {
		writeServiceError(w, err, "failed to compute fund obligation", "fund", f)
		return
	}
	writeJSON(w, http.StatusOK, obligation)
}

// GetAccountAnalytics handles GET /api/v1/accounts/{account}/analytics?from=&to=.
// Dates are YYYY-MM-DD; from is inclusive and to is exclusive.
func (h *Handler) GetAccountAnalytics(w http.ResponseWriter, r *http.Request) {
	number, ok := parseAccountParam(w, r)
	if !ok {
		return
	}
	var window domain.Window
	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"from", &window.Start}, {"to", &window.End}} {
		v := r.URL.Query().Get(p.key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+p.key+" date, expected YYYY-MM-DD")
			return
		}
		*p.dst = t
	}

	report, err := h.accounts.Account(r.Context(), number, window)
	if err != nil {
		writeServiceError(w, err, "failed to compute account analytics", "account", number)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetAccountRisk handles GET /api/v1/accounts/{account}/risk?confidence=&horizon=.
func (h *Handler) GetAccountRisk(w http.ResponseWriter, r *http.Request) {
	number, ok := parseAccountParam(w, r)
	if !ok {
		return
	}
	confidence := 0.95
	if v := r.URL.Query().Get("confidence"); v != "" {
		c, err := strconv.ParseFloat(v, 64)
		if err != nil || c <= 0 || c >= 1 {
			writeError(w, http.StatusBadRequest, "confidence must be a number in (0, 1)")
			return
		}
		confidence = c
	}
	horizon := 1
	if v := r.URL.Query().Get("horizon"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "horizon must be a positive number of days")
			return
		}
		horizon = n
	}

	report, err := h.accounts.Risk(r.Context(), number, confidence, horizon)
	if err != nil {
		writeServiceError(w, err, "failed to compute account risk", "account", number)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func parseFundParam(w http.ResponseWriter, r *http.Request) (domain.Fund, bool) {
	f, err := domain.ParseFund(chi.URLParam(r, "fund"))
	if err != nil || f == domain.FundUnassigned {
		writeError(w, http.StatusBadRequest, "unknown fund")
		return "", false
	}
	return f, true
}

func parseAccountParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	n, err := strconv.ParseInt(chi.URLParam(r, "account"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account number")
		return 0, false
	}
	return n, true
}
