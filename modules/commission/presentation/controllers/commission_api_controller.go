package controllers

import (
	"net/http"
	"strconv"

	"github.com/Rhymond/go-money"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/meridianlife/agency-sdk/modules/commission/services"
	"github.com/meridianlife/agency-sdk/pkg/composables"
	"github.com/meridianlife/agency-sdk/pkg/httpapi"
)

// CommissionAPIController exposes split allocation, membership lifecycle and
// preview under /api/commissions.
type CommissionAPIController struct {
	splits   *services.SplitService
	members  *services.MemberService
	preview  *services.PreviewService
	config   *services.ConfigService
	validate *validator.Validate
	basePath string
}

func NewCommissionAPIController(
	splits *services.SplitService,
	members *services.MemberService,
	preview *services.PreviewService,
	config *services.ConfigService,
) *CommissionAPIController {
	return &CommissionAPIController{
		splits:   splits,
		members:  members,
		preview:  preview,
		config:   config,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		basePath: "/api/commissions",
	}
}

func (c *CommissionAPIController) Key() string { return c.basePath }

func (c *CommissionAPIController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("/orgs/{orgId}/members", c.addMember).Methods(http.MethodPost)
	router.HandleFunc("/orgs/{orgId}/members/{userId}", c.removeMember).Methods(http.MethodDelete)
	router.HandleFunc("/orgs/{orgId}/members/{userId}/reactivate", c.reactivateMember).Methods(http.MethodPost)
	router.HandleFunc("/orgs/{orgId}/members/{userId}/split", c.updateSplit).Methods(http.MethodPut)
	router.HandleFunc("/orgs/{orgId}/splits/auto-balance", c.autoBalance).Methods(http.MethodPost)
	router.HandleFunc("/orgs/{orgId}/splits", c.getConfig).Methods(http.MethodGet)
	router.HandleFunc("/orgs/{orgId}/splits/validate", c.validateConfig).Methods(http.MethodGet)
	router.HandleFunc("/orgs/{orgId}/splits/history", c.history).Methods(http.MethodGet)
	router.HandleFunc("/splits/bulk", c.bulkUpdate).Methods(http.MethodPost)
	router.HandleFunc("/cases/{caseId}/preview", c.previewSplit).Methods(http.MethodPost)
}

type updateSplitRequest struct {
	SplitPercent decimal.Decimal `json:"split_percent"`
}

type addMemberRequest struct {
	UserID       uuid.UUID       `json:"user_id" validate:"required"`
	Role         string          `json:"role" validate:"omitempty,max=64"`
	SplitPercent decimal.Decimal `json:"split_percent"`
}

type reactivateMemberRequest struct {
	SplitPercent decimal.Decimal `json:"split_percent"`
}

type bulkUpdateRequest struct {
	Entries []services.SplitUpdateEntry `json:"entries" validate:"required,min=1,dive"`
}

type previewRequest struct {
	TotalAmountCents int64  `json:"total_amount_cents" validate:"gte=0"`
	Currency         string `json:"currency" validate:"omitempty,len=3"`
}

func (c *CommissionAPIController) updateSplit(w http.ResponseWriter, r *http.Request) {
	actorID, err := composables.UseActorID(r.Context())
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	orgID, userID, ok := orgUserIDs(w, r)
	if !ok {
		return
	}

	var req updateSplitRequest
	if err := httpapi.DecodeJSON(r.Body, &req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "SPLIT_INVALID_BODY", "malformed JSON body", nil)
		return
	}

	m, err := c.splits.UpdateMemberSplit(r.Context(), orgID, userID, req.SplitPercent, actorID)
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, m)
}

func (c *CommissionAPIController) bulkUpdate(w http.ResponseWriter, r *http.Request) {
	actorID, err := composables.UseActorID(r.Context())
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}

	var req bulkUpdateRequest
	if err := httpapi.DecodeJSON(r.Body, &req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "SPLIT_INVALID_BODY", "malformed JSON body", nil)
		return
	}
	if err := c.validate.Struct(&req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "SPLIT_INVALID_BODY", err.Error(), nil)
		return
	}

	results, err := c.splits.BulkUpdateSplits(r.Context(), req.Entries, actorID)
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	// 207: per-entry outcomes, some of which may be failures.
	_ = httpapi.WriteJSON(w, http.StatusMultiStatus, results)
}

func (c *CommissionAPIController) autoBalance(w http.ResponseWriter, r *http.Request) {
	actorID, err := composables.UseActorID(r.Context())
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	orgID, ok := pathUUID(w, r, "orgId")
	if !ok {
		return
	}

	balanced, err := c.splits.AutoBalance(r.Context(), orgID, actorID)
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, balanced)
}

func (c *CommissionAPIController) addMember(w http.ResponseWriter, r *http.Request) {
	actorID, err := composables.UseActorID(r.Context())
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	orgID, ok := pathUUID(w, r, "orgId")
	if !ok {
		return
	}

	var req addMemberRequest
	if err := httpapi.DecodeJSON(r.Body, &req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "SPLIT_INVALID_BODY", "malformed JSON body", nil)
		return
	}
	if err := c.validate.Struct(&req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "SPLIT_INVALID_BODY", err.Error(), nil)
		return
	}

	m, err := c.members.AddMember(r.Context(), services.AddMemberInput{
		OrganizationID: orgID,
		UserID:         req.UserID,
		Role:           req.Role,
		SplitPercent:   req.SplitPercent,
	}, actorID)
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, m)
}

func (c *CommissionAPIController) removeMember(w http.ResponseWriter, r *http.Request) {
	actorID, err := composables.UseActorID(r.Context())
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	orgID, userID, ok := orgUserIDs(w, r)
	if !ok {
		return
	}

	if err := c.members.RemoveMember(r.Context(), orgID, userID, actorID); err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *CommissionAPIController) reactivateMember(w http.ResponseWriter, r *http.Request) {
	actorID, err := composables.UseActorID(r.Context())
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	orgID, userID, ok := orgUserIDs(w, r)
	if !ok {
		return
	}

	var req reactivateMemberRequest
	if err := httpapi.DecodeJSON(r.Body, &req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "SPLIT_INVALID_BODY", "malformed JSON body", nil)
		return
	}

	m, err := c.members.ReactivateMember(r.Context(), orgID, userID, req.SplitPercent, actorID)
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, m)
}

func (c *CommissionAPIController) previewSplit(w http.ResponseWriter, r *http.Request) {
	caseID, ok := pathUUID(w, r, "caseId")
	if !ok {
		return
	}

	var req previewRequest
	if err := httpapi.DecodeJSON(r.Body, &req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "SPLIT_INVALID_BODY", "malformed JSON body", nil)
		return
	}
	if err := c.validate.Struct(&req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "SPLIT_INVALID_BODY", err.Error(), nil)
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = money.USD
	}

	shares, err := c.preview.PreviewSplit(r.Context(), caseID, money.New(req.TotalAmountCents, currency))
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, shares)
}

func (c *CommissionAPIController) getConfig(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathUUID(w, r, "orgId")
	if !ok {
		return
	}
	cfg, err := c.config.GetConfig(r.Context(), orgID)
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, cfg)
}

func (c *CommissionAPIController) validateConfig(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathUUID(w, r, "orgId")
	if !ok {
		return
	}
	issues, err := c.config.ValidateConfig(r.Context(), orgID)
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, issues)
}

func (c *CommissionAPIController) history(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathUUID(w, r, "orgId")
	if !ok {
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			_ = httpapi.WriteError(w, http.StatusBadRequest, "SPLIT_INVALID_BODY", "limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}

	entries, err := c.config.GetSplitHistory(r.Context(), orgID, limit)
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, entries)
}

func orgUserIDs(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	orgID, ok := pathUUID(w, r, "orgId")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	userID, ok := pathUUID(w, r, "userId")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return orgID, userID, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "SPLIT_INVALID_BODY", name+" must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}
