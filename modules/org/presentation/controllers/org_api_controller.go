package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/meridianlife/agency-sdk/modules/org/services"
	"github.com/meridianlife/agency-sdk/pkg/composables"
	"github.com/meridianlife/agency-sdk/pkg/httpapi"
)

// OrgAPIController exposes the hierarchy operations under /api/orgs.
type OrgAPIController struct {
	service  *services.HierarchyService
	validate *validator.Validate
	basePath string
}

func NewOrgAPIController(service *services.HierarchyService) *OrgAPIController {
	return &OrgAPIController{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		basePath: "/api/orgs",
	}
}

func (c *OrgAPIController) Key() string { return c.basePath }

func (c *OrgAPIController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("", c.create).Methods(http.MethodPost)
	router.HandleFunc("/tree", c.tree).Methods(http.MethodGet)
	router.HandleFunc("/{id}", c.update).Methods(http.MethodPatch)
	router.HandleFunc("/{id}", c.delete).Methods(http.MethodDelete)
	router.HandleFunc("/{id}/move", c.move).Methods(http.MethodPost)
	router.HandleFunc("/{id}/path", c.path).Methods(http.MethodGet)
	router.HandleFunc("/{id}/tree", c.subtree).Methods(http.MethodGet)
}

type createOrgRequest struct {
	Name        string     `json:"name" validate:"required,min=1,max=255"`
	Type        string     `json:"type" validate:"required,oneof=imo mga agency team"`
	ParentID    *uuid.UUID `json:"parent_id"`
	Email       string     `json:"email" validate:"omitempty,email"`
	Phone       string     `json:"phone" validate:"omitempty,max=32"`
	AddressLine string     `json:"address_line" validate:"omitempty,max=255"`
	City        string     `json:"city" validate:"omitempty,max=128"`
	Region      string     `json:"region" validate:"omitempty,max=128"`
	PostalCode  string     `json:"postal_code" validate:"omitempty,max=16"`
}

// optionalUUID distinguishes an absent parent_id from an explicit null, so a
// PATCH can move an organization to the root.
type optionalUUID struct {
	Set   bool
	Value *uuid.UUID
}

func (o *optionalUUID) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var id uuid.UUID
	if err := json.Unmarshal(b, &id); err != nil {
		return err
	}
	o.Value = &id
	return nil
}

type updateOrgRequest struct {
	Name        *string      `json:"name" validate:"omitempty,min=1,max=255"`
	Type        *string      `json:"type" validate:"omitempty,oneof=imo mga agency team"`
	ParentID    optionalUUID `json:"parent_id"`
	Email       *string      `json:"email" validate:"omitempty,email"`
	Phone       *string      `json:"phone" validate:"omitempty,max=32"`
	AddressLine *string      `json:"address_line" validate:"omitempty,max=255"`
	City        *string      `json:"city" validate:"omitempty,max=128"`
	Region      *string      `json:"region" validate:"omitempty,max=128"`
	PostalCode  *string      `json:"postal_code" validate:"omitempty,max=16"`
}

type moveOrgRequest struct {
	NewParentID *uuid.UUID `json:"new_parent_id"`
}

func (c *OrgAPIController) create(w http.ResponseWriter, r *http.Request) {
	actorID, err := composables.UseActorID(r.Context())
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}

	var req createOrgRequest
	if err := httpapi.DecodeJSON(r.Body, &req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "ORG_INVALID_BODY", "malformed JSON body", nil)
		return
	}
	if err := c.validate.Struct(&req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "ORG_INVALID_BODY", err.Error(), nil)
		return
	}

	org, err := c.service.Create(r.Context(), services.CreateOrganizationInput{
		Name:        req.Name,
		Type:        req.Type,
		ParentID:    req.ParentID,
		Email:       req.Email,
		Phone:       req.Phone,
		AddressLine: req.AddressLine,
		City:        req.City,
		Region:      req.Region,
		PostalCode:  req.PostalCode,
	}, actorID)
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, org)
}

func (c *OrgAPIController) update(w http.ResponseWriter, r *http.Request) {
	actorID, err := composables.UseActorID(r.Context())
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req updateOrgRequest
	if err := httpapi.DecodeJSON(r.Body, &req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "ORG_INVALID_BODY", "malformed JSON body", nil)
		return
	}
	if err := c.validate.Struct(&req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "ORG_INVALID_BODY", err.Error(), nil)
		return
	}

	in := services.UpdateOrganizationInput{
		Name:        req.Name,
		Type:        req.Type,
		Email:       req.Email,
		Phone:       req.Phone,
		AddressLine: req.AddressLine,
		City:        req.City,
		Region:      req.Region,
		PostalCode:  req.PostalCode,
	}
	if req.ParentID.Set {
		in.ParentID = &req.ParentID.Value
	}

	org, err := c.service.Update(r.Context(), id, in, actorID)
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, org)
}

func (c *OrgAPIController) move(w http.ResponseWriter, r *http.Request) {
	actorID, err := composables.UseActorID(r.Context())
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req moveOrgRequest
	if err := httpapi.DecodeJSON(r.Body, &req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "ORG_INVALID_BODY", "malformed JSON body", nil)
		return
	}

	if err := c.service.Move(r.Context(), id, req.NewParentID, actorID); err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *OrgAPIController) delete(w http.ResponseWriter, r *http.Request) {
	actorID, err := composables.UseActorID(r.Context())
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := c.service.Delete(r.Context(), id, actorID); err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *OrgAPIController) tree(w http.ResponseWriter, r *http.Request) {
	nodes, err := c.service.GetHierarchy(r.Context(), nil)
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, nodes)
}

func (c *OrgAPIController) subtree(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	nodes, err := c.service.GetHierarchy(r.Context(), &id)
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, nodes)
}

func (c *OrgAPIController) path(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	orgs, err := c.service.GetPath(r.Context(), id)
	if err != nil {
		httpapi.WriteServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, orgs)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "ORG_INVALID_BODY", "id must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}
