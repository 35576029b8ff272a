// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"

	"github.com/danielhkuo/consensus-engine/cliparse"
	"github.com/danielhkuo/consensus-engine/middleware"
)

type TemplateHandler struct {
	deps Deps
	cfg  cliparse.Config
}

func NewTemplateHandler(deps Deps, cfg cliparse.Config) *TemplateHandler {
	return &TemplateHandler{deps: deps.WithDefaults(), cfg: cfg}
}

// List handles GET /templates.
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	middleware.JSONResponse(w, http.StatusOK, h.deps.Templates.List())
}

// Get handles GET /templates/{name}.
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.deps.Templates.Get(r.PathValue("name"))
	if err != nil {
		middleware.ErrorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	middleware.JSONResponse(w, http.StatusOK, t)
}
