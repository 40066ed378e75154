package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/user/llm-gateway-proxy/internal/backenderr"
	"github.com/user/llm-gateway-proxy/internal/backendstats"
	"github.com/user/llm-gateway-proxy/internal/models"
	"github.com/user/llm-gateway-proxy/internal/registry"
)

// Admin implements the runtime admin endpoints: registering a backend
// without a restart, and reporting the passive per-backend health
// counters the Router feeds as it forwards requests.
type Admin struct {
	Registry *registry.Registry
	Stats    *backendstats.Tracker
}

// RegisterBackend implements POST /admin/models.
func (a *Admin) RegisterBackend(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		validationErrorResponse(c, http.StatusBadRequest, "invalid_request_error",
			backenderr.NewValidationError("invalid_json", "failed to read request body"))
		return
	}
	root, verr := parseJSONObject(body)
	if verr != nil {
		validationErrorResponse(c, http.StatusBadRequest, "invalid_request_error", verr)
		return
	}

	name := root.Get("model_name")
	if !name.Exists() || name.Type != gjson.String || name.String() == "" {
		validationErrorResponse(c, http.StatusBadRequest, "invalid_request_error",
			backenderr.NewValidationError("missing_model_name", "model_name is required"))
		return
	}
	apiBase := root.Get("api_base")
	if !apiBase.Exists() || apiBase.Type != gjson.String || apiBase.String() == "" {
		validationErrorResponse(c, http.StatusBadRequest, "invalid_request_error",
			backenderr.NewValidationError("missing_api_base", "api_base is required"))
		return
	}

	backend := &models.Backend{
		Name:              name.String(),
		BaseURL:           apiBase.String(),
		APIKey:            root.Get("api_key").String(),
		TimeoutSeconds:    int(root.Get("request_timeout").Int()),
		TargetModel:       root.Get("target_model").String(),
		SupportsReasoning: root.Get("supports_reasoning").Bool(),
	}

	var fallbacks []string
	if fb := root.Get("fallbacks"); fb.Exists() && fb.IsArray() {
		for _, el := range fb.Array() {
			fallbacks = append(fallbacks, el.String())
		}
	}

	result, err := a.Registry.Register(c.Request.Context(), backend, fallbacks)
	if err != nil {
		if errors.Is(err, registry.ErrShadowsDefault) {
			validationErrorResponse(c, http.StatusConflict, "invalid_request_error",
				backenderr.NewValidationError("shadows_default", err.Error()))
			return
		}
		errorResponse(c, http.StatusInternalServerError, "failed to register backend: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok", "model": backend.Name, "replaced": result.Replaced, "fallbacks": fallbacks,
	})
}

// ListBackends implements the supplemented GET /admin/backends: a
// snapshot of per-backend connection/outcome counters, adapted from the
// teacher's health-check status endpoint into a purely passive report
// (nothing here feeds back into routing decisions).
func (a *Admin) ListBackends(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"backends": a.Stats.Snapshot()})
}
