package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"app/internal/api/v1/dto"
	"app/internal/apierr"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
)

// NicheHandler serves the niche catalog. Listing and previewing are available
// to every authenticated user; editing goes through the admin-gated mux entry.
type NicheHandler struct {
	nicheService service.NicheService
	validate     *validator.Validate
}

// NewNicheHandler creates a new NicheHandler.
func NewNicheHandler(nicheService service.NicheService, v *validator.Validate) *NicheHandler {
	return &NicheHandler{nicheService: nicheService, validate: v}
}

// RegisterRoutes mounts niche routes. adminMw must wrap authMw with the admin
// role gate.
func (h *NicheHandler) RegisterRoutes(mux *http.ServeMux, authMw, adminMw func(http.Handler) http.Handler) {
	mux.Handle("/niches", authMw(http.HandlerFunc(h.listNiches)))
	mux.Handle("/niches/", authMw(http.HandlerFunc(h.handleNiche)))
	mux.Handle("/admin/niches/", adminMw(http.HandlerFunc(h.updateNiche)))
}

func (h *NicheHandler) handleNiche(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.HasSuffix(r.URL.Path, "/preview") {
		h.previewNiche(w, r)
		return
	}
	h.getNiche(w, r)
}

// listNiches godoc
// @Summary List active niches
// @Description Catalog of available content niches, filterable by category
// @Description and platform.
// @Tags niches
// @Produce json
// @Param category query string false "Niche category filter"
// @Param platform query string false "Platform filter"
// @Param limit query int false "Page size (default 50)"
// @Param after query string false "Return niches after this ID"
// @Success 200 {object} dto.PageResponse[dto.NicheSummaryDTO]
// @Router /niches [get]
func (h *NicheHandler) listNiches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, apierr.New(apierr.CodeInvalidInput, "limit must be between 1 and 100"))
			return
		}
		limit = n
	}
	var after *string
	if v := q.Get("after"); v != "" {
		after = &v
	}

	niches, err := h.nicheService.ListNiches(r.Context(), model.NicheCategory(q.Get("category")), model.Platform(q.Get("platform")), limit+1, after)
	if err != nil {
		writeError(w, err)
		return
	}
	hasMore := len(niches) > limit
	if hasMore {
		niches = niches[:limit]
	}
	items := make([]dto.NicheSummaryDTO, 0, len(niches))
	for i := range niches {
		items = append(items, dto.NicheSummaryFromModel(&niches[i]))
	}
	resp := dto.PageResponse[dto.NicheSummaryDTO]{Items: items, HasMore: hasMore}
	if hasMore {
		resp.NextCursor = items[len(items)-1].ID
	}
	writeData(w, http.StatusOK, resp)
}

// getNiche godoc
// @Summary Get a niche
// @Description Niche detail with per-platform configuration. Prompt templates
// @Description and randomization pools are internal and never returned.
// @Tags niches
// @Produce json
// @Param nicheId path string true "Niche ID"
// @Success 200 {object} dto.NicheDetailDTO
// @Failure 404 {object} dto.APIResponse
// @Router /niches/{nicheId} [get]
func (h *NicheHandler) getNiche(w http.ResponseWriter, r *http.Request) {
	nicheID := strings.TrimPrefix(r.URL.Path, "/niches/")

	niche, err := h.nicheService.GetNiche(r.Context(), nicheID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, dto.NicheDetailFromModel(niche))
}

// previewNiche godoc
// @Summary Preview sample ideas for a niche
// @Description Draws sample topic/hook/style combinations from the niche's
// @Description pools without charging credits or affecting future picks.
// @Tags niches
// @Produce json
// @Param nicheId path string true "Niche ID"
// @Param count query int false "Number of samples (1-10, default 3)"
// @Success 200 {object} dto.NichePreviewDTO
// @Failure 404 {object} dto.APIResponse
// @Router /niches/{nicheId}/preview [get]
func (h *NicheHandler) previewNiche(w http.ResponseWriter, r *http.Request) {
	nicheID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/niches/"), "/preview")

	count := 3
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, apierr.New(apierr.CodeInvalidInput, "count must be a number"))
			return
		}
		count = n
	}

	ideas, estimatedCredits, err := h.nicheService.PreviewNiche(r.Context(), nicheID, count)
	if err != nil {
		writeError(w, err)
		return
	}
	samples := make([]dto.SampleIdeaDTO, 0, len(ideas))
	for _, idea := range ideas {
		samples = append(samples, dto.SampleIdeaDTO{Topic: idea.Topic, Hook: idea.Hook, VisualStyle: idea.VisualStyle})
	}
	writeData(w, http.StatusOK, dto.NichePreviewDTO{SampleIdeas: samples, EstimatedCredits: estimatedCredits})
}

// updateNiche godoc
// @Summary Update a niche (admin)
// @Description Content-affecting edits bump the niche version and snapshot the
// @Description prior content; visibility edits do not.
// @Tags niches
// @Accept json
// @Produce json
// @Param nicheId path string true "Niche ID"
// @Param niche body dto.NicheUpdateDTO true "Fields to update"
// @Success 200 {object} dto.NicheDetailDTO
// @Failure 403 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /admin/niches/{nicheId} [put]
func (h *NicheHandler) updateNiche(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	nicheID := strings.TrimPrefix(r.URL.Path, "/admin/niches/")

	var req dto.NicheUpdateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidJSON(w)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeValidationError(w, err)
		return
	}

	updated, err := h.nicheService.UpdateNiche(r.Context(), nicheID, service.NicheUpdate{
		Name:           req.Name,
		Description:    req.Description,
		ContentStyle:   req.ContentStyle,
		TargetAudience: req.TargetAudience,
		Platforms:      req.Platforms,
		Prompts:        req.Prompts,
		Pools:          req.Pools,
		AntiRepetition: req.AntiRepetition,
		IsActive:       req.IsActive,
		IsPremium:      req.IsPremium,
		Tags:           req.Tags,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, dto.NicheDetailFromModel(updated))
}
