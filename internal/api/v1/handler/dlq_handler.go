package handler

import (
	"net/http"
	"strconv"
	"strings"

	"app/internal/api/v1/dto"
	"app/internal/apierr"
	"app/internal/model"
	"app/internal/service"
)

// DLQHandler exposes dead-lettered generation messages to operators. All
// routes sit behind the admin role gate.
type DLQHandler struct {
	dlqService service.DLQService
}

// NewDLQHandler creates a new DLQHandler.
func NewDLQHandler(dlqService service.DLQService) *DLQHandler {
	return &DLQHandler{dlqService: dlqService}
}

// RegisterRoutes mounts dead letter routes. adminMw must wrap auth with the
// admin role gate.
func (h *DLQHandler) RegisterRoutes(mux *http.ServeMux, adminMw func(http.Handler) http.Handler) {
	mux.Handle("/admin/dlq", adminMw(http.HandlerFunc(h.listDeadLetters)))
	mux.Handle("/admin/dlq/", adminMw(http.HandlerFunc(h.handleDeadLetter)))
}

func (h *DLQHandler) handleDeadLetter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	switch {
	case strings.HasSuffix(r.URL.Path, "/replay"):
		h.replayDeadLetter(w, r)
	case strings.HasSuffix(r.URL.Path, "/discard"):
		h.discardDeadLetter(w, r)
	default:
		writeError(w, apierr.New(apierr.CodeNotFound, "Not found"))
	}
}

// listDeadLetters godoc
// @Summary List dead-lettered generation messages
// @Description Messages the worker gave up on, newest first. Admin only.
// @Tags admin
// @Produce json
// @Param status query string false "Filter by status (pending, replayed, discarded)"
// @Param limit query int false "Page size (default 50)"
// @Success 200 {object} dto.APIResponse{data=[]dto.DeadLetterDTO}
// @Router /admin/dlq [get]
func (h *DLQHandler) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			writeError(w, apierr.New(apierr.CodeInvalidInput, "limit must be between 1 and 200"))
			return
		}
		limit = n
	}

	msgs, err := h.dlqService.ListDeadLetters(r.Context(), model.DeadLetterStatus(q.Get("status")), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]dto.DeadLetterDTO, 0, len(msgs))
	for i := range msgs {
		out = append(out, dto.NewDeadLetterDTO(&msgs[i]))
	}
	writeData(w, http.StatusOK, out)
}

// replayDeadLetter godoc
// @Summary Replay a dead letter
// @Description Re-enqueues the original message on the generation queue.
// @Tags admin
// @Produce json
// @Param id path int true "Dead letter ID"
// @Success 200 {object} dto.APIResponse{data=dto.DeadLetterDTO}
// @Router /admin/dlq/{id}/replay [post]
func (h *DLQHandler) replayDeadLetter(w http.ResponseWriter, r *http.Request) {
	id, ok := h.deadLetterID(w, r, "/replay")
	if !ok {
		return
	}
	m, err := h.dlqService.Replay(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, dto.NewDeadLetterDTO(m))
}

// discardDeadLetter godoc
// @Summary Discard a dead letter
// @Description Marks the message discarded without re-enqueueing it.
// @Tags admin
// @Produce json
// @Param id path int true "Dead letter ID"
// @Success 200 {object} dto.APIResponse{data=dto.DeadLetterDTO}
// @Router /admin/dlq/{id}/discard [post]
func (h *DLQHandler) discardDeadLetter(w http.ResponseWriter, r *http.Request) {
	id, ok := h.deadLetterID(w, r, "/discard")
	if !ok {
		return
	}
	m, err := h.dlqService.Discard(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, dto.NewDeadLetterDTO(m))
}

func (h *DLQHandler) deadLetterID(w http.ResponseWriter, r *http.Request, action string) (int64, bool) {
	raw := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/admin/dlq/"), action)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		writeError(w, apierr.New(apierr.CodeInvalidInput, "Invalid dead letter ID"))
		return 0, false
	}
	return id, true
}
