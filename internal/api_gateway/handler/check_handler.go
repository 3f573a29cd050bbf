package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garage-erp/check-lifecycle/internal/api_gateway/middleware"
	"github.com/garage-erp/check-lifecycle/internal/api_gateway/service"
	"github.com/garage-erp/check-lifecycle/internal/domain/check"
)

// CheckHandler handles HTTP requests for check operations
type CheckHandler struct {
	checkService service.CheckService
	logger       *slog.Logger
}

// NewCheckHandler creates a new check handler
func NewCheckHandler(logger *slog.Logger, checkService service.CheckService) *CheckHandler {
	return &CheckHandler{
		checkService: checkService,
		logger:       logger,
	}
}

// List returns the checks matching the direction, status bucket and source filters
func (h *CheckHandler) List(c *gin.Context) {
	var query ListChecksQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		RespondBadRequest(c, "Invalid query parameters")
		return
	}

	views, err := h.checkService.ListChecks(c.Request.Context(), service.ListFilter{
		Direction: check.Direction(query.Direction),
		Bucket:    query.Status,
		Source:    check.Source(query.Source),
	})
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	checks := make([]CheckResponse, 0, len(views))
	for _, v := range views {
		checks = append(checks, mapViewToResponse(v))
	}
	RespondWithCount(c, checks, len(checks))
}

// Statistics returns the overdue summaries per direction
func (h *CheckHandler) Statistics(c *gin.Context) {
	stats, err := h.checkService.GetStatistics(c.Request.Context())
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	RespondOK(c, stats)
}

// Get returns one check with its derived status fields, 404 if unknown
func (h *CheckHandler) Get(c *gin.Context) {
	view, err := h.checkService.GetDetails(c.Request.Context(), c.Param("token"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	RespondOK(c, mapViewToResponse(view))
}

// Intents returns the paginated ledger intents published for a check
func (h *CheckHandler) Intents(c *gin.Context) {
	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	intents, total, err := h.checkService.GetIntents(c.Request.Context(), c.Param("token"), pagination.Page, pagination.PerPage)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	response := make([]IntentResponse, 0, len(intents))
	for _, i := range intents {
		response = append(response, mapIntentToResponse(i))
	}
	RespondWithPaginatedData(c, http.StatusOK, response, pagination.Page, pagination.PerPage, int(total))
}

// FirstIncomplete returns the token of the oldest check missing required data
func (h *CheckHandler) FirstIncomplete(c *gin.Context) {
	token, err := h.checkService.FirstIncomplete(c.Request.Context())
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	var response FirstIncompleteResponse
	if token != "" {
		response.Token = &token
	}
	RespondOK(c, response)
}

// Create records a new check
func (h *CheckHandler) Create(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req CreateCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	createReq, err := req.toCreateRequest()
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	view, err := h.checkService.CreateCheck(c.Request.Context(), caller, createReq)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	RespondCreated(c, mapViewToResponse(view))
}

// UpdateDetails applies an owner edit to a check's fields
func (h *CheckHandler) UpdateDetails(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req UpdateDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	view, err := h.checkService.UpdateDetails(c.Request.Context(), caller, c.Param("token"), patch)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	RespondOK(c, mapViewToResponse(view))
}

// UpdateStatus runs the transition that reaches the requested status
func (h *CheckHandler) UpdateStatus(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	view, err := h.checkService.UpdateStatus(c.Request.Context(), caller, c.Param("token"), service.StatusRequest{
		Status:       check.Status(req.Status),
		Notes:        req.Notes,
		ReturnReason: check.ReturnReason(req.ReturnReason),
		FXRate:       req.FXRate,
	})
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	RespondOK(c, mapViewToResponse(view))
}

// Settle links a returned check to a compensating payment
func (h *CheckHandler) Settle(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	view, err := h.checkService.Settle(c.Request.Context(), caller, c.Param("token"), req.PaymentRef)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	RespondOK(c, mapViewToResponse(view))
}

// Unsettle reverses a settlement
func (h *CheckHandler) Unsettle(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	view, err := h.checkService.Unsettle(c.Request.Context(), caller, c.Param("token"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	RespondOK(c, mapViewToResponse(view))
}

func (h *CheckHandler) caller(c *gin.Context) (service.Caller, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		RespondUnauthorized(c, "Authenticated actor required")
		return service.Caller{}, false
	}
	return service.Caller{Actor: actor, CorrelationID: middleware.GetCorrelationID(c)}, true
}
