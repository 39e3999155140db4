package referral

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vetref/vetref/internal/domain/attachment"
	"github.com/vetref/vetref/internal/platform/auth"
	"github.com/vetref/vetref/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/cases", auth.RequireActor())
	g.POST("", h.Submit)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/documents", h.ListDocuments)
	g.POST("/:id/documents", h.Attach)
	g.POST("/:id/status", h.Transition, auth.RequireRole(auth.RoleSpecialist))
	g.GET("/:id/responses", h.ListResponses)
	g.POST("/:id/responses", h.Respond, auth.RequireRole(auth.RoleSpecialist))
}

// errorStatus maps service errors onto HTTP statuses.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrNoDocuments):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func caseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	return id, nil
}

type submitResponse struct {
	Success bool `json:"success"`
	*Outcome
}

// Submit creates a case. Validation failures return 422 with every
// violated rule; a case created with unlinked attachments still returns 201
// and lists the problems under document_link_warnings.
func (h *Handler) Submit(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	var sub Submission
	if err := c.Bind(&sub); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	out, err := h.svc.Submit(ctx, actor, &sub)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
				"success": false,
				"errors":  verr.Errors,
			})
		case errors.Is(err, ErrCaseCreate):
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to create case, please retry")
		default:
			return echo.NewHTTPError(errorStatus(err), err.Error())
		}
	}

	h.svc.RecordSubmitted(ctx, actor, out, &sub)
	return c.JSON(http.StatusCreated, submitResponse{Success: true, Outcome: out})
}

// List supports ?status=, ?urgency=, ?search= and ?assigned=me.
func (h *Handler) List(c echo.Context) error {
	actor, err := auth.ActorFromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}

	var f CaseFilter
	if v := c.QueryParam("status"); v != "" {
		st, ok := ParseStatus(v)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		f.Status = st
	}
	if v := c.QueryParam("urgency"); v != "" {
		u, ok := ParseUrgency(v)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid urgency")
		}
		f.Urgency = u
	}
	if c.QueryParam("assigned") == "me" {
		id := actor.ID
		f.SpecialistID = &id
	}
	f.Search = c.QueryParam("search")

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), actor, f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	if items == nil {
		items = []*Case{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path, c.QueryParams()))
}

func (h *Handler) Get(c echo.Context) error {
	actor, err := auth.ActorFromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	cs, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, cs)
}

func (h *Handler) ListDocuments(c echo.Context) error {
	actor, err := auth.ActorFromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	docs, err := h.svc.Documents(c.Request().Context(), actor, id)
	if err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	if docs == nil {
		docs = []*Document{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": docs})
}

type attachRequest struct {
	Category attachment.Category `json:"category"`
	Files    []attachment.Result `json:"files"`
}

// Attach links files uploaded with POST /uploads/:bucket to an existing
// case.
func (h *Handler) Attach(c echo.Context) error {
	actor, err := auth.ActorFromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	var req attachRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, ok := attachment.PolicyFor(req.Category); !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown document category")
	}

	out, err := h.svc.Attach(c.Request().Context(), actor, id, req.Category, req.Files)
	if err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, out)
}

type transitionRequest struct {
	Action string `json:"action"`
	Note   string `json:"note"`
}

// Transition applies accept, decline, start, complete or follow_up.
func (h *Handler) Transition(c echo.Context) error {
	actor, err := auth.ActorFromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	action, ok := ParseAction(req.Action)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown action")
	}

	cs, err := h.svc.Transition(c.Request().Context(), actor, id, action, req.Note)
	if err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, cs)
}

// Respond stores a specialist response. {"draft": true} saves without
// notifying the timeline.
func (h *Handler) Respond(c echo.Context) error {
	actor, err := auth.ActorFromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	var in ResponseInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	r, err := h.svc.Respond(c.Request().Context(), actor, id, &in)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
				"success": false,
				"errors":  verr.Errors,
			})
		}
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) ListResponses(c echo.Context) error {
	actor, err := auth.ActorFromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Responses(c.Request().Context(), actor, id)
	if err != nil {
		return echo.NewHTTPError(errorStatus(err), err.Error())
	}
	if items == nil {
		items = []*Response{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}
