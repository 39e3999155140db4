package timeline

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vetref/vetref/internal/platform/auth"
	"github.com/vetref/vetref/pkg/pagination"
)

type Handler struct {
	svc    *Service
	access CaseAccess
}

func NewHandler(svc *Service, access CaseAccess) *Handler {
	return &Handler{svc: svc, access: access}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/cases/:id/timeline", auth.RequireActor())
	g.GET("", h.List)
	g.POST("", h.Create, auth.RequireRole(auth.RoleSpecialist))
}

// authorize resolves the actor and case id and checks the actor may see
// the case.
func (h *Handler) authorize(c echo.Context) (auth.Actor, uuid.UUID, error) {
	ctx := c.Request().Context()
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return auth.Actor{}, uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return auth.Actor{}, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	if err := h.access.CheckCaseAccess(ctx, actor, caseID); err != nil {
		switch {
		case errors.Is(err, auth.ErrUnauthenticated):
			return auth.Actor{}, uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		case errors.Is(err, ErrCaseNotFound):
			return auth.Actor{}, uuid.Nil, echo.NewHTTPError(http.StatusNotFound, ErrCaseNotFound.Error())
		case errors.Is(err, ErrForbidden):
			return auth.Actor{}, uuid.Nil, echo.NewHTTPError(http.StatusForbidden, ErrForbidden.Error())
		default:
			return auth.Actor{}, uuid.Nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return actor, caseID, nil
}

// List returns entries newest first; ?order=asc replays them oldest first.
func (h *Handler) List(c echo.Context) error {
	_, caseID, err := h.authorize(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), caseID, ParseOrder(c.QueryParam("order")), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Entry{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path, c.QueryParams()))
}

type createRequest struct {
	Action      string                 `json:"action"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata"`
}

var actionPattern = regexp.MustCompile(`^[a-z][a-z_]{1,63}$`)

// Create lets a specialist append a free-form entry such as "phone_consult".
// Actions the case services write themselves are refused.
func (h *Handler) Create(c echo.Context) error {
	actor, caseID, err := h.authorize(c)
	if err != nil {
		return err
	}
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !actionPattern.MatchString(req.Action) {
		return echo.NewHTTPError(http.StatusBadRequest, "action must be a lower_snake_case label")
	}
	if IsServiceAction(req.Action) {
		return echo.NewHTTPError(http.StatusBadRequest, "action "+req.Action+" is recorded by the case workflow")
	}

	e, err := h.svc.Record(c.Request().Context(), actor, caseID, req.Action, req.Description, req.Metadata)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		if errors.Is(err, ErrCaseNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, e)
}
