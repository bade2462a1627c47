package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eduavalia/backend/core/academic"
)

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *server) {
	ag := g.Group("/auth")
	ag.POST("/login", s.login)
	ag.POST("/token-refresh", s.tokenRefresh, jwt)
}

func registerAcademicAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *server) {
	// open typeahead endpoints
	sg := g.Group("/suggestions")
	sg.GET("/professors", s.suggestProfessors)
	sg.GET("/courses", s.suggestCourses)

	pg := g.Group("/professors", jwt)
	pg.GET("", s.queryProfessors)
	pg.GET("/:id", s.getProfessor)

	// admin provisioning
	admin := adminMiddleware()
	g.POST("/people", s.createPerson, jwt, admin)
	g.DELETE("/people/:id", s.deleteProfessor, jwt, admin)
	g.POST("/courses", s.createCourse, jwt, admin)
	g.POST("/offerings", s.createOffering, jwt, admin)
	g.PUT("/offerings/:id/deactivate", s.deactivateOffering, jwt, admin)
	g.POST("/enrollments", s.createEnrollment, jwt, admin)
	g.DELETE("/enrollments/:id", s.deleteEnrollment, jwt, admin)
}

// Handlers

func (s *server) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(ctx, s); err != nil {
		return err
	}

	claims, err := s.authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		return err
	}
	token, err := GenerateToken(s.deps.Conf, claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (s *server) tokenRefresh(ctx echo.Context) error {
	token, err := s.refreshToken(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (s *server) createPerson(ctx echo.Context) error {
	var data academic.NewPerson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPerson")
	}
	if err := data.Validate(s.deps.Validate, s.deps.Translator, s.deps.AcademicSvc); err != nil {
		return err
	}

	p, err := s.deps.AcademicSvc.CreatePerson(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating person")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (s *server) deleteProfessor(ctx echo.Context) error {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}
	if err = s.deps.AcademicSvc.DeleteProfessor(ctx.Request().Context(), id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *server) createCourse(ctx echo.Context) error {
	var data academic.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(s.deps.Validate, s.deps.Translator, s.deps.AcademicSvc); err != nil {
		return err
	}

	c, err := s.deps.AcademicSvc.CreateCourse(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (s *server) createOffering(ctx echo.Context) error {
	var data academic.NewOffering
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewOffering")
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}

	o, err := s.deps.AcademicSvc.CreateOffering(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, o)
}

func (s *server) deactivateOffering(ctx echo.Context) error {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}
	if err = s.deps.AcademicSvc.DeactivateOffering(ctx.Request().Context(), id); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

type NewEnrollmentRequest struct {
	StudentID  int `json:"student_id" validate:"required"`
	OfferingID int `json:"offering_id" validate:"required"`
}

func (s *server) createEnrollment(ctx echo.Context) error {
	var data NewEnrollmentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollmentRequest")
	}
	if err := s.deps.Validate.Struct(&data); err != nil {
		return err
	}

	e, err := s.deps.EnrollmentSvc.Enroll(ctx.Request().Context(), data.StudentID, data.OfferingID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (s *server) deleteEnrollment(ctx echo.Context) error {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}
	if err = s.deps.EnrollmentSvc.Unenroll(ctx.Request().Context(), id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *server) queryProfessors(ctx echo.Context) error {
	filter := new(academic.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []academic.ProfessorRow{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	rows, err := s.deps.AcademicSvc.Professors(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying professors")
	}
	if rows == nil {
		rows = []academic.ProfessorRow{}
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (s *server) getProfessor(ctx echo.Context) error {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}
	row, err := s.deps.AcademicSvc.ProfessorDetail(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, row)
}

func (s *server) suggestProfessors(ctx echo.Context) error {
	names, err := s.deps.AcademicSvc.SuggestProfessors(ctx.Request().Context(), ctx.QueryParam("term"))
	if err != nil {
		return errors.Wrap(err, "suggesting professors")
	}
	if names == nil {
		names = []string{}
	}
	return ctx.JSON(http.StatusOK, names)
}

func (s *server) suggestCourses(ctx echo.Context) error {
	names, err := s.deps.AcademicSvc.SuggestCourses(ctx.Request().Context(), ctx.QueryParam("term"))
	if err != nil {
		return errors.Wrap(err, "suggesting courses")
	}
	if names == nil {
		names = []string{}
	}
	return ctx.JSON(http.StatusOK, names)
}
