package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eduavalia/backend/core/academic"
	"github.com/eduavalia/backend/core/evaluation"
)

func registerEvaluationAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *server) {
	student := studentMiddleware()

	eg := g.Group("/evaluations", jwt, student)
	eg.POST("", s.submitEvaluation)
	eg.POST("/comment", s.submitComment)

	g.GET("/professors/:id/eligible-offerings", s.eligibleOfferings, jwt, student)
}

// Handlers

// submitEvaluation records the caller's scored evaluation. The student identity
// comes from the token, never from the payload.
func (s *server) submitEvaluation(ctx echo.Context) error {
	var data evaluation.NewEvaluation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvaluation")
	}
	if err := data.Validate(s.deps.Validate, s.deps.Translator); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	if _, err = s.deps.EvaluationSvc.Submit(ctx.Request().Context(), claims.PersonID(), data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, SuccessResponse{Success: true})
}

func (s *server) submitComment(ctx echo.Context) error {
	var data evaluation.NewComment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewComment")
	}
	if err := data.Validate(s.deps.Validate, s.deps.Translator); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	if _, err = s.deps.EvaluationSvc.SubmitComment(ctx.Request().Context(), claims.PersonID(), data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, SuccessResponse{Success: true})
}

// eligibleOfferings lists the professor's active offerings the calling student
// is not yet enrolled in.
func (s *server) eligibleOfferings(ctx echo.Context) error {
	professorID, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	offerings, err := s.deps.EnrollmentSvc.EligibleOfferings(ctx.Request().Context(), claims.PersonID(), professorID)
	if err != nil {
		return err
	}
	if offerings == nil {
		offerings = []academic.Offering{}
	}
	return ctx.JSON(http.StatusOK, offerings)
}
