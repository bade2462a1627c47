package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eduavalia/backend/core/evaluation"
	"github.com/eduavalia/backend/core/stats"
)

func registerStatsAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *server) {
	sg := g.Group("/stats", jwt)
	sg.GET("/university", s.universityStats)
	sg.GET("/ranking", s.ranking)

	g.GET("/offerings/:id/breakdown", s.offeringBreakdown, jwt)
	g.GET("/professors/:id/breakdown", s.professorBreakdown, jwt)
	g.GET("/professors/:id/comments", s.professorComments, jwt)
	g.GET("/courses/:id/comparison", s.courseComparison, jwt)
}

// Handlers

func (s *server) universityStats(ctx echo.Context) error {
	summary, err := s.deps.StatsSvc.UniversityMean(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing university mean")
	}
	return ctx.JSON(http.StatusOK, summary)
}

// ranking caps the list per caller role: staff see the longer board.
func (s *server) ranking(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	limit := s.deps.Conf.Stats.RankingLimit
	if claims.IsAdmin() || claims.IsProfessor() {
		limit = s.deps.Conf.Stats.RankingLimitStaff
	}

	entries, err := s.deps.StatsSvc.Ranking(ctx.Request().Context(), limit)
	if err != nil {
		return errors.Wrap(err, "computing ranking")
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (s *server) offeringBreakdown(ctx echo.Context) error {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}
	bd, err := s.deps.StatsSvc.OfferingBreakdown(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, bd)
}

type ProfessorBreakdownResponse struct {
	Overall     stats.Breakdown         `json:"overall"`
	PerOffering map[int]stats.Breakdown `json:"per_offering"`
}

func (s *server) professorBreakdown(ctx echo.Context) error {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}
	overall, perOffering, err := s.deps.StatsSvc.ProfessorBreakdown(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ProfessorBreakdownResponse{Overall: overall, PerOffering: perOffering})
}

func (s *server) professorComments(ctx echo.Context) error {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}
	comments, err := s.deps.EvaluationSvc.Comments(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying comments")
	}
	if comments == nil {
		comments = []evaluation.ProfessorComment{}
	}
	return ctx.JSON(http.StatusOK, comments)
}

func (s *server) courseComparison(ctx echo.Context) error {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}
	rows, err := s.deps.StatsSvc.CategoryComparison(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []stats.ComparisonRow{}
	}
	return ctx.JSON(http.StatusOK, rows)
}
