package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/skein-ai/skein/pkg/models"
	"github.com/skein-ai/skein/pkg/services"
)

func (s *Server) listSchedulesHandler(c *echo.Context) error {
	dir, err := s.projectDir(c)
	if err != nil {
		return err
	}

	schedules, err := s.schedules.ListSchedules(c.Request().Context(), dir)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, schedules)
}

func (s *Server) createScheduleHandler(c *echo.Context) error {
	dir, err := s.projectDir(c)
	if err != nil {
		return err
	}

	var req ScheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	schedule, err := s.schedules.CreateSchedule(c.Request().Context(), services.CreateScheduleRequest{
		Name:       req.Name,
		ProjectDir: dir,
		AgentName:  req.AgentName,
		Message:    req.Message,
		Kind:       models.ScheduleKind(req.Kind),
		Interval:   req.Interval,
		StartFrom:  req.StartFrom,
		Enabled:    req.Enabled,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, schedule)
}

func (s *Server) getScheduleHandler(c *echo.Context) error {
	schedule, err := s.schedules.GetSchedule(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, schedule)
}

func (s *Server) updateScheduleHandler(c *echo.Context) error {
	var req ScheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	schedule, err := s.schedules.UpdateSchedule(c.Request().Context(), c.Param("id"), services.UpdateScheduleRequest{
		Name:      req.Name,
		AgentName: req.AgentName,
		Message:   req.Message,
		Kind:      models.ScheduleKind(req.Kind),
		Interval:  req.Interval,
		StartFrom: req.StartFrom,
		Enabled:   req.Enabled,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, schedule)
}

func (s *Server) deleteScheduleHandler(c *echo.Context) error {
	if err := s.schedules.DeleteSchedule(c.Request().Context(), c.Param("id")); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) toggleScheduleHandler(c *echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	schedule, err := s.schedules.GetSchedule(ctx, id)
	if err != nil {
		return mapServiceError(err)
	}
	if err := s.schedules.SetScheduleEnabled(ctx, id, !schedule.Enabled); err != nil {
		return mapServiceError(err)
	}

	schedule, err = s.schedules.GetSchedule(ctx, id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, schedule)
}
