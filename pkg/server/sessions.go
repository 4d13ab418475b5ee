package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ragdesk/ragdesk/pkg/api"
	"github.com/ragdesk/ragdesk/pkg/session"
)

func (s *Server) listSessions(c echo.Context) error {
	summaries, err := s.store.GetSessionSummaries(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, api.SessionsResponse{Sessions: summaries})
}

func (s *Server) createSession(c echo.Context) error {
	var req api.CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
	}

	sess := session.New(req.Title)
	if err := s.store.AddSession(c.Request().Context(), sess); err != nil {
		return c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusCreated, sess)
}

func (s *Server) getSession(c echo.Context) error {
	sess, err := s.store.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) deleteSession(c echo.Context) error {
	err := s.store.DeleteSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}
