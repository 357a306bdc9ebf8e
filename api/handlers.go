package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"workshop-board/domain"
	"workshop-board/engine"
)

const postBodyMaxSize = 64 * 1024 // 64 KiB

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, sessions *Registry, auth Authenticator, logger *log.Logger) {
	e.GET("/api/boards/:kind", getBoard(sessions, auth))
	e.GET("/api/boards/:kind/stream", streamBoard(sessions, auth))
	e.POST("/api/boards/:kind/moves", postMove(sessions, auth, logger))
	e.POST("/api/boards/warranty/evaluations", postVerdict(sessions, auth))
	e.DELETE("/api/boards/warranty/evaluations/:id", deleteEvaluation(sessions, auth))
	e.GET("/healthz", healthz())
}

const (
	outcomeMoved              = "moved"
	outcomeEvaluationRequired = "evaluation-required"
)

// moveResponse is shared by the move and verdict endpoints.
type moveResponse struct {
	Outcome    string                 `json:"outcome"`
	Item       *domain.Item           `json:"item,omitempty"`
	Candidates []domain.CandidateItem `json:"candidates,omitempty"`
	// Warning is set when the move committed but a chained follow-up failed.
	// Its presence means "applied, but incomplete", never "nothing changed".
	Warning string `json:"warning,omitempty"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func kindParam(c echo.Context) (domain.Kind, error) {
	kind := domain.Kind(c.Param("kind"))
	if !kind.Valid() {
		return "", echo.NewHTTPError(http.StatusNotFound, "unknown board kind")
	}
	return kind, nil
}

func getBoard(sessions *Registry, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		kind, err := kindParam(c)
		if err != nil {
			return err
		}
		session, release, err := sessions.Attach(c.Request().Context(), kind)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to load board")
		}
		defer release()
		return c.JSON(http.StatusOK, session.Snapshot())
	}
}

func postMove(sessions *Registry, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := newMoveRequestMetrics(logger)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		_, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}
		kind, kindErr := kindParam(c)
		if kindErr != nil {
			metrics.SetErrorStage("kind")
			err = kindErr
			return err
		}
		metrics.SetKind(kind)

		var intent engine.MoveIntent
		dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, postBodyMaxSize))
		dec.DisallowUnknownFields()
		if decErr := dec.Decode(&intent); decErr != nil || intent.ID == "" || intent.To == "" {
			metrics.SetErrorStage("decode")
			err = c.String(http.StatusBadRequest, "invalid body")
			return err
		}

		session, release, attachErr := sessions.Attach(c.Request().Context(), kind)
		if attachErr != nil {
			metrics.SetErrorStage("attach")
			c.Logger().Error(attachErr)
			err = c.String(http.StatusInternalServerError, "failed to load board")
			return err
		}
		defer release()

		moveStart := time.Now()
		outcome, moveErr := session.Move(c.Request().Context(), intent)
		metrics.ObserveMove(time.Since(moveStart))
		if moveErr != nil {
			err = writeMoveError(c, metrics, moveErr)
			return err
		}

		if outcome.EvaluationRequired {
			metrics.SetOutcome(outcomeEvaluationRequired)
			err = c.JSON(http.StatusConflict, moveResponse{
				Outcome:    outcomeEvaluationRequired,
				Candidates: outcome.Candidates,
			})
			return err
		}
		metrics.SetOutcome(outcomeMoved)
		resp := moveResponse{Outcome: outcomeMoved, Item: outcome.Item}
		if outcome.Warning != nil {
			metrics.SetWarning()
			resp.Warning = outcome.Warning.Error()
		}
		err = c.JSON(http.StatusOK, resp)
		return err
	}
}

func postVerdict(sessions *Registry, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var verdict domain.Verdict
		dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, postBodyMaxSize))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&verdict); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		session, release, err := sessions.Attach(c.Request().Context(), domain.KindWarranty)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to load board")
		}
		defer release()

		outcome, err := session.ResolveEvaluation(c.Request().Context(), verdict)
		if err != nil {
			return writeMoveError(c, nil, err)
		}
		resp := moveResponse{Outcome: outcomeMoved, Item: outcome.Item}
		if outcome.Warning != nil {
			resp.Warning = outcome.Warning.Error()
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func deleteEvaluation(sessions *Registry, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		session, release, err := sessions.Attach(c.Request().Context(), domain.KindWarranty)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to load board")
		}
		defer release()

		if err := session.CancelEvaluation(c.Param("id")); err != nil {
			if errors.Is(err, engine.ErrNoEvaluation) {
				return c.String(http.StatusConflict, err.Error())
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// writeMoveError maps the engine's error taxonomy onto HTTP statuses. The
// split matters to clients: 422 and 409 mean the board did not change, 502
// means an optimistic change was rolled back.
func writeMoveError(c echo.Context, metrics *moveRequestMetrics, err error) error {
	var rejected *engine.TransitionRejectedError
	var confirmFailed *engine.ConfirmationFailedError
	var invalidVerdict *engine.VerdictInvalidError
	switch {
	case errors.Is(err, engine.ErrItemNotFound):
		metrics.SetErrorStage("not_found")
		return c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrEvaluationInProgress), errors.Is(err, engine.ErrNoEvaluation):
		metrics.SetErrorStage("gate")
		return c.String(http.StatusConflict, err.Error())
	case errors.As(err, &rejected):
		metrics.SetErrorStage("rejected")
		return c.String(http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &invalidVerdict):
		metrics.SetErrorStage("verdict")
		return c.String(http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &confirmFailed):
		metrics.SetErrorStage("confirm")
		return c.String(http.StatusBadGateway, err.Error())
	case errors.Is(err, engine.ErrSessionClosed):
		metrics.SetErrorStage("closed")
		return c.String(http.StatusServiceUnavailable, err.Error())
	default:
		metrics.SetErrorStage("internal")
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
}
