package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/rahulsahu-12/nexus2/core/attendance"
	"github.com/rahulsahu-12/nexus2/services/live"
)

type attendanceApi struct {
	svc      *attendance.Service
	hub      *live.Hub
	validate *validator.Validate
}

func registerAttendanceAPI(
	app *echo.Echo,
	jwt echo.MiddlewareFunc,
	wsJWT echo.MiddlewareFunc,
	svc *attendance.Service,
	hub *live.Hub,
	validate *validator.Validate,
) {
	api := attendanceApi{
		svc:      svc,
		hub:      hub,
		validate: validate,
	}

	// teacher portal
	tg := app.Group("/teacher/attendance")
	tg.GET("/live", api.live, wsJWT, roleMiddleware(teacherRoles...))

	ta := tg.Group("", jwt, roleMiddleware(teacherRoles...))
	ta.POST("/start", api.start)
	ta.GET("/active", api.active)
	ta.GET("/manual/check", api.checkManual)
	ta.POST("/manual", api.markManual)
	ta.GET("/history/subject", api.subjectHistory)
	ta.GET("/history/date", api.dateHistory)

	// student portal
	sg := app.Group("/student/attendance", jwt, roleMiddleware(studentRoles...))
	sg.POST("/mark", api.mark)
	sg.GET("/history", api.studentHistory)
	sg.GET("/summary", api.studentSummary)
}

type startSessionResponse struct {
	SessionID   int64     `json:"session_id"`
	SessionCode string    `json:"session_code"`
	DigitCode   string    `json:"digit_code"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Handlers

func (api *attendanceApi) start(ctx echo.Context) error {
	var data attendance.StartSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StartSession")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	teacher, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	sess, err := api.svc.OpenSession(ctx.Request().Context(), teacher, data)
	if err != nil {
		return errors.Wrap(err, "opening attendance session")
	}

	return ctx.JSON(http.StatusOK, startSessionResponse{
		SessionID:   sess.ID,
		SessionCode: sess.Token,
		DigitCode:   sess.ShortCode,
		ExpiresAt:   sess.ExpiresAt,
	})
}

func (api *attendanceApi) active(ctx echo.Context) error {
	teacher, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	sess, err := api.svc.ActiveSession(ctx.Request().Context(), teacher)
	if err != nil {
		return errors.Wrap(err, "getting active session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *attendanceApi) mark(ctx echo.Context) error {
	var data attendance.MarkAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkAttendance")
	}
	// malformed codes cannot match any session
	if err := data.Validate(api.validate); err != nil {
		return attendance.ErrInvalidCode
	}

	student, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	if _, err = api.svc.Redeem(ctx.Request().Context(), student, data.DigitCode); err != nil {
		return errors.Wrap(err, "redeeming attendance code")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Attendance marked successfully"})
}

func (api *attendanceApi) checkManual(ctx echo.Context) error {
	var data attendance.ManualCheck
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ManualCheck")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	teacher, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	exists, err := api.svc.CheckManual(ctx.Request().Context(), teacher, data)
	if err != nil {
		return errors.Wrap(err, "checking manual attendance")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"exists": exists})
}

func (api *attendanceApi) markManual(ctx echo.Context) error {
	var data attendance.ManualAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ManualAttendance")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	teacher, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	recs, err := api.svc.MarkManual(ctx.Request().Context(), teacher, data)
	if err != nil {
		return errors.Wrap(err, "marking manual attendance")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{
		"message": "Attendance saved successfully",
		"count":   len(recs),
	})
}

func (api *attendanceApi) bindHistoryFilter(ctx echo.Context) (attendance.HistoryFilter, error) {
	var filter attendance.HistoryFilter
	if err := ctx.Bind(&filter); err != nil {
		return filter, errors.Wrap(err, "binding to HistoryFilter")
	}
	if err := filter.Validate(api.validate); err != nil {
		return filter, err
	}
	return filter, nil
}

func (api *attendanceApi) subjectHistory(ctx echo.Context) error {
	filter, err := api.bindHistoryFilter(ctx)
	if err != nil {
		return err
	}
	teacher, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	days, err := api.svc.SubjectHistory(ctx.Request().Context(), teacher, filter)
	if err != nil {
		return errors.Wrap(err, "querying subject history")
	}
	return ctx.JSON(http.StatusOK, days)
}

func (api *attendanceApi) dateHistory(ctx echo.Context) error {
	filter, err := api.bindHistoryFilter(ctx)
	if err != nil {
		return err
	}
	teacher, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	recs, err := api.svc.DateHistory(ctx.Request().Context(), teacher, filter)
	if err != nil {
		return errors.Wrap(err, "querying date history")
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *attendanceApi) studentHistory(ctx echo.Context) error {
	student, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	recs, err := api.svc.StudentHistory(ctx.Request().Context(), student)
	if err != nil {
		return errors.Wrap(err, "querying student history")
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *attendanceApi) studentSummary(ctx echo.Context) error {
	student, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	sums, err := api.svc.StudentSummary(ctx.Request().Context(), student)
	if err != nil {
		return errors.Wrap(err, "summarizing student attendance")
	}
	return ctx.JSON(http.StatusOK, sums)
}

// live streams the teacher's redemptions over a websocket.
func (api *attendanceApi) live(ctx echo.Context) error {
	teacher, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}
	if err = api.hub.Serve(ctx.Response(), ctx.Request(), teacher.ID); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "websocket upgrade failed").SetInternal(err)
	}
	return nil
}
