package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/bibleschool-api/internal/dto"
	"github.com/noah-isme/bibleschool-api/internal/models"
	"github.com/noah-isme/bibleschool-api/internal/service"
	appErrors "github.com/noah-isme/bibleschool-api/pkg/errors"
	"github.com/noah-isme/bibleschool-api/pkg/logger"
	"github.com/noah-isme/bibleschool-api/pkg/response"
)

type workflowService interface {
	Apply(ctx context.Context, req dto.ApplyRequest) (*models.Application, error)
	ApproveApplication(ctx context.Context, req dto.ApproveApplicationRequest) (*dto.ApprovalResult, error)
	RejectApplication(ctx context.Context, req dto.RejectApplicationRequest) (*models.Application, error)
	RecordAttendance(ctx context.Context, req dto.RecordAttendanceRequest) (*models.AttendanceRecord, error)
	SubmitExam(ctx context.Context, req dto.SubmitExamRequest) (*models.ExamResult, error)
	PromoteStudent(ctx context.Context, req dto.PromoteStudentRequest) (*dto.PromotionResult, error)
	GraduateStudent(ctx context.Context, req dto.GraduateStudentRequest) (*dto.GraduationResult, error)
}

type commandFunc func(ctx context.Context, caller *models.Caller, data json.RawMessage) (interface{}, error)

type commandRoute struct {
	minPrivilege models.Privilege
	run          commandFunc
}

// CommandHandler dispatches workflow commands after checking the caller's privilege.
type CommandHandler struct {
	workflow workflowService
	metrics  *service.MetricsService
	logger   *zap.Logger
	routes   map[string]commandRoute
}

// NewCommandHandler builds the command routing table.
func NewCommandHandler(workflow workflowService, metrics *service.MetricsService, logger *zap.Logger) *CommandHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &CommandHandler{workflow: workflow, metrics: metrics, logger: logger}
	h.routes = map[string]commandRoute{
		dto.CommandApply:              {minPrivilege: models.PrivilegeNone, run: h.apply},
		dto.CommandApproveApplication: {minPrivilege: models.PrivilegeAdministrator, run: h.approve},
		dto.CommandRejectApplication:  {minPrivilege: models.PrivilegeAdministrator, run: h.reject},
		dto.CommandRecordAttendance:   {minPrivilege: models.PrivilegeStandard, run: h.recordAttendance},
		dto.CommandSubmitExam:         {minPrivilege: models.PrivilegeStandard, run: h.submitExam},
		dto.CommandPromoteStudent:     {minPrivilege: models.PrivilegeAdministrator, run: h.promote},
		dto.CommandGraduateStudent:    {minPrivilege: models.PrivilegeAdministrator, run: h.graduate},
	}
	return h
}

// Dispatch godoc
// @Summary Execute a training workflow command
// @Description Accepts {command, data}. Commands: APPLY, APPROVE_APPLICATION, REJECT_APPLICATION, RECORD_ATTENDANCE, SUBMIT_EXAM, PROMOTE_STUDENT, GRADUATE_STUDENT.
// @Tags Commands
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CommandEnvelope true "Command envelope"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /commands [post]
func (h *CommandHandler) Dispatch(c *gin.Context) {
	caller := callerFromContext(c)
	if caller == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var envelope dto.CommandEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid command payload"))
		return
	}

	route, ok := h.routes[envelope.Command]
	if !ok {
		h.observe(envelope.Command, time.Now(), appErrors.ErrValidation)
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown command"))
		return
	}

	start := time.Now()
	if !caller.Privilege.AtLeast(route.minPrivilege) {
		err := appErrors.Clone(appErrors.ErrForbidden, envelope.Command+" requires "+route.minPrivilege.String()+" privilege")
		h.observe(envelope.Command, start, err)
		response.Error(c, err)
		return
	}

	result, err := route.run(c.Request.Context(), caller, envelope.Data)
	h.observe(envelope.Command, start, err)
	if err != nil {
		if !appErrors.IsUserFacing(err) {
			logger.ForRequest(c.Request.Context(), h.logger).Error("command failed",
				zap.String("command", envelope.Command),
				zap.String("user_id", caller.UserID),
				zap.Error(err),
			)
		}
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, map[string]interface{}{"command": envelope.Command})
}

func (h *CommandHandler) observe(command string, start time.Time, err error) {
	outcome := service.OutcomeSuccess
	if err != nil {
		outcome = service.OutcomeError
		if appErrors.IsUserFacing(err) {
			outcome = service.OutcomeRejected
		}
	}
	h.metrics.ObserveCommand(command, outcome, time.Since(start))
}

func (h *CommandHandler) apply(ctx context.Context, caller *models.Caller, data json.RawMessage) (interface{}, error) {
	var req dto.ApplyRequest
	if err := decodeCommandData(data, &req); err != nil {
		return nil, err
	}
	if req.MemberID == "" {
		req.MemberID = caller.MemberID
	}
	if req.MemberID != caller.MemberID && !caller.Privilege.AtLeast(models.PrivilegeAdministrator) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "members may only apply for themselves")
	}
	req.PerformedBy = caller.UserID
	return h.workflow.Apply(ctx, req)
}

func (h *CommandHandler) approve(ctx context.Context, caller *models.Caller, data json.RawMessage) (interface{}, error) {
	var req dto.ApproveApplicationRequest
	if err := decodeCommandData(data, &req); err != nil {
		return nil, err
	}
	req.ApproverID = caller.UserID
	return h.workflow.ApproveApplication(ctx, req)
}

func (h *CommandHandler) reject(ctx context.Context, caller *models.Caller, data json.RawMessage) (interface{}, error) {
	var req dto.RejectApplicationRequest
	if err := decodeCommandData(data, &req); err != nil {
		return nil, err
	}
	req.ApproverID = caller.UserID
	return h.workflow.RejectApplication(ctx, req)
}

func (h *CommandHandler) recordAttendance(ctx context.Context, caller *models.Caller, data json.RawMessage) (interface{}, error) {
	var req dto.RecordAttendanceRequest
	if err := decodeCommandData(data, &req); err != nil {
		return nil, err
	}
	req.RecorderID = caller.UserID
	return h.workflow.RecordAttendance(ctx, req)
}

func (h *CommandHandler) submitExam(ctx context.Context, caller *models.Caller, data json.RawMessage) (interface{}, error) {
	var req dto.SubmitExamRequest
	if err := decodeCommandData(data, &req); err != nil {
		return nil, err
	}
	req.GraderID = caller.UserID
	return h.workflow.SubmitExam(ctx, req)
}

func (h *CommandHandler) promote(ctx context.Context, caller *models.Caller, data json.RawMessage) (interface{}, error) {
	var req dto.PromoteStudentRequest
	if err := decodeCommandData(data, &req); err != nil {
		return nil, err
	}
	req.ApproverID = caller.UserID
	req.ApproverPrivilege = caller.Privilege
	return h.workflow.PromoteStudent(ctx, req)
}

func (h *CommandHandler) graduate(ctx context.Context, caller *models.Caller, data json.RawMessage) (interface{}, error) {
	var req dto.GraduateStudentRequest
	if err := decodeCommandData(data, &req); err != nil {
		return nil, err
	}
	req.IssuerID = caller.UserID
	return h.workflow.GraduateStudent(ctx, req)
}

// decodeCommandData rejects unknown fields so typos in command payloads surface as validation errors.
func decodeCommandData(data json.RawMessage, dest interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return appErrors.Clone(appErrors.ErrValidation, "command data required")
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid command data")
	}
	return nil
}
