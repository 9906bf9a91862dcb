package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	gradingdomain "github.com/mentora-app/mentora/internal/grading/domain"
	quotadomain "github.com/mentora-app/mentora/internal/quota/domain"
)

// Students are identified by the authenticating gateway upstream; it
// forwards the resolved id in this header.
const headerStudentID = "X-Student-Id"

type createSubmissionRequest struct {
	QuestionID string `json:"question_id"`
	AnswerText string `json:"answer_text"`
}

func (s *Server) CreateSubmission(c *gin.Context) {
	studentID, err := studentFromHeader(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	questionID, err := parseSnowflakeID(req.QuestionID)
	if err != nil {
		AbortWithError(c, newValidationError("question_id", "invalid_question", "question_id must be a valid id"))
		return
	}

	resp, err := s.gradingSvc.Create(c.Request.Context(), gradingdomain.CreateSubmissionRequest{
		StudentID:  studentID,
		QuestionID: questionID,
		AnswerText: req.AnswerText,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp.FeedbackPollPath = "/v1/submissions/" + resp.SubmissionID.String() + "/feedback"
	c.JSON(http.StatusAccepted, resp)
}

func (s *Server) GetSubmissionFeedback(c *gin.Context) {
	studentID, err := studentFromHeader(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	submissionID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, gradingdomain.ErrSubmissionNotFound)
		return
	}

	resp, err := s.gradingSvc.GetFeedback(c.Request.Context(), studentID, submissionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetQuota(c *gin.Context) {
	studentID, err := studentFromHeader(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	feature := quotadomain.Feature(strings.TrimSpace(c.Query("feature")))
	if feature == "" {
		feature = quotadomain.FeatureAnswerGrading
	}

	usage, err := s.quotaSvc.GetUsage(c.Request.Context(), quotadomain.GetUsageRequest{
		StudentID: studentID,
		Feature:   feature,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, usage)
}

func studentFromHeader(c *gin.Context) (snowflake.ID, error) {
	id, err := parseSnowflakeID(c.GetHeader(headerStudentID))
	if err != nil {
		return 0, newValidationError("student_id", "invalid_student", "missing or malformed "+headerStudentID+" header")
	}
	return id, nil
}

func parseSnowflakeID(value string) (snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, ErrInvalidRequest
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed == 0 {
		return 0, ErrInvalidRequest
	}
	return parsed, nil
}
