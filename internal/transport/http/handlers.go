package http

import (
	"errors"
	"log"
	"net/http"
	"time"

	"weekly-exam-service/internal/app"
	"weekly-exam-service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler wires the exam use cases into the REST surface.
type Handler struct {
	service  *app.ExamService
	upgrader websocket.Upgrader
}

func NewHandler(service *app.ExamService) *Handler {
	return &Handler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// NewRouter builds the gin engine with auth on every exam route and an
// additional role gate on the admin ones.
func NewRouter(service *app.ExamService, jwtSecret []byte) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	handler := NewHandler(service)

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	exams := router.Group("/weekly-exams", Auth(jwtSecret))
	exams.GET("/active", handler.activeExam)
	exams.POST("/progress", handler.saveProgress)
	exams.POST("/submit", handler.submit)
	exams.GET("/mine", handler.history)
	exams.GET("/badges", handler.badges)
	exams.GET("/:examId/leaderboard", handler.leaderboard)
	exams.GET("/:examId/leaderboard/live", handler.leaderboardStream)

	admin := exams.Group("", RequireAdmin())
	admin.POST("", handler.createExam)
	admin.GET("", handler.listExams)
	admin.GET("/:examId", handler.getExam)
	admin.PUT("/:examId", handler.updateExam)
	admin.DELETE("/:examId", handler.deleteExam)
	admin.POST("/:examId/finalize", handler.finalize)

	return router
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type examRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     time.Time  `json:"endDate"`
	QuestionIDs []int64    `json:"questionIds"`
}

func (r examRequest) toInput() app.ExamInput {
	return app.ExamInput{
		Title:       r.Title,
		Description: r.Description,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		QuestionIDs: r.QuestionIDs,
	}
}

type answersRequest struct {
	ExamID  string           `json:"examId"`
	Answers domain.AnswerSet `json:"answers"`
}

type examResponse struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	StartDate   time.Time         `json:"startDate"`
	EndDate     time.Time         `json:"endDate"`
	Status      domain.ExamStatus `json:"status"`
	QuestionIDs []int64           `json:"questionIds"`
}

func toExamResponse(exam domain.Exam, now time.Time) examResponse {
	return examResponse{
		ID:          exam.ID,
		Title:       exam.Title,
		Description: exam.Description,
		StartDate:   exam.StartDate,
		EndDate:     exam.EndDate,
		Status:      exam.StatusAt(now),
		QuestionIDs: exam.QuestionIDs,
	}
}

type activeExamResponse struct {
	Exam           examResponse               `json:"exam"`
	TotalQuestions int                        `json:"totalQuestions"`
	IsSubmitted    bool                       `json:"isSubmitted"`
	UserScore      *int                       `json:"userScore,omitempty"`
	Questions      []domain.SanitizedQuestion `json:"questions,omitempty"`
	Revealed       []domain.Question          `json:"revealedQuestions,omitempty"`
	SavedAnswers   domain.AnswerSet           `json:"savedAnswers,omitempty"`
}

func (h *Handler) activeExam(c *gin.Context) {
	view, ok, err := h.service.ActiveExam(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		// A normal, displayable empty state: the client renders "no exam this
		// week", not an error page.
		c.JSON(http.StatusNotFound, errorBody{Code: "NO_ACTIVE_EXAM", Message: "no active exam"})
		return
	}
	c.JSON(http.StatusOK, activeExamResponse{
		Exam:           toExamResponse(view.Exam, time.Now()),
		TotalQuestions: view.Total,
		IsSubmitted:    view.IsSubmitted,
		UserScore:      view.UserScore,
		Questions:      view.Questions,
		Revealed:       view.Revealed,
		SavedAnswers:   view.SavedAnswers,
	})
}

func (h *Handler) saveProgress(c *gin.Context) {
	var req answersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.Validationf("invalid progress payload"))
		return
	}
	if err := h.service.SaveProgress(c.Request.Context(), c.GetString(ctxUserID), req.ExamID, req.Answers); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": true})
}

func (h *Handler) submit(c *gin.Context) {
	var req answersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.Validationf("invalid submission payload"))
		return
	}
	result, err := h.service.Submit(c.Request.Context(), c.GetString(ctxUserID), req.ExamID, req.Answers)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) leaderboard(c *gin.Context) {
	lb, err := h.service.Leaderboard(c.Request.Context(), c.Param("examId"), 0)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lb)
}

func (h *Handler) history(c *gin.Context) {
	entries, err := h.service.History(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": entries})
}

func (h *Handler) badges(c *gin.Context) {
	badges, err := h.service.BadgesFor(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"badges": badges})
}

func (h *Handler) createExam(c *gin.Context) {
	var req examRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.Validationf("invalid exam payload"))
		return
	}
	exam, err := h.service.CreateExam(c.Request.Context(), req.toInput())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toExamResponse(exam, time.Now()))
}

func (h *Handler) listExams(c *gin.Context) {
	exams, err := h.service.ListExams(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	now := time.Now()
	out := make([]examResponse, 0, len(exams))
	for _, exam := range exams {
		out = append(out, toExamResponse(exam, now))
	}
	c.JSON(http.StatusOK, gin.H{"exams": out})
}

func (h *Handler) getExam(c *gin.Context) {
	exam, err := h.service.GetExam(c.Request.Context(), c.Param("examId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toExamResponse(exam, time.Now()))
}

func (h *Handler) updateExam(c *gin.Context) {
	var req examRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.Validationf("invalid exam payload"))
		return
	}
	exam, err := h.service.UpdateExam(c.Request.Context(), c.Param("examId"), req.toInput())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toExamResponse(exam, time.Now()))
}

func (h *Handler) deleteExam(c *gin.Context) {
	if err := h.service.DeleteExam(c.Request.Context(), c.Param("examId")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) finalize(c *gin.Context) {
	report, err := h.service.Finalize(c.Request.Context(), c.Param("examId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// writeError maps domain failures onto the REST surface. The four business
// errors are terminal client-side conditions; anything else is an internal
// failure logged server-side with no detail leaked.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, errorBody{Code: "VALIDATION_ERROR", Message: err.Error()})
	case errors.Is(err, domain.ErrExamNotFound):
		c.JSON(http.StatusNotFound, errorBody{Code: "EXAM_NOT_FOUND", Message: err.Error()})
	case errors.Is(err, domain.ErrExamClosed):
		c.JSON(http.StatusConflict, errorBody{Code: "EXAM_CLOSED", Message: err.Error()})
	case errors.Is(err, domain.ErrDuplicateSubmission):
		c.JSON(http.StatusConflict, errorBody{Code: "ALREADY_SUBMITTED", Message: err.Error()})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, errorBody{Code: "INTERNAL_ERROR", Message: "internal error"})
	}
}
