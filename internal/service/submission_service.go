package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"retest_backend/internal/config"
	"retest_backend/internal/model"
	"retest_backend/internal/repository"
	"retest_backend/internal/util"
	"retest_backend/pkg/logger"
	"retest_backend/pkg/monitoring"
	"retest_backend/pkg/tracing"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SubmitTestRequest POST /api/tests/submit 的请求体
type SubmitTestRequest struct {
	TestID                uint                       `json:"testId" validate:"required"`
	Score                 *float64                   `json:"score" validate:"required,gte=0"`
	MaxScore              float64                    `json:"maxScore" validate:"gt=0"`
	Answers               map[string]json.RawMessage `json:"answers" swaggertype:"object"`
	AnswersByID           map[string]json.RawMessage `json:"answersById" swaggertype:"object"`
	QuestionOrder         []string                   `json:"questionOrder"`
	TimeTaken             int                        `json:"timeTaken" validate:"gte=0"`
	StartedAt             *time.Time                 `json:"startedAt"`
	SubmittedAt           *time.Time                 `json:"submittedAt"`
	IsCompleted           *bool                      `json:"isCompleted"`
	CaughtCheating        bool                       `json:"caughtCheating"`
	VisibilityChangeTimes json.RawMessage            `json:"visibilityChangeTimes" swaggertype:"array,string"`
	RetestAssignmentID    *uint                      `json:"retestAssignmentId"`
	ParentTestID          *uint                      `json:"parentTestId"`

	// SubmissionKey 来自 Idempotency-Key 请求头
	SubmissionKey string `json:"-"`
}

func (r *SubmitTestRequest) IsRetest() bool {
	return r.RetestAssignmentID != nil && *r.RetestAssignmentID > 0
}

func (r *SubmitTestRequest) ParentTest() uint {
	if r.ParentTestID != nil && *r.ParentTestID > 0 {
		return *r.ParentTestID
	}
	return r.TestID
}

// AnswerPayload 只要带了按题目索引的字段就存为索引格式，同时带的扁平答案并入其中，
// 同一题以 answersById 为准；否则原样保存扁平答案（可能为空）
func (r *SubmitTestRequest) AnswerPayload() model.AnswerPayload {
	if r.AnswersByID != nil || len(r.QuestionOrder) > 0 {
		return model.IndexedAnswers(lo.Assign(r.Answers, r.AnswersByID), r.QuestionOrder)
	}
	return model.FlatAnswers(r.Answers)
}

type SubmissionResult struct {
	ResultID      string             `json:"resultId"`
	Score         float64            `json:"score"`
	MaxScore      float64            `json:"maxScore"`
	Percentage    float64            `json:"percentageScore"`
	Retest        bool               `json:"retest"`
	AttemptNumber int                `json:"attemptNumber,omitempty"`
	Status        model.RetestStatus `json:"status,omitempty"`
	Reused        bool               `json:"reused,omitempty"`
	Replayed      bool               `json:"replayed,omitempty"`
}

type SubmissionService struct {
	DB          *gorm.DB
	Remediation *repository.RemediationRepository
	Attempts    *repository.AttemptRecordRepository
	Results     *repository.TestResultRepository
	Directory   *repository.DirectoryRepository

	Eligibility *RetestEligibilityChecker
	Resolver    *AttemptNumberResolver
	Persister   *AttemptScorePersister
	Updater     *RetestStatusUpdater
	Aggregator  *BestValueAggregator

	validate *validator.Validate
	mu       sync.RWMutex
	settings config.RetestConfig
	now      func() time.Time
}

func NewSubmissionService(
	db *gorm.DB,
	remediation *repository.RemediationRepository,
	attempts *repository.AttemptRecordRepository,
	results *repository.TestResultRepository,
	directory *repository.DirectoryRepository,
	aggregator *BestValueAggregator,
	settings config.RetestConfig,
) *SubmissionService {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &SubmissionService{
		DB:          db,
		Remediation: remediation,
		Attempts:    attempts,
		Results:     results,
		Directory:   directory,
		Eligibility: NewRetestEligibilityChecker(remediation),
		Resolver:    NewAttemptNumberResolver(attempts),
		Persister:   NewAttemptScorePersister(attempts),
		Updater:     NewRetestStatusUpdater(remediation),
		Aggregator:  aggregator,
		validate:    v,
		settings:    settings,
		now:         time.Now,
	}
}

// UpdateSettings 配置热更新时替换重测参数
func (s *SubmissionService) UpdateSettings(cfg config.RetestConfig) {
	s.mu.Lock()
	s.settings = cfg
	s.mu.Unlock()
	if s.Aggregator != nil {
		s.Aggregator.UpdateSettings(cfg)
	}
}

func (s *SubmissionService) currentSettings() config.RetestConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *SubmissionService) Submit(ctx context.Context, studentID uint, req SubmitTestRequest) (result *SubmissionResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "SubmissionService.Submit")
	defer func() { tracing.EndSpan(span, err) }()

	if err = s.Validate(&req); err != nil {
		if req.IsRetest() {
			monitoring.RetestSubmissions.WithLabelValues("rejected_" + util.RejectionReason(err)).Inc()
		}
		return nil, err
	}

	if !req.IsRetest() {
		return s.submitRegular(ctx, studentID, &req)
	}

	result, err = s.submitRetest(ctx, studentID, &req)
	monitoring.RetestSubmissions.WithLabelValues(submissionOutcome(result, err)).Inc()
	return result, err
}

// Validate 校验请求格式，所有错误都包装 util.ErrValidation
func (s *SubmissionService) Validate(req *SubmitTestRequest) error {
	if err := s.validate.Struct(req); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			msgs := lo.Map(ve, func(fe validator.FieldError, _ int) string {
				return describeFieldError(fe)
			})
			return util.ValidationError("%s", strings.Join(msgs, "; "))
		}
		return util.ValidationError("%v", err)
	}

	if *req.Score > req.MaxScore {
		return util.ValidationError("score must not exceed maxScore")
	}
	if len(req.QuestionOrder) > 0 && req.AnswersByID == nil && req.Answers == nil {
		return util.ValidationError("questionOrder requires answersById")
	}
	if len(lo.Uniq(req.QuestionOrder)) != len(req.QuestionOrder) {
		return util.ValidationError("questionOrder contains duplicate question ids")
	}
	if len(req.SubmissionKey) > util.MaxIdempotencyKeyLen {
		return util.ValidationError("%s must be at most %d characters", util.IdempotencyHeader, util.MaxIdempotencyKeyLen)
	}
	if len(req.VisibilityChangeTimes) > 0 && !json.Valid(req.VisibilityChangeTimes) {
		return util.ValidationError("visibilityChangeTimes is not valid JSON")
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func visibilityJSON(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return datatypes.JSON(raw)
}

func (r *SubmitTestRequest) completed() bool {
	if r.IsCompleted == nil {
		return true
	}
	return *r.IsCompleted
}

type submissionMeta struct {
	StudentName  string
	StudentEmail string
	TestTitle    string
}

// lookupMeta 读取学生和测试的展示字段，查不到时留空
func (s *SubmissionService) lookupMeta(ctx context.Context, studentID, testID uint) (submissionMeta, error) {
	var meta submissionMeta
	if s.Directory == nil {
		return meta, nil
	}

	user, err := s.Directory.FindUser(ctx, studentID)
	switch {
	case err == nil:
		meta.StudentName = user.Name
		meta.StudentEmail = user.Email
	case !repository.IsNotFound(err):
		return meta, util.Persistence("load student", err)
	}

	test, err := s.Directory.FindTest(ctx, testID)
	switch {
	case err == nil:
		meta.TestTitle = test.Title
	case !repository.IsNotFound(err):
		return meta, util.Persistence("load test", err)
	}
	return meta, nil
}

func (s *SubmissionService) submitRegular(ctx context.Context, studentID uint, req *SubmitTestRequest) (*SubmissionResult, error) {
	meta, err := s.lookupMeta(ctx, studentID, req.TestID)
	if err != nil {
		return nil, err
	}

	percentage := CalculatePercentage(*req.Score, req.MaxScore)
	res := &model.TestResult{
		StudentID:             studentID,
		TestID:                req.TestID,
		Score:                 *req.Score,
		MaxScore:              req.MaxScore,
		Percentage:            percentage,
		Answers:               datatypes.NewJSONType(req.AnswerPayload()),
		TimeTaken:             req.TimeTaken,
		StartedAt:             req.StartedAt,
		SubmittedAt:           req.SubmittedAt,
		IsCompleted:           req.completed(),
		CaughtCheating:        req.CaughtCheating,
		VisibilityChangeTimes: visibilityJSON(req.VisibilityChangeTimes),
		StudentName:           meta.StudentName,
		StudentEmail:          meta.StudentEmail,
		TestTitle:             meta.TestTitle,
	}
	if err := s.Results.Create(ctx, res); err != nil {
		return nil, util.Persistence("insert test result", err)
	}

	return &SubmissionResult{
		ResultID:   res.ID,
		Score:      res.Score,
		MaxScore:   res.MaxScore,
		Percentage: percentage,
	}, nil
}

func (s *SubmissionService) submitRetest(ctx context.Context, studentID uint, req *SubmitTestRequest) (*SubmissionResult, error) {
	now := s.now()
	assignmentID := *req.RetestAssignmentID
	parentTestID := req.ParentTest()
	settings := s.currentSettings()

	meta, err := s.lookupMeta(ctx, studentID, req.TestID)
	if err != nil {
		return nil, err
	}

	var (
		result *SubmissionResult
		task   *model.SummaryRefreshTask
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		elig, err := s.Eligibility.Load(ctx, tx, assignmentID, studentID)
		if err != nil {
			return err
		}

		if req.SubmissionKey != "" {
			prev, err := s.Attempts.WithTx(tx).FindBySubmissionKey(ctx, studentID, parentTestID, assignmentID, req.SubmissionKey)
			if err == nil {
				result = replayedResult(prev, elig.Target)
				return nil
			}
			if !repository.IsNotFound(err) {
				return util.Persistence("find attempt by submission key", err)
			}
		}

		if err := EvaluateEligibility(elig, now); err != nil {
			return err
		}

		threshold := elig.Assignment.Threshold(settings.DefaultPassingThreshold)
		slot, err := s.Resolver.Resolve(ctx, tx, ResolveInput{
			StudentID:    studentID,
			ParentTestID: parentTestID,
			Score:        *req.Score,
			MaxScore:     req.MaxScore,
			Threshold:    threshold,
			Eligibility:  elig,
		})
		if err != nil {
			return err
		}

		plan := PlanTransition(elig.Target, elig.EffectiveMaxAttempts, slot.Percentage, threshold, now)

		rec, reused, err := s.Persister.Persist(ctx, tx, PersistInput{
			StudentID:             studentID,
			ParentTestID:          parentTestID,
			TestID:                req.TestID,
			AssignmentID:          assignmentID,
			AttemptNumber:         slot.AttemptNumber,
			Score:                 *req.Score,
			MaxScore:              req.MaxScore,
			Percentage:            slot.Percentage,
			Passed:                plan.Passed,
			Answers:               req.AnswerPayload(),
			TimeTaken:             req.TimeTaken,
			StartedAt:             req.StartedAt,
			SubmittedAt:           req.SubmittedAt,
			IsCompleted:           req.completed(),
			CaughtCheating:        req.CaughtCheating,
			VisibilityChangeTimes: visibilityJSON(req.VisibilityChangeTimes),
			SubmissionKey:         req.SubmissionKey,
			StudentName:           meta.StudentName,
			StudentEmail:          meta.StudentEmail,
			TestTitle:             meta.TestTitle,
		})
		if err != nil {
			return err
		}

		if err := s.Updater.Apply(ctx, tx, elig.Target, plan); err != nil {
			return err
		}

		if s.Aggregator != nil {
			task, err = s.Aggregator.Enqueue(ctx, tx, studentID, parentTestID)
			if err != nil {
				return err
			}
		}

		result = &SubmissionResult{
			ResultID:      rec.ID,
			Score:         *req.Score,
			MaxScore:      req.MaxScore,
			Percentage:    slot.Percentage,
			Retest:        true,
			AttemptNumber: slot.AttemptNumber,
			Status:        elig.Target.Status,
			Reused:        reused,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if task != nil {
		s.refreshSummary(ctx, task)
	}

	logger.Log.Info("Retest submission recorded",
		zap.Uint("studentID", studentID),
		zap.Uint("assignmentID", assignmentID),
		zap.Uint("parentTestID", parentTestID),
		zap.String("resultID", result.ResultID),
		zap.Int("attemptNumber", result.AttemptNumber),
		zap.Float64("percentage", result.Percentage),
		zap.String("status", string(result.Status)),
		zap.Bool("reused", result.Reused),
		zap.Bool("replayed", result.Replayed),
	)
	return result, nil
}

// refreshSummary 提交后同步刷新汇总，失败时任务留给后台重试，不影响提交结果
func (s *SubmissionService) refreshSummary(ctx context.Context, task *model.SummaryRefreshTask) {
	ctx, span := tracing.StartSpan(ctx, "BestValueAggregator.RunTask")
	err := s.Aggregator.RunTask(ctx, task)
	tracing.EndSpan(span, err)
	if err != nil {
		logger.Log.Warn("Best summary refresh failed, left for retry",
			zap.Uint("taskID", task.ID),
			zap.Uint("studentID", task.StudentID),
			zap.Uint("parentTestID", task.ParentTestID),
			zap.Error(err))
	}
}

func replayedResult(rec *model.AttemptRecord, target *model.RemediationTarget) *SubmissionResult {
	return &SubmissionResult{
		ResultID:      rec.ID,
		Score:         rec.Score,
		MaxScore:      rec.MaxScore,
		Percentage:    rec.Percentage,
		Retest:        true,
		AttemptNumber: rec.AttemptNumber,
		Status:        target.Status,
		Reused:        true,
		Replayed:      true,
	}
}

func submissionOutcome(res *SubmissionResult, err error) string {
	switch {
	case err != nil && util.IsClientError(err):
		return "rejected_" + util.RejectionReason(err)
	case err != nil:
		return "error"
	case res.Replayed:
		return "replayed"
	case res.Reused:
		return "reused"
	default:
		return strings.ToLower(string(res.Status))
	}
}
