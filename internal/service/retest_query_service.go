package service

import (
	"context"
	"fmt"
	"retest_backend/internal/config"
	"retest_backend/internal/model"
	"retest_backend/internal/repository"
	"retest_backend/internal/util"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"github.com/samber/lo"
)

type RetestStatusView struct {
	AssignmentID      uint               `json:"assignmentId"`
	TestID            uint               `json:"testId"`
	Title             string             `json:"title"`
	Status            model.RetestStatus `json:"status"`
	AttemptNumber     int                `json:"attemptNumber"`
	IsCompleted       bool               `json:"isCompleted"`
	Passed            *bool              `json:"passed"`
	CompletedAt       *time.Time         `json:"completedAt,omitempty"`
	LastAttemptAt     *time.Time         `json:"lastAttemptAt,omitempty"`
	MaxAttempts       int                `json:"maxAttempts" copier:"-"`
	RemainingAttempts int                `json:"remainingAttempts"`
	PassingThreshold  float64            `json:"passingThreshold"`
	WindowStart       time.Time          `json:"windowStart"`
	WindowEnd         time.Time          `json:"windowEnd"`
	WindowOpen        bool               `json:"windowOpen"`
	CanSubmit         bool               `json:"canSubmit"`
}

type AttemptView struct {
	ID             string                `json:"id"`
	AttemptNumber  int                   `json:"attemptNumber"`
	TestID         uint                  `json:"testId"`
	Score          float64               `json:"score"`
	MaxScore       float64               `json:"maxScore"`
	Percentage     float64               `json:"percentage"`
	Passed         bool                  `json:"passed"`
	TimeTaken      int                   `json:"timeTaken"`
	StartedAt      *time.Time            `json:"startedAt,omitempty"`
	SubmittedAt    *time.Time            `json:"submittedAt,omitempty"`
	CaughtCheating bool                  `json:"caughtCheating"`
	CreatedAt      time.Time             `json:"createdAt"`
	AnswerKind     model.AnswerKind      `json:"answerKind"`
	AnswerList     []model.OrderedAnswer `json:"answers"`
}

type RetestQueryService struct {
	Remediation *repository.RemediationRepository
	Attempts    *repository.AttemptRecordRepository
	Aggregator  *BestValueAggregator

	mu       sync.RWMutex
	settings config.RetestConfig
	now      func() time.Time
}

func NewRetestQueryService(
	remediation *repository.RemediationRepository,
	attempts *repository.AttemptRecordRepository,
	aggregator *BestValueAggregator,
	settings config.RetestConfig,
) *RetestQueryService {
	return &RetestQueryService{
		Remediation: remediation,
		Attempts:    attempts,
		Aggregator:  aggregator,
		settings:    settings,
		now:         time.Now,
	}
}

func (s *RetestQueryService) UpdateSettings(cfg config.RetestConfig) {
	s.mu.Lock()
	s.settings = cfg
	s.mu.Unlock()
}

func (s *RetestQueryService) threshold(a *model.RemediationAssignment) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return a.Threshold(s.settings.DefaultPassingThreshold)
}

func (s *RetestQueryService) statusView(t *model.RemediationTarget, a *model.RemediationAssignment, now time.Time) (RetestStatusView, error) {
	var v RetestStatusView
	if err := copier.Copy(&v, t); err != nil {
		return v, fmt.Errorf("copy remediation target: %w", err)
	}

	maxAttempts := t.EffectiveMaxAttempts(a)
	v.AssignmentID = a.ID
	v.TestID = a.TestID
	v.Title = a.Title
	v.MaxAttempts = maxAttempts
	v.RemainingAttempts = lo.Max([]int{maxAttempts - t.AttemptNumber, 0})
	if t.IsCompleted {
		v.RemainingAttempts = 0
	}
	v.PassingThreshold = s.threshold(a)
	v.WindowStart = a.WindowStart
	v.WindowEnd = a.WindowEnd
	v.WindowOpen = a.InWindow(now)
	v.CanSubmit = EvaluateEligibility(&RetestEligibility{
		Target:               t,
		Assignment:           a,
		EffectiveMaxAttempts: maxAttempts,
	}, now) == nil
	return v, nil
}

// GetRetestStatus 学生在某个重测任务上的当前状态
func (s *RetestQueryService) GetRetestStatus(ctx context.Context, studentID, assignmentID uint) (*RetestStatusView, error) {
	target, err := s.Remediation.FindTarget(ctx, assignmentID, studentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrNotAssigned
		}
		return nil, util.Persistence("load remediation target", err)
	}
	assignment, err := s.Remediation.FindAssignment(ctx, assignmentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrNotAssigned
		}
		return nil, util.Persistence("load remediation assignment", err)
	}

	v, err := s.statusView(target, assignment, s.now())
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListStudentRetests 学生名下的所有重测任务，新的在前
func (s *RetestQueryService) ListStudentRetests(ctx context.Context, studentID uint) ([]RetestStatusView, error) {
	targets, err := s.Remediation.ListTargetsByStudent(ctx, studentID)
	if err != nil {
		return nil, util.Persistence("list remediation targets", err)
	}

	now := s.now()
	withAssignment := lo.Filter(targets, func(t model.RemediationTarget, _ int) bool {
		return t.Assignment != nil
	})
	views := make([]RetestStatusView, 0, len(withAssignment))
	for i := range withAssignment {
		v, err := s.statusView(&withAssignment[i], withAssignment[i].Assignment, now)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *RetestQueryService) ListAttempts(ctx context.Context, studentID, parentTestID uint) ([]AttemptView, error) {
	recs, err := s.Attempts.ListByStudentAndTest(ctx, studentID, parentTestID)
	if err != nil {
		return nil, util.Persistence("list attempt records", err)
	}

	views := make([]AttemptView, 0, len(recs))
	for i := range recs {
		v, err := toAttemptView(&recs[i])
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// toAttemptView 答案按题目顺序展开
func toAttemptView(r *model.AttemptRecord) (AttemptView, error) {
	var v AttemptView
	if err := copier.Copy(&v, r); err != nil {
		return v, fmt.Errorf("copy attempt record: %w", err)
	}
	payload := r.Answers.Data()
	v.AnswerKind = payload.Kind
	v.AnswerList = payload.Ordered()
	return v, nil
}

func (s *RetestQueryService) GetBestSummary(ctx context.Context, studentID, parentTestID uint) (*model.BestRetestSummary, error) {
	return s.Aggregator.Get(ctx, studentID, parentTestID)
}

// ListAssignmentTargets 分页列出任务下的学生，教师只能看自己布置的任务，管理员不受限
func (s *RetestQueryService) ListAssignmentTargets(ctx context.Context, viewerID uint, role model.UserRole, assignmentID uint, page, limit int) ([]repository.AssignmentTargetRow, int64, error) {
	assignment, err := s.Remediation.FindAssignment(ctx, assignmentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, 0, util.ErrNotFound
		}
		return nil, 0, util.Persistence("load remediation assignment", err)
	}
	if role != model.Admin && assignment.TeacherID != viewerID {
		return nil, 0, util.ErrForbidden
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = util.DefaultPageSize
	}
	limit = lo.Min([]int{limit, util.MaxPageSize})

	rows, total, err := s.Remediation.ListTargetsByAssignment(ctx, assignmentID, page, limit)
	if err != nil {
		return nil, 0, util.Persistence("list assignment targets", err)
	}
	return rows, total, nil
}
