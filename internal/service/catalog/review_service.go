package catalog

import (
	"context"
	"strconv"
	"strings"

	"gorm.io/datatypes"

	"github.com/dumeirei/storefront-catalog/internal/common/cache"
	"github.com/dumeirei/storefront-catalog/internal/common/database"
	"github.com/dumeirei/storefront-catalog/internal/common/errors"
	"github.com/dumeirei/storefront-catalog/internal/common/logger"
	"github.com/dumeirei/storefront-catalog/internal/common/tracing"
	"github.com/dumeirei/storefront-catalog/internal/common/utils"
	"github.com/dumeirei/storefront-catalog/internal/models"
	"github.com/dumeirei/storefront-catalog/internal/repository"
	"github.com/dumeirei/storefront-catalog/internal/scope"
)

// ReviewService 评价服务
type ReviewService struct {
	reviewRepo  *repository.ReviewRepository
	productRepo *repository.ProductRepository
	opts        Options
}

// NewReviewService 创建评价服务
func NewReviewService(
	reviewRepo *repository.ReviewRepository,
	productRepo *repository.ProductRepository,
	opts Options,
) *ReviewService {
	return &ReviewService{
		reviewRepo:  reviewRepo,
		productRepo: productRepo,
		opts:        opts.withDefaults(),
	}
}

// SubmitReviewRequest 提交评价请求
type SubmitReviewRequest struct {
	UserID    int64    `json:"user_id"`
	ProductID int64    `json:"product_id"`
	Rating    int      `json:"rating"`
	Comment   string   `json:"comment"`
	Pros      []string `json:"pros"`
	Cons      []string `json:"cons"`
}

// ReviewFilter 评价列表过滤条件
type ReviewFilter struct {
	ProductID    *int64
	UserID       *int64
	Status       *models.ReviewStatus
	VerifiedOnly bool
	Rating       *int
	MinRating    *int
	Order        repository.ReviewOrder
	Page         int
	PageSize     int
}

func validRating(rating int) bool {
	return rating >= models.MinRating && rating <= models.MaxRating
}

// Submit 提交评价，同一用户对同一商品只能评价一次
func (s *ReviewService) Submit(ctx context.Context, req *SubmitReviewRequest) (review *models.Review, err error) {
	ctx, span := s.opts.Tracer.StartSpan(ctx, "catalog.review.submit",
		tracing.WithUserID(req.UserID), tracing.WithProductID(req.ProductID))
	defer func() { tracing.End(span, err) }()

	if req.UserID <= 0 {
		s.opts.Metrics.RecordReviewSubmission("invalid")
		return nil, errors.ErrInvalidParams.WithMessage("用户无效")
	}
	if !validRating(req.Rating) {
		s.opts.Metrics.RecordReviewSubmission("invalid")
		return nil, errors.ErrInvalidParams.WithMessage("评分必须在 1 到 5 之间")
	}

	if _, err = s.productRepo.GetByID(ctx, req.ProductID); err != nil {
		s.opts.Metrics.RecordReviewSubmission("invalid")
		return nil, errors.FromDB(err, errors.ErrProductNotFound)
	}

	if s.opts.Locker != nil {
		release, lerr := s.acquireSubmitLock(ctx, req.UserID, req.ProductID)
		if lerr != nil {
			return nil, lerr
		}
		defer release()
	}

	reviewed, err := s.reviewRepo.UserHasReviewed(ctx, req.UserID, req.ProductID)
	if err != nil {
		s.opts.Metrics.RecordReviewSubmission("error")
		return nil, errors.FromDB(err, nil)
	}
	if reviewed {
		s.opts.Metrics.RecordReviewSubmission("duplicate")
		logger.Ctx(ctx).Warn("重复评价被拒绝", logger.UserID(req.UserID), logger.ProductID(req.ProductID))
		return nil, errors.ErrAlreadyExists.WithMessage("已评价过该商品")
	}

	review = &models.Review{
		UserID:    req.UserID,
		ProductID: req.ProductID,
		Rating:    req.Rating,
		Comment:   strings.TrimSpace(req.Comment),
		Status:    models.ReviewStatusPending,
	}
	if pros := utils.CleanStrings(req.Pros); pros != nil {
		review.Pros = datatypes.NewJSONSlice(pros)
	}
	if cons := utils.CleanStrings(req.Cons); cons != nil {
		review.Cons = datatypes.NewJSONSlice(cons)
	}

	if err = s.reviewRepo.Create(ctx, review); err != nil {
		s.opts.Metrics.RecordReviewSubmission("error")
		return nil, errors.FromDB(err, errors.ErrReviewNotFound)
	}

	s.opts.Metrics.RecordReviewSubmission("ok")
	logger.Ctx(ctx).Info("评价已提交",
		logger.Module("catalog"),
		logger.Action("submit_review"),
		logger.ReviewID(review.ID),
		logger.UserID(req.UserID),
		logger.ProductID(req.ProductID),
	)
	return review, nil
}

// acquireSubmitLock 获取 (用户, 商品) 维度的提交锁，返回释放函数
func (s *ReviewService) acquireSubmitLock(ctx context.Context, userID, productID int64) (func(), error) {
	name := cache.BuildKey(cache.KeyPrefixReview,
		strconv.FormatInt(userID, 10), strconv.FormatInt(productID, 10))
	tracing.SetAttributes(ctx, tracing.AttrLockKey.String(name))

	lock, ok, err := s.opts.Locker.TryAcquire(ctx, name, s.opts.Config.ReviewLockDuration())
	if err != nil {
		s.opts.Metrics.RecordReviewSubmission("error")
		logger.Ctx(ctx).Error("获取评价提交锁失败", logger.String("lock", name), logger.Err(err))
		return nil, errors.ErrCacheError.WithError(err)
	}
	s.opts.Metrics.RecordLockAttempt("review_submit", ok)
	if !ok {
		s.opts.Metrics.RecordReviewSubmission("busy")
		return nil, errors.ErrLockBusy
	}

	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Ctx(ctx).Warn("释放评价提交锁失败", logger.String("lock", lock.Key()), logger.Err(err))
		}
	}, nil
}

// Get 获取评价
func (s *ReviewService) Get(ctx context.Context, id int64) (*models.Review, error) {
	review, err := s.reviewRepo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.FromDB(err, errors.ErrReviewNotFound)
	}
	return review, nil
}

// GetWithProduct 获取评价及其商品与分类
func (s *ReviewService) GetWithProduct(ctx context.Context, id int64) (*models.Review, error) {
	review, err := s.reviewRepo.GetByIDWithProduct(ctx, id)
	if err != nil {
		return nil, errors.FromDB(err, errors.ErrReviewNotFound)
	}
	return review, nil
}

// Delete 删除评价
func (s *ReviewService) Delete(ctx context.Context, id int64) error {
	if err := s.reviewRepo.Delete(ctx, id); err != nil {
		return errors.FromDB(err, errors.ErrReviewNotFound)
	}
	logger.Ctx(ctx).Info("评价已删除", logger.Module("catalog"), logger.Action("delete_review"), logger.ReviewID(id))
	return nil
}

// Approve 审核通过
func (s *ReviewService) Approve(ctx context.Context, id int64) (*models.Review, error) {
	return s.moderate(ctx, id, models.ReviewStatusApproved, "approve")
}

// Reject 审核拒绝
func (s *ReviewService) Reject(ctx context.Context, id int64) (*models.Review, error) {
	return s.moderate(ctx, id, models.ReviewStatusRejected, "reject")
}

// moderate 只允许从待审核转出；目标状态与当前状态相同时不做修改
func (s *ReviewService) moderate(ctx context.Context, id int64, target models.ReviewStatus, action string) (review *models.Review, err error) {
	ctx, span := s.opts.Tracer.StartSpan(ctx, "catalog.review."+action,
		tracing.WithReviewID(id), tracing.WithOperation(action))
	defer func() { tracing.End(span, err) }()

	review, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if review.Status == target {
		s.opts.Metrics.RecordReviewModeration(action, "noop")
		return review, nil
	}
	if !review.Status.CanTransitionTo(target) {
		s.opts.Metrics.RecordReviewModeration(action, "conflict")
		return nil, s.conflict(review.Status, target)
	}

	updated, err := s.reviewRepo.UpdateStatus(ctx, id, target)
	if err != nil {
		return nil, errors.FromDB(err, errors.ErrReviewNotFound)
	}

	review, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !updated && review.Status != target {
		// 并发审核已将其改为另一状态
		s.opts.Metrics.RecordReviewModeration(action, "conflict")
		return nil, s.conflict(review.Status, target)
	}

	s.opts.Metrics.RecordReviewModeration(action, "ok")
	logger.Ctx(ctx).Info("评价已审核",
		logger.Module("catalog"),
		logger.Action(action),
		logger.ReviewID(id),
		logger.String("status", string(review.Status)),
	)
	return review, nil
}

func (s *ReviewService) conflict(current, target models.ReviewStatus) error {
	return errors.ErrReviewStatusConflict.WithMessage(
		"评价当前状态为 " + string(current) + "，不能变更为 " + string(target))
}

// MarkAsVerified 标记为已验证购买，重复标记无副作用
func (s *ReviewService) MarkAsVerified(ctx context.Context, id int64) (*models.Review, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	updated, err := s.reviewRepo.MarkAsVerified(ctx, id)
	if err != nil {
		return nil, errors.FromDB(err, errors.ErrReviewNotFound)
	}
	if updated {
		logger.Ctx(ctx).Info("评价已标记为验证购买", logger.Module("catalog"), logger.ReviewID(id))
	}
	return s.Get(ctx, id)
}

// UserHasReviewed 用户是否评价过该商品，与审核状态无关
func (s *ReviewService) UserHasReviewed(ctx context.Context, userID, productID int64) (bool, error) {
	reviewed, err := s.reviewRepo.UserHasReviewed(ctx, userID, productID)
	if err != nil {
		return false, errors.FromDB(err, nil)
	}
	return reviewed, nil
}

// List 获取评价列表
func (s *ReviewService) List(ctx context.Context, filter ReviewFilter) (*Page[*models.Review], error) {
	q, err := reviewQuery(filter)
	if err != nil {
		return nil, err
	}

	p := database.Pagination{Page: filter.Page, PageSize: filter.PageSize}.
		Normalize(s.opts.Config.DefaultPageSize, s.opts.Config.MaxPageSize)
	q = q.Page(p.Offset(), p.PageSize)

	reviews, total, err := s.reviewRepo.List(ctx, q)
	if err != nil {
		return nil, errors.FromDB(err, nil)
	}
	return newPage(reviews, total, p.Page, p.PageSize), nil
}

func reviewQuery(filter ReviewFilter) (scope.Query, error) {
	q := scope.New()
	if filter.ProductID != nil {
		q = q.Where(repository.ReviewForProduct(*filter.ProductID))
	}
	if filter.UserID != nil {
		q = q.Where(repository.ReviewByUser(*filter.UserID))
	}
	if filter.Status != nil {
		if !filter.Status.Valid() {
			return q, errors.ErrInvalidParams.WithMessage("评价状态无效")
		}
		q = q.Where(scope.Eq{Column: "status", Value: *filter.Status})
	}
	if filter.VerifiedOnly {
		q = q.Where(repository.ReviewVerified())
	}
	if filter.Rating != nil {
		if !validRating(*filter.Rating) {
			return q, errors.ErrInvalidParams.WithMessage("评分必须在 1 到 5 之间")
		}
		q = q.Where(repository.ReviewRatingEquals(*filter.Rating))
	}
	if filter.MinRating != nil {
		q = q.Where(repository.ReviewMinRating(*filter.MinRating))
	}
	return q.OrderBy(filter.Order.Sorts()...), nil
}

// Stats 商品评价统计，仅计入已通过的评价
func (s *ReviewService) Stats(ctx context.Context, productID int64) (*repository.ReviewStats, error) {
	stats, err := s.reviewRepo.Stats(ctx, productID)
	if err != nil {
		return nil, errors.FromDB(err, nil)
	}
	return stats, nil
}
