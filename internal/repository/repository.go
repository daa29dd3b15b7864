package repository

import (
	"errors"

	"gorm.io/gorm"

	pkgerrors "sports-manager/backend/pkg/errors"
)

var (
	// ErrDuplicatePartner 同一规则内同一对裁判已有偏好
	ErrDuplicatePartner = errors.New("该搭档偏好已存在")
	// ErrAssignmentExists 比赛岗位已有分配（并发运行抢先写入）
	ErrAssignmentExists = errors.New("比赛岗位已有分配")
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	Rule      AssignmentRuleRepository
	Partner   PartnerPreferenceRepository
	Run       AssignmentRunRepository
	Candidate CandidateRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		Rule:      NewAssignmentRuleRepo(db),
		Partner:   NewPartnerPreferenceRepo(db),
		Run:       NewAssignmentRunRepo(db),
		Candidate: NewCandidateRepo(db),
	}
}

// isDuplicate 兼容开启 TranslateError 与未开启两种情况
func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || pkgerrors.IsUniqueViolation(err)
}
