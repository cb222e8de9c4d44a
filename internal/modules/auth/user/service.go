package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkwell-cms/core/internal/database"
	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/modules/activity"
	"github.com/inkwell-cms/core/internal/pkg/jwt"
	"github.com/inkwell-cms/core/internal/pkg/pagination"
	"github.com/inkwell-cms/core/internal/pkg/response"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrInvalidRole   = errors.New("role must be one of ADMIN, WRITER, VIEWER")
	ErrSelfDemotion  = errors.New("admins cannot change their own role")
	ErrMissingClaims = errors.New("token carries no subject")
)

// lastSeenResolution bounds how often a request refreshes lastSeenAt.
const lastSeenResolution = 5 * time.Minute

type ActivityLogger interface {
	Log(ctx context.Context, e activity.Entry)
}

type ListQuery struct {
	Role string `form:"role" binding:"omitempty,oneof=ADMIN WRITER VIEWER"`
	Q    string `form:"q"`
}

type UpdateRoleDTO struct {
	Role string `json:"role" binding:"required"`
}

// Service mirrors identity-provider accounts into the users table.
type Service struct {
	db          *gorm.DB
	adminEmails map[string]struct{}
	activity    ActivityLogger
	logger      *zap.Logger
	now         func() time.Time
}

func NewService(db *gorm.DB, adminEmails []string, act ActivityLogger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			admins[e] = struct{}{}
		}
	}
	return &Service{
		db:          db,
		adminEmails: admins,
		activity:    act,
		logger:      logger.Named("UserService"),
		now:         time.Now,
	}
}

// Resolve returns the local user for verified claims, creating it on first
// sight. Listed admin emails are always ADMIN.
func (s *Service) Resolve(ctx context.Context, claims *jwt.Claims) (*models.UserModel, error) {
	if claims == nil || claims.Subject == "" {
		return nil, ErrMissingClaims
	}
	email := strings.ToLower(strings.TrimSpace(claims.Email))

	var u models.UserModel
	err := s.db.WithContext(ctx).Where("clerk_id = ?", claims.Subject).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.create(ctx, claims, email)
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	updates := map[string]interface{}{}
	if email != "" && email != u.Email {
		updates["email"] = email
		u.Email = email
	}
	if claims.Name != "" && claims.Name != u.Name {
		updates["name"] = claims.Name
		u.Name = claims.Name
	}
	if claims.ImageURL != "" && claims.ImageURL != u.ImageURL {
		updates["image_url"] = claims.ImageURL
		u.ImageURL = claims.ImageURL
	}
	if s.isAdminEmail(u.Email) && u.Role != models.RoleAdmin {
		updates["role"] = models.RoleAdmin
		u.Role = models.RoleAdmin
	}
	if u.LastSeenAt == nil || now.Sub(*u.LastSeenAt) >= lastSeenResolution {
		updates["last_seen_at"] = now
		u.LastSeenAt = &now
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.UserModel{}).
			Where("id = ?", u.ID).Updates(updates).Error; err != nil {
			s.logger.Warn("refresh user failed", zap.String("id", u.ID), zap.Error(err))
		}
	}
	return &u, nil
}

func (s *Service) create(ctx context.Context, claims *jwt.Claims, email string) (*models.UserModel, error) {
	now := s.now()
	u := models.UserModel{
		ClerkID:    claims.Subject,
		Email:      email,
		Name:       claims.Name,
		ImageURL:   claims.ImageURL,
		Role:       models.RoleViewer,
		LastSeenAt: &now,
	}
	if s.isAdminEmail(email) {
		u.Role = models.RoleAdmin
	}
	err := s.db.WithContext(ctx).Create(&u).Error
	if database.IsDuplicateKey(err) {
		// Two first requests raced; the other one inserted.
		var existing models.UserModel
		if err := s.db.WithContext(ctx).Where("clerk_id = ?", claims.Subject).First(&existing).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user created", zap.String("id", u.ID), zap.String("role", u.Role))
	return &u, nil
}

func (s *Service) List(ctx context.Context, q pagination.Query, lq ListQuery) ([]models.UserModel, response.Pagination, error) {
	tx := s.db.WithContext(ctx).Model(&models.UserModel{})
	if lq.Role != "" {
		tx = tx.Where("role = ?", lq.Role)
	}
	if term := strings.TrimSpace(lq.Q); term != "" {
		like := "%" + escapeLike(strings.ToLower(term)) + "%"
		tx = tx.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ?", like, like)
	}
	var users []models.UserModel
	pag, err := pagination.Paginate(tx.Order("created_at DESC"), q, &users)
	return users, pag, err
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.UserModel, error) {
	var u models.UserModel
	err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateRole changes another user's role.
func (s *Service) UpdateRole(ctx context.Context, actor *models.UserModel, id, role string) (*models.UserModel, error) {
	role = strings.ToUpper(strings.TrimSpace(role))
	if !models.ValidRole(role) {
		return nil, ErrInvalidRole
	}
	if actor != nil && actor.ID == id {
		return nil, ErrSelfDemotion
	}
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role == role {
		return u, nil
	}
	previous := u.Role
	if err := s.db.WithContext(ctx).Model(&models.UserModel{}).
		Where("id = ?", u.ID).Update("role", role).Error; err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	u.Role = role

	if s.activity != nil {
		by := ""
		if actor != nil {
			by = actor.Email
		}
		s.activity.Log(ctx, activity.Entry{
			Type:      models.ActivityUserRoleChanged,
			Title:     fmt.Sprintf("Changed role of %s to %s", u.Email, role),
			Metadata:  map[string]interface{}{"userId": u.ID, "from": previous, "to": role},
			CreatedBy: by,
		})
	}
	return u, nil
}

func (s *Service) isAdminEmail(email string) bool {
	if email == "" {
		return false
	}
	_, ok := s.adminEmails[strings.ToLower(email)]
	return ok
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
