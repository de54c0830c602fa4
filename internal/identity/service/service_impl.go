package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/slipvault/slipvault/internal/clock"
	"github.com/slipvault/slipvault/internal/config"
	identitydomain "github.com/slipvault/slipvault/internal/identity/domain"
	"github.com/slipvault/slipvault/internal/identity/password"
	"github.com/slipvault/slipvault/internal/identity/session"
	slipdomain "github.com/slipvault/slipvault/internal/slip/domain"
	pkgdb "github.com/slipvault/slipvault/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	Cfg     config.Config
	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    identitydomain.Repository
	SlipSvc slipdomain.Service
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	repo       identitydomain.Repository
	slipSvc    slipdomain.Service
	sessionTTL time.Duration
}

func NewService(p ServiceParam) identitydomain.Service {
	ttl := time.Duration(p.Cfg.SessionTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("identity.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		slipSvc:    p.SlipSvc,
		sessionTTL: ttl,
	}
}

func (s *Service) Register(ctx context.Context, in identitydomain.RegisterInput) (identitydomain.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || strings.TrimSpace(in.Password) == "" {
		return identitydomain.User{}, identitydomain.ErrInvalidCredentials
	}

	hash, err := password.Hash(in.Password)
	if err != nil {
		return identitydomain.User{}, err
	}

	now := s.clock.Now()
	user := identitydomain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         slipdomain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if companyName := strings.TrimSpace(in.CompanyName); companyName != "" {
			company := identitydomain.Company{
				ID:        s.genID.Generate(),
				Name:      companyName,
				CreatedAt: now,
			}
			if err := s.repo.InsertCompany(ctx, tx, &company); err != nil {
				return err
			}
			user.CompanyID = &company.ID
			user.Role = slipdomain.RoleCompanyAdmin
		}
		return s.repo.InsertUser(ctx, tx, &user)
	})
	if pkgdb.IsDuplicateKeyErr(err) {
		return identitydomain.User{}, identitydomain.ErrEmailTaken
	}
	if err != nil {
		return identitydomain.User{}, err
	}

	s.log.Info("user registered", zap.Int64("user_id", user.ID.Int64()))
	return user, nil
}

func (s *Service) Login(ctx context.Context, email, pass string) (identitydomain.Session, identitydomain.User, error) {
	user, err := s.repo.FindUserByEmail(ctx, s.db, email)
	if err != nil {
		return identitydomain.Session{}, identitydomain.User{}, err
	}
	if user == nil || !password.Verify(pass, user.PasswordHash) {
		return identitydomain.Session{}, identitydomain.User{}, identitydomain.ErrInvalidCredentials
	}

	token, err := session.NewToken()
	if err != nil {
		return identitydomain.Session{}, identitydomain.User{}, err
	}

	now := s.clock.Now()
	sess := identitydomain.Session{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.sessionTTL),
		CreatedAt: now,
	}
	if err := s.repo.InsertSession(ctx, s.db, &sess); err != nil {
		return identitydomain.Session{}, identitydomain.User{}, err
	}
	return sess, *user, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	return s.repo.DeleteSession(ctx, s.db, token)
}

func (s *Service) Authenticate(ctx context.Context, token string) (identitydomain.User, error) {
	if strings.TrimSpace(token) == "" {
		return identitydomain.User{}, identitydomain.ErrSessionInvalid
	}
	sess, err := s.repo.FindSession(ctx, s.db, token)
	if err != nil {
		return identitydomain.User{}, err
	}
	if sess == nil {
		return identitydomain.User{}, identitydomain.ErrSessionInvalid
	}
	if !sess.ExpiresAt.After(s.clock.Now()) {
		// Expired sessions are removed lazily.
		if err := s.repo.DeleteSession(ctx, s.db, token); err != nil {
			s.log.Warn("delete expired session", zap.Error(err))
		}
		return identitydomain.User{}, identitydomain.ErrSessionInvalid
	}

	user, err := s.repo.FindUserByID(ctx, s.db, sess.UserID)
	if err != nil {
		return identitydomain.User{}, err
	}
	if user == nil {
		return identitydomain.User{}, identitydomain.ErrSessionInvalid
	}
	return *user, nil
}

// Invited users sign in with a fixed starter password and reset it
// afterwards.
const defaultInvitePassword = "password123"

func (s *Service) Invite(ctx context.Context, actor slipdomain.Actor, in identitydomain.InviteInput) (identitydomain.User, error) {
	if !isCompanyAdmin(actor) || actor.CompanyID == nil {
		return identitydomain.User{}, slipdomain.ErrUnauthorized
	}
	if !in.Role.Valid() || in.Role == slipdomain.RoleAdmin {
		return identitydomain.User{}, identitydomain.ErrInvalidRole
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return identitydomain.User{}, identitydomain.ErrInvalidCredentials
	}

	existing, err := s.repo.FindUserByEmail(ctx, s.db, email)
	if err != nil {
		return identitydomain.User{}, err
	}
	if existing != nil {
		if existing.CompanyID != nil {
			return identitydomain.User{}, identitydomain.ErrAlreadyInCompany
		}
		return identitydomain.User{}, identitydomain.ErrEmailTaken
	}

	hash, err := password.Hash(defaultInvitePassword)
	if err != nil {
		return identitydomain.User{}, err
	}

	now := s.clock.Now()
	user := identitydomain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         in.Role,
		CompanyID:    actor.CompanyID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.repo.InsertUser(ctx, s.db, &user)
	if pkgdb.IsDuplicateKeyErr(err) {
		return identitydomain.User{}, identitydomain.ErrEmailTaken
	}
	if err != nil {
		return identitydomain.User{}, err
	}

	s.log.Info("user invited",
		zap.Int64("user_id", user.ID.Int64()),
		zap.Int64("company_id", actor.CompanyID.Int64()),
		zap.String("role", string(in.Role)),
	)
	return user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, actor slipdomain.Actor, in identitydomain.UpdateProfileInput) (identitydomain.User, error) {
	user, err := s.repo.FindUserByID(ctx, s.db, actor.ID)
	if err != nil {
		return identitydomain.User{}, err
	}
	if user == nil {
		return identitydomain.User{}, identitydomain.ErrUserNotFound
	}

	user.Name = strings.TrimSpace(in.Name)
	user.UpdatedAt = s.clock.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdateUser(ctx, tx, user); err != nil {
			return err
		}
		if companyName := strings.TrimSpace(in.CompanyName); companyName != "" && user.CompanyID != nil {
			return s.repo.UpdateCompanyName(ctx, tx, *user.CompanyID, companyName)
		}
		return nil
	})
	if err != nil {
		return identitydomain.User{}, err
	}
	return *user, nil
}

const minPasswordLength = 6

func (s *Service) ResetPassword(ctx context.Context, actor slipdomain.Actor, pass, confirm string) error {
	if pass != confirm {
		return identitydomain.ErrPasswordMismatch
	}
	if len(pass) < minPasswordLength {
		return identitydomain.ErrPasswordTooShort
	}

	user, err := s.repo.FindUserByID(ctx, s.db, actor.ID)
	if err != nil {
		return err
	}
	if user == nil {
		return identitydomain.ErrUserNotFound
	}

	hash, err := password.Hash(pass)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateUser(ctx, s.db, user); err != nil {
		return err
	}

	s.log.Info("password reset", zap.Int64("user_id", user.ID.Int64()))
	return nil
}

func (s *Service) LeaveCompany(ctx context.Context, actor slipdomain.Actor) error {
	if actor.CompanyID == nil {
		return identitydomain.ErrNotInCompany
	}
	user, err := s.repo.FindUserByID(ctx, s.db, actor.ID)
	if err != nil {
		return err
	}
	if user == nil {
		return identitydomain.ErrUserNotFound
	}

	user.CompanyID = nil
	user.Role = slipdomain.RoleUser
	user.UpdatedAt = s.clock.Now()
	return s.repo.UpdateUser(ctx, s.db, user)
}

func (s *Service) RemoveFromCompany(ctx context.Context, actor slipdomain.Actor, userID snowflake.ID) error {
	if !isCompanyAdmin(actor) || actor.CompanyID == nil {
		return slipdomain.ErrUnauthorized
	}
	user, err := s.repo.FindUserByID(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return identitydomain.ErrUserNotFound
	}
	if user.CompanyID == nil || *user.CompanyID != *actor.CompanyID {
		return identitydomain.ErrNotInCompany
	}
	if user.ID == actor.ID {
		return slipdomain.ErrUnauthorized
	}

	// The member's slips stay with the company via the acting admin.
	if err := s.slipSvc.TransferOwnership(ctx, actor, user.ID); err != nil {
		return err
	}

	user.CompanyID = nil
	user.Role = slipdomain.RoleUser
	user.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateUser(ctx, s.db, user); err != nil {
		return err
	}

	s.log.Info("user removed from company",
		zap.Int64("user_id", user.ID.Int64()),
		zap.Int64("company_id", actor.CompanyID.Int64()),
	)
	return nil
}

func isCompanyAdmin(actor slipdomain.Actor) bool {
	return actor.Role == slipdomain.RoleCompanyAdmin || actor.Role == slipdomain.RoleAdmin
}
