// Package session authenticates requests against cached sessions of
// externally-managed identities and keeps per-user permission snapshots warm.
package session

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"otportal/models"
)

var (
	ErrUnauthorized       = errors.New("unknown or revoked access token")
	ErrExpired            = errors.New("session expired")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrDeveloperProtected = errors.New("developer records may only be modified by developers")
	ErrBadIdentityToken   = errors.New("malformed identity token")
)

type Service struct {
	db         *gorm.DB
	idp        IdentityProvider
	cacheTTL   time.Duration
	sessionTTL time.Duration
}

func New(db *gorm.DB, idp IdentityProvider, cacheTTL, sessionTTL time.Duration) *Service {
	return &Service{db: db, idp: idp, cacheTTL: cacheTTL, sessionTTL: sessionTTL}
}

// identityClaims are the fields this service reads out of the IdP-issued
// token. Signature verification already happened upstream.
type identityClaims struct {
	ExternalID int64  `json:"external_id"`
	Username   string `json:"username"`
	FullName   string `json:"name"`
	Email      string `json:"email"`
	jwt.RegisteredClaims
}

// Fingerprint identifies the client side of a session.
type Fingerprint struct {
	IPAddress string
	UserAgent string
}

// Login mirrors the identity from a validated IdP token and mints a session.
func (s *Service) Login(ctx context.Context, idpToken string, fp Fingerprint) (*models.UserSession, *models.ExternalUser, error) {
	claims := &identityClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(idpToken, claims); err != nil {
		return nil, nil, ErrBadIdentityToken
	}
	if claims.ExternalID == 0 || claims.Username == "" {
		return nil, nil, ErrBadIdentityToken
	}

	var user models.ExternalUser
	err := s.db.Where("external_id = ?", claims.ExternalID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.ExternalUser{
			ExternalID:            claims.ExternalID,
			Username:              claims.Username,
			Role:                  models.RoleUser,
			IsActive:              true,
			Language:              "en",
			EventRemindersEnabled: true,
		}
		err = nil
	} else if err != nil {
		return nil, nil, err
	}
	user.FullName = claims.FullName
	user.Email = claims.Email
	if err := s.db.Save(&user).Error; err != nil {
		return nil, nil, err
	}

	if err := s.maybeRefreshCache(ctx, &user); err != nil {
		// Login still succeeds with a stale snapshot; the next request
		// retries the refresh.
		log.Printf("[session] cache refresh for %s: %v", user.Username, err)
	}

	now := time.Now()
	sess := &models.UserSession{
		UserID:         user.ID,
		AccessToken:    strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", ""),
		TokenExpiresAt: now.Add(s.sessionTTL),
		LastActivity:   now,
		IsActive:       true,
		IPAddress:      fp.IPAddress,
		UserAgent:      fp.UserAgent,
	}
	if err := s.db.Create(sess).Error; err != nil {
		return nil, nil, err
	}
	return sess, &user, nil
}

// Authenticate resolves an access token to its user, bumps last_activity, and
// refreshes the permission snapshot when it has gone stale.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.ExternalUser, error) {
	var sess models.UserSession
	err := s.db.Preload("User").Where("access_token = ?", token).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if !sess.IsActive {
		return nil, ErrUnauthorized
	}
	if sess.Expired(now) {
		return nil, ErrExpired
	}
	if sess.User == nil || !sess.User.IsActive {
		return nil, ErrUnauthorized
	}

	s.db.Model(&sess).Update("last_activity", now)

	if err := s.maybeRefreshCache(ctx, sess.User); err != nil {
		log.Printf("[session] cache refresh for %s: %v", sess.User.Username, err)
	}
	return sess.User, nil
}

// Revoke deactivates a session by token.
func (s *Service) Revoke(token string) error {
	return s.db.Model(&models.UserSession{}).
		Where("access_token = ?", token).
		Update("is_active", false).Error
}

// RefreshCache repopulates the user's snapshots from the IdP and stamps the
// watermark.
func (s *Service) RefreshCache(ctx context.Context, user *models.ExternalUser) error {
	snap, err := s.idp.FetchSnapshot(ctx, user.ExternalID)
	if err != nil {
		return err
	}
	now := time.Now()
	user.PermissionsCache = snap.Permissions
	user.GroupsCache = snap.Groups
	user.ModelsPermCache = snap.ModelPerms
	user.CacheUpdatedAt = &now
	return s.db.Model(user).Updates(map[string]interface{}{
		"permissions_cache": user.PermissionsCache,
		"groups_cache":      user.GroupsCache,
		"models_perm_cache": user.ModelsPermCache,
		"cache_updated_at":  now,
	}).Error
}

func (s *Service) maybeRefreshCache(ctx context.Context, user *models.ExternalUser) error {
	if user.CacheUpdatedAt != nil && time.Since(*user.CacheUpdatedAt) < s.cacheTTL {
		return nil
	}
	return s.RefreshCache(ctx, user)
}

// SweepExpired deletes sessions past their expiry. Runs on the cron schedule.
func (s *Service) SweepExpired() (int64, error) {
	res := s.db.Scopes(models.ExpiredSessions(time.Now())).Delete(&models.UserSession{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("[session] swept %d expired sessions", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// GuardModify enforces developer protection for mutations on target.
func GuardModify(actor, target *models.ExternalUser) error {
	if !actor.CanModifyUser(target) {
		if target.IsDeveloper() {
			return ErrDeveloperProtected
		}
		return ErrPermissionDenied
	}
	return nil
}
