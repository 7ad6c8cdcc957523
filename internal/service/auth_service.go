package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"habitheroes/internal/clock"
	"habitheroes/internal/database"
	"habitheroes/internal/models"
	"habitheroes/internal/security"
	"habitheroes/internal/validation"
)

var (
	ErrEmailTaken         = errors.New("email already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidChildLogin  = errors.New("invalid username or pin")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrNoFamily           = errors.New("user has no family")
)

// AuthService handles parent and child authentication
type AuthService struct {
	stores               *Stores
	clk                  clock.Clock
	families             *FamilyService
	sessionDuration      time.Duration
	childSessionDuration time.Duration
}

// NewAuthService creates a new auth service
func NewAuthService(stores *Stores, clk clock.Clock, families *FamilyService, sessionDuration, childSessionDuration time.Duration) *AuthService {
	return &AuthService{
		stores:               stores,
		clk:                  clk,
		families:             families,
		sessionDuration:      sessionDuration,
		childSessionDuration: childSessionDuration,
	}
}

// Register creates a parent account and either joins the family with the
// given code or creates a new one
func (s *AuthService) Register(ctx context.Context, email, password, name, familyCode string) (*models.User, error) {
	email = validation.NormalizeEmail(email)
	name = validation.NormalizeName(name)
	familyCode = validation.NormalizeFamilyCode(familyCode)

	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, err
	}
	if err := validation.ValidateName(name); err != nil {
		return nil, err
	}
	if familyCode != "" {
		if err := validation.ValidateFamilyCode(familyCode); err != nil {
			return nil, err
		}
	}

	passwordHash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.clk.Now()
	user := &models.User{
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = database.WithTx(ctx, s.stores.DB, func(tx *database.Tx) error {
		return s.createWithFamily(ctx, tx, user, familyCode)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// createWithFamily inserts user and makes it a member of a family: the one
// behind familyCode, or a fresh one it owns
func (s *AuthService) createWithFamily(ctx context.Context, tx *database.Tx, user *models.User, familyCode string) error {
	users := s.stores.Users.WithTx(tx)
	families := s.stores.Families.WithTx(tx)

	existing, err := users.GetUserByEmail(ctx, user.Email)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrEmailTaken
	}

	var family *models.Family
	if familyCode != "" {
		family, err = families.GetFamilyByCode(ctx, familyCode)
		if err != nil {
			return err
		}
		if family == nil {
			return ErrInvalidFamilyCode
		}
	}

	if err := users.CreateUser(ctx, user); err != nil {
		return err
	}
	if family != nil {
		return families.AddFamilyMember(ctx, family.ID, user.ID, models.RoleParent, user.CreatedAt)
	}
	_, err = s.families.createFamily(ctx, tx, user)
	return err
}

// Login checks a parent's password and opens a session
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.Session, *models.User, error) {
	user, err := s.stores.Users.GetUserByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		return nil, nil, err
	}
	if user == nil || !user.HasPassword() {
		return nil, nil, ErrInvalidCredentials
	}
	if !security.CheckPassword(user.PasswordHash, password) {
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.startSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

// GoogleLogin signs in a parent whose Google identity was already verified.
// Unknown subjects are linked to the account with the same email, or get a
// new account and family.
func (s *AuthService) GoogleLogin(ctx context.Context, subject, email, name string) (*models.Session, *models.User, error) {
	if subject == "" {
		return nil, nil, errors.New("missing google subject")
	}
	email = validation.NormalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, nil, err
	}

	user, err := s.stores.Users.GetUserByGoogleSubject(ctx, subject)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		user, err = s.linkOrCreateGoogleUser(ctx, subject, email, name)
		if err != nil {
			return nil, nil, err
		}
	}

	session, err := s.startSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

func (s *AuthService) linkOrCreateGoogleUser(ctx context.Context, subject, email, name string) (*models.User, error) {
	now := s.clk.Now()
	var user *models.User
	err := database.WithTx(ctx, s.stores.DB, func(tx *database.Tx) error {
		users := s.stores.Users.WithTx(tx)
		existing, err := users.GetUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.GoogleSubject != "" && existing.GoogleSubject != subject {
				return ErrEmailTaken
			}
			if err := users.LinkGoogleSubject(ctx, existing.ID, subject, now); err != nil {
				return err
			}
			existing.GoogleSubject = subject
			user = existing
			return nil
		}

		name = validation.NormalizeName(name)
		if name == "" {
			name = strings.Split(email, "@")[0]
		}
		user = &models.User{
			Email:         email,
			Name:          name,
			GoogleSubject: subject,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return s.createWithFamily(ctx, tx, user, "")
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) startSession(ctx context.Context, userID int64) (*models.Session, error) {
	now := s.clk.Now()
	session := &models.Session{
		ID:        security.GenerateSessionID(),
		UserID:    userID,
		ExpiresAt: now.Add(s.sessionDuration),
		CreatedAt: now,
	}
	if err := s.stores.Users.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ValidateSession returns the user behind a live parent session
func (s *AuthService) ValidateSession(ctx context.Context, sessionID string) (*models.User, error) {
	session, err := s.stores.Users.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.IsExpired(s.clk.Now()) {
		_ = s.stores.Users.DeleteSession(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	user, err := s.stores.Users.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrSessionNotFound
	}
	return user, nil
}

// Logout ends a parent session
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	return s.stores.Users.DeleteSession(ctx, sessionID)
}

// ChildLogin checks a child's username and PIN and opens a child session
func (s *AuthService) ChildLogin(ctx context.Context, username, pin string) (*models.ChildSession, *models.Child, error) {
	username = validation.NormalizeUsername(username)
	if validation.ValidateUsername(username) != nil || validation.ValidatePIN(pin) != nil {
		return nil, nil, ErrInvalidChildLogin
	}

	child, err := s.stores.Children.GetChildByUsername(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	if child == nil || !security.CheckPIN(child.PINHash, pin) {
		return nil, nil, ErrInvalidChildLogin
	}

	now := s.clk.Now()
	session := &models.ChildSession{
		ID:        security.GenerateSessionID(),
		ChildID:   child.ID,
		ExpiresAt: now.Add(s.childSessionDuration),
		CreatedAt: now,
	}
	if err := s.stores.Children.CreateChildSession(ctx, session); err != nil {
		return nil, nil, err
	}
	return session, child, nil
}

// ValidateChildSession returns the child behind a live child session
func (s *AuthService) ValidateChildSession(ctx context.Context, sessionID string) (*models.Child, error) {
	session, err := s.stores.Children.GetChildSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.IsExpired(s.clk.Now()) {
		_ = s.stores.Children.DeleteChildSession(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	child, err := s.stores.Children.GetChild(ctx, session.ChildID)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, ErrSessionNotFound
	}
	return child, nil
}

// LogoutChild ends a child session
func (s *AuthService) LogoutChild(ctx context.Context, sessionID string) error {
	return s.stores.Children.DeleteChildSession(ctx, sessionID)
}

// ResolvePrincipal turns the {kind, token} pair from the session cookie into
// the caller of a request
func (s *AuthService) ResolvePrincipal(ctx context.Context, kind security.PrincipalKind, token string) (*security.Principal, error) {
	switch kind {
	case security.PrincipalParent:
		user, err := s.ValidateSession(ctx, token)
		if err != nil {
			return nil, err
		}
		member, err := s.stores.Families.GetMembership(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if member == nil {
			return nil, ErrNoFamily
		}
		return &security.Principal{Kind: kind, User: user, FamilyID: member.FamilyID, SessionToken: token}, nil
	case security.PrincipalChild:
		child, err := s.ValidateChildSession(ctx, token)
		if err != nil {
			return nil, err
		}
		return &security.Principal{Kind: kind, Child: child, FamilyID: child.FamilyID, SessionToken: token}, nil
	}
	return nil, ErrSessionNotFound
}

// EndSession logs out whichever kind of session the principal holds
func (s *AuthService) EndSession(ctx context.Context, p *security.Principal) error {
	if p.IsChild() {
		return s.LogoutChild(ctx, p.SessionToken)
	}
	return s.Logout(ctx, p.SessionToken)
}

// CleanupExpiredSessions removes expired parent and child sessions
func (s *AuthService) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	now := s.clk.Now()
	parents, err := s.stores.Users.DeleteExpiredSessions(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup sessions: %w", err)
	}
	children, err := s.stores.Children.DeleteExpiredChildSessions(ctx, now)
	if err != nil {
		return parents, fmt.Errorf("failed to cleanup child sessions: %w", err)
	}
	if total := parents + children; total > 0 {
		log.Printf("Removed %d expired sessions", total)
	}
	return parents + children, nil
}
