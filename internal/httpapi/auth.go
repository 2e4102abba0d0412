package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"vendormall/backend/internal/domain"
	"vendormall/backend/internal/service"
	"vendormall/backend/internal/store"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    UserStore
	log      logrus.FieldLogger
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error
}

type mallClaims struct {
	jwtlib.RegisteredClaims
	Email   string `json:"email"`
	IsStaff bool   `json:"is_staff"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users UserStore, logger logrus.FieldLogger) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
		log:      logger.WithField("component", "auth"),
	}
}

// Login checks the password by email. A legacy plain-text password that
// matches is rehashed with bcrypt on the spot.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	user, err := a.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResponse{}, ErrInvalidCredentials
		}
		return domain.LoginResponse{}, err
	}

	if isPasswordHash(user.PasswordHash) {
		if !verifyPassword(user.PasswordHash, req.Password) {
			return domain.LoginResponse{}, ErrInvalidCredentials
		}
	} else {
		if user.PasswordHash == "" || subtle.ConstantTimeCompare([]byte(user.PasswordHash), []byte(req.Password)) != 1 {
			return domain.LoginResponse{}, ErrInvalidCredentials
		}
		if hashed, err := hashPassword(req.Password); err == nil {
			if err := a.users.UpdateUserPassword(ctx, user.ID, hashed); err != nil {
				a.log.WithError(err).WithField("user_id", user.ID).Warn("could not upgrade legacy password")
			}
		}
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(*user, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		UserID:      user.ID,
		IsStaff:     user.IsStaff,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &mallClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || id <= 0 {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{UserID: id, Email: claims.Email, IsStaff: claims.IsStaff}, nil
}

func (a *AuthManager) sign(user domain.User, expiresAt time.Time) (string, error) {
	claims := mallClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "vendormall",
		},
		Email:   user.Email,
		IsStaff: user.IsStaff,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
}

// CreateStaff registers a staff account. Callers must already be staff.
func (a *AuthManager) CreateStaff(ctx context.Context, req domain.StaffCreateRequest) (domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := a.users.GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, duplicateEmail()
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, err
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.User{}, err
	}
	created, err := a.users.CreateUser(ctx, domain.User{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PhoneNumber:  strings.TrimSpace(req.PhoneNumber),
		IsStaff:      true,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	})
	if errors.Is(err, store.ErrConflict) {
		return domain.User{}, duplicateEmail()
	}
	if err != nil {
		return domain.User{}, err
	}
	a.log.WithField("user_id", created.ID).Info("staff account created")
	return *created, nil
}

func (a *AuthManager) ChangePassword(ctx context.Context, actor domain.Actor, req domain.PasswordChangeRequest) error {
	user, err := a.users.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if !verifyPassword(user.PasswordHash, req.CurrentPassword) {
		return &service.ValidationError{Path: []string{"current_password"}, Message: "Wrong password."}
	}
	hash, err := hashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return a.users.UpdateUserPassword(ctx, user.ID, hash)
}

func duplicateEmail() error {
	return &service.ValidationError{Path: []string{"email"}, Message: "A user with that email already exists"}
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
