package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"team-meetings/internal/domain"
	"team-meetings/internal/repository"
	"team-meetings/internal/repository/mocks"
	"team-meetings/internal/service"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "meeting-test-secret"

func newAuthService(t *testing.T, repo repository.UserRepository) *service.AuthService {
	t.Helper()
	svc, err := service.NewAuthService(repo, testSecret, 1)
	require.NoError(t, err)
	return svc
}

func TestNewAuthService_EmptySecret(t *testing.T) {
	_, err := service.NewAuthService(new(mocks.UserRepository), "", 1)
	assert.Error(t, err)
}

// --- Register ---

func TestAuthService_Register_Success(t *testing.T) {
	mockUserRepo := new(mocks.UserRepository)
	authService := newAuthService(t, mockUserRepo)
	ctx := context.Background()

	mockUserRepo.On("FindByUsername", ctx, "alice").Return(nil, repository.ErrUserNotFound).Once()
	mockUserRepo.On("Save", ctx, mock.MatchedBy(func(u *domain.User) bool {
		// 存储的必须是哈希而不是明文
		return u.Username == "alice" &&
			bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("s3cret-pass")) == nil
	})).
		Run(func(args mock.Arguments) {
			u := args.Get(1).(*domain.User)
			u.ID = 5
			u.CreatedAt = time.Now()
		}).
		Return(nil).Once()

	user, err := authService.Register(ctx, "  alice ", "s3cret-pass", "alice@example.com")

	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, uint(5), user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Empty(t, user.Password, "返回的用户不应带密码")
	mockUserRepo.AssertExpectations(t)
}

func TestAuthService_Register_UsernameTaken(t *testing.T) {
	mockUserRepo := new(mocks.UserRepository)
	authService := newAuthService(t, mockUserRepo)
	ctx := context.Background()

	mockUserRepo.On("FindByUsername", ctx, "bob").Return(&domain.User{ID: 10, Username: "bob"}, nil).Once()

	_, err := authService.Register(ctx, "bob", "password", "bob@example.com")

	assert.ErrorIs(t, err, service.ErrRegistrationFailed)
	mockUserRepo.AssertExpectations(t)
	mockUserRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestAuthService_Register_DuplicateOnSave(t *testing.T) {
	mockUserRepo := new(mocks.UserRepository)
	authService := newAuthService(t, mockUserRepo)
	ctx := context.Background()

	mockUserRepo.On("FindByUsername", ctx, "carol").Return(nil, repository.ErrUserNotFound).Once()
	mockUserRepo.On("Save", ctx, mock.AnythingOfType("*domain.User")).Return(repository.ErrDuplicateEntry).Once()

	_, err := authService.Register(ctx, "carol", "password", "carol@example.com")

	assert.ErrorIs(t, err, service.ErrRegistrationFailed)
	mockUserRepo.AssertExpectations(t)
}

func TestAuthService_Register_MissingFields(t *testing.T) {
	mockUserRepo := new(mocks.UserRepository)
	authService := newAuthService(t, mockUserRepo)

	_, err := authService.Register(context.Background(), "   ", "password", "")
	assert.ErrorIs(t, err, service.ErrInvalidInput)
	mockUserRepo.AssertNotCalled(t, "FindByUsername", mock.Anything, mock.Anything)
}

// --- Login / ResolveToken ---

func TestAuthService_LoginThenResolve(t *testing.T) {
	mockUserRepo := new(mocks.UserRepository)
	authService := newAuthService(t, mockUserRepo)
	ctx := context.Background()

	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	stored := &domain.User{ID: 7, Username: "dave", Password: string(hash)}
	mockUserRepo.On("FindByUsername", ctx, "dave").Return(stored, nil).Once()
	mockUserRepo.On("FindByID", ctx, uint(7)).Return(stored, nil).Once()

	token, err := authService.Login(ctx, "dave", "password123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	user, err := authService.ResolveToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), user.ID)
	mockUserRepo.AssertExpectations(t)
}

func TestAuthService_Login_Failures(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("right"), bcrypt.MinCost)

	tests := []struct {
		name     string
		found    *domain.User
		findErr  error
		password string
	}{
		{"unknown user", nil, repository.ErrUserNotFound, "right"},
		{"wrong password", &domain.User{ID: 1, Username: "erin", Password: string(hash)}, nil, "wrong"},
		{"repository failure", nil, errors.New("connection reset"), "right"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockUserRepo := new(mocks.UserRepository)
			authService := newAuthService(t, mockUserRepo)
			ctx := context.Background()
			mockUserRepo.On("FindByUsername", ctx, "erin").Return(tt.found, tt.findErr).Once()

			token, err := authService.Login(ctx, "erin", tt.password)

			assert.ErrorIs(t, err, service.ErrAuthenticationFailed)
			assert.Empty(t, token)
			mockUserRepo.AssertExpectations(t)
		})
	}
}

func TestAuthService_ResolveToken_Rejects(t *testing.T) {
	sign := func(secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
		tok, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return tok
	}
	future := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong secret", sign("other-secret", jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 1, "exp": future})},
		{"expired", sign(testSecret, jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 1, "exp": time.Now().Add(-time.Minute).Unix()})},
		{"missing user_id", sign(testSecret, jwt.SigningMethodHS256, jwt.MapClaims{"exp": future})},
		{"non-integer user_id", sign(testSecret, jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 1.5, "exp": future})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockUserRepo := new(mocks.UserRepository)
			authService := newAuthService(t, mockUserRepo)

			_, err := authService.ResolveToken(context.Background(), tt.token)

			assert.ErrorIs(t, err, service.ErrAuthenticationFailed)
			mockUserRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
		})
	}
}

func TestAuthService_ResolveToken_DeletedUser(t *testing.T) {
	mockUserRepo := new(mocks.UserRepository)
	authService := newAuthService(t, mockUserRepo)
	ctx := context.Background()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 42,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	mockUserRepo.On("FindByID", ctx, uint(42)).Return(nil, repository.ErrUserNotFound).Once()

	_, err = authService.ResolveToken(ctx, token)

	assert.ErrorIs(t, err, service.ErrAuthenticationFailed)
	mockUserRepo.AssertExpectations(t)
}
