package service

import (
	"adaptive_exam_backend/internal/config"
	"adaptive_exam_backend/internal/model"
	"adaptive_exam_backend/internal/repository"
	"adaptive_exam_backend/internal/util"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newAuthService(t *testing.T, db *gorm.DB) *AuthService {
	t.Helper()
	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret-that-is-long-enough-for-hs256"
	cfg.JWT.ExpireTime = time.Hour
	return NewAuthService(repository.NewUserRepository(db), cfg)
}

func TestRegisterAndLogin(t *testing.T) {
	db := newTestDB(t)
	svc := newAuthService(t, db)

	user, err := svc.Register(RegisterInput{
		Name:     "Ada",
		Email:    "ada@example.com",
		Password: "hunter22",
		Role:     model.Teacher,
	})
	require.NoError(t, err)
	assert.Equal(t, model.Teacher, user.Role)
	assert.NotEqual(t, "hunter22", user.Password) // stored hashed

	result, err := svc.Login(LoginInput{Email: "ada@example.com", Password: "hunter22"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, user.ID, result.User.ID)

	claims, err := util.ParseJWT(result.Token, "test-secret-that-is-long-enough-for-hs256")
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, model.Teacher, claims.Role)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	svc := newAuthService(t, db)

	_, err := svc.Register(RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "hunter22"})
	require.NoError(t, err)

	_, err = svc.Register(RegisterInput{Name: "Imposter", Email: "ada@example.com", Password: "hunter23"})
	require.ErrorIs(t, err, util.ErrEmailRegistered)
}

func TestRegisterDefaultsToStudent(t *testing.T) {
	db := newTestDB(t)
	svc := newAuthService(t, db)

	user, err := svc.Register(RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, model.Student, user.Role)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	db := newTestDB(t)
	svc := newAuthService(t, db)

	_, err := svc.Register(RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "hunter22"})
	require.NoError(t, err)

	_, err = svc.Login(LoginInput{Email: "ada@example.com", Password: "wrong"})
	require.ErrorIs(t, err, util.ErrInvalidCredentials)

	_, err = svc.Login(LoginInput{Email: "nobody@example.com", Password: "hunter22"})
	require.ErrorIs(t, err, util.ErrInvalidCredentials)
}

func TestLoginRejectsDisabledUser(t *testing.T) {
	db := newTestDB(t)
	svc := newAuthService(t, db)

	user, err := svc.Register(RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "hunter22"})
	require.NoError(t, err)
	require.NoError(t, db.Model(user).Update("disabled", true).Error)

	_, err = svc.Login(LoginInput{Email: "ada@example.com", Password: "hunter22"})
	require.ErrorIs(t, err, util.ErrInvalidCredentials)
}
