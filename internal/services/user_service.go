package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"campus-chat/internal/db"
	"campus-chat/internal/models"
)

type UserService struct {
	tokens *TokenService
}

func NewUserService(tokens *TokenService) *UserService {
	return &UserService{tokens: tokens}
}

func (s *UserService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	var user models.User
	query := `INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id, username, created_at`
	err = db.Pool.QueryRow(ctx, query, req.Username, string(hash)).Scan(&user.ID, &user.Username, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, models.ErrUserExists
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	return &user, nil
}

func (s *UserService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	var user models.User
	query := `SELECT id, username, password_hash FROM users WHERE username = $1`
	err := db.Pool.QueryRow(ctx, query, req.Username).Scan(&user.ID, &user.Username, &user.PasswordHash)
	if err != nil {
		return nil, models.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}

	access, err := s.tokens.GenerateAccess(user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.GenerateRefresh(user.ID, user.Username)
	if err != nil {
		return nil, err
	}

	return &models.AuthResponse{
		UserID:       user.ID,
		Username:     user.Username,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// Refresh exchanges a valid refresh token for a new token pair.
func (s *UserService) Refresh(refreshToken string) (*models.AuthResponse, error) {
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	access, err := s.tokens.GenerateAccess(claims.UserID, claims.Username)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.GenerateRefresh(claims.UserID, claims.Username)
	if err != nil {
		return nil, err
	}

	return &models.AuthResponse{
		UserID:       claims.UserID,
		Username:     claims.Username,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	query := `SELECT id, username, created_at FROM users ORDER BY username`
	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *UserService) GetByID(ctx context.Context, id int) (*models.User, error) {
	var u models.User
	query := `SELECT id, username, created_at FROM users WHERE id = $1`
	err := db.Pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.Username, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}
