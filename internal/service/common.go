package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/learnxy-api/internal/models"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// Viewer identifies the caller of a read operation whose result depends on
// who is asking.
type Viewer struct {
	UserID string
	Role   models.UserRole
}

// ViewerFromClaims builds a Viewer from access token claims.
func ViewerFromClaims(claims *models.JWTClaims) Viewer {
	if claims == nil {
		return Viewer{}
	}
	return Viewer{UserID: claims.UserID, Role: claims.Role}
}

func (v Viewer) isStudent() bool { return v.Role == models.RoleStudent }

func paginationFor(page, pageSize, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
