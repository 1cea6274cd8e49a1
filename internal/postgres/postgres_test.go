package postgres

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/matheusmosca/orders-tpc/internal/apperr"
)

func TestError(t *testing.T) {
	assert.NoError(t, Error(nil, "ignored"))

	notFound := Error(fmt.Errorf("scan: %w", pgx.ErrNoRows), "account %s not found", "c-1")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(notFound))
	assert.Contains(t, notFound.Error(), "account c-1 not found")

	dbErr := Error(errors.New("conn closed"), "failed to save payment")
	assert.Equal(t, apperr.KindDatabase, apperr.KindOf(dbErr))

	malformed := Error(fmt.Errorf("query: %w", &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid"}), "order %s not found", "abc")
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(malformed))
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(apperr.KindOf(malformed)))

	classified := apperr.InvalidState("payment is PAID")
	assert.Equal(t, classified, Error(classified, "ignored"))
}

func TestNewPage(t *testing.T) {
	assert.Equal(t, Page{}, NewPage(3, 0))
	assert.Equal(t, Page{Limit: 20, Offset: 0}, NewPage(0, 20))
	assert.Equal(t, Page{Limit: 20, Offset: 40}, NewPage(3, 20))
}
