package pgbus

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxChannelNaming(t *testing.T) {
	assert.Equal(t, "mbox_fty-alert-stats", mailboxChannel("fty-alert-stats"))
}

func TestSendRequestIssuesNotify(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b := &Bus{db: db, self: "fty-alert-stats"}

	mock.ExpectExec("SELECT pg_notify").
		WithArgs(mailboxChannel("asset-agent"), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = b.SendRequest(context.Background(), "asset-agent", "ASSET_DETAIL", [][]byte{[]byte("rack-6")})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishStreamIssuesNotify(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b := &Bus{db: db}

	mock.ExpectExec("SELECT pg_notify").
		WithArgs("ALERTS", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = b.PublishStream(context.Background(), "ALERTS", "alert", []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
