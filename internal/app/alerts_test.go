package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mo-Nouir/database-tests/internal/core/config"
	"github.com/Mo-Nouir/database-tests/internal/core/notifications"
)

func TestAlertSinks(t *testing.T) {
	sink, closeFn := AlertSinks(&config.Config{})
	assert.Len(t, sink, 1)
	assert.NoError(t, closeFn())

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink, closeFn = AlertSinks(&config.Config{WebhookURL: srv.URL, WebhookSecret: "k"})
	defer closeFn()
	require.Len(t, sink, 2)

	require.NoError(t, sink.Send(context.Background(), notifications.NewAlert(notifications.KindMigrationFailed, "x", nil)))
	assert.Equal(t, 1, hits)
}
