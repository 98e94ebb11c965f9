package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mo-Nouir/database-tests/internal/core/notifications"
)

type fakeChannel struct {
	exchange, key string
	msg           amqp.Publishing
	err           error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func TestAlertPublisher_Send(t *testing.T) {
	ch := &fakeChannel{}
	p := &AlertPublisher{channel: ch, exchange: DefaultExchange}

	alert := notifications.NewAlert(notifications.KindReconciliationDivergence, "1 divergent", nil)
	require.NoError(t, p.Send(context.Background(), alert))

	assert.Equal(t, "ledger.alerts", ch.exchange)
	assert.Equal(t, "alert.reconciliation.divergence", ch.key)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, alert.ID, ch.msg.MessageId)

	var decoded notifications.Alert
	require.NoError(t, json.Unmarshal(ch.msg.Body, &decoded))
	assert.Equal(t, "1 divergent", decoded.Summary)
}

func TestAlertPublisher_SendError(t *testing.T) {
	p := &AlertPublisher{channel: &fakeChannel{err: errors.New("channel closed")}, exchange: DefaultExchange}
	err := p.Send(context.Background(), notifications.NewAlert(notifications.KindMigrationFailed, "x", nil))
	assert.ErrorContains(t, err, "channel closed")
	assert.NoError(t, p.Close())
}
