package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subscriptiond/internal/payment/domain"
	"github.com/smallbiznis/subscriptiond/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestEventInboxCollapsesRedeliveries(t *testing.T) {
	conn := dbtest.Open(t)
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	repo := Provide()
	ctx := context.Background()
	received := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	newRecord := func() *domain.EventRecord {
		return &domain.EventRecord{
			ID:              node.Generate(),
			Provider:        domain.ProviderStripe,
			ProviderEventID: "evt_1",
			EventType:       domain.EventTypeCheckoutCompleted,
			Payload:         datatypes.JSON(`{"id":"evt_1"}`),
			ReceivedAt:      received,
		}
	}

	first := newRecord()
	inserted, err := repo.InsertEvent(ctx, conn, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.InsertEvent(ctx, conn, newRecord())
	require.NoError(t, err)
	assert.False(t, inserted)

	found, err := repo.FindEvent(ctx, conn, domain.ProviderStripe, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)
	assert.Nil(t, found.ProcessedAt)

	missing, err := repo.FindEvent(ctx, conn, domain.ProviderStripe, "evt_2")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.MarkProcessed(ctx, conn, first.ID, received.Add(time.Second)))
	require.NoError(t, repo.MarkProcessed(ctx, conn, first.ID, received.Add(time.Hour)))
	found, err = repo.FindEvent(ctx, conn, domain.ProviderStripe, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, found.ProcessedAt)
	assert.True(t, found.ProcessedAt.Equal(received.Add(time.Second)))
}
