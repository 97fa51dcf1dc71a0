package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/readsession-backend/internal/domain/reading"
)

func TestDBOutlivesDroppedConnections(t *testing.T) {
	gdb := DB(t)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// Every query below gets a fresh connection.
	sqlDB.SetMaxIdleConns(0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var n int64
	require.Error(t, gdb.WithContext(ctx).Model(&types.Session{}).Count(&n).Error)

	SeedSession(t, context.Background(), gdb, uuid.New(), types.PhasePre)
	require.NoError(t, gdb.Model(&types.Session{}).Count(&n).Error)
	require.Equal(t, int64(1), n)
}
