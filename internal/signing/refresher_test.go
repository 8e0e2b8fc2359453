package signing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSweepRefreshesStaleRecords(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	key := RecordKey{DocumentID: "remote-doc", SignerEmail: "a@x.com", UserID: "user-1", Service: ServiceScrive}
	_, err := f.repo.Upsert(ctx, key, RecordUpdate{SignerName: "A", Status: StatusSent, RawStatus: "delivered"})
	require.NoError(t, err)

	refresher := NewRefresher(f.service, f.repo, RefresherConfig{
		Staleness: time.Millisecond,
	}, zap.NewNop())
	time.Sleep(5 * time.Millisecond)
	refresher.Sweep(ctx)

	records, err := f.repo.FindByDocument(ctx, "remote-doc", ServiceScrive)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, StatusCompleted, records[0].Status)
}

func TestSweepHonorsStalenessWindow(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	key := RecordKey{DocumentID: "fresh-doc", SignerEmail: "a@x.com", UserID: "user-1", Service: ServiceScrive}
	_, err := f.repo.Upsert(ctx, key, RecordUpdate{SignerName: "A", Status: StatusSent, RawStatus: "delivered"})
	require.NoError(t, err)

	// A record checked moments ago is inside the window and must not
	// be re-queried.
	refresher := NewRefresher(f.service, f.repo, RefresherConfig{Staleness: time.Minute}, zap.NewNop())
	refresher.Sweep(ctx)

	records, err := f.repo.FindByDocument(ctx, "fresh-doc", ServiceScrive)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, StatusSent, records[0].Status)
}

func TestSweepSkipsTerminalRecords(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	key := RecordKey{DocumentID: "done-doc", SignerEmail: "a@x.com", UserID: "user-1", Service: ServiceScrive}
	_, err := f.repo.Upsert(ctx, key, RecordUpdate{SignerName: "A", Status: StatusCompleted, RawStatus: "closed"})
	require.NoError(t, err)

	before, err := f.repo.FindByDocument(ctx, "done-doc", ServiceScrive)
	require.NoError(t, err)

	refresher := NewRefresher(f.service, f.repo, RefresherConfig{Staleness: time.Millisecond}, zap.NewNop())
	time.Sleep(5 * time.Millisecond)
	refresher.Sweep(ctx)

	after, err := f.repo.FindByDocument(ctx, "done-doc", ServiceScrive)
	require.NoError(t, err)
	assert.Equal(t, before[0].LastStatusCheck, after[0].LastStatusCheck)
}
