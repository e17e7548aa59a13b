package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hernaezTlon/x-following-cleaner/pkg/logger"
	"github.com/hernaezTlon/x-following-cleaner/pkg/models"
	"github.com/hernaezTlon/x-following-cleaner/pkg/store"
	"github.com/hernaezTlon/x-following-cleaner/pkg/twitter"
)

func newControllerHarness(api *fakeAPI) (*scanHarness, *Controller) {
	h := newScanHarness(api)
	log := logger.NewTestLogger()
	cascade := NewCascade(api, twitter.NewRegistry(), nil, models.FollowingIndex{}, 20, log)
	unfollow := NewUnfollowEngine(h.store, api, cascade, nil, collectorScrollOptions(), testUnfollowConfig(), 5, time.Hour, h.sink, log)
	unfollow.sleep = noSleep
	ctrl := NewController(h.eng, unfollow, "me", log)
	return h, ctrl
}

func TestControllerPing(t *testing.T) {
	_, ctrl := newControllerHarness(&fakeAPI{})
	ack := ctrl.Handle(context.Background(), Command{Type: CmdPing})
	assert.Equal(t, AckAlive, ack.Status)
}

func TestControllerUnknownCommand(t *testing.T) {
	_, ctrl := newControllerHarness(&fakeAPI{})
	ack := ctrl.Handle(context.Background(), Command{Type: "selfDestruct"})
	assert.Equal(t, AckError, ack.Status)
	assert.Contains(t, ack.Message, "selfDestruct")
}

func TestControllerStartScanOncePerKind(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{}, 8)
	api := &fakeAPI{
		friends: singlePage(models.Account{Username: "alice", UserID: "1"}),
		tweets: func(userID string, call int) ([]time.Time, error) {
			entered <- struct{}{}
			<-block
			return []time.Time{daysAgo(1)}, nil
		},
	}
	h, ctrl := newControllerHarness(api)

	ack := ctrl.Handle(context.Background(), Command{Type: CmdStartScan, InactiveDays: 30})
	require.Equal(t, AckStarted, ack.Status)

	<-entered
	ack = ctrl.Handle(context.Background(), Command{Type: CmdStartScan, InactiveDays: 30})
	assert.Equal(t, AckAlreadyRunning, ack.Status)

	close(block)
	ctrl.Wait()

	// A finished job frees the slot.
	ack = ctrl.Handle(context.Background(), Command{Type: CmdStartScan, InactiveDays: 30})
	assert.Equal(t, AckStarted, ack.Status)
	ctrl.Wait()

	assert.True(t, h.store.Has(store.KeyScanResults))
}

func TestControllerStopReturnsPartialProgress(t *testing.T) {
	entered := make(chan struct{}, 8)
	block := make(chan struct{})
	api := &fakeAPI{
		friends: singlePage(
			models.Account{Username: "alice", UserID: "1"},
			models.Account{Username: "bob", UserID: "2"},
		),
		tweets: func(userID string, call int) ([]time.Time, error) {
			return []time.Time{daysAgo(60)}, nil
		},
	}
	h, ctrl := newControllerHarness(api)
	h.eng.sleep = func(ctx context.Context, d time.Duration) error {
		entered <- struct{}{}
		<-block
		return nil
	}

	require.Equal(t, AckStarted, ctrl.Handle(context.Background(), Command{Type: CmdStartScan, InactiveDays: 30}).Status)
	<-entered

	ack := ctrl.Handle(context.Background(), Command{Type: CmdStop})
	assert.Equal(t, AckStopped, ack.Status)
	partial, ok := ack.Partial.(Partial)
	require.True(t, ok)
	require.NotNil(t, partial.Scan)
	assert.Equal(t, 1, partial.Scan.Current)
	assert.Nil(t, partial.Unfollow)

	close(block)
	ctrl.Wait()

	state := &models.ScanState{}
	require.NoError(t, store.GetJSON(h.store, store.KeyScanState, state))
	assert.Equal(t, models.StatusPaused, state.Status)
}

func TestControllerResumeScan(t *testing.T) {
	api := &fakeAPI{
		tweets: func(userID string, call int) ([]time.Time, error) {
			return []time.Time{daysAgo(90)}, nil
		},
	}
	h, ctrl := newControllerHarness(api)

	require.NoError(t, store.SetJSON(h.store, store.KeyScanState, &models.ScanState{
		Accounts:     []models.Account{{Username: "alice", UserID: "1"}},
		InactiveDays: 30,
		CutoffMillis: scanNow.Add(-30 * 24 * time.Hour).UnixMilli(),
		Status:       models.StatusPaused,
	}))

	ack := ctrl.Handle(context.Background(), Command{Type: CmdResumeScan})
	assert.Equal(t, AckResuming, ack.Status)
	ctrl.Wait()

	var results []models.InactiveResult
	require.NoError(t, store.GetJSON(h.store, store.KeyScanResults, &results))
	assert.Len(t, results, 1)
}

func TestControllerStartUnfollow(t *testing.T) {
	api := &fakeAPI{destroy: unfollowOK("alice")}
	h, ctrl := newControllerHarness(api)
	require.NoError(t, store.SetJSON(h.store, store.KeyScanResults, []models.InactiveResult{
		{Username: "alice", UserID: "1"},
	}))

	ack := ctrl.Handle(context.Background(), Command{Type: CmdStartUnfollow, Usernames: []string{"alice"}})
	assert.Equal(t, AckStarted, ack.Status)
	ctrl.Wait()

	assert.Equal(t, 1, api.count("destroy"))
}

func TestControllerRetrySkippedReportsErrorEvent(t *testing.T) {
	h, ctrl := newControllerHarness(&fakeAPI{})

	ack := ctrl.Handle(context.Background(), Command{Type: CmdRetrySkipped})
	assert.Equal(t, AckStarted, ack.Status)
	ctrl.Wait()

	require.NotEmpty(t, h.sink.ByType(EventError))
}

func TestSeedDefaults(t *testing.T) {
	ms := store.NewMemoryStore()
	require.NoError(t, SeedDefaults(ms))

	var days int
	require.NoError(t, store.GetJSON(ms, store.KeyInactiveDays, &days))
	assert.Equal(t, 30, days)

	var delay int
	require.NoError(t, store.GetJSON(ms, store.KeyUnfollowDelay, &delay))
	assert.Equal(t, 3000, delay)

	// Existing settings survive a reseed.
	require.NoError(t, store.SetJSON(ms, store.KeyInactiveDays, 45))
	require.NoError(t, SeedDefaults(ms))
	require.NoError(t, store.GetJSON(ms, store.KeyInactiveDays, &days))
	assert.Equal(t, 45, days)
}
