package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/npc-swipe/internal/cache"
	"github.com/oggyb/npc-swipe/internal/config"
	"github.com/oggyb/npc-swipe/internal/db"
	"github.com/oggyb/npc-swipe/internal/notify"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRedisSurfaceRoutesByKind(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	rc := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = rc.Close() })

	matches := rc.Client.Subscribe(ctx, "swipe:matches")
	t.Cleanup(func() { _ = matches.Close() })
	user := rc.Client.Subscribe(ctx, notify.UserChannel("u1"))
	t.Cleanup(func() { _ = user.Close() })
	_, err := matches.Receive(ctx)
	require.NoError(t, err)
	_, err = user.Receive(ctx)
	require.NoError(t, err)

	s := notify.NewRedisSurface(rc, "swipe:matches")
	require.NoError(t, s.Deliver(ctx, notify.Match("u1", "lya", db.OriginMutual)))
	require.NoError(t, s.Deliver(ctx, notify.Terminal("u1", notify.ReasonNoMoreProfiles)))

	msg, err := matches.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got notify.Obligation
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, notify.KindAnnounceMatch, got.Kind)
	assert.Equal(t, "lya", got.ProfileID)
	assert.Equal(t, db.OriginMutual, got.Origin)

	msg, err = user.ReceiveMessage(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, notify.KindPresentTerminal, got.Kind)
	assert.Equal(t, notify.ReasonNoMoreProfiles, got.Reason)
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	rec := &notify.Recorder{}
	d := notify.NewDispatcher(rec, discard())

	d.Dispatch(context.Background(),
		notify.Terminal("u1", notify.ReasonSessionAbsent),
		notify.Match("u1", "grum", db.OriginOperator),
	)
	d.Wait()

	got := rec.Delivered()
	require.Len(t, got, 2)
	assert.Equal(t, notify.KindPresentTerminal, got[0].Kind)
	assert.Equal(t, notify.KindAnnounceMatch, got[1].Kind)
	assert.Len(t, rec.OfKind(notify.KindAnnounceMatch), 1)
}

func TestDispatcherSurvivesFailuresAndCancellation(t *testing.T) {
	calls := make(chan notify.Obligation, 2)
	failing := notify.SurfaceFunc(func(ctx context.Context, o notify.Obligation) error {
		calls <- o
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.New("chat is down")
	})
	d := notify.NewDispatcher(failing, discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Dispatch(ctx, notify.Match("u1", "a", db.OriginMutual), notify.Match("u1", "b", db.OriginMutual))

	done := make(chan struct{})
	go func() { d.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not finish")
	}
	assert.Len(t, calls, 2, "a failed delivery must not stop the batch")
}

func TestNilDispatcherIsANoop(t *testing.T) {
	var d *notify.Dispatcher
	d.Dispatch(context.Background(), notify.Terminal("u", notify.ReasonSessionAbsent))
	d.Wait()
}

func TestDispatcherKeepsOrderAcrossCalls(t *testing.T) {
	rec := &notify.Recorder{}
	first := true
	slowStart := notify.SurfaceFunc(func(ctx context.Context, o notify.Obligation) error {
		if first {
			first = false
			time.Sleep(50 * time.Millisecond)
		}
		return rec.Deliver(ctx, o)
	})
	d := notify.NewDispatcher(slowStart, discard())

	d.Dispatch(context.Background(), notify.Card("u1", &db.Profile{ID: "a"}, 1, 2))
	d.Dispatch(context.Background(), notify.Card("u1", &db.Profile{ID: "b"}, 2, 2))
	d.Dispatch(context.Background(), notify.Terminal("u1", notify.ReasonNoMoreProfiles))
	d.Wait()

	got := rec.Delivered()
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ProfileID)
	assert.Equal(t, "b", got[1].ProfileID)
	assert.Equal(t, notify.KindPresentTerminal, got[2].Kind)
}
