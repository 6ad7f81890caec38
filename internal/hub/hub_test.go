package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Harshitk-cp/sketchhive/internal/eventlog"
	"github.com/Harshitk-cp/sketchhive/internal/identity"
	"github.com/Harshitk-cp/sketchhive/internal/metrics"
	"github.com/Harshitk-cp/sketchhive/internal/model"
	"github.com/Harshitk-cp/sketchhive/internal/registry"
	"github.com/Harshitk-cp/sketchhive/internal/registry/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var errQueueFull = errors.New("queue full")

// recordingConn captures every frame offered to a peer
type recordingConn struct {
	frames chan []byte
	closed atomic.Bool
}

func newRecordingConn() *recordingConn {
	return &recordingConn{frames: make(chan []byte, 128)}
}

func (c *recordingConn) Send(data []byte) error {
	if c.closed.Load() {
		return errors.New("closed")
	}
	select {
	case c.frames <- data:
		return nil
	default:
		return errQueueFull
	}
}

func (c *recordingConn) Close() {
	c.closed.Store(true)
}

func (c *recordingConn) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case data := <-c.frames:
		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

func (c *recordingConn) expectNone(t *testing.T) {
	t.Helper()
	select {
	case data := <-c.frames:
		t.Fatalf("unexpected frame: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func sequentialIDs() identity.Option {
	var n atomic.Int64
	return identity.WithIDSource(func() string {
		return fmt.Sprintf("peer%d", n.Add(1))
	})
}

func startHub(t *testing.T, opts Options, assignerOpts ...identity.Option) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := New(
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics.NopCollector{},
		identity.NewAssigner(identity.PolicySuffix, 0, assignerOpts...),
		registry.New(),
		eventlog.New(0),
		opts,
	)
	done := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

// join admits a peer and consumes its welcome, roster and history frames
func join(t *testing.T, h *Hub, name string) (*registry.Peer, *recordingConn) {
	t.Helper()
	conn := newRecordingConn()
	res, err := h.Join(context.Background(), model.Hello{Name: name}, conn)
	require.NoError(t, err)
	require.Nil(t, res.Rejection)
	require.Equal(t, model.TypeWelcome, conn.next(t)["type"])
	require.Equal(t, model.TypeRoster, conn.next(t)["type"])
	require.Equal(t, model.TypeHistory, conn.next(t)["type"])
	return res.Peer, conn
}

func dispatch(t *testing.T, h *Hub, p *registry.Peer, msg model.Inbound) {
	t.Helper()
	require.NoError(t, h.Dispatch(context.Background(), p, msg))
}

func TestHub_Two_Peers_Draw_And_Undo(t *testing.T) {
	req := require.New(t)
	h := startHub(t, Options{PurgeOnDisconnect: true}, sequentialIDs())
	ctx := context.Background()

	// Given a name that is too short
	res, err := h.Join(ctx, model.Hello{Name: "ab"}, newRecordingConn())
	req.NoError(err)

	// Then the handshake is refused
	req.NotNil(res.Rejection)
	req.Equal(model.ReasonShort, res.Rejection.Reason)
	req.False(res.Rejection.Banned)

	// When Alice joins
	connA := newRecordingConn()
	res, err = h.Join(ctx, model.Hello{Name: "Alice"}, connA)
	req.NoError(err)
	alice := res.Peer
	welcome := connA.next(t)
	req.Equal("welcome", welcome["type"])
	req.Equal("Alice", welcome["name"])
	req.Equal(alice.ID, welcome["id"])
	req.Len(connA.next(t)["peers"], 1)
	req.Empty(connA.next(t)["events"])

	// And a second Alice joins
	connB := newRecordingConn()
	res, err = h.Join(ctx, model.Hello{Name: "Alice"}, connB)
	req.NoError(err)
	bob := res.Peer
	req.Equal("Alice-1", connB.next(t)["name"])
	req.Len(connB.next(t)["peers"], 2)
	req.Equal(model.TypeHistory, connB.next(t)["type"])

	// Then the first peer is told about the newcomer
	roster := connA.next(t)
	req.Equal("roster", roster["type"])
	req.Len(roster["peers"], 2)
	connB.expectNone(t)

	// When Alice dabs a dot
	dispatch(t, h, alice, model.Dot{X: 5, Y: 5, Size: 4, StrokeID: 1})

	// Then both peers receive it stamped with Alice's id and color
	for _, conn := range []*recordingConn{connA, connB} {
		dot := conn.next(t)
		req.Equal("dot", dot["type"])
		req.Equal(alice.ID, dot["from"])
		req.Equal(alice.Color, dot["color"])
		req.EqualValues(1, dot["sid"])
	}

	// When Alice undoes her stroke
	dispatch(t, h, alice, model.UndoMine{})

	// Then both peers rebuild from an empty log
	for _, conn := range []*recordingConn{connA, connB} {
		rebuild := conn.next(t)
		req.Equal("rebuild", rebuild["type"])
		req.Empty(rebuild["events"])
	}

	stats, err := h.Stats(ctx)
	req.NoError(err)
	req.Equal(2, stats.Peers)
	req.Equal(0, stats.Events)
	req.NotEqual(alice.ID, bob.ID)
}

func TestHub_Undo_With_Nothing_To_Remove_Still_Rebuilds(t *testing.T) {
	h := startHub(t, Options{})
	alice, connA := join(t, h, "alice")

	// When undo is requested on an empty log
	dispatch(t, h, alice, model.UndoMine{})

	// Then a rebuild is still broadcast
	rebuild := connA.next(t)
	require.Equal(t, "rebuild", rebuild["type"])
	require.Empty(t, rebuild["events"])
}

func TestHub_Undo_Removes_Only_The_Last_Stroke(t *testing.T) {
	req := require.New(t)
	h := startHub(t, Options{})
	alice, connA := join(t, h, "alice")

	// Given two strokes
	dispatch(t, h, alice, model.Dot{X: 1, Y: 1, Size: 4, StrokeID: 1})
	dispatch(t, h, alice, model.Draw{X0: 1, Y0: 1, X1: 2, Y1: 2, Size: 4, StrokeID: 2})
	dispatch(t, h, alice, model.Draw{X0: 2, Y0: 2, X1: 3, Y1: 3, Size: 4, StrokeID: 2})
	for range 3 {
		connA.next(t)
	}

	// When the last stroke is undone
	dispatch(t, h, alice, model.UndoMine{})

	// Then only the first stroke survives
	rebuild := connA.next(t)
	events := rebuild["events"].([]any)
	req.Len(events, 1)
	req.Equal("dot", events[0].(map[string]any)["type"])
}

func TestHub_Poke_Reaches_Only_The_Target(t *testing.T) {
	req := require.New(t)
	h := startHub(t, Options{})
	alice, connA := join(t, h, "alice")
	bob, connB := join(t, h, "bobby")
	connA.next(t) // roster announcing bobby

	// When alice pokes bobby
	dispatch(t, h, alice, model.Poke{To: bob.ID})

	// Then only bobby gets the boop
	boop := connB.next(t)
	req.Equal("boop", boop["type"])
	req.Equal(alice.ID, boop["from"])
	req.Equal("alice", boop["fromName"])
	connA.expectNone(t)

	// When the target is unknown nothing happens
	dispatch(t, h, alice, model.Poke{To: "nobody"})
	connA.expectNone(t)
	connB.expectNone(t)
}

func TestHub_Clear_All_Leaves_An_Empty_History(t *testing.T) {
	req := require.New(t)
	h := startHub(t, Options{})
	alice, connA := join(t, h, "alice")

	dispatch(t, h, alice, model.Dot{X: 1, Y: 1, Size: 4, StrokeID: 1})
	connA.next(t)

	// When the canvas is cleared
	dispatch(t, h, alice, model.ClearAll{})
	rebuild := connA.next(t)
	req.Equal("rebuild", rebuild["type"])
	req.Empty(rebuild["events"])

	// Then a late joiner receives an empty history
	conn := newRecordingConn()
	_, err := h.Join(context.Background(), model.Hello{Name: "carol"}, conn)
	req.NoError(err)
	conn.next(t)
	conn.next(t)
	history := conn.next(t)
	req.Equal("history", history["type"])
	req.Empty(history["events"])
}

func TestHub_Late_Joiner_Receives_History(t *testing.T) {
	req := require.New(t)
	h := startHub(t, Options{})
	alice, connA := join(t, h, "alice")

	dispatch(t, h, alice, model.Dot{X: 1, Y: 2, Size: 4, StrokeID: 1})
	dispatch(t, h, alice, model.Draw{X0: 1, Y0: 2, X1: 3, Y1: 4, Size: 8, StrokeID: 1})
	connA.next(t)
	connA.next(t)

	conn := newRecordingConn()
	_, err := h.Join(context.Background(), model.Hello{Name: "carol"}, conn)
	req.NoError(err)
	conn.next(t)
	conn.next(t)

	history := conn.next(t)
	events := history["events"].([]any)
	req.Len(events, 2)
	req.Equal("dot", events[0].(map[string]any)["type"])
	req.Equal("draw", events[1].(map[string]any)["type"])
}

func TestHub_Disconnect_Purges_Strokes_And_Updates_Roster(t *testing.T) {
	req := require.New(t)
	h := startHub(t, Options{PurgeOnDisconnect: true})
	_, connA := join(t, h, "alice")
	bob, connB := join(t, h, "bobby")
	connA.next(t)

	dispatch(t, h, bob, model.Dot{X: 1, Y: 1, Size: 4, StrokeID: 1})
	connA.next(t)
	connB.next(t)

	// When bobby leaves
	h.Leave(bob)

	// Then alice sees the new roster and a rebuild without bobby's strokes
	roster := connA.next(t)
	req.Equal("roster", roster["type"])
	req.Len(roster["peers"], 1)
	rebuild := connA.next(t)
	req.Equal("rebuild", rebuild["type"])
	req.Empty(rebuild["events"])
	req.True(connB.closed.Load())

	// And leaving again is harmless
	h.Leave(bob)
	connA.expectNone(t)

	// And messages from the departed peer are ignored
	dispatch(t, h, bob, model.Dot{X: 1, Y: 1, Size: 4, StrokeID: 2})
	connA.expectNone(t)

	stats, err := h.Stats(context.Background())
	req.NoError(err)
	req.Equal(1, stats.Peers)
}

func TestHub_Disconnect_Keeps_Strokes_Without_Purge(t *testing.T) {
	req := require.New(t)
	h := startHub(t, Options{PurgeOnDisconnect: false})
	_, connA := join(t, h, "alice")
	bob, _ := join(t, h, "bobby")
	connA.next(t)

	dispatch(t, h, bob, model.Dot{X: 1, Y: 1, Size: 4, StrokeID: 1})
	connA.next(t)

	h.Leave(bob)

	// Then only the roster changes
	req.Equal("roster", connA.next(t)["type"])
	connA.expectNone(t)

	stats, err := h.Stats(context.Background())
	req.NoError(err)
	req.Equal(1, stats.Events)
}

func TestHub_Failed_Send_Evicts_Peer(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	h := startHub(t, Options{PurgeOnDisconnect: true})
	alice, connA := join(t, h, "alice")

	// Given a peer whose connection accepts the greeting then breaks
	broken := mocks.NewMockConn(ctrl)
	gomock.InOrder(
		broken.EXPECT().Send(gomock.Any()).Return(nil).Times(3),
		broken.EXPECT().Send(gomock.Any()).Return(errQueueFull),
	)
	broken.EXPECT().Close().Times(1)

	res, err := h.Join(context.Background(), model.Hello{Name: "bobby"}, broken)
	req.NoError(err)
	req.Nil(res.Rejection)
	req.Equal("roster", connA.next(t)["type"])

	// When alice draws
	dispatch(t, h, alice, model.Dot{X: 1, Y: 1, Size: 4, StrokeID: 1})

	// Then alice still gets her dot, followed by a roster without bobby
	req.Equal("dot", connA.next(t)["type"])
	roster := connA.next(t)
	req.Equal("roster", roster["type"])
	req.Len(roster["peers"], 1)

	stats, err := h.Stats(context.Background())
	req.NoError(err)
	req.Equal(1, stats.Peers)
}

func TestHub_Failed_Greeting_Is_Reported(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	h := startHub(t, Options{})
	_, connA := join(t, h, "alice")

	// Given a connection that breaks before the welcome goes out
	broken := mocks.NewMockConn(ctrl)
	broken.EXPECT().Send(gomock.Any()).Return(errQueueFull)
	broken.EXPECT().Close().Times(1)

	// When it joins
	res, err := h.Join(context.Background(), model.Hello{Name: "bobby"}, broken)

	// Then the caller learns the peer is gone
	req.ErrorIs(err, ErrGreetingFailed)
	req.Nil(res.Peer)
	req.Nil(res.Rejection)

	// And the others only see the roster that dropped it
	roster := connA.next(t)
	req.Equal("roster", roster["type"])
	req.Len(roster["peers"], 1)
	connA.expectNone(t)

	stats, err := h.Stats(context.Background())
	req.NoError(err)
	req.Equal(1, stats.Peers)
}

func TestHub_Device_Lock(t *testing.T) {
	req := require.New(t)
	h := startHub(t, Options{})
	ctx := context.Background()

	holder, err := h.Join(ctx, model.Hello{Name: "alice", Device: "tablet-1"}, newRecordingConn())
	req.NoError(err)
	req.Nil(holder.Rejection)

	// When the same device joins again
	res, err := h.Join(ctx, model.Hello{Name: "other", Device: "tablet-1"}, newRecordingConn())
	req.NoError(err)

	// Then it is banned
	req.NotNil(res.Rejection)
	req.True(res.Rejection.Banned)
	req.Equal(model.ReasonDeviceInUse, res.Rejection.Reason)

	// And after the holder leaves the device is free again
	h.Leave(holder.Peer)
	res, err = h.Join(ctx, model.Hello{Name: "other", Device: "tablet-1"}, newRecordingConn())
	req.NoError(err)
	req.Nil(res.Rejection)
}

func TestHub_Concurrent_Colliding_Names_Stay_Unique(t *testing.T) {
	req := require.New(t)
	h := startHub(t, Options{})

	const n = 20
	var wg sync.WaitGroup
	names := make(chan string, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.Join(context.Background(), model.Hello{Name: "painter"}, newRecordingConn())
			if err == nil && res.Peer != nil {
				names <- res.Peer.Name
			}
		}()
	}
	wg.Wait()
	close(names)

	seen := map[string]bool{}
	for name := range names {
		req.False(seen[name], "duplicate name %s", name)
		seen[name] = true
	}
	req.Len(seen, n)
}

func TestHub_Stopped(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	h := New(slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.NopCollector{},
		identity.NewAssigner(identity.PolicySuffix, 0), registry.New(), eventlog.New(0), Options{})
	done := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(done)
	}()

	_, conn := join(t, h, "alice")
	req.True(h.Running())

	// When the hub is stopped
	cancel()
	<-done

	// Then connections are closed and calls fail fast
	req.True(conn.closed.Load())
	req.False(h.Running())
	_, err := h.Join(context.Background(), model.Hello{Name: "bobby"}, newRecordingConn())
	req.ErrorIs(err, ErrStopped)
	req.ErrorIs(h.Dispatch(context.Background(), &registry.Peer{}, model.ClearAll{}), ErrStopped)
	_, err = h.Stats(context.Background())
	req.ErrorIs(err, ErrStopped)
}
