package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agiopen-org/lux-desktop/internal/automation"
	wsprotocol "github.com/agiopen-org/lux-desktop/internal/gateway/ws"
)

// scriptedGateway accepts one connection and hands every request frame to respond.
func scriptedGateway(t *testing.T, respond func(ctx context.Context, conn *websocket.Conn, f wsprotocol.Frame)) string {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			f, err := wsprotocol.UnmarshalFrame(data)
			if err != nil {
				continue
			}
			respond(r.Context(), conn, f)
		}
	}))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func send(ctx context.Context, conn *websocket.Conn, f wsprotocol.Frame) {
	data, _ := wsprotocol.MarshalFrame(f)
	_ = conn.Write(ctx, websocket.MessageText, data)
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Dial(ctx, "ws://127.0.0.1:1/api/ws")
	assert.ErrorContains(t, err, "ws dial")
}

func TestStartStreamsUpdates(t *testing.T) {
	url := scriptedGateway(t, func(ctx context.Context, conn *websocket.Conn, f wsprotocol.Frame) {
		if wsprotocol.Method(f.Method) != wsprotocol.MethodStartAutomation {
			return
		}
		res, _ := wsprotocol.NewResponseFrame(f.ID, true, wsprotocol.StartResult{RunID: "run_1"}, "")
		send(ctx, conn, res)
		upd, _ := wsprotocol.NewEventFrame(wsprotocol.EventAutomationUpdate, "run_1", automation.Update{
			Message: "searching",
			History: []automation.Entry{{Action: "open browser"}},
		})
		send(ctx, conn, upd)
		other, _ := wsprotocol.NewEventFrame(wsprotocol.EventAutomationUpdate, "run_other", automation.Update{Message: "not mine"})
		send(ctx, conn, other)
		closed, _ := wsprotocol.NewEventFrame(wsprotocol.EventAutomationClosed, "run_1", nil)
		send(ctx, conn, closed)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, url)
	require.NoError(t, err)
	defer c.Close()

	updates, err := c.Start(ctx, automation.StartRequest{RunID: "run_1", Instruction: "x", Mode: "actor"})
	require.NoError(t, err)

	var got []automation.Update
	for u := range updates {
		got = append(got, u)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "searching", got[0].Message)
	assert.Equal(t, "open browser", got[0].History[0].Action)
}

func TestStartError(t *testing.T) {
	url := scriptedGateway(t, func(ctx context.Context, conn *websocket.Conn, f wsprotocol.Frame) {
		res, _ := wsprotocol.NewResponseFrame(f.ID, false, nil, "engine busy")
		send(ctx, conn, res)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, url)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Start(ctx, automation.StartRequest{RunID: "run_1"})
	assert.ErrorContains(t, err, "start_automation: engine busy")
}

func TestRequestTimeout(t *testing.T) {
	url := scriptedGateway(t, func(context.Context, *websocket.Conn, wsprotocol.Frame) {})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, url, WithRequestTimeout(20*time.Millisecond))
	require.NoError(t, err)
	defer c.Close()

	assert.ErrorIs(t, c.Stop(ctx), context.DeadlineExceeded)
}

func TestConnectionLossClosesStreams(t *testing.T) {
	url := scriptedGateway(t, func(ctx context.Context, conn *websocket.Conn, f wsprotocol.Frame) {
		res, _ := wsprotocol.NewResponseFrame(f.ID, true, wsprotocol.StartResult{RunID: "run_1"}, "")
		send(ctx, conn, res)
		conn.Close(websocket.StatusGoingAway, "bye")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, url)
	require.NoError(t, err)
	defer c.Close()

	updates, err := c.Start(ctx, automation.StartRequest{RunID: "run_1"})
	require.NoError(t, err)

	_, ok := <-updates
	assert.False(t, ok, "stream closes when the connection goes away")

	<-c.Done()
	assert.ErrorIs(t, c.Stop(ctx), ErrConnClosed)
	_, err = c.Start(ctx, automation.StartRequest{RunID: "run_2"})
	assert.ErrorIs(t, err, ErrConnClosed)
}
