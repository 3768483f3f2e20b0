package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"nhooyr.io/websocket"

	"github.com/Mateyclick/tactics-live/internal/config"
	"github.com/Mateyclick/tactics-live/internal/msgcat"
	"github.com/Mateyclick/tactics-live/internal/puzzlestore"
	"github.com/Mateyclick/tactics-live/internal/session"
	"github.com/Mateyclick/tactics-live/pkg/protocol"
)

const startPos = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

type testEnv struct {
	ts       *httptest.Server
	registry *session.Registry
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()

	catalog, err := msgcat.New("")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	// Frozen clock: instant solves earn the full speed bonus, which keeps
	// score assertions exact.
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	registry := session.NewRegistry(session.Options{Now: func() time.Time { return fixed }})

	cfg := &config.AppConfig{MaxSessions: 10, BonusMultiplier: 1.0, SessionIDLength: 6}
	srv := New(cfg, Deps{
		Registry: registry,
		Library:  puzzlestore.NewStore(rdb),
		Catalog:  catalog,
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, registry: registry}
}

func dialWS(ctx context.Context, t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := strings.Replace(ts.URL, "http://", "ws://", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func wsSend(ctx context.Context, t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", msgType, err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("ws write %s: %v", msgType, err)
	}
}

func wsRead(ctx context.Context, t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("ws read: %v", err)
	}
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return msg
}

func wsExpect(ctx context.Context, t *testing.T, conn *websocket.Conn, msgType string, out any) {
	t.Helper()
	msg := wsRead(ctx, t, conn)
	if msg.Type != msgType {
		t.Fatalf("message type = %s, want %s (payload %s)", msg.Type, msgType, msg.Payload)
	}
	if out != nil {
		if err := json.Unmarshal(msg.Payload, out); err != nil {
			t.Fatalf("unmarshal %s payload: %v", msgType, err)
		}
	}
}

func TestFullSessionFlow(t *testing.T) {
	env := setupTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	admin := dialWS(ctx, t, env.ts)
	player := dialWS(ctx, t, env.ts)

	wsSend(ctx, t, admin, protocol.TypeCreateSession, protocol.CreateSessionRequest{PuzzleCount: 1})
	var created protocol.SessionCreated
	wsExpect(ctx, t, admin, protocol.TypeSessionCreated, &created)
	if len(created.SessionID) != 6 {
		t.Fatalf("session id = %q", created.SessionID)
	}

	wsSend(ctx, t, admin, protocol.TypeUpdatePuzzle, protocol.UpdatePuzzleRequest{
		SessionID:   created.SessionID,
		PuzzleIndex: 0,
		Puzzle:      protocol.PuzzleInput{Position: startPos, MainLine: "1. e4 e5", Timer: 60, Points: 100},
	})

	wsSend(ctx, t, player, protocol.TypeJoinSession, protocol.JoinSessionRequest{
		SessionID: created.SessionID,
		Nickname:  "Ana",
	})
	var joined protocol.SessionJoined
	wsExpect(ctx, t, player, protocol.TypeSessionJoined, &joined)
	if joined.SessionID != created.SessionID || joined.PuzzleActive {
		t.Fatalf("session_joined = %+v", joined)
	}
	wsExpect(ctx, t, player, protocol.TypePlayerJoined, nil)
	var roster protocol.PlayerJoined
	wsExpect(ctx, t, admin, protocol.TypePlayerJoined, &roster)
	if roster.Nickname != "Ana" || len(roster.Players) != 1 {
		t.Fatalf("player_joined = %+v", roster)
	}

	wsSend(ctx, t, admin, protocol.TypeLaunchPuzzle, protocol.LaunchPuzzleRequest{
		SessionID:   created.SessionID,
		PuzzleIndex: 0,
	})
	var launched protocol.PuzzleLaunched
	wsExpect(ctx, t, admin, protocol.TypePuzzleLaunched, &launched)
	wsExpect(ctx, t, player, protocol.TypePuzzleLaunched, nil)
	if launched.Puzzle.Position != startPos || launched.Puzzle.Timer != 60 {
		t.Fatalf("puzzle_launched = %+v", launched)
	}

	wsSend(ctx, t, player, protocol.TypeSubmitMove, protocol.SubmitMoveRequest{
		SessionID: created.SessionID,
		Move:      "e4",
	})
	var stepOK protocol.MoveStepOK
	wsExpect(ctx, t, player, protocol.TypeMoveStepOK, &stepOK)
	if stepOK.OpponentMove != "e5" || stepOK.NextStepExpected {
		t.Fatalf("move_step_ok = %+v", stepOK)
	}
	wsExpect(ctx, t, player, protocol.TypeSequenceCompleted, nil)
	wsExpect(ctx, t, admin, protocol.TypeSequenceCompleted, nil)
	var prog protocol.AdminProgress
	wsExpect(ctx, t, admin, protocol.TypeAdminProgress, &prog)
	if prog.Status != protocol.ProgressCompleted || prog.Nickname != "Ana" {
		t.Fatalf("admin_progress = %+v", prog)
	}

	wsSend(ctx, t, admin, protocol.TypeRevealResults, protocol.RevealResultsRequest{SessionID: created.SessionID})
	var revealed protocol.ResultsRevealed
	wsExpect(ctx, t, admin, protocol.TypeResultsRevealed, &revealed)
	wsExpect(ctx, t, player, protocol.TypeResultsRevealed, nil)
	if len(revealed.Leaderboard) != 1 || revealed.Leaderboard[0].Score != 200 {
		t.Fatalf("leaderboard = %+v", revealed.Leaderboard)
	}

	wsSend(ctx, t, admin, protocol.TypeNextPuzzle, protocol.NextPuzzleRequest{SessionID: created.SessionID})
	var concluded protocol.SessionConcluded
	wsExpect(ctx, t, admin, protocol.TypeSessionConcluded, &concluded)
	wsExpect(ctx, t, player, protocol.TypeSessionConcluded, nil)
	if concluded.Leaderboard[0].Score != 200 {
		t.Fatalf("final leaderboard = %+v", concluded.Leaderboard)
	}
}

func TestJoinUnknownSession(t *testing.T) {
	env := setupTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, env.ts)
	wsSend(ctx, t, conn, protocol.TypeJoinSession, protocol.JoinSessionRequest{
		SessionID: "NOPE01",
		Nickname:  "Ana",
	})
	var errMsg protocol.ErrorMessage
	wsExpect(ctx, t, conn, protocol.TypeError, &errMsg)
	if !strings.Contains(errMsg.Message, "NOPE01") {
		t.Errorf("error message %q should name the session", errMsg.Message)
	}
}

func TestUnknownMessageType(t *testing.T) {
	env := setupTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, env.ts)
	wsSend(ctx, t, conn, "bogus_type", struct{}{})
	var errMsg protocol.ErrorMessage
	wsExpect(ctx, t, conn, protocol.TypeError, &errMsg)
	if !strings.Contains(errMsg.Message, "bogus_type") {
		t.Errorf("error message %q should name the type", errMsg.Message)
	}
}

func TestInvalidPayloadRejected(t *testing.T) {
	env := setupTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, env.ts)
	wsSend(ctx, t, conn, protocol.TypeCreateSession, protocol.CreateSessionRequest{PuzzleCount: 0})
	wsExpect(ctx, t, conn, protocol.TypeError, nil)
}

func TestNonAdminCannotLaunch(t *testing.T) {
	env := setupTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	admin := dialWS(ctx, t, env.ts)
	player := dialWS(ctx, t, env.ts)

	wsSend(ctx, t, admin, protocol.TypeCreateSession, protocol.CreateSessionRequest{PuzzleCount: 1})
	var created protocol.SessionCreated
	wsExpect(ctx, t, admin, protocol.TypeSessionCreated, &created)

	wsSend(ctx, t, player, protocol.TypeJoinSession, protocol.JoinSessionRequest{SessionID: created.SessionID, Nickname: "Ana"})
	wsExpect(ctx, t, player, protocol.TypeSessionJoined, nil)
	wsExpect(ctx, t, player, protocol.TypePlayerJoined, nil)

	wsSend(ctx, t, player, protocol.TypeLaunchPuzzle, protocol.LaunchPuzzleRequest{SessionID: created.SessionID})
	wsExpect(ctx, t, player, protocol.TypeError, nil)
}

func TestPuzzleLibraryOverWebsocket(t *testing.T) {
	env := setupTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, env.ts)
	puzzle := protocol.PuzzleInput{Position: startPos, MainLine: "e4 e5", Timer: 30, Points: 100}

	wsSend(ctx, t, conn, protocol.TypeSaveLibraryPuzzle, protocol.SaveLibraryPuzzleRequest{Name: "opening trap", Puzzle: puzzle})
	var saved protocol.LibraryPuzzleSaved
	wsExpect(ctx, t, conn, protocol.TypeLibraryPuzzleSaved, &saved)
	if saved.Name != "opening trap" {
		t.Fatalf("saved = %+v", saved)
	}

	wsSend(ctx, t, conn, protocol.TypeListLibraryPuzzles, struct{}{})
	var list protocol.LibraryPuzzles
	wsExpect(ctx, t, conn, protocol.TypeLibraryPuzzles, &list)
	if len(list.Names) != 1 || list.Names[0] != "opening trap" {
		t.Fatalf("names = %v", list.Names)
	}

	wsSend(ctx, t, conn, protocol.TypeLoadLibraryPuzzle, protocol.LoadLibraryPuzzleRequest{Name: "opening trap"})
	var loaded protocol.LibraryPuzzleLoaded
	wsExpect(ctx, t, conn, protocol.TypeLibraryPuzzleLoaded, &loaded)
	if loaded.Puzzle.MainLine != "e4 e5" || loaded.Puzzle.Timer != 30 {
		t.Fatalf("loaded = %+v", loaded)
	}

	wsSend(ctx, t, conn, protocol.TypeLoadLibraryPuzzle, protocol.LoadLibraryPuzzleRequest{Name: "missing"})
	wsExpect(ctx, t, conn, protocol.TypeError, nil)
}

func TestPlayerDisconnectBroadcasts(t *testing.T) {
	env := setupTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	admin := dialWS(ctx, t, env.ts)
	player := dialWS(ctx, t, env.ts)

	wsSend(ctx, t, admin, protocol.TypeCreateSession, protocol.CreateSessionRequest{PuzzleCount: 1})
	var created protocol.SessionCreated
	wsExpect(ctx, t, admin, protocol.TypeSessionCreated, &created)

	wsSend(ctx, t, player, protocol.TypeJoinSession, protocol.JoinSessionRequest{SessionID: created.SessionID, Nickname: "Ana"})
	wsExpect(ctx, t, player, protocol.TypeSessionJoined, nil)
	wsExpect(ctx, t, admin, protocol.TypePlayerJoined, nil)

	_ = player.Close(websocket.StatusNormalClosure, "bye")

	var left protocol.PlayerLeft
	wsExpect(ctx, t, admin, protocol.TypePlayerLeft, &left)
	if left.Nickname != "Ana" || len(left.Players) != 0 {
		t.Fatalf("player_left = %+v", left)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTest(t)
	resp, err := http.Get(env.ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
