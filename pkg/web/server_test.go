package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/pulseai/internal/log"
	"github.com/teslashibe/pulseai/pkg/auth"
	"github.com/teslashibe/pulseai/pkg/pipeline"
	"github.com/teslashibe/pulseai/pkg/profile"
	"github.com/teslashibe/pulseai/pkg/protocol"
	"github.com/teslashibe/pulseai/pkg/session"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *session.Machine) {
	t.Helper()
	m := session.New(session.WithLogger(log.Discard()))
	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	s := NewServer("127.0.0.1:0", m, opts...)
	t.Cleanup(func() { s.unsubscribe() })
	return s, m
}

func do(t *testing.T, s *Server, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

const goodLogin = `{"email":"alex@pulse.ai","password":"alex"}`

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, WithProviderName("mock"))
	status, body := do(t, s, http.MethodGet, "/health", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body["status"] != "ok" || body["provider"] != "mock" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		want      int
		wantError string
	}{
		{"invalid email", `{"email":"nope","password":"nope"}`, http.StatusUnprocessableEntity, "Please enter a valid email address."},
		{"wrong password", `{"email":"alex@pulse.ai","password":"x"}`, http.StatusUnauthorized, "Access Denied: Enter correct password!"},
		{"malformed body", `{`, http.StatusBadRequest, "invalid request body"},
		{"valid", goodLogin, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, m := newTestServer(t)
			status, body := do(t, s, http.MethodPost, "/api/login", tt.body)
			if status != tt.want {
				t.Fatalf("status = %d, want %d (%v)", status, tt.want, body)
			}
			if tt.wantError != "" {
				if body["error"] != tt.wantError {
					t.Errorf("error = %v, want %q", body["error"], tt.wantError)
				}
				if m.Snapshot().IsAuthenticated {
					t.Error("rejected login must not authenticate")
				}
				return
			}
			if body["phase"] != string(session.PhaseModeSelection) {
				t.Errorf("phase = %v", body["phase"])
			}
		})
	}
}

func TestLoginTwiceConflicts(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/api/login", goodLogin)
	if status, _ := do(t, s, http.MethodPost, "/api/login", goodLogin); status != http.StatusConflict {
		t.Errorf("status = %d, want 409", status)
	}
}

func TestSessionFlow(t *testing.T) {
	s, m := newTestServer(t)

	if status, _ := do(t, s, http.MethodPost, "/api/modes/wave/toggle", ""); status != http.StatusConflict {
		t.Errorf("toggle before login: status = %d, want 409", status)
	}

	do(t, s, http.MethodPost, "/api/login", goodLogin)

	status, body := do(t, s, http.MethodPost, "/api/session/start", "")
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("start without modes: status = %d", status)
	}
	if body["error"] != "Please select at least one interaction mode." {
		t.Errorf("error = %v", body["error"])
	}

	if status, _ := do(t, s, http.MethodPost, "/api/modes/telepathy/toggle", ""); status != http.StatusNotFound {
		t.Errorf("unknown mode: status = %d, want 404", status)
	}

	status, body = do(t, s, http.MethodPost, "/api/modes/wave/toggle", "")
	if status != http.StatusOK {
		t.Fatalf("toggle: status = %d", status)
	}
	if modes, _ := body["selectedModes"].([]interface{}); len(modes) != 1 || modes[0] != "wave" {
		t.Errorf("selectedModes = %v", body["selectedModes"])
	}

	status, body = do(t, s, http.MethodPost, "/api/session/start", "")
	if status != http.StatusOK || body["phase"] != string(session.PhaseCalibrating) {
		t.Fatalf("start: status = %d, phase = %v", status, body["phase"])
	}

	if status, _ := do(t, s, http.MethodPost, "/api/session/start", ""); status != http.StatusConflict {
		t.Errorf("second start: status = %d, want 409", status)
	}

	_, body = do(t, s, http.MethodPost, "/api/calibration/finish", "")
	if body["phase"] != string(session.PhaseLive) {
		t.Errorf("finish: phase = %v", body["phase"])
	}
	_, body = do(t, s, http.MethodPost, "/api/calibration/toggle", "")
	if body["phase"] != string(session.PhaseCalibrating) {
		t.Errorf("toggle: phase = %v", body["phase"])
	}

	_, body = do(t, s, http.MethodPost, "/api/logout", "")
	if body["phase"] != string(session.PhaseUnauthenticated) {
		t.Errorf("logout: phase = %v", body["phase"])
	}
	if m.Snapshot().CurrentUser != nil {
		t.Error("logout should unbind the user")
	}
}

func TestCalibrationBeforeStart(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/api/login", goodLogin)
	if status, _ := do(t, s, http.MethodPost, "/api/calibration/toggle", ""); status != http.StatusConflict {
		t.Errorf("status = %d, want 409", status)
	}
	if status, _ := do(t, s, http.MethodPost, "/api/calibration/finish", ""); status != http.StatusConflict {
		t.Errorf("status = %d, want 409", status)
	}
}

func TestModesAndHistory(t *testing.T) {
	s, m := newTestServer(t)

	_, body := do(t, s, http.MethodGet, "/api/modes", "")
	if modes, _ := body["modes"].([]interface{}); len(modes) != len(profile.Modes()) {
		t.Errorf("modes = %v", body["modes"])
	}

	m.Login(profile.MockUser())
	m.ToggleMode(profile.ModeWave)
	m.StartSession()
	ticket, err := m.BeginInference()
	if err != nil {
		t.Fatal(err)
	}
	m.RecordInteraction(ticket, profile.InteractionLog{SystemMessage: "Wave detected", Confidence: 90})

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var history []profile.InteractionLog
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].SystemMessage != "Wave detected" {
		t.Errorf("history = %+v", history)
	}

	_, body = do(t, s, http.MethodGet, "/api/state", "")
	if body["tutorialStep"] != float64(1) {
		t.Errorf("tutorialStep = %v", body["tutorialStep"])
	}
}

type fixedStats pipeline.Stats

func (f fixedStats) Stats() pipeline.Stats { return pipeline.Stats(f) }

func TestPipelineStats(t *testing.T) {
	s, _ := newTestServer(t)
	_, body := do(t, s, http.MethodGet, "/api/pipeline/stats", "")
	if body["framesSeen"] != float64(0) {
		t.Errorf("framesSeen = %v", body["framesSeen"])
	}

	s, _ = newTestServer(t, WithPipeline(fixedStats{FramesSeen: 4, FramesDropped: 3}))
	_, body = do(t, s, http.MethodGet, "/api/pipeline/stats", "")
	if body["framesSeen"] != float64(4) || body["framesDropped"] != float64(3) {
		t.Errorf("unexpected stats %v", body)
	}
}

type fakeOAuth struct {
	profile *profile.UserProfile
	err     error
}

func (f *fakeOAuth) AuthURL() string { return "https://accounts.example.com/auth?state=s1" }

func (f *fakeOAuth) Exchange(ctx context.Context, state, code string) (*profile.UserProfile, error) {
	if state != "s1" {
		return nil, auth.ErrInvalidState
	}
	return f.profile, f.err
}

func TestGoogleRoutes(t *testing.T) {
	s, _ := newTestServer(t)
	if status, _ := do(t, s, http.MethodGet, "/api/auth/google", ""); status != http.StatusNotFound {
		t.Errorf("unconfigured: status = %d, want 404", status)
	}

	user := profile.MockUser()
	user.ID = "GOOGLE-1"
	s, m := newTestServer(t, WithGoogle(&fakeOAuth{profile: user}))

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/auth/google", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusFound || !strings.HasPrefix(resp.Header.Get("Location"), "https://accounts.example.com/") {
		t.Errorf("redirect = %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}

	status, body := do(t, s, http.MethodGet, "/api/auth/google/callback?state=bad&code=c", "")
	if status != http.StatusUnauthorized || body["error"] != auth.Notice(auth.ErrInvalidState) {
		t.Errorf("bad state: %d %v", status, body)
	}
	if status, _ := do(t, s, http.MethodGet, "/api/auth/google/callback?error=access_denied", ""); status != http.StatusUnauthorized {
		t.Errorf("cancelled: status = %d", status)
	}

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?state=s1&code=c", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/" {
		t.Errorf("callback = %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}
	if snap := m.Snapshot(); snap.CurrentUser == nil || snap.CurrentUser.ID != "GOOGLE-1" {
		t.Errorf("callback should bind the google user, got %+v", snap.CurrentUser)
	}
}

func TestGoogleExchangeFailure(t *testing.T) {
	s, m := newTestServer(t, WithGoogle(&fakeOAuth{err: errors.New("token endpoint down")}))
	status, body := do(t, s, http.MethodGet, "/api/auth/google/callback?state=s1&code=c", "")
	if status != http.StatusUnauthorized || body["error"] != "Sign-in failed." {
		t.Errorf("%d %v", status, body)
	}
	if m.Snapshot().IsAuthenticated {
		t.Error("failed exchange must not authenticate")
	}
}

func TestWebSocketUpgradeRequired(t *testing.T) {
	s, _ := newTestServer(t)
	if status, _ := do(t, s, http.MethodGet, "/ws/state", ""); status != http.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", status)
	}
}

// serve runs s on a loopback listener and returns its host:port.
func serve(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Serve(ctx, ln)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func readMessage(t *testing.T, conn *websocket.Conn) *protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return msg
}

func TestStateFeed(t *testing.T) {
	s, m := newTestServer(t)
	addr := serve(t, s)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws/state", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var snap session.Snapshot
	first := readMessage(t, conn)
	if first.Type != protocol.TypeState {
		t.Fatalf("first message type = %s", first.Type)
	}
	if err := first.ParseData(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Phase != session.PhaseUnauthenticated {
		t.Errorf("initial phase = %s", snap.Phase)
	}

	m.Login(profile.MockUser())

	next := readMessage(t, conn)
	if err := next.ParseData(&snap); err != nil {
		t.Fatal(err)
	}
	if next.Type != protocol.TypeState || snap.Phase != session.PhaseModeSelection {
		t.Errorf("after login: %s %s", next.Type, snap.Phase)
	}

	resp, err := http.Post("http://"+addr+"/api/session/start", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("start: status = %d", resp.StatusCode)
	}

	notice := readMessage(t, conn)
	data, err := notice.GetNoticeData()
	if err != nil {
		t.Fatal(err)
	}
	if notice.Type != protocol.TypeNotice || data.Message != "Please select at least one interaction mode." {
		t.Errorf("notice = %s %+v", notice.Type, data)
	}
}
