package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

type BaseSuite struct {
	suite.Suite
	Config Config
	client *http.Client
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.BaseURL == "" {
		s.T().Skip("MOONSHOP_ADDR is not set")
	}
	s.Config.BaseURL = strings.TrimRight(s.Config.BaseURL, "/")
	s.client = &http.Client{Timeout: 10 * time.Second}
}

// Step prints a colorized header then runs fn as a subtest.
func (s *BaseSuite) Step(name string, fn func()) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
	s.Run(name, fn)
}

// Call sends a JSON request and decodes the JSON answer into out when given.
func (s *BaseSuite) Call(method, path, token string, body any, out any) int {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		s.Require().NoError(err)
	}
	r, err := http.NewRequest(method, s.Config.BaseURL+path, bytes.NewReader(payload))
	s.Require().NoError(err)
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := s.client.Do(r)
	s.Require().NoError(err, "Failed to reach "+s.Config.BaseURL)
	defer resp.Body.Close()
	answer, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)

	logBuilder := strings.Builder{}
	fmt.Fprintf(&logBuilder, "HTTP %s %s [%d] in %v", method, path, resp.StatusCode, time.Since(start))
	if s.Config.DebugJSON {
		if payload != nil {
			fmt.Fprintln(&logBuilder, "\nREQUEST:")
			fmt.Fprintln(&logBuilder, string(payload))
		}
		fmt.Fprintln(&logBuilder, "RESPONSE:")
		fmt.Fprintln(&logBuilder, string(answer))
	}
	s.T().Log(logBuilder.String())

	if out != nil {
		s.Require().NoError(json.Unmarshal(answer, out), string(answer))
	}
	return resp.StatusCode
}

// Dial opens a socket and authenticates it as userID.
func (s *BaseSuite) Dial(userID int64, token string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(s.Config.BaseURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err, "Failed to open socket at "+url)
	s.Frame(conn, map[string]any{"type": "auth", "userId": userID, "token": token})
	return conn
}

func (s *BaseSuite) Frame(conn *websocket.Conn, frame map[string]any) {
	if s.Config.DebugJSON {
		s.T().Logf("WS SEND: %v", frame)
	}
	s.Require().NoError(conn.WriteJSON(frame))
}

// Next waits for the next server event on conn.
func (s *BaseSuite) Next(conn *websocket.Conn) map[string]any {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	var evt map[string]any
	s.Require().NoError(conn.ReadJSON(&evt))
	if s.Config.DebugJSON {
		s.T().Logf("WS RECV: %v", evt)
	}
	return evt
}
