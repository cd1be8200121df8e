package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/robopilot/robopilot/internal/analyzer"
	"github.com/robopilot/robopilot/internal/builder"
	"github.com/robopilot/robopilot/internal/config"
	"github.com/robopilot/robopilot/internal/histdata"
	"github.com/robopilot/robopilot/internal/logger"
	"github.com/robopilot/robopilot/internal/market"
	"github.com/robopilot/robopilot/internal/secret"
	"github.com/robopilot/robopilot/internal/storage"
)

func newTestServer(t *testing.T, queueSize int) (*httptest.Server, *storage.Repository) {
	t.Helper()
	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	repo := storage.NewRepository(db)
	log := logger.New("error")
	cipher, err := secret.NewCipher("test-key")
	if err != nil {
		t.Fatal(err)
	}
	// Workers are never started, so queued builds stay PENDING.
	bld := builder.New(repo, nil, cipher, 1, queueSize, log)

	s := &Server{
		repo:    repo,
		builder: bld,
		cipher:  cipher,
		config:  &config.Config{},
		logger:  log,
	}
	ts := httptest.NewServer(s.routes())
	t.Cleanup(ts.Close)
	return ts, repo
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

type createResponse struct {
	Robot storage.Robot      `json:"robot"`
	Build *storage.BuildTask `json:"build"`
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestCreateRobot(t *testing.T) {
	ts, repo := newTestServer(t, 4)

	resp := postJSON(t, ts.URL+"/api/robots", `{
		"name": "eur-trend",
		"symbol": "EURUSD",
		"timeframe": "H1",
		"rules": {"rsi": {"period": 14, "buy": 30, "sell": 70}},
		"account_login": "12345",
		"account_password": "hunter2",
		"account_server": "Demo-Server"
	}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decode[createResponse](t, resp)
	created := body.Robot
	if created.ID == 0 {
		t.Fatal("no id assigned")
	}
	// Defaults fill in what the request omitted.
	if created.LookbackMonths != 6 || created.ConfidenceThreshold != 0.6 || created.SessionPreference != "ANY" {
		t.Errorf("defaults not applied: %+v", created)
	}
	if created.Lot != 0.01 || created.StopLoss != 30 || created.TakeProfit != 60 {
		t.Errorf("risk defaults not applied: lot=%v sl=%d tp=%d", created.Lot, created.StopLoss, created.TakeProfit)
	}
	// Creation queues the first build.
	if body.Build == nil || body.Build.Status != storage.BuildStatusPending {
		t.Errorf("initial build not queued: %+v", body.Build)
	}

	stored, err := repo.GetRobot(created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.EncryptedPassword == "" || strings.Contains(stored.EncryptedPassword, "hunter2") {
		t.Error("password not stored encrypted")
	}
}

func TestCreateRobotValidation(t *testing.T) {
	ts, _ := newTestServer(t, 4)

	cases := []struct {
		name string
		body string
	}{
		{"missing name", `{"symbol": "EURUSD", "timeframe": "H1"}`},
		{"bad timeframe", `{"name": "x", "symbol": "EURUSD", "timeframe": "W1"}`},
		{"bad rules", `{"name": "x", "symbol": "EURUSD", "timeframe": "H1", "rules": "not an object"}`},
		{"bad json", `{`},
		{"negative risk", `{"name": "x", "symbol": "EURUSD", "timeframe": "H1", "lot": -1}`},
	}
	for _, tc := range cases {
		resp := postJSON(t, ts.URL+"/api/robots", tc.body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, resp.StatusCode)
		}
	}
}

func TestGetRobotNotFound(t *testing.T) {
	ts, _ := newTestServer(t, 4)
	resp, err := http.Get(ts.URL + "/api/robots/42")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestRebuildQueuesTask(t *testing.T) {
	ts, repo := newTestServer(t, 4)
	robot := &storage.Robot{Name: "r", Symbol: "EURUSD", Timeframe: "H1"}
	if err := repo.SaveRobot(robot); err != nil {
		t.Fatal(err)
	}

	resp := postJSON(t, fmt.Sprintf("%s/api/robots/%d/rebuild", ts.URL, robot.ID), "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	task := decode[storage.BuildTask](t, resp)
	if task.Status != storage.BuildStatusPending {
		t.Errorf("task status = %s", task.Status)
	}

	got, err := http.Get(ts.URL + "/api/builds/" + task.ID)
	if err != nil {
		t.Fatal(err)
	}
	fetched := decode[storage.BuildTask](t, got)
	if fetched.ID != task.ID {
		t.Errorf("fetched %s, want %s", fetched.ID, task.ID)
	}
}

func TestRebuildQueueFull(t *testing.T) {
	ts, repo := newTestServer(t, 1)
	robot := &storage.Robot{Name: "r", Symbol: "EURUSD", Timeframe: "H1"}
	if err := repo.SaveRobot(robot); err != nil {
		t.Fatal(err)
	}
	url := fmt.Sprintf("%s/api/robots/%d/rebuild", ts.URL, robot.ID)

	first := postJSON(t, url, "")
	first.Body.Close()
	if first.StatusCode != http.StatusAccepted {
		t.Fatalf("first status = %d", first.StatusCode)
	}
	second := postJSON(t, url, "")
	second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.StatusCode)
	}
}

func TestRollback(t *testing.T) {
	ts, repo := newTestServer(t, 4)
	robot := &storage.Robot{Name: "r", Symbol: "EURUSD", Timeframe: "H1", RulesJSON: `{"ma":{"period":50}}`}
	if err := repo.SaveRobot(robot); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveVersion(&storage.StrategyVersion{
		RobotID: robot.ID, Version: 1, RulesJSON: `{"ma":{"period":20}}`, WinRate: 61.5,
		Lot: 0.02, StopLoss: 25, TakeProfit: 50,
	}); err != nil {
		t.Fatal(err)
	}

	url := fmt.Sprintf("%s/api/robots/%d/rollback", ts.URL, robot.ID)
	resp := postJSON(t, url, `{"version": 1}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	rolled := decode[storage.Robot](t, resp)
	if rolled.RulesJSON != `{"ma":{"period":20}}` || rolled.WinRate != 61.5 {
		t.Errorf("rollback did not restore snapshot: %+v", rolled)
	}
	if rolled.Lot != 0.02 || rolled.StopLoss != 25 || rolled.TakeProfit != 50 {
		t.Errorf("rollback did not restore risk settings: %+v", rolled)
	}
	if rolled.Status != storage.RobotStatusReady {
		t.Errorf("status = %s", rolled.Status)
	}

	missing := postJSON(t, url, `{"version": 9}`)
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing version status = %d", missing.StatusCode)
	}
}

type stubFetcher struct {
	candles []market.Candle
	report  *histdata.Report
	err     error
}

func (f *stubFetcher) Fetch(ctx context.Context, req histdata.Request) ([]market.Candle, *histdata.Report, error) {
	return f.candles, f.report, f.err
}

func TestStartTradePersistsFetchReport(t *testing.T) {
	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	repo := storage.NewRepository(db)
	log := logger.New("error")
	cipher, err := secret.NewCipher("test-key")
	if err != nil {
		t.Fatal(err)
	}
	fetch := &stubFetcher{
		report: &histdata.Report{Status: histdata.StatusSuccess, Source: histdata.SourceCache, CandleCount: 20},
	}
	s := &Server{
		repo:     repo,
		analyzer: analyzer.New(fetch, log),
		cipher:   cipher,
		config:   &config.Config{},
		logger:   log,
	}
	ts := httptest.NewServer(s.routes())
	t.Cleanup(ts.Close)

	robot := &storage.Robot{Name: "r", Symbol: "EURUSD", Timeframe: "H1", Active: true, LookbackMonths: 1}
	if err := repo.SaveRobot(robot); err != nil {
		t.Fatal(err)
	}

	resp := postJSON(t, fmt.Sprintf("%s/api/robots/%d/start-trade", ts.URL, robot.ID), "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	report, err := repo.GetLatestFetchReport(robot.ID)
	if err != nil {
		t.Fatalf("no fetch report persisted: %v", err)
	}
	if report.DataSource != string(histdata.SourceCache) || report.CandleCount != 20 {
		t.Errorf("report = %+v, want CACHE with 20 candles", report)
	}
}

func TestListRobotsOrdersByWinRate(t *testing.T) {
	ts, repo := newTestServer(t, 4)
	for _, r := range []*storage.Robot{
		{Name: "low", Symbol: "EURUSD", Timeframe: "H1", WinRate: 40},
		{Name: "high", Symbol: "GBPUSD", Timeframe: "H1", WinRate: 72},
		{Name: "mid", Symbol: "XAUUSD", Timeframe: "H1", WinRate: 55},
	} {
		if err := repo.SaveRobot(r); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := http.Get(ts.URL + "/api/robots")
	if err != nil {
		t.Fatal(err)
	}
	robots := decode[[]storage.Robot](t, resp)
	if len(robots) != 3 {
		t.Fatalf("robots = %d, want 3", len(robots))
	}
	want := []string{"high", "mid", "low"}
	for i, name := range want {
		if robots[i].Name != name {
			t.Errorf("robots[%d] = %s, want %s", i, robots[i].Name, name)
		}
	}
}

func TestEvents(t *testing.T) {
	ts, repo := newTestServer(t, 4)
	robot := &storage.Robot{Name: "r", Symbol: "EURUSD", Timeframe: "H1"}
	if err := repo.SaveRobot(robot); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := repo.LogEvent(robot.ID, storage.EventInfo, "event %d", i); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := http.Get(fmt.Sprintf("%s/api/robots/%d/events?limit=2", ts.URL, robot.ID))
	if err != nil {
		t.Fatal(err)
	}
	events := decode[[]storage.RobotEvent](t, resp)
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
}
