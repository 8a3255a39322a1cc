package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbocsi/radiofleet/fleet"
	"github.com/mbocsi/radiofleet/proto"
	"github.com/mbocsi/radiofleet/radio"
	"github.com/mbocsi/radiofleet/sensors"
	"github.com/mbocsi/radiofleet/services"
	"github.com/mbocsi/radiofleet/store"
)

func newTestServer(t *testing.T) (*Server, *radio.Channel, *store.MemoryLog) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	timing := fleet.DefaultTiming()
	timing.MessageLatency = 5 * time.Millisecond
	timing.PollWindow = 20 * time.Millisecond
	timing.MessagePause = time.Millisecond

	ch := radio.NewChannel(radio.DefaultMaxDatagram)
	reg := sensors.Default()
	log := store.NewMemoryLog()
	tr := ch.Join("commander")
	node := fleet.NewNode(tr, fleet.Options{Display: true, Timing: timing, Sensors: reg, Log: log})
	go tr.Start()
	go node.Run(ctx)
	t.Cleanup(func() { tr.Shutdown() })

	if role, err := node.Bootstrap(ctx); err != nil || role != fleet.RoleCommander {
		t.Fatalf("Expected commander, got %v (%v)", role, err)
	}
	return NewServer(services.NewServiceContainer(node, tr, reg, log), "test"), ch, log
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("Expected tool result content")
	}
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("Unexpected content %T", res.Content[0])
	return ""
}

func TestFleetStatusTool(t *testing.T) {
	s, _, _ := newTestServer(t)

	res, err := s.handleFleetStatus(context.Background(), call(nil))
	if err != nil || res.IsError {
		t.Fatalf("fleet_status failed: %v %+v", err, res)
	}
	var st struct {
		Role string `json:"role"`
		ID   int    `json:"id"`
	}
	if err := json.Unmarshal([]byte(text(t, res)), &st); err != nil {
		t.Fatal(err)
	}
	if st.Role != "commander" || st.ID != 0 {
		t.Errorf("Unexpected status %+v", st)
	}
}

func TestRequestJobTool(t *testing.T) {
	s, ch, _ := newTestServer(t)

	var heard []string
	done := make(chan struct{})
	listener := ch.Join("listener")
	listener.OnMessage(func(d string) {
		heard = append(heard, d)
		if len(heard) == 2 {
			close(done)
		}
	})
	go listener.Start()
	t.Cleanup(func() { listener.Shutdown() })
	if err := radio.AwaitRunning(context.Background(), listener); err != nil {
		t.Fatal(err)
	}

	res, err := s.handleRequestJob(context.Background(), call(map[string]any{
		"sensors": []any{
			map[string]any{"sensor": "Light", "mode": "periodic", "measurements": 3, "period_ms": 500},
		},
		"stream_back": false,
	}))
	if err != nil || res.IsError {
		t.Fatalf("request_job failed: %v %s", err, text(t, res))
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Job never reached the channel")
	}
	if heard[0] != "S,1,0" || heard[1] != "D,L,P,3,500" {
		t.Errorf("Unexpected job datagrams %v", heard)
	}

	res, _ = s.handleRequestJob(context.Background(), call(map[string]any{
		"sensors": []any{map[string]any{"sensor": "Humidity", "measurements": 1, "period_ms": 10}},
	}))
	if !res.IsError || !strings.Contains(text(t, res), "Sensor not found") {
		t.Errorf("Expected unknown sensor error, got %s", text(t, res))
	}
}

func TestListTargetsTool(t *testing.T) {
	s, ch, _ := newTestServer(t)
	responder := ch.Join("target-4")
	responder.OnMessage(func(d string) {
		if d == "G" {
			responder.Broadcast("G,4")
		}
	})
	go responder.Start()
	t.Cleanup(func() { responder.Shutdown() })
	if err := radio.AwaitRunning(context.Background(), responder); err != nil {
		t.Fatal(err)
	}

	res, err := s.handleListTargets(context.Background(), call(map[string]any{"refresh": true}))
	if err != nil || res.IsError {
		t.Fatalf("list_targets failed: %v", err)
	}
	var body struct {
		Targets []int `json:"targets"`
		Count   int   `json:"count"`
	}
	if err := json.Unmarshal([]byte(text(t, res)), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 1 || body.Targets[0] != 4 {
		t.Errorf("Expected [4], got %+v", body)
	}
}

func TestListRowsTool(t *testing.T) {
	s, _, log := newTestServer(t)
	ctx := context.Background()
	for _, dev := range []int{1, 2} {
		log.Append(ctx, fleet.LogEntry{
			Session:  "s",
			RelayRow: proto.RelayRow{DeviceID: dev, Row: proto.Row{Sensor: "Temp.", Reading: float64(dev)}},
		})
	}

	res, err := s.handleListRows(ctx, call(map[string]any{"device_id": 2.0, "sensor": "T"}))
	if err != nil || res.IsError {
		t.Fatalf("list_rows failed: %v", err)
	}
	var page services.RowPage
	if err := json.Unmarshal([]byte(text(t, res)), &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Rows) != 1 || page.Rows[0].DeviceID != 2 || page.Total != 2 {
		t.Errorf("Unexpected rows %+v", page)
	}
}

func TestListSensorsTool(t *testing.T) {
	s, _, _ := newTestServer(t)
	res, err := s.handleListSensors(context.Background(), call(nil))
	if err != nil || res.IsError {
		t.Fatalf("list_sensors failed: %v", err)
	}
	if !strings.Contains(text(t, res), `"radio_name":"T"`) {
		t.Error("Expected Temp. with radio name T")
	}
}
