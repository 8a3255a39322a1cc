package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbocsi/radiofleet/services"
)

// registerFleetTools registers MCP tools for the fleet and its jobs
func (s *Server) registerFleetTools() {
	statusTool := mcp.NewTool("fleet_status",
		mcp.WithDescription("Get this node's role, id, job progress and radio counters"),
	)
	s.mcpServer.AddTool(statusTool, s.handleFleetStatus)

	targetsTool := mcp.NewTool("list_targets",
		mcp.WithDescription("List the target ids the commander knows about"),
		mcp.WithBoolean("refresh",
			mcp.Description("Poll the radio channel before answering instead of returning the cached registry"),
		),
	)
	s.mcpServer.AddTool(targetsTool, s.handleListTargets)

	jobTool := mcp.NewTool("request_job",
		mcp.WithDescription("Broadcast a sensor recording job to every target"),
		mcp.WithArray("sensors",
			mcp.Required(),
			mcp.Description("One entry per sensor, in order"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"sensor":       map[string]any{"type": "string", "description": "Sensor name, radio name or alias"},
					"mode":         map[string]any{"type": "string", "enum": []string{"periodic", "event"}},
					"measurements": map[string]any{"type": "integer", "description": "Number of readings to log"},
					"period_ms":    map[string]any{"type": "integer", "description": "Sampling period for periodic mode"},
					"inequality":   map[string]any{"type": "string", "enum": []string{"<", ">", "=", "<=", ">=", "!="}},
					"threshold":    map[string]any{"type": "number", "description": "Event threshold"},
				},
				"required": []string{"sensor", "measurements"},
			}),
		),
		mcp.WithBoolean("stream_back",
			mcp.Description("Have targets relay every row back to the commander"),
		),
	)
	s.mcpServer.AddTool(jobTool, s.handleRequestJob)
}

// registerDataTools registers MCP tools for sensors and logged rows
func (s *Server) registerDataTools() {
	sensorsTool := mcp.NewTool("list_sensors",
		mcp.WithDescription("List the sensors a job can name"),
	)
	s.mcpServer.AddTool(sensorsTool, s.handleListSensors)

	rowsTool := mcp.NewTool("list_rows",
		mcp.WithDescription("List rows relayed by targets, oldest first"),
		mcp.WithString("session",
			mcp.Description("Only rows from this commander session"),
		),
		mcp.WithNumber("device_id",
			mcp.Description("Only rows from this target id"),
		),
		mcp.WithString("sensor",
			mcp.Description("Only rows from this sensor"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Most recent N rows"),
		),
	)
	s.mcpServer.AddTool(rowsTool, s.handleListRows)
}

func (s *Server) handleFleetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.services.Target.Status())
}

func (s *Server) handleListTargets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		ids []int
		err error
	)
	if request.GetBool("refresh", false) {
		ids, err = s.services.Target.RefreshTargets(ctx)
	} else {
		ids, err = s.services.Target.ListTargets()
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error listing targets: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"targets": ids,
		"count":   len(ids),
	})
}

func (s *Server) handleRequestJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(request.GetRawArguments())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read arguments: %v", err)), nil
	}
	var req services.JobRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid job: %v", err)), nil
	}

	if err := s.services.Job.RequestJob(ctx, req); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to request job: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Job with %d sensors sent to all targets (stream_back=%t)", len(req.Sensors), req.StreamBack)), nil
}

func (s *Server) handleListSensors(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.services.Sensor.ListSensors()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error listing sensors: %v", err)), nil
	}
	return jsonResult(list)
}

func (s *Server) handleListRows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := services.RowQuery{
		Session: request.GetString("session", ""),
		Sensor:  request.GetString("sensor", ""),
		Limit:   int(request.GetFloat("limit", 50)),
	}
	if id := request.GetFloat("device_id", -1); id >= 0 {
		device := int(id)
		q.DeviceID = &device
	}
	if q.Sensor != "" {
		if info, err := s.services.Sensor.GetSensor(q.Sensor); err == nil {
			q.Sensor = info.Name
		}
	}

	page, err := s.services.Row.ListRows(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error listing rows: %v", err)), nil
	}
	return jsonResult(page)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	resultBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(resultBytes)), nil
}
