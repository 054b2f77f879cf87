package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/medev213/darksmart/internal/domain"
	"github.com/medev213/darksmart/internal/homegraph"
	"github.com/medev213/darksmart/internal/repository"
	"github.com/medev213/darksmart/internal/transport"
)

// Intent is one of the four fulfillment intents. The set is closed:
// parseIntent rejects everything else before dispatch.
type Intent string

const (
	IntentSync       Intent = "action.devices.SYNC"
	IntentQuery      Intent = "action.devices.QUERY"
	IntentExecute    Intent = "action.devices.EXECUTE"
	IntentDisconnect Intent = "action.devices.DISCONNECT"
)

func parseIntent(raw string) (Intent, bool) {
	switch in := Intent(raw); in {
	case IntentSync, IntentQuery, IntentExecute, IntentDisconnect:
		return in, true
	default:
		return "", false
	}
}

// commandKind is the closed set of EXECUTE commands the gateway
// understands. Unknown command names become functionNotSupported per
// device pair, never a request-level failure.
type commandKind int

const (
	cmdOnOff commandKind = iota
	cmdBrightness
	cmdColor
	cmdThermostatSetpoint
	cmdThermostatMode
	cmdLockUnlock
)

var commandKinds = map[string]commandKind{
	"action.devices.commands.OnOff":                         cmdOnOff,
	"action.devices.commands.BrightnessAbsolute":            cmdBrightness,
	"action.devices.commands.ColorAbsolute":                 cmdColor,
	"action.devices.commands.ThermostatTemperatureSetpoint": cmdThermostatSetpoint,
	"action.devices.commands.ThermostatSetMode":             cmdThermostatMode,
	"action.devices.commands.LockUnlock":                    cmdLockUnlock,
}

// apply merges the command's parameters into status and returns the
// state fields to report back. false means the parameters were missing
// or of the wrong shape.
func (k commandKind) apply(status domain.DeviceStatus, params map[string]any) (map[string]any, bool) {
	switch k {
	case cmdOnOff:
		on, ok := params["on"].(bool)
		if !ok {
			return nil, false
		}
		status["on"] = on
		return map[string]any{"on": on}, true
	case cmdBrightness:
		v, ok := asNumber(params["brightness"])
		if !ok {
			return nil, false
		}
		status["brightness"] = v
		return map[string]any{"brightness": v}, true
	case cmdColor:
		color, ok := params["color"].(map[string]any)
		if !ok {
			return nil, false
		}
		if rgb, ok := asNumber(color["spectrumRGB"]); ok {
			applied := map[string]any{"spectrumRgb": rgb}
			status["color"] = applied
			return map[string]any{"color": applied}, true
		}
		if kelvin, ok := asNumber(color["temperature"]); ok {
			applied := map[string]any{"temperatureK": kelvin}
			status["color"] = applied
			return map[string]any{"color": applied}, true
		}
		return nil, false
	case cmdThermostatSetpoint:
		v, ok := asNumber(params["thermostatTemperatureSetpoint"])
		if !ok {
			return nil, false
		}
		status["thermostatTemperatureSetpoint"] = v
		return map[string]any{"thermostatTemperatureSetpoint": v}, true
	case cmdThermostatMode:
		mode, ok := params["thermostatMode"].(string)
		if !ok {
			return nil, false
		}
		status["thermostatMode"] = mode
		return map[string]any{"thermostatMode": mode}, true
	case cmdLockUnlock:
		lock, ok := params["lock"].(bool)
		if !ok {
			return nil, false
		}
		status["isLocked"] = lock
		return map[string]any{"isLocked": lock}, true
	default:
		return nil, false
	}
}

// asNumber normalizes JSON numbers, which decode as float64, alongside
// values callers may pass as ints in tests.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// FulfillmentRequest is the envelope posted by the assistant platform.
type FulfillmentRequest struct {
	RequestID string             `json:"requestId"`
	Inputs    []FulfillmentInput `json:"inputs"`
}

// FulfillmentInput carries one intent and its payload.
type FulfillmentInput struct {
	Intent  string        `json:"intent"`
	Payload IntentPayload `json:"payload"`
}

// IntentPayload is the union of the per-intent payload shapes; only the
// fields for the active intent are populated.
type IntentPayload struct {
	Devices  []DeviceRef      `json:"devices,omitempty"`
	Commands []CommandRequest `json:"commands,omitempty"`
}

// DeviceRef addresses devices in QUERY and EXECUTE payloads. Some
// clients send one entry per device id, others batch ids into a single
// entry; both shapes are accepted.
type DeviceRef struct {
	ID  string   `json:"id,omitempty"`
	IDs []string `json:"ids,omitempty"`
}

// CommandRequest is one EXECUTE command group: a device list crossed
// with an execution list.
type CommandRequest struct {
	Devices   []DeviceRef `json:"devices"`
	Execution []Execution `json:"execution"`
}

// Execution is a single command with its parameters.
type Execution struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params"`
}

// FulfillmentResponse is the envelope returned for every intent.
type FulfillmentResponse struct {
	RequestID string `json:"requestId"`
	Payload   any    `json:"payload"`
}

// SyncPayload lists every device the user owns.
type SyncPayload struct {
	AgentUserID string       `json:"agentUserId"`
	Devices     []SyncDevice `json:"devices"`
}

// SyncDevice is one device descriptor in a SYNC response.
type SyncDevice struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	Traits          []string       `json:"traits"`
	Name            SyncDeviceName `json:"name"`
	WillReportState bool           `json:"willReportState"`
	RoomHint        string         `json:"roomHint,omitempty"`
	DeviceInfo      SyncDeviceInfo `json:"deviceInfo"`
	Attributes      map[string]any `json:"attributes"`
}

// SyncDeviceName carries the display name plus alternates.
type SyncDeviceName struct {
	Name      string   `json:"name"`
	Nicknames []string `json:"nicknames"`
}

// SyncDeviceInfo identifies the hardware.
type SyncDeviceInfo struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	HwVersion    string `json:"hwVersion"`
	SwVersion    string `json:"swVersion"`
}

// QueryPayload maps device id to its reported state.
type QueryPayload struct {
	Devices map[string]map[string]any `json:"devices"`
}

// ExecutePayload groups command outcomes by status.
type ExecutePayload struct {
	Commands []ExecuteResult `json:"commands"`
}

// ExecuteResult reports one device/command pair.
type ExecuteResult struct {
	IDs         []string       `json:"ids"`
	Status      string         `json:"status"`
	States      map[string]any `json:"states,omitempty"`
	ErrorCode   string         `json:"errorCode,omitempty"`
	DebugString string         `json:"debugString,omitempty"`
}

const (
	statusSuccess = "SUCCESS"
	statusError   = "ERROR"

	errDeviceNotFound       = "deviceNotFound"
	errFunctionNotSupported = "functionNotSupported"
	errHardError            = "hardError"
)

// FulfillmentService answers the assistant platform's device intents on
// behalf of an authenticated user.
type FulfillmentService struct {
	devices   repository.DeviceRepository
	tokens    repository.TokenRepository
	reporter  homegraph.Reporter
	commander transport.Commander
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewFulfillmentService wires dependencies.
func NewFulfillmentService(devices repository.DeviceRepository, tokens repository.TokenRepository, reporter homegraph.Reporter, commander transport.Commander, logger *zap.Logger) *FulfillmentService {
	return &FulfillmentService{
		devices:   devices,
		tokens:    tokens,
		reporter:  reporter,
		commander: commander,
		logger:    logger,
		tracer:    otel.Tracer("github.com/medev213/darksmart/internal/service"),
	}
}

// Dispatch validates the envelope and routes the first input's intent.
func (s *FulfillmentService) Dispatch(ctx context.Context, userID string, req FulfillmentRequest) (*FulfillmentResponse, error) {
	ctx, span := s.fulfillSpan(ctx, "FulfillmentService.Dispatch")
	defer span.End()

	if req.RequestID == "" || len(req.Inputs) == 0 {
		return nil, newOAuthError("invalid_request", "Missing requestId or inputs.", http.StatusBadRequest)
	}
	input := req.Inputs[0]
	intent, ok := parseIntent(input.Intent)
	if !ok {
		return nil, newOAuthError("invalid_intent", fmt.Sprintf("Unsupported intent %q.", input.Intent), http.StatusBadRequest)
	}

	var (
		payload any
		err     error
	)
	switch intent {
	case IntentSync:
		payload, err = s.handleSync(ctx, userID)
	case IntentQuery:
		payload, err = s.handleQuery(ctx, userID, input.Payload)
	case IntentExecute:
		payload, err = s.handleExecute(ctx, userID, input.Payload)
	case IntentDisconnect:
		payload, err = s.handleDisconnect(ctx, userID)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &FulfillmentResponse{RequestID: req.RequestID, Payload: payload}, nil
}

func (s *FulfillmentService) handleSync(ctx context.Context, userID string) (*SyncPayload, error) {
	ctx, span := s.fulfillSpan(ctx, "FulfillmentService.handleSync")
	defer span.End()

	devices, err := s.devices.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	descriptors := make([]SyncDevice, 0, len(devices))
	for _, d := range devices {
		traits := d.Traits
		if len(traits) == 0 {
			traits = traitsForCategory(d.Type)
		}
		var nicknames []string
		if d.Location != "" {
			nicknames = []string{d.Location}
		}
		descriptors = append(descriptors, SyncDevice{
			ID:     d.DeviceID,
			Type:   googleDeviceType(d.Type),
			Traits: traits,
			Name: SyncDeviceName{
				Name:      d.Name,
				Nicknames: nicknames,
			},
			WillReportState: true,
			RoomHint:        d.Location,
			DeviceInfo: SyncDeviceInfo{
				Manufacturer: manufacturerName,
				Model:        d.Type,
				HwVersion:    hardwareVersion,
				SwVersion:    softwareVersion,
			},
			Attributes: map[string]any{"queryOnlyOnOff": false},
		})
	}

	s.audit("fulfillment.sync", "user_id", userID, "devices", len(descriptors))
	return &SyncPayload{AgentUserID: userID, Devices: descriptors}, nil
}

func (s *FulfillmentService) handleQuery(ctx context.Context, userID string, payload IntentPayload) (*QueryPayload, error) {
	ctx, span := s.fulfillSpan(ctx, "FulfillmentService.handleQuery")
	defer span.End()

	states := make(map[string]map[string]any)
	for _, id := range collectIDs(payload.Devices) {
		device, err := s.devices.GetByIDAndUser(ctx, id, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				states[id] = map[string]any{"online": false, "errorCode": errDeviceNotFound}
				continue
			}
			return nil, fmt.Errorf("load device %s: %w", id, err)
		}

		state := map[string]any{
			"online": true,
			"on":     device.Status.On(),
		}
		for k, v := range device.Status {
			state[k] = v
		}
		states[id] = state
	}

	s.audit("fulfillment.query", "user_id", userID, "devices", len(states))
	return &QueryPayload{Devices: states}, nil
}

func (s *FulfillmentService) handleExecute(ctx context.Context, userID string, payload IntentPayload) (*ExecutePayload, error) {
	ctx, span := s.fulfillSpan(ctx, "FulfillmentService.handleExecute")
	defer span.End()

	var results []ExecuteResult
	for _, command := range payload.Commands {
		for _, id := range collectIDs(command.Devices) {
			for _, exec := range command.Execution {
				results = append(results, s.executeOne(ctx, userID, id, exec))
			}
		}
	}

	s.audit("fulfillment.execute", "user_id", userID, "commands", len(results))
	return &ExecutePayload{Commands: results}, nil
}

// executeOne applies one command to one device. Failures stay scoped to
// the pair so the rest of the batch is unaffected.
func (s *FulfillmentService) executeOne(ctx context.Context, userID, deviceID string, exec Execution) ExecuteResult {
	kind, ok := commandKinds[exec.Command]
	if !ok {
		return ExecuteResult{IDs: []string{deviceID}, Status: statusError, ErrorCode: errFunctionNotSupported}
	}

	device, err := s.devices.GetByIDAndUser(ctx, deviceID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ExecuteResult{IDs: []string{deviceID}, Status: statusError, ErrorCode: errDeviceNotFound}
		}
		s.log().Error("load device for execute", zap.String("device_id", deviceID), zap.Error(err))
		return ExecuteResult{IDs: []string{deviceID}, Status: statusError, ErrorCode: errHardError, DebugString: "device lookup failed"}
	}

	status := device.Status.Clone()
	applied, ok := kind.apply(status, exec.Params)
	if !ok {
		return ExecuteResult{IDs: []string{deviceID}, Status: statusError, ErrorCode: errFunctionNotSupported}
	}

	if err := s.devices.UpdateStatus(ctx, deviceID, userID, status); err != nil {
		s.log().Error("persist device status", zap.String("device_id", deviceID), zap.Error(err))
		return ExecuteResult{IDs: []string{deviceID}, Status: statusError, ErrorCode: errHardError, DebugString: "state persistence failed"}
	}

	// Side channels are best-effort; the row is already the source of
	// truth for what SYNC and QUERY will report.
	if err := s.commander.SendState(ctx, deviceID, applied); err != nil {
		s.log().Warn("device command delivery failed", zap.String("device_id", deviceID), zap.Error(err))
	}
	if err := s.reporter.ReportState(ctx, userID, deviceID, applied); err != nil {
		s.log().Warn("homegraph report failed", zap.String("device_id", deviceID), zap.Error(err))
	}

	states := map[string]any{"online": true}
	for k, v := range status {
		states[k] = v
	}
	return ExecuteResult{IDs: []string{deviceID}, Status: statusSuccess, States: states}
}

// handleDisconnect revokes the user's stored tokens and detaches the
// agent user. Disconnecting twice succeeds.
func (s *FulfillmentService) handleDisconnect(ctx context.Context, userID string) (map[string]any, error) {
	ctx, span := s.fulfillSpan(ctx, "FulfillmentService.handleDisconnect")
	defer span.End()

	if err := s.tokens.ClearByUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("clear user tokens: %w", err)
	}
	if err := s.reporter.DeleteAgentUser(ctx, userID); err != nil {
		s.log().Warn("homegraph delete agent user failed", zap.String("user_id", userID), zap.Error(err))
	}

	s.audit("fulfillment.disconnect", "user_id", userID)
	return map[string]any{}, nil
}

func collectIDs(refs []DeviceRef) []string {
	var ids []string
	for _, ref := range refs {
		if ref.ID != "" {
			ids = append(ids, ref.ID)
		}
		ids = append(ids, ref.IDs...)
	}
	return ids
}

func (s *FulfillmentService) fulfillSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *FulfillmentService) audit(event string, attrs ...any) {
	logger := s.log()
	fields := make([]zap.Field, 0, len(attrs)/2+1)
	fields = append(fields, zap.String("event", event))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *FulfillmentService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
