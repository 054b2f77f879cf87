package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medev213/darksmart/internal/domain"
)

const fulfillUserID = "user-1"

func newFulfillmentFixture(devices ...domain.Device) (*FulfillmentService, *fakeDeviceRepo, *fakeTokenRepo, *fakeReporter, *fakeCommander) {
	deviceRepo := newFakeDeviceRepo(devices...)
	tokenRepo := newFakeTokenRepo()
	reporter := &fakeReporter{}
	commander := &fakeCommander{}
	svc := NewFulfillmentService(deviceRepo, tokenRepo, reporter, commander, zap.NewNop())
	return svc, deviceRepo, tokenRepo, reporter, commander
}

func testDevice(deviceID, name, category string, status domain.DeviceStatus) domain.Device {
	return domain.Device{
		DeviceID: deviceID,
		UserID:   fulfillUserID,
		Name:     name,
		Type:     category,
		Location: "Living Room",
		Status:   status,
	}
}

func dispatch(t *testing.T, svc *FulfillmentService, input FulfillmentInput) *FulfillmentResponse {
	t.Helper()
	resp, err := svc.Dispatch(context.Background(), fulfillUserID, FulfillmentRequest{
		RequestID: "req-1",
		Inputs:    []FulfillmentInput{input},
	})
	require.NoError(t, err)
	require.Equal(t, "req-1", resp.RequestID)
	return resp
}

func TestDispatchValidatesEnvelope(t *testing.T) {
	svc, _, _, _, _ := newFulfillmentFixture()

	_, err := svc.Dispatch(context.Background(), fulfillUserID, FulfillmentRequest{})
	require.Equal(t, "invalid_request", oauthErrCode(t, err))

	_, err = svc.Dispatch(context.Background(), fulfillUserID, FulfillmentRequest{
		RequestID: "req-1",
		Inputs:    []FulfillmentInput{{Intent: "action.devices.REBOOT"}},
	})
	require.Equal(t, "invalid_intent", oauthErrCode(t, err))
}

func TestSyncDescribesEveryDevice(t *testing.T) {
	svc, _, _, _, _ := newFulfillmentFixture(
		testDevice("plug-1", "Coffee Plug", domain.CategoryOutlet, domain.DeviceStatus{"on": true}),
		testDevice("sensor-1", "Hallway Sensor", domain.CategorySensor, nil),
		testDevice("mystery-1", "Mystery Box", "Quantum Gadget", nil),
	)

	resp := dispatch(t, svc, FulfillmentInput{Intent: string(IntentSync)})
	payload, ok := resp.Payload.(*SyncPayload)
	require.True(t, ok)
	require.Equal(t, fulfillUserID, payload.AgentUserID)
	require.Len(t, payload.Devices, 3)

	byID := make(map[string]SyncDevice)
	for _, d := range payload.Devices {
		require.NotEmpty(t, d.Traits)
		require.True(t, d.WillReportState)
		require.Equal(t, "DarkSmart", d.DeviceInfo.Manufacturer)
		byID[d.ID] = d
	}

	require.Equal(t, "action.devices.types.OUTLET", byID["plug-1"].Type)
	require.Contains(t, byID["plug-1"].Traits, "action.devices.traits.OnOff")
	require.Equal(t, []string{"Living Room"}, byID["plug-1"].Name.Nicknames)

	require.Equal(t, "action.devices.types.SENSOR", byID["sensor-1"].Type)
	require.Contains(t, byID["sensor-1"].Traits, "action.devices.traits.TemperatureSetting")

	// Unknown categories degrade to outlet with on/off, never an error.
	require.Equal(t, "action.devices.types.OUTLET", byID["mystery-1"].Type)
	require.Contains(t, byID["mystery-1"].Traits, "action.devices.traits.OnOff")
}

func TestQueryIsolatesMissingDevices(t *testing.T) {
	svc, _, _, _, _ := newFulfillmentFixture(
		testDevice("plug-1", "Coffee Plug", domain.CategoryOutlet, domain.DeviceStatus{"on": true, "brightness": 80}),
	)

	resp := dispatch(t, svc, FulfillmentInput{
		Intent: string(IntentQuery),
		Payload: IntentPayload{
			Devices: []DeviceRef{{ID: "plug-1"}, {ID: "ghost-9"}},
		},
	})
	payload, ok := resp.Payload.(*QueryPayload)
	require.True(t, ok)
	require.Len(t, payload.Devices, 2)

	require.Equal(t, true, payload.Devices["plug-1"]["online"])
	require.Equal(t, true, payload.Devices["plug-1"]["on"])
	require.Equal(t, 80, payload.Devices["plug-1"]["brightness"])

	require.Equal(t, false, payload.Devices["ghost-9"]["online"])
	require.Equal(t, "deviceNotFound", payload.Devices["ghost-9"]["errorCode"])
}

func TestQueryAcceptsBatchedIDList(t *testing.T) {
	svc, _, _, _, _ := newFulfillmentFixture(
		testDevice("plug-1", "Coffee Plug", domain.CategoryOutlet, nil),
		testDevice("plug-2", "Lamp Plug", domain.CategoryOutlet, nil),
	)

	resp := dispatch(t, svc, FulfillmentInput{
		Intent: string(IntentQuery),
		Payload: IntentPayload{
			Devices: []DeviceRef{{IDs: []string{"plug-1", "plug-2"}}},
		},
	})
	payload := resp.Payload.(*QueryPayload)
	require.Len(t, payload.Devices, 2)
	require.Equal(t, false, payload.Devices["plug-1"]["on"])
}

func TestExecuteAppliesCommandAndReports(t *testing.T) {
	svc, devices, _, reporter, commander := newFulfillmentFixture(
		testDevice("plug-1", "Coffee Plug", domain.CategoryOutlet, domain.DeviceStatus{"on": false, "brightness": 40}),
	)

	resp := dispatch(t, svc, FulfillmentInput{
		Intent: string(IntentExecute),
		Payload: IntentPayload{
			Commands: []CommandRequest{{
				Devices: []DeviceRef{{ID: "plug-1"}},
				Execution: []Execution{{
					Command: "action.devices.commands.OnOff",
					Params:  map[string]any{"on": true},
				}},
			}},
		},
	})
	payload := resp.Payload.(*ExecutePayload)
	require.Len(t, payload.Commands, 1)
	require.Equal(t, "SUCCESS", payload.Commands[0].Status)
	require.Equal(t, []string{"plug-1"}, payload.Commands[0].IDs)
	require.Equal(t, true, payload.Commands[0].States["on"])
	require.Equal(t, true, payload.Commands[0].States["online"])
	// The response carries the full merged state, not only the field
	// the command touched.
	require.Equal(t, 40, payload.Commands[0].States["brightness"])

	stored, err := devices.GetByIDAndUser(context.Background(), "plug-1", fulfillUserID)
	require.NoError(t, err)
	require.True(t, stored.Status.On())

	require.Len(t, commander.sent, 1)
	require.Equal(t, "plug-1", commander.sent[0].DeviceID)
	require.Len(t, reporter.reports, 1)
	require.Equal(t, fulfillUserID, reporter.reports[0].UserID)
}

func TestExecutePartialFailureLeavesBatchIntact(t *testing.T) {
	svc, devices, _, _, _ := newFulfillmentFixture(
		testDevice("plug-1", "Coffee Plug", domain.CategoryOutlet, domain.DeviceStatus{"on": false}),
		testDevice("plug-2", "Lamp Plug", domain.CategoryOutlet, domain.DeviceStatus{"on": false}),
	)
	devices.failIDs["plug-2"] = true

	resp := dispatch(t, svc, FulfillmentInput{
		Intent: string(IntentExecute),
		Payload: IntentPayload{
			Commands: []CommandRequest{{
				Devices: []DeviceRef{{ID: "plug-1"}, {ID: "plug-2"}, {ID: "ghost-9"}},
				Execution: []Execution{{
					Command: "action.devices.commands.OnOff",
					Params:  map[string]any{"on": true},
				}},
			}},
		},
	})
	payload := resp.Payload.(*ExecutePayload)
	require.Len(t, payload.Commands, 3)

	outcomes := make(map[string]ExecuteResult)
	for _, r := range payload.Commands {
		outcomes[r.IDs[0]] = r
	}
	require.Equal(t, "SUCCESS", outcomes["plug-1"].Status)
	require.Equal(t, "ERROR", outcomes["plug-2"].Status)
	require.Equal(t, "hardError", outcomes["plug-2"].ErrorCode)
	require.Equal(t, "ERROR", outcomes["ghost-9"].Status)
	require.Equal(t, "deviceNotFound", outcomes["ghost-9"].ErrorCode)
}

func TestExecuteRejectsUnknownCommandPerDevice(t *testing.T) {
	svc, _, _, _, _ := newFulfillmentFixture(
		testDevice("plug-1", "Coffee Plug", domain.CategoryOutlet, nil),
	)

	resp := dispatch(t, svc, FulfillmentInput{
		Intent: string(IntentExecute),
		Payload: IntentPayload{
			Commands: []CommandRequest{{
				Devices: []DeviceRef{{ID: "plug-1"}},
				Execution: []Execution{{
					Command: "action.devices.commands.StartStop",
					Params:  map[string]any{"start": true},
				}},
			}},
		},
	})
	payload := resp.Payload.(*ExecutePayload)
	require.Len(t, payload.Commands, 1)
	require.Equal(t, "ERROR", payload.Commands[0].Status)
	require.Equal(t, "functionNotSupported", payload.Commands[0].ErrorCode)
}

func TestExecuteThermostatAndColorCommands(t *testing.T) {
	svc, devices, _, _, _ := newFulfillmentFixture(
		testDevice("sensor-1", "Hallway Sensor", domain.CategorySensor, nil),
		testDevice("bulb-1", "Desk Bulb", domain.CategoryOutlet, nil),
	)

	resp := dispatch(t, svc, FulfillmentInput{
		Intent: string(IntentExecute),
		Payload: IntentPayload{
			Commands: []CommandRequest{
				{
					Devices: []DeviceRef{{ID: "sensor-1"}},
					Execution: []Execution{{
						Command: "action.devices.commands.ThermostatTemperatureSetpoint",
						Params:  map[string]any{"thermostatTemperatureSetpoint": 21.5},
					}},
				},
				{
					Devices: []DeviceRef{{ID: "bulb-1"}},
					Execution: []Execution{{
						Command: "action.devices.commands.ColorAbsolute",
						Params:  map[string]any{"color": map[string]any{"spectrumRGB": float64(16711680)}},
					}},
				},
			},
		},
	})
	payload := resp.Payload.(*ExecutePayload)
	require.Len(t, payload.Commands, 2)
	for _, r := range payload.Commands {
		require.Equal(t, "SUCCESS", r.Status)
	}

	sensor, err := devices.GetByIDAndUser(context.Background(), "sensor-1", fulfillUserID)
	require.NoError(t, err)
	require.Equal(t, 21.5, sensor.Status["thermostatTemperatureSetpoint"])

	bulb, err := devices.GetByIDAndUser(context.Background(), "bulb-1", fulfillUserID)
	require.NoError(t, err)
	color, ok := bulb.Status["color"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, float64(16711680), color["spectrumRgb"])
}

func TestDisconnectClearsTokensAndAgentUser(t *testing.T) {
	svc, _, tokens, reporter, _ := newFulfillmentFixture()
	require.NoError(t, tokens.Upsert(context.Background(), domain.OAuthToken{
		ID:           1,
		UserID:       fulfillUserID,
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	_, err := tokens.GetByRefreshToken(context.Background(), "rt")
	require.NoError(t, err)

	resp := dispatch(t, svc, FulfillmentInput{Intent: string(IntentDisconnect)})
	payload, ok := resp.Payload.(map[string]any)
	require.True(t, ok)
	require.Empty(t, payload)

	_, err = tokens.GetByRefreshToken(context.Background(), "rt")
	require.Error(t, err)
	require.Equal(t, []string{fulfillUserID}, reporter.deletedUsers)

	// Disconnecting again still succeeds.
	dispatch(t, svc, FulfillmentInput{Intent: string(IntentDisconnect)})
}
