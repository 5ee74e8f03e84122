package protocol

import (
	"errors"
	"testing"

	"github.com/Jackzmc/flashforge-api-server/internal/models"
)

func mustDecode(t *testing.T, raw string) *Response {
	t.Helper()
	resp, _, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode(%q) error = %v", raw, err)
	}
	return resp
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus(mustDecode(t, statusReply))
	if err != nil {
		t.Fatalf("ParseStatus() error = %v", err)
	}
	if status.State != models.StatePrinting {
		t.Errorf("State = %q, want %q", status.State, models.StatePrinting)
	}
	if status.MachineStatus != "BUILDING_FROM_SD" {
		t.Errorf("MachineStatus = %q", status.MachineStatus)
	}
	if !status.LED {
		t.Error("LED = false, want true")
	}
	if status.CurrentFile == nil || *status.CurrentFile != "benchy.gx" {
		t.Errorf("CurrentFile = %v, want benchy.gx", status.CurrentFile)
	}
	if status.EndStops == nil || status.EndStops.XMax != 1 || status.EndStops.YMax != 0 {
		t.Errorf("EndStops = %+v", status.EndStops)
	}
}

func TestParseStatusToleratesUnknownFields(t *testing.T) {
	raw := "CMD M119 Received.\r\n" +
		"MachineStatus: READY\r\n" +
		"FutureField: something new\r\n" +
		"CurrentFile: \r\n" +
		"ok\r\n"
	status, err := ParseStatus(mustDecode(t, raw))
	if err != nil {
		t.Fatalf("ParseStatus() error = %v", err)
	}
	if status.State != models.StateIdle {
		t.Errorf("State = %q, want idle", status.State)
	}
	if status.CurrentFile != nil {
		t.Errorf("CurrentFile = %q, want nil", *status.CurrentFile)
	}
	if status.EndStops != nil {
		t.Errorf("EndStops = %+v, want nil", status.EndStops)
	}
}

func TestParseStatusMissingMachineStatus(t *testing.T) {
	_, err := ParseStatus(mustDecode(t, "CMD M119 Received.\r\nLED: 1\r\nok\r\n"))
	var parseErr *ParseError
	if !errors.As(err, &parseErr) || parseErr.Field != "MachineStatus" {
		t.Fatalf("ParseStatus() error = %v, want ParseError on MachineStatus", err)
	}
}

func TestParseWrongCode(t *testing.T) {
	_, err := ParseTemperatures(mustDecode(t, statusReply))
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("ParseTemperatures() error = %v, want *ParseError", err)
	}
}

func TestNormalizeState(t *testing.T) {
	tests := []struct {
		status, move string
		want         models.MachineState
	}{
		{"READY", "READY", models.StateIdle},
		{"BUILDING_FROM_SD", "MOVING", models.StatePrinting},
		{"BUILDING_FROM_SD", "PAUSED", models.StatePaused},
		{"BUILDING_COMPLETED", "READY", models.StateCompleted},
		{"PAUSED", "", models.StatePaused},
		{"BUSY", "", models.StateBusy},
		{"SD_ERROR", "", models.StateError},
		{"SOMETHING_ELSE", "", models.StateUnknown},
	}
	for _, tt := range tests {
		if got := NormalizeState(tt.status, tt.move); got != tt.want {
			t.Errorf("NormalizeState(%q, %q) = %q, want %q", tt.status, tt.move, got, tt.want)
		}
	}
}

func TestParseTemperatures(t *testing.T) {
	temps, err := ParseTemperatures(mustDecode(t, "CMD M105 Received.\r\nT0:210 /215 T1: 25/0 B:60/60\r\nok\r\n"))
	if err != nil {
		t.Fatalf("ParseTemperatures() error = %v", err)
	}
	t0, ok := temps.Extruder(0)
	if !ok || t0.Current != 210 || t0.Target != 215 {
		t.Errorf("T0 = %+v, %v", t0, ok)
	}
	t1, ok := temps.Extruder(1)
	if !ok || t1.Current != 25 || t1.Target != 0 {
		t.Errorf("T1 = %+v, %v", t1, ok)
	}
	bed, ok := temps.Bed()
	if !ok || bed.Target != 60 {
		t.Errorf("B = %+v, %v", bed, ok)
	}
}

func TestParseTemperaturesEmpty(t *testing.T) {
	_, err := ParseTemperatures(mustDecode(t, "CMD M105 Received.\r\nok\r\n"))
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("ParseTemperatures() error = %v, want *ParseError", err)
	}
}

func TestParseHeadPosition(t *testing.T) {
	pos, err := ParseHeadPosition(mustDecode(t, "CMD M114 Received.\r\nX:10.5 Y:-3 Z:2.1 A:0 B:0\r\nok\r\n"))
	if err != nil {
		t.Fatalf("ParseHeadPosition() error = %v", err)
	}
	want := models.HeadPosition{X: 10.5, Y: -3, Z: 2.1}
	if *pos != want {
		t.Errorf("position = %+v, want %+v", *pos, want)
	}

	_, err = ParseHeadPosition(mustDecode(t, "CMD M114 Received.\r\nX:1 Y:2\r\nok\r\n"))
	var parseErr *ParseError
	if !errors.As(err, &parseErr) || parseErr.Field != "Z" {
		t.Errorf("missing Z error = %v", err)
	}
}

func TestParseProgress(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		want     models.Progress
		complete bool
	}{
		{
			name: "labelled",
			body: "SD printing byte 1024/4096\r\nLayer: 3/50\r\n",
			want: models.Progress{BytesDone: 1024, BytesTotal: 4096, LayerDone: 3, LayerTotal: 50, Percent: 25, HasLayers: true},
		},
		{
			name: "idle",
			body: "SD printing byte 0/0\r\nLayer: 0/0\r\n",
			want: models.Progress{HasLayers: true},
		},
		{
			name:     "finished",
			body:     "SD printing byte 100/100\r\n",
			want:     models.Progress{BytesDone: 100, BytesTotal: 100, Percent: 100},
			complete: true,
		},
		{
			name: "unlabelled counters",
			body: "1/3\r\n2/9\r\n",
			want: models.Progress{BytesDone: 1, BytesTotal: 3, LayerDone: 2, LayerTotal: 9, Percent: 33.3, HasLayers: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProgress(mustDecode(t, "CMD M27 Received.\r\n"+tt.body+"ok\r\n"))
			if err != nil {
				t.Fatalf("ParseProgress() error = %v", err)
			}
			if *got != tt.want {
				t.Errorf("ParseProgress() = %+v, want %+v", *got, tt.want)
			}
			if got.Complete() != tt.complete {
				t.Errorf("Complete() = %v, want %v", got.Complete(), tt.complete)
			}
		})
	}
}

func TestParseInfo(t *testing.T) {
	raw := "CMD M115 Received.\r\n" +
		"Machine Type: Flashforge Adventurer III\r\n" +
		"Machine Name: Workshop\r\n" +
		"Firmware: v1.3.7\r\n" +
		"SN: SNADVA9501234\r\n" +
		"X: 150 Y: 150 Z: 150\r\n" +
		"Tool Count: 1\r\n" +
		"Mac Address:88:A9:A7:90:0D:7E\r\n" +
		"ok\r\n"
	info, err := ParseInfo(mustDecode(t, raw))
	if err != nil {
		t.Fatalf("ParseInfo() error = %v", err)
	}
	if info.MachineType != "Flashforge Adventurer III" || info.Name != "Workshop" {
		t.Errorf("info = %+v", info)
	}
	if info.FirmwareVersion != "v1.3.7" || info.SerialNumber != "SNADVA9501234" {
		t.Errorf("info = %+v", info)
	}
	if info.MacAddress != "88:A9:A7:90:0D:7E" {
		t.Errorf("MacAddress = %q", info.MacAddress)
	}
	if info.ToolCount != 1 || info.BuildVolume.X != 150 || info.BuildVolume.Z != 150 {
		t.Errorf("info = %+v", info)
	}
}
