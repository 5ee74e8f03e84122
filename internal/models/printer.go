package models

import (
	"fmt"
	"net"
	"strconv"
)

// Default ports used by FlashForge firmware
const (
	DefaultControlPort = 8899
	DefaultCameraPort  = 8080
	DefaultCameraPath  = "/?action=stream"
)

// PrinterIdentity represents a configured printer. It is immutable after load.
type PrinterIdentity struct {
	Name        string `json:"name"`
	Host        string `json:"host"`
	ControlPort int    `json:"control_port"`
	CameraPort  int    `json:"camera_port,omitempty"` // 0 means the printer has no camera
	CameraPath  string `json:"camera_path,omitempty"`
}

// ControlAddress returns the host:port of the TCP control API
func (p PrinterIdentity) ControlAddress() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.ControlPort))
}

// HasCamera reports whether a camera stream is configured
func (p PrinterIdentity) HasCamera() bool {
	return p.CameraPort > 0
}

// CameraURL returns the MJPEG stream URL of the printer's camera
func (p PrinterIdentity) CameraURL() string {
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(p.Host, strconv.Itoa(p.CameraPort)), p.CameraPath)
}

func (p PrinterIdentity) String() string {
	return p.Name
}

// MachineState is the normalized operational state of a printer
type MachineState string

const (
	StateIdle      MachineState = "idle"
	StatePrinting  MachineState = "printing"
	StatePaused    MachineState = "paused"
	StateCompleted MachineState = "completed"
	StateBusy      MachineState = "busy"
	StateError     MachineState = "error"
	StateUnknown   MachineState = "unknown"
)

// EndStops holds the end stop switch readings
type EndStops struct {
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
	ZMin int `json:"z_min"`
}

// Status is the decoded M119 response
type Status struct {
	State         MachineState `json:"state"`
	MachineStatus string       `json:"machine_status"`
	MoveMode      string       `json:"move_mode,omitempty"`
	LED           bool         `json:"led"`
	CurrentFile   *string      `json:"current_file"`
	EndStops      *EndStops    `json:"end_stops,omitempty"`
}

// TemperatureReading is a single sensor reading
type TemperatureReading struct {
	Current float64 `json:"current"`
	Target  float64 `json:"target"`
}

// Temperatures maps sensor keys (T0, T1, B) to readings
type Temperatures map[string]TemperatureReading

// Extruder returns the reading of the extruder with the given index
func (t Temperatures) Extruder(index int) (TemperatureReading, bool) {
	r, ok := t["T"+strconv.Itoa(index)]
	return r, ok
}

// Bed returns the reading of the heated bed
func (t Temperatures) Bed() (TemperatureReading, bool) {
	r, ok := t["B"]
	return r, ok
}

// HeadPosition is the decoded M114 response
type HeadPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// Progress is the decoded M27 response
type Progress struct {
	BytesDone  int64   `json:"bytes_done"`
	BytesTotal int64   `json:"bytes_total"`
	LayerDone  int     `json:"layer_done"`
	LayerTotal int     `json:"layer_total"`
	Percent    float64 `json:"percent"`
	HasLayers  bool    `json:"-"`
}

// Complete reports whether the print counters have reached the end of the file
func (p Progress) Complete() bool {
	if p.BytesTotal > 0 && p.BytesDone >= p.BytesTotal {
		return true
	}
	return p.HasLayers && p.LayerTotal > 0 && p.LayerDone >= p.LayerTotal
}

// Info is the decoded M115 response
type Info struct {
	MachineType     string       `json:"machine_type"`
	Name            string       `json:"name"`
	FirmwareVersion string       `json:"firmware_version"`
	SerialNumber    string       `json:"serial_number"`
	MacAddress      string       `json:"mac_address,omitempty"`
	ToolCount       int          `json:"tool_count"`
	BuildVolume     HeadPosition `json:"build_volume"`
}

// ParsedStatus aggregates the results of one status poll
type ParsedStatus struct {
	Status       Status       `json:"status"`
	Temperatures Temperatures `json:"temperatures"`
	Position     HeadPosition `json:"position"`
	Progress     Progress     `json:"progress"`
}

// State is a shortcut for the operational state
func (s *ParsedStatus) State() MachineState {
	return s.Status.State
}
