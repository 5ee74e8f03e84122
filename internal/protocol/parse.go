package protocol

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Jackzmc/flashforge-api-server/internal/models"
)

var (
	rePair        = regexp.MustCompile(`([A-Za-z0-9\-]+):\s*([^\s:]+)`)
	reTemperature = regexp.MustCompile(`([A-Z][0-9]?):\s*(-?\d+(?:\.\d+)?)\s*/\s*(-?\d+(?:\.\d+)?)`)
	reCounter     = regexp.MustCompile(`(\d+)/(\d+)`)
)

// parseKV turns "key: value" payload lines into a map. Lines holding several
// short pairs (end stops, coordinates) are split into one entry per pair.
func parseKV(lines []string) map[string]string {
	kv := make(map[string]string)
	for _, line := range lines {
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		switch key {
		case "Endstop":
			mergePairs(kv, val)
		case "X", "T0":
			mergePairs(kv, line)
		default:
			kv[key] = strings.TrimSpace(val)
		}
	}
	return kv
}

func mergePairs(kv map[string]string, s string) {
	for _, m := range rePair.FindAllStringSubmatch(s, -1) {
		kv[m[1]] = m[2]
	}
}

func expect(resp *Response, code Code) error {
	if resp == nil {
		return &ParseError{Code: code, Field: "response", Reason: "missing"}
	}
	if resp.Code != code {
		return &ParseError{Code: code, Field: "code", Reason: "got response for " + string(resp.Code)}
	}
	return nil
}

// NormalizeState maps the firmware MachineStatus (and MoveMode) to a MachineState
func NormalizeState(machineStatus, moveMode string) models.MachineState {
	status := strings.ToUpper(strings.TrimSpace(machineStatus))
	switch {
	case status == "READY":
		return models.StateIdle
	case status == "BUILDING_COMPLETED":
		return models.StateCompleted
	case strings.HasPrefix(status, "BUILDING"):
		if strings.EqualFold(moveMode, "PAUSED") {
			return models.StatePaused
		}
		return models.StatePrinting
	case status == "PAUSED":
		return models.StatePaused
	case status == "BUSY":
		return models.StateBusy
	case strings.Contains(status, "ERROR"):
		return models.StateError
	default:
		return models.StateUnknown
	}
}

// ParseStatus decodes an M119 response. MachineStatus is the only required field.
func ParseStatus(resp *Response) (*models.Status, error) {
	if err := expect(resp, CodeStatus); err != nil {
		return nil, err
	}
	kv := parseKV(resp.Body)

	raw := kv["MachineStatus"]
	if raw == "" {
		return nil, &ParseError{Code: CodeStatus, Field: "MachineStatus", Reason: "missing"}
	}

	status := &models.Status{
		MachineStatus: raw,
		MoveMode:      kv["MoveMode"],
		LED:           kv["LED"] == "1",
	}
	status.State = NormalizeState(raw, status.MoveMode)

	if file := kv["CurrentFile"]; file != "" {
		status.CurrentFile = &file
	}

	xMax, errX := strconv.Atoi(kv["X-max"])
	yMax, errY := strconv.Atoi(kv["Y-max"])
	zMin, errZ := strconv.Atoi(kv["Z-min"])
	if errX == nil && errY == nil && errZ == nil {
		status.EndStops = &models.EndStops{XMax: xMax, YMax: yMax, ZMin: zMin}
	}

	return status, nil
}

// ParseTemperatures decodes an M105 response such as "T0:210/210 B:60/60"
func ParseTemperatures(resp *Response) (models.Temperatures, error) {
	if err := expect(resp, CodeTemperature); err != nil {
		return nil, err
	}

	temps := make(models.Temperatures)
	for _, m := range reTemperature.FindAllStringSubmatch(resp.Text(), -1) {
		current, err1 := strconv.ParseFloat(m[2], 64)
		target, err2 := strconv.ParseFloat(m[3], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		temps[m[1]] = models.TemperatureReading{Current: current, Target: target}
	}

	if len(temps) == 0 {
		return nil, &ParseError{Code: CodeTemperature, Field: "T0", Reason: "no temperature readings"}
	}
	return temps, nil
}

// ParseHeadPosition decodes an M114 response. X, Y and Z are required.
func ParseHeadPosition(resp *Response) (*models.HeadPosition, error) {
	if err := expect(resp, CodeHeadPosition); err != nil {
		return nil, err
	}

	kv := make(map[string]string)
	for _, line := range resp.Body {
		mergePairs(kv, line)
	}

	var pos models.HeadPosition
	for _, axis := range []struct {
		key      string
		dst      *float64
		required bool
	}{
		{"X", &pos.X, true},
		{"Y", &pos.Y, true},
		{"Z", &pos.Z, true},
		{"A", &pos.A, false},
		{"B", &pos.B, false},
	} {
		raw, ok := kv[axis.key]
		if !ok {
			if axis.required {
				return nil, &ParseError{Code: CodeHeadPosition, Field: axis.key, Reason: "missing"}
			}
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			if axis.required {
				return nil, &ParseError{Code: CodeHeadPosition, Field: axis.key, Reason: "not a number"}
			}
			continue
		}
		*axis.dst = v
	}

	return &pos, nil
}

// ParseProgress decodes an M27 response:
//
//	SD printing byte 1024/4096
//	Layer: 3/50
func ParseProgress(resp *Response) (*models.Progress, error) {
	if err := expect(resp, CodeProgress); err != nil {
		return nil, err
	}

	var (
		progress  models.Progress
		haveBytes bool
	)
	var unlabeled [][2]int64
	for _, line := range resp.Body {
		m := reCounter.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		done, err1 := strconv.ParseInt(m[1], 10, 64)
		total, err2 := strconv.ParseInt(m[2], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "byte"):
			progress.BytesDone, progress.BytesTotal = done, total
			haveBytes = true
		case strings.Contains(lower, "layer"):
			progress.LayerDone, progress.LayerTotal = int(done), int(total)
			progress.HasLayers = true
		default:
			unlabeled = append(unlabeled, [2]int64{done, total})
		}
	}

	if !haveBytes && len(unlabeled) > 0 {
		progress.BytesDone, progress.BytesTotal = unlabeled[0][0], unlabeled[0][1]
		haveBytes = true
		unlabeled = unlabeled[1:]
	}
	if !progress.HasLayers && len(unlabeled) > 0 {
		progress.LayerDone, progress.LayerTotal = int(unlabeled[0][0]), int(unlabeled[0][1])
		progress.HasLayers = true
	}
	if !haveBytes {
		return nil, &ParseError{Code: CodeProgress, Field: "byte", Reason: "missing byte counter"}
	}

	if progress.BytesTotal > 0 {
		pct := float64(progress.BytesDone) / float64(progress.BytesTotal) * 100
		progress.Percent = math.Min(100, math.Round(pct*10)/10)
	}
	return &progress, nil
}

// ParseInfo decodes an M115 response
func ParseInfo(resp *Response) (*models.Info, error) {
	if err := expect(resp, CodeInfo); err != nil {
		return nil, err
	}
	kv := parseKV(resp.Body)

	info := &models.Info{
		MachineType:     kv["Machine Type"],
		Name:            kv["Machine Name"],
		FirmwareVersion: kv["Firmware"],
		SerialNumber:    kv["SN"],
		MacAddress:      kv["Mac Address"],
	}
	if info.MachineType == "" && info.Name == "" {
		return nil, &ParseError{Code: CodeInfo, Field: "Machine Type", Reason: "missing"}
	}
	if n, err := strconv.Atoi(kv["Tool Count"]); err == nil {
		info.ToolCount = n
	}
	if v, err := strconv.ParseFloat(kv["X"], 64); err == nil {
		info.BuildVolume.X = v
	}
	if v, err := strconv.ParseFloat(kv["Y"], 64); err == nil {
		info.BuildVolume.Y = v
	}
	if v, err := strconv.ParseFloat(kv["Z"], 64); err == nil {
		info.BuildVolume.Z = v
	}
	return info, nil
}
