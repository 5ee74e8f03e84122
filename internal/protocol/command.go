// Package protocol implements the FlashForge TCP command codec.
//
// Requests are G-code style lines prefixed with '~' and terminated by CRLF:
//
//	~M104 S60 T0\r\n
//
// The printer answers with a header line echoing the command, zero or more
// payload lines, and a terminator line:
//
//	CMD M104 Received.\r\n
//	ok\r\n
//
// The package does no I/O of its own; Reader adapts it to a byte stream.
package protocol

import (
	"bytes"
	"math"
	"strconv"
	"strings"
)

// Code is a protocol command verb such as M119
type Code string

const (
	CodeControl        Code = "M601"
	CodeRelease        Code = "M602"
	CodeInfo           Code = "M115"
	CodeHeadPosition   Code = "M114"
	CodeTemperature    Code = "M105"
	CodeProgress       Code = "M27"
	CodeStatus         Code = "M119"
	CodeSetTemperature Code = "M104"
	CodeLED            Code = "M146"
)

// Limits of the representable command parameters
const (
	MaxExtruderIndex = 1
	MinTemperature   = 0.0
	MaxTemperature   = 300.0
	MaxLEDChannel    = 255
)

const (
	requestPrefix = "~"
	lineEnding    = "\r\n"
)

// Param is a single letter-prefixed command argument (S60, T0)
type Param struct {
	Key   byte
	Value string
}

func (p Param) String() string {
	return string(p.Key) + p.Value
}

// Request is a command verb plus its ordered parameters
type Request struct {
	Code   Code
	Params []Param
}

// Param returns the value of the first parameter with the given key
func (r Request) Param(key byte) (string, bool) {
	for _, p := range r.Params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

func (r Request) String() string {
	parts := make([]string, 0, len(r.Params)+1)
	parts = append(parts, string(r.Code))
	for _, p := range r.Params {
		parts = append(parts, p.String())
	}
	return strings.Join(parts, " ")
}

// Control requests control of the printer; it precedes other commands on a fresh socket
func Control() Request {
	return Request{Code: CodeControl, Params: []Param{{Key: 'S', Value: "1"}}}
}

// Release gives up control of the printer
func Release() Request {
	return Request{Code: CodeRelease}
}

func GetInfo() Request         { return Request{Code: CodeInfo} }
func GetHeadPosition() Request { return Request{Code: CodeHeadPosition} }
func GetTemperature() Request  { return Request{Code: CodeTemperature} }
func GetProgress() Request     { return Request{Code: CodeProgress} }
func GetStatus() Request       { return Request{Code: CodeStatus} }

// SetTemperature sets the target temperature of an extruder.
// Range checks happen in Encode.
func SetTemperature(index int, celsius float64) Request {
	return Request{Code: CodeSetTemperature, Params: []Param{
		{Key: 'S', Value: strconv.FormatFloat(celsius, 'f', -1, 64)},
		{Key: 'T', Value: strconv.Itoa(index)},
	}}
}

// SetLED sets the chamber light colour
func SetLED(r, g, b int) Request {
	return Request{Code: CodeLED, Params: []Param{
		{Key: 'r', Value: strconv.Itoa(r)},
		{Key: 'g', Value: strconv.Itoa(g)},
		{Key: 'b', Value: strconv.Itoa(b)},
		{Key: 'F', Value: "0"},
	}}
}

// TemperatureArgs extracts the extruder index and target of a set-temperature request
func (r Request) TemperatureArgs() (int, float64, error) {
	if r.Code != CodeSetTemperature {
		return 0, 0, &EncodingError{Code: r.Code, Reason: "not a set-temperature request"}
	}
	rawIndex, ok := r.Param('T')
	if !ok {
		return 0, 0, &EncodingError{Code: r.Code, Param: "T", Reason: "missing extruder index"}
	}
	index, err := strconv.Atoi(rawIndex)
	if err != nil || index < 0 || index > MaxExtruderIndex {
		return 0, 0, &EncodingError{Code: r.Code, Param: "T", Reason: "extruder index must be 0 or 1"}
	}
	rawTemp, ok := r.Param('S')
	if !ok {
		return 0, 0, &EncodingError{Code: r.Code, Param: "S", Reason: "missing temperature"}
	}
	celsius, err := strconv.ParseFloat(rawTemp, 64)
	if err != nil || math.IsNaN(celsius) || celsius < MinTemperature || celsius > MaxTemperature {
		return 0, 0, &EncodingError{Code: r.Code, Param: "S", Reason: "temperature out of range"}
	}
	return index, celsius, nil
}

// Encode returns the exact bytes the printer expects for a request
func Encode(r Request) ([]byte, error) {
	if err := validate(r); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(requestPrefix)
	buf.WriteString(string(r.Code))
	for _, p := range r.Params {
		buf.WriteByte(' ')
		buf.WriteString(p.String())
	}
	buf.WriteString(lineEnding)
	return buf.Bytes(), nil
}

// DecodeRequest parses the wire form of a request. It is the inverse of Encode.
func DecodeRequest(data []byte) (Request, error) {
	line := string(data)
	if !strings.HasPrefix(line, requestPrefix) || !strings.HasSuffix(line, lineEnding) {
		return Request{}, &DecodeError{Reason: "request must start with ~ and end with CRLF"}
	}
	line = strings.TrimSuffix(strings.TrimPrefix(line, requestPrefix), lineEnding)
	if strings.ContainsAny(line, "\r\n") {
		return Request{}, &DecodeError{Reason: "request spans multiple lines"}
	}

	fields := strings.Split(line, " ")
	req := Request{Code: Code(fields[0])}
	for _, f := range fields[1:] {
		if len(f) < 2 {
			return Request{}, &DecodeError{Reason: "invalid parameter " + strconv.Quote(f)}
		}
		req.Params = append(req.Params, Param{Key: f[0], Value: f[1:]})
	}

	if err := validate(req); err != nil {
		return Request{}, &DecodeError{Reason: err.Error()}
	}
	return req, nil
}

func validate(r Request) error {
	if !validCode(r.Code) {
		return &EncodingError{Code: r.Code, Reason: "invalid command code"}
	}
	for _, p := range r.Params {
		if !isLetter(p.Key) {
			return &EncodingError{Code: r.Code, Param: string(p.Key), Reason: "parameter key must be a letter"}
		}
		if p.Value == "" || strings.ContainsAny(p.Value, " \t\r\n~") {
			return &EncodingError{Code: r.Code, Param: string(p.Key), Reason: "invalid parameter value"}
		}
	}

	switch r.Code {
	case CodeSetTemperature:
		if _, _, err := r.TemperatureArgs(); err != nil {
			return err
		}
	case CodeLED:
		for _, key := range []byte{'r', 'g', 'b'} {
			raw, ok := r.Param(key)
			if !ok {
				return &EncodingError{Code: r.Code, Param: string(key), Reason: "missing colour channel"}
			}
			v, err := strconv.Atoi(raw)
			if err != nil || v < 0 || v > MaxLEDChannel {
				return &EncodingError{Code: r.Code, Param: string(key), Reason: "colour channel must be within 0-255"}
			}
		}
	}
	return nil
}

func validCode(c Code) bool {
	if len(c) < 2 || (c[0] != 'M' && c[0] != 'G') {
		return false
	}
	for i := 1; i < len(c); i++ {
		if c[i] < '0' || c[i] > '9' {
			return false
		}
	}
	return true
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
