package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Jackzmc/flashforge-api-server/internal/api"
	"github.com/Jackzmc/flashforge-api-server/internal/db/repository"
	"github.com/Jackzmc/flashforge-api-server/internal/service"
)

// PrinterHandler handles printer-related requests
type PrinterHandler struct {
	printerService *service.PrinterService
}

// NewPrinterHandler creates a new printer handler
func NewPrinterHandler(printerService *service.PrinterService) *PrinterHandler {
	return &PrinterHandler{
		printerService: printerService,
	}
}

// List returns the configured printer names
func (h *PrinterHandler) List(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, h.printerService.List())
}

// read adapts a service getter into a handler that renders its result as JSON
func read[T any](get func(ctx context.Context, name string) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := get(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			api.PrinterError(w, err)
			return
		}
		api.JSON(w, http.StatusOK, result)
	}
}

func (h *PrinterHandler) Info() http.HandlerFunc         { return read(h.printerService.Info) }
func (h *PrinterHandler) Status() http.HandlerFunc       { return read(h.printerService.Status) }
func (h *PrinterHandler) Temperatures() http.HandlerFunc { return read(h.printerService.Temperatures) }
func (h *PrinterHandler) HeadPosition() http.HandlerFunc { return read(h.printerService.HeadPosition) }
func (h *PrinterHandler) Progress() http.HandlerFunc     { return read(h.printerService.Progress) }

type successResponse struct {
	Success bool `json:"success"`
}

// SetTemperature handles POST .../set-temperature/{tempIndex}/{temperatureC}
func (h *PrinterHandler) SetTemperature(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	index, err := strconv.Atoi(vars["tempIndex"])
	if err != nil {
		api.BadRequest(w, "tempIndex must be an integer")
		return
	}
	celsius, err := strconv.ParseFloat(vars["temperatureC"], 64)
	if err != nil {
		api.BadRequest(w, "temperatureC must be a number")
		return
	}

	if err := h.printerService.SetTemperature(r.Context(), vars["id"], index, celsius); err != nil {
		api.PrinterError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, successResponse{Success: true})
}

// SetLED handles POST .../led/{r}/{g}/{b}
func (h *PrinterHandler) SetLED(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var rgb [3]int
	for i, key := range []string{"r", "g", "b"} {
		v, err := strconv.Atoi(vars[key])
		if err != nil {
			api.BadRequest(w, key+" must be an integer")
			return
		}
		rgb[i] = v
	}

	if err := h.printerService.SetLED(r.Context(), vars["id"], rgb[0], rgb[1], rgb[2]); err != nil {
		api.PrinterError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, successResponse{Success: true})
}

// Jobs returns the job history of a printer. ?limit= caps the result.
func (h *PrinterHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	limit := repository.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			api.BadRequest(w, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	jobs, err := h.printerService.Jobs(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		api.PrinterError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, jobs)
}

// Health reports connection and camera state without contacting the printers
func (h *PrinterHandler) Health(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, h.printerService.Health())
}
