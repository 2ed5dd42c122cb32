package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/presence-node/internal/logic"
	"github.com/sweeney/presence-node/internal/status"
)

// APIDefaultRSSIThreshold is used when POST /api/device/known omits
// rssiThreshold.
const APIDefaultRSSIThreshold = -70

// maxImportBytes caps the registry document accepted by the import endpoint.
const maxImportBytes = 1 << 20

// ExportFilename is the attachment name of the registry export.
const ExportFilename = "known_devices.json"

// APIController serves the JSON API.
type APIController struct {
	Node    Node
	Tracker *status.Tracker
	Timeout time.Duration
}

// RegisterRoutes adds the API routes to router.
func (t *APIController) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", t.getStatus).Methods("GET")
	api.HandleFunc("/devices", t.getDevices).Methods("GET")
	api.HandleFunc("/device/known", t.postKnownDevice).Methods("POST")
	api.HandleFunc("/output-log", t.getOutputLog).Methods("GET")
	api.HandleFunc("/output-log/clear", t.postClearOutputLog).Methods("POST")
	api.HandleFunc("/output-log/test", t.postTestOutputLog).Methods("POST")
	api.HandleFunc("/export-devices-file", t.getExportDevices).Methods("GET")
	api.HandleFunc("/import-devices-file", t.postImportDevices).Methods("POST")
	api.HandleFunc("/bluetooth/reset", t.postBluetoothReset).Methods("POST")
}

func (t *APIController) getStatus(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, statusAPI(t.Tracker.Snapshot()))
}

func (t *APIController) getDevices(rw http.ResponseWriter, r *http.Request) {
	body := DevicesAPI{Status: "success"}
	err := t.do(r.Context(), func(e *logic.Engine, now time.Time) {
		recs := e.Devices(now)
		body.Devices = make([]DeviceJSON, 0, len(recs))
		for _, rec := range recs {
			body.Devices = append(body.Devices, deviceJSON(rec))
		}
		known := e.KnownDevices(now)
		body.KnownDevices = make([]KnownDeviceJSON, 0, len(known))
		for _, ks := range known {
			body.KnownDevices = append(body.KnownDevices, knownDeviceJSON(ks))
		}
	})
	if err != nil {
		t.unavailable(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, body)
}

func (t *APIController) postKnownDevice(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeResponse(rw, http.StatusBadRequest, "error", "invalid form")
		return
	}
	address := r.Form.Get("address")
	if address == "" || !r.Form.Has("known") {
		writeResponse(rw, http.StatusBadRequest, "error", "missing parameters")
		return
	}
	known := r.Form.Get("known") == "true"
	comment := r.Form.Get("comment")
	threshold := APIDefaultRSSIThreshold
	if v := r.Form.Get("rssiThreshold"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeResponse(rw, http.StatusBadRequest, "error", "invalid rssiThreshold")
			return
		}
		threshold = n
	}

	var opErr error
	err := t.do(r.Context(), func(e *logic.Engine, now time.Time) {
		if known {
			_, opErr = e.AddKnown(address, comment, threshold)
			return
		}
		if !e.RemoveKnown(address) {
			opErr = logic.ErrNotFound
		}
	})
	if err != nil {
		t.unavailable(rw, r, err)
		return
	}

	logger := log.WithFields(log.Fields{"component": "web", "address": address, "known": known})
	if opErr != nil {
		logger.WithError(opErr).Info("known device update rejected")
		writeResponse(rw, http.StatusBadRequest, "error", opErr.Error())
		return
	}
	logger.Info("known device updated")
	if known {
		writeResponse(rw, http.StatusOK, "success", "device marked as known")
		return
	}
	writeResponse(rw, http.StatusOK, "success", "device marked as unknown")
}

func (t *APIController) getOutputLog(rw http.ResponseWriter, r *http.Request) {
	var body OutputLogAPI
	err := t.do(r.Context(), func(e *logic.Engine, now time.Time) {
		body = outputLogAPI(e.OutputLog(), now)
	})
	if err != nil {
		t.unavailable(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, body)
}

func (t *APIController) postClearOutputLog(rw http.ResponseWriter, r *http.Request) {
	err := t.do(r.Context(), func(e *logic.Engine, now time.Time) {
		e.ClearLog()
	})
	if err != nil {
		t.unavailable(rw, r, err)
		return
	}
	writeResponse(rw, http.StatusOK, "success", "output log cleared")
}

func (t *APIController) postTestOutputLog(rw http.ResponseWriter, r *http.Request) {
	err := t.do(r.Context(), func(e *logic.Engine, now time.Time) {
		e.LogTest(now)
	})
	if err != nil {
		t.unavailable(rw, r, err)
		return
	}
	writeResponse(rw, http.StatusOK, "success", "test log entry created")
}

func (t *APIController) getExportDevices(rw http.ResponseWriter, r *http.Request) {
	var (
		data   []byte
		encErr error
	)
	err := t.do(r.Context(), func(e *logic.Engine, now time.Time) {
		data, encErr = e.ExportJSON(now)
	})
	if err != nil {
		t.unavailable(rw, r, err)
		return
	}
	if encErr != nil {
		writeResponse(rw, http.StatusInternalServerError, "error", encErr.Error())
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", ExportFilename))
	rw.Write(data)
}

func (t *APIController) postImportDevices(rw http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		writeResponse(rw, http.StatusBadRequest, "error", "cannot read body")
		return
	}

	var (
		res       logic.ImportResult
		importErr error
	)
	err = t.do(r.Context(), func(e *logic.Engine, now time.Time) {
		res, importErr = e.ImportJSON(data, now)
	})
	if err != nil {
		t.unavailable(rw, r, err)
		return
	}
	if importErr != nil {
		log.WithField("component", "web").WithError(importErr).Warn("registry import rejected")
		writeResponse(rw, http.StatusBadRequest, "error", "import failed: invalid data")
		return
	}
	writeJSON(rw, http.StatusOK, ImportAPI{
		Response:     Response{Status: "success", Message: "devices imported"},
		ImportResult: res,
	})
}

func (t *APIController) postBluetoothReset(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := t.context(r.Context())
	defer cancel()
	if err := t.Node.ResetRadio(ctx); err != nil {
		t.unavailable(rw, r, err)
		return
	}
	writeResponse(rw, http.StatusOK, "success", "radio restarted")
}

func (t *APIController) context(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return context.WithTimeout(parent, timeout)
}

func (t *APIController) do(parent context.Context, fn func(e *logic.Engine, now time.Time)) error {
	ctx, cancel := t.context(parent)
	defer cancel()
	return t.Node.Do(ctx, fn)
}

func (t *APIController) unavailable(rw http.ResponseWriter, r *http.Request, err error) {
	log.WithFields(log.Fields{"component": "web", "path": r.URL.Path}).WithError(err).Warn("control loop unavailable")
	code := http.StatusServiceUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		code = http.StatusGatewayTimeout
	}
	writeResponse(rw, code, "error", err.Error())
}

func writeResponse(rw http.ResponseWriter, code int, st, message string) {
	writeJSON(rw, code, Response{Status: st, Message: message})
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		log.WithField("component", "web").WithError(err).Debug("write response failed")
	}
}
