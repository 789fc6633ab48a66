package fleet

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/routefleet/routefleet/pkg/plugin"
	"go.uber.org/zap"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/devices", Handler: m.handleListDevices},
		{Method: "POST", Path: "/devices", Handler: m.handleCreateDevice},
		{Method: "GET", Path: "/devices/{id}", Handler: m.handleGetDevice},
		{Method: "PUT", Path: "/devices/{id}", Handler: m.handleUpdateDevice},
		{Method: "DELETE", Path: "/devices/{id}", Handler: m.handleDeleteDevice},
		{Method: "POST", Path: "/devices/{id}/ping", Handler: m.handlePingDevice},
	}
}

// deviceRequest carries the writable fields of a device. Credentials are
// accepted here but never echoed back.
type deviceRequest struct {
	Name        string            `json:"name"`
	Address     string            `json:"address"`
	SSHPort     int               `json:"ssh_port"`
	SSHUser     string            `json:"ssh_user"`
	SSHPassword string            `json:"ssh_password"`
	SSHKey      string            `json:"ssh_key"`
	Location    string            `json:"location"`
	Notes       string            `json:"notes"`
	Tags        map[string]string `json:"tags"`
	IsActive    *bool             `json:"is_active"`
}

func (m *Module) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var (
		devices []Device
		err     error
	)
	if r.URL.Query().Get("active") == "true" {
		devices, err = m.store.ListActive(r.Context())
	} else {
		devices, err = m.store.List(r.Context())
	}
	if err != nil {
		m.logger.Warn("failed to list devices", zap.Error(err))
		fleetWriteError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}
	if devices == nil {
		devices = []Device{}
	}
	fleetWriteJSON(w, http.StatusOK, devices)
}

func (m *Module) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fleetWriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.Address == "" {
		fleetWriteError(w, http.StatusBadRequest, "name and address are required")
		return
	}

	now := time.Now().UTC()
	d := &Device{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Address:     req.Address,
		SSHPort:     req.SSHPort,
		SSHUser:     req.SSHUser,
		SSHPassword: req.SSHPassword,
		SSHKey:      req.SSHKey,
		Location:    req.Location,
		Notes:       req.Notes,
		Tags:        req.Tags,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.IsActive != nil {
		d.IsActive = *req.IsActive
	}
	if d.SSHPort == 0 {
		d.SSHPort = m.cfg.DefaultSSHPort
	}
	if d.SSHUser == "" {
		d.SSHUser = m.cfg.DefaultSSHUser
	}

	if err := m.store.Insert(r.Context(), d); err != nil {
		if errors.Is(err, ErrDuplicateName) {
			fleetWriteError(w, http.StatusConflict, "a device with that name already exists")
			return
		}
		m.logger.Warn("failed to create device", zap.Error(err))
		fleetWriteError(w, http.StatusInternalServerError, "failed to create device")
		return
	}

	if m.bus != nil {
		m.bus.PublishAsync(r.Context(), plugin.Event{
			Topic:   TopicDeviceCreated,
			Source:  "fleet",
			Payload: map[string]any{"device_id": d.ID, "name": d.Name},
		})
	}
	fleetWriteJSON(w, http.StatusCreated, d)
}

func (m *Module) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := m.deviceFromPath(w, r)
	if !ok {
		return
	}
	fleetWriteJSON(w, http.StatusOK, d)
}

func (m *Module) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := m.deviceFromPath(w, r)
	if !ok {
		return
	}

	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fleetWriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Name != "" {
		d.Name = req.Name
	}
	if req.Address != "" {
		d.Address = req.Address
	}
	if req.SSHPort != 0 {
		d.SSHPort = req.SSHPort
	}
	if req.SSHUser != "" {
		d.SSHUser = req.SSHUser
	}
	if req.SSHPassword != "" {
		d.SSHPassword = req.SSHPassword
	}
	if req.SSHKey != "" {
		d.SSHKey = req.SSHKey
	}
	if req.Location != "" {
		d.Location = req.Location
	}
	if req.Notes != "" {
		d.Notes = req.Notes
	}
	if req.Tags != nil {
		d.Tags = req.Tags
	}
	if req.IsActive != nil {
		d.IsActive = *req.IsActive
	}

	if err := m.store.Update(r.Context(), d); err != nil {
		if errors.Is(err, ErrDuplicateName) {
			fleetWriteError(w, http.StatusConflict, "a device with that name already exists")
			return
		}
		m.logger.Warn("failed to update device", zap.String("device_id", d.ID), zap.Error(err))
		fleetWriteError(w, http.StatusInternalServerError, "failed to update device")
		return
	}
	fleetWriteJSON(w, http.StatusOK, d)
}

func (m *Module) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		fleetWriteError(w, http.StatusBadRequest, "device id is required")
		return
	}
	if err := m.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			fleetWriteError(w, http.StatusNotFound, "device not found")
			return
		}
		m.logger.Warn("failed to delete device", zap.String("device_id", id), zap.Error(err))
		fleetWriteError(w, http.StatusInternalServerError, "failed to delete device")
		return
	}
	if m.bus != nil {
		m.bus.PublishAsync(r.Context(), plugin.Event{
			Topic:   TopicDeviceDeleted,
			Source:  "fleet",
			Payload: map[string]any{"device_id": id},
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *Module) deviceFromPath(w http.ResponseWriter, r *http.Request) (*Device, bool) {
	id := r.PathValue("id")
	if id == "" {
		fleetWriteError(w, http.StatusBadRequest, "device id is required")
		return nil, false
	}
	d, err := m.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			fleetWriteError(w, http.StatusNotFound, "device not found")
			return nil, false
		}
		m.logger.Warn("failed to get device", zap.String("device_id", id), zap.Error(err))
		fleetWriteError(w, http.StatusInternalServerError, "failed to get device")
		return nil, false
	}
	return d, true
}

// -- helpers --

func fleetWriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func fleetWriteError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://routefleet.dev/problems/" + http.StatusText(status),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
