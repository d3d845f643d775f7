package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/MattCruikshank/goft/internal/db"
	"github.com/MattCruikshank/goft/internal/models"
	"go.uber.org/zap"
)

// AdminHandler handles admin API requests.
type AdminHandler struct {
	db     *db.ServerDB
	logger *zap.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(database *db.ServerDB, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		db:     database,
		logger: logger,
	}
}

func (a *AdminHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (a *AdminHandler) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, map[string]string{"error": message})
}

func (a *AdminHandler) internalError(w http.ResponseWriter, err error) {
	a.logger.Error("admin request failed", zap.Error(err))
	a.writeError(w, http.StatusInternalServerError, "Internal server error")
}

type roomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HandleRooms lists and creates rooms.
func (a *AdminHandler) HandleRooms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rooms, err := a.db.GetRooms()
		if err != nil {
			a.internalError(w, err)
			return
		}
		if rooms == nil {
			rooms = []models.Room{}
		}
		a.writeJSON(w, http.StatusOK, rooms)

	case http.MethodPost:
		var req roomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			a.writeError(w, http.StatusBadRequest, "Missing room name")
			return
		}
		room, err := a.db.CreateRoom(req.Name, req.Description)
		if err != nil {
			a.internalError(w, err)
			return
		}
		a.writeJSON(w, http.StatusCreated, room)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// room resolves the {id} path variable, writing an error response when it
// is invalid or unknown.
func (a *AdminHandler) room(w http.ResponseWriter, r *http.Request) *models.Room {
	id, err := roomID(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "Invalid room ID")
		return nil
	}
	room, err := a.db.GetRoom(id)
	if err != nil {
		a.internalError(w, err)
		return nil
	}
	if room == nil {
		a.writeError(w, http.StatusNotFound, "Room not found")
		return nil
	}
	return room
}

// HandleRoom handles single room operations.
func (a *AdminHandler) HandleRoom(w http.ResponseWriter, r *http.Request) {
	room := a.room(w, r)
	if room == nil {
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.writeJSON(w, http.StatusOK, room)

	case http.MethodPut:
		var req roomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			a.writeError(w, http.StatusBadRequest, "Missing room name")
			return
		}
		room.Name = req.Name
		room.Description = req.Description
		if err := a.db.UpdateRoom(room); err != nil {
			a.internalError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, room)

	case http.MethodDelete:
		if err := a.db.DeleteRoom(room.ID); err != nil {
			a.internalError(w, err)
			return
		}
		a.logger.Info("room deleted", zap.Int64("room", room.ID))
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// HandleMessages pages through and clears a room's messages.
func (a *AdminHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	room := a.room(w, r)
	if room == nil {
		return
	}

	switch r.Method {
	case http.MethodGet:
		limit := 50
		if l := r.URL.Query().Get("limit"); l != "" {
			if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
				limit = parsed
			}
		}

		messages, err := a.db.GetMessages(room.ID, limit, r.URL.Query().Get("before"))
		if err != nil {
			a.internalError(w, err)
			return
		}
		if messages == nil {
			messages = []models.Message{}
		}
		a.writeJSON(w, http.StatusOK, messages)

	case http.MethodDelete:
		if err := a.db.ClearRoomMessages(room.ID); err != nil {
			a.internalError(w, err)
			return
		}
		a.logger.Info("room cleared", zap.Int64("room", room.ID))
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
