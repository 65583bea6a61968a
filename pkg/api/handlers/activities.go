package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"botpipe/pkg/logger"
	"botpipe/pkg/metrics"
	"botpipe/pkg/models"
	"botpipe/pkg/pipeline"
	"botpipe/pkg/transcript"
	"botpipe/pkg/utils"
	"botpipe/pkg/validation"
)

// Env holds the collaborators handlers need. One instance is shared by
// every request.
type Env struct {
	Adapter *pipeline.Adapter
	Bot     pipeline.Handler
	Store   transcript.Store
	// ChannelID is stamped on inbound activities that omit one.
	ChannelID string
}

// RegisterActivities wires the webhook ingest endpoint.
func RegisterActivities(r *mux.Router, env *Env) {
	r.HandleFunc("/activities", env.receiveActivity).Methods(http.MethodPost)
}

// receiveActivity accepts one inbound activity and runs a full pipeline
// turn over it.
func (env *Env) receiveActivity(w http.ResponseWriter, r *http.Request) {
	var act models.Activity
	if err := json.NewDecoder(r.Body).Decode(&act); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if act.Type == "" {
		act.Type = models.ActivityMessage
	}
	if act.ChannelID == "" {
		act.ChannelID = env.ChannelID
	}
	if act.Conversation == "" {
		act.Conversation = utils.GenConversationID()
	}
	if act.ID == "" {
		act.ID = utils.GenID()
	}
	if err := validation.ValidateActivity(&act); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := env.Adapter.ProcessActivity(r.Context(), &act, env.Bot); err != nil {
		metrics.TurnsProcessed.WithLabelValues("error").Inc()
		logger.Error("turn_failed", "channel", act.ChannelID, "conversation", act.Conversation, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.TurnsProcessed.WithLabelValues("ok").Inc()
	logger.Info("turn_processed", "channel", act.ChannelID, "conversation", act.Conversation, "id", act.ID)
	_ = utils.JSONWrite(w, http.StatusAccepted, struct {
		ID           string `json:"id"`
		Conversation string `json:"conversation"`
	}{ID: act.ID, Conversation: act.Conversation})
}
