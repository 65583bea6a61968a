package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"botpipe/pkg/logger"
	"botpipe/pkg/transcript"
	"botpipe/pkg/utils"
)

// RegisterTranscriptReads wires the transcript read endpoints.
func RegisterTranscriptReads(r *mux.Router, env *Env) {
	r.HandleFunc("/transcripts", env.listTranscripts).Methods(http.MethodGet)
	r.HandleFunc("/transcripts/{channel}/{conversation}/activities", env.listActivities).Methods(http.MethodGet)
}

// RegisterTranscriptAdmin wires the transcript delete endpoint.
func RegisterTranscriptAdmin(r *mux.Router, env *Env) {
	r.HandleFunc("/transcripts/{channel}/{conversation}", env.deleteTranscript).Methods(http.MethodDelete)
}

func (env *Env) listTranscripts(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = env.ChannelID
	}
	page, err := env.Store.ListTranscripts(r.Context(), channel, r.URL.Query().Get("token"))
	if err != nil {
		if errors.Is(err, transcript.ErrBadToken) {
			utils.JSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, page)
}

func (env *Env) listActivities(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var start time.Time
	if s := r.URL.Query().Get("start"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid start time, want RFC3339")
			return
		}
		start = t
	}
	page, err := env.Store.ListActivities(r.Context(), vars["channel"], vars["conversation"], r.URL.Query().Get("token"), start)
	if err != nil {
		if errors.Is(err, transcript.ErrBadToken) {
			utils.JSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, page)
}

func (env *Env) deleteTranscript(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := env.Store.DeleteTranscript(r.Context(), vars["channel"], vars["conversation"]); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("transcript_delete_requested", "channel", vars["channel"], "conversation", vars["conversation"])
	w.WriteHeader(http.StatusNoContent)
}
