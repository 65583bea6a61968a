// Package api exposes the HTTP surface: webhook ingest plus transcript
// read and delete endpoints under /v1.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"botpipe/pkg/api/handlers"
	"botpipe/pkg/auth"
)

// Handler builds the versioned router. Ingest requires an ingest key,
// transcript reads a reader key, transcript deletion an admin key; admin
// keys satisfy everything.
func Handler(env *handlers.Env) http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()

	ingest := v1.NewRoute().Subrouter()
	ingest.Use(auth.RequireRole(auth.RoleIngest))
	handlers.RegisterActivities(ingest, env)

	read := v1.NewRoute().Subrouter()
	read.Use(auth.RequireRole(auth.RoleReader))
	handlers.RegisterTranscriptReads(read, env)

	admin := v1.NewRoute().Subrouter()
	admin.Use(auth.RequireRole(auth.RoleAdmin))
	handlers.RegisterTranscriptAdmin(admin, env)

	return r
}
