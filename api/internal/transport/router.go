package transport

import "net/http"

type Handler interface {
	submit(w http.ResponseWriter, r *http.Request)
	tasks(w http.ResponseWriter, r *http.Request)
	task(w http.ResponseWriter, r *http.Request)
	cancel(w http.ResponseWriter, r *http.Request)
	export(w http.ResponseWriter, r *http.Request)
	sources(w http.ResponseWriter, r *http.Request)
	data(w http.ResponseWriter, r *http.Request)
}

type router struct {
	h    Handler
	auth func(http.Handler) http.Handler
}

// NewRouter mounts the mining API. auth guards every route; nil means open.
func NewRouter(h Handler, auth func(http.Handler) http.Handler) *router {
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}
	return &router{h: h, auth: auth}
}

func (r *router) MountRoutes(mux *http.ServeMux) *http.ServeMux {
	r.handle(mux, "POST /api/v1/mining/tasks/{kind}", r.h.submit)
	r.handle(mux, "GET /api/v1/mining/tasks", r.h.tasks)
	r.handle(mux, "GET /api/v1/mining/tasks/{id}", r.h.task)
	r.handle(mux, "DELETE /api/v1/mining/tasks/{id}", r.h.cancel)
	r.handle(mux, "GET /api/v1/mining/tasks/{id}/export", r.h.export)
	r.handle(mux, "GET /api/v1/sources", r.h.sources)
	r.handle(mux, "GET /api/v1/data", r.h.data)

	return mux
}

func (r *router) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.Handle(pattern, r.auth(fn))
}
