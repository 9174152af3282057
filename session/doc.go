// Package session provides server-side session management for HTTP
// servers in Go. Session state lives in a pluggable Store; the client only
// holds an opaque identifier signed with HMAC-SHA256, carried as
// "<id>.<signature>" in a cookie.
//
// Every mutation (Update, Set, Destroy, Regenerate) writes through to the
// store before returning. Expiration is enforced on every read, whether or
// not the backend has evicted the record yet.
//
// Usage:
//
//	package main
//
//	import (
//	    "fmt"
//	    "net/http"
//	    "time"
//
//	    "github.com/bluescreen10/sessionx/memstore"
//	    "github.com/bluescreen10/sessionx/session"
//	)
//
//	func main() {
//	    store := memstore.New()
//	    mgr, err := session.NewManager(store, "a long random secret",
//	        session.WithMaxAge(2*time.Hour),
//	    )
//	    if err != nil {
//	        panic(err)
//	    }
//
//	    mux := http.NewServeMux()
//	    mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
//	        if _, err := mgr.Start(r, map[string]any{"user_id": "123"}); err != nil {
//	            http.Error(w, err.Error(), http.StatusInternalServerError)
//	        }
//	    })
//	    mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
//	        sess := mgr.Get(r)
//	        if sess == nil {
//	            http.Error(w, "no session", http.StatusUnauthorized)
//	            return
//	        }
//	        fmt.Fprintf(w, "hello %s\n", sess.GetString("user_id"))
//	    })
//
//	    http.ListenAndServe(":8080", mgr.Handler(mux))
//	}
//
// designed heavily inspired by: https://github.com/alexedwards/scs
package session
