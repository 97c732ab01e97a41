// Package restkit is a request-dispatch layer for building small HTTP
// API servers. Endpoints are plain functions registered by name; the
// engine binds query and JSON-body arguments to their parameters,
// dispatches case-insensitively, and answers every request with a
// uniform JSON envelope of the form
//
//	{"status": "OK", "data": ..., "code": 200}
//
// A minimal server:
//
//	app, err := restkit.New(restkit.Config{AppName: "demo"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	app.Register("hello_world", func(ctx *restkit.Ctx) (any, error) {
//	    return map[string]string{"message": "Hello, world!"}, nil
//	})
//	log.Fatal(app.Run(":8080"))
//
// Every server carries built-in endpoints for the route listing
// (/index), the run mode (/get_run_mode), secured file download and
// upload (/download, /upload), and the log viewer (/list_logs, /logs,
// /logs/tail).
package restkit
