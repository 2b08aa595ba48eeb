// Package todosync keeps a single todo.txt file in step with several task
// backends.
//
// Every task in the file carries two metadata keys: source-id names the
// backend that owns it and external-id is the identifier that backend uses.
// Lines typed without them go to the default backend. Edits to bound lines
// are pushed back to their owner. The file is rewritten from all backends
// after every push and whenever it goes stale.
//
// Usage:
//
//	cfg, err := todosync.LoadConfig("todosync.yaml")
//	if err != nil {
//		return err
//	}
//	app, err := todosync.New(cfg, todosync.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer app.Close()
//
//	return app.Engine.Run(ctx)
//
// Backends live under pkg/backends; custom ones implement core.Backend and
// are registered on app.Router.
package todosync
