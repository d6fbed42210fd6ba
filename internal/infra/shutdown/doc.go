// Package shutdown coordinates graceful process termination.
//
// Components register named hooks with OnShutdown. Wait blocks until a
// termination signal arrives, Trigger is called or the context ends, and
// then runs the hooks in reverse registration order under a shared
// timeout:
//
//	h := shutdown.NewHandler(30*time.Second, log)
//	h.OnShutdown("datastore", func(ctx context.Context) error { return store.Close() })
//	h.OnShutdown("listener", srv.Shutdown)
//	if err := h.Wait(ctx); err != nil { ... }
package shutdown
