// Package bootstrap runs a taskflow process through one lifecycle:
// start the registered components, run the start hooks, check readiness,
// run the ready hooks, then either block until shutdown or run a finite
// task, and finally stop everything in reverse order.
//
//	app, err := bootstrap.NewApp(&cfg, bootstrap.WithLogger(log))
//	app.RegisterComponent(hub)
//	app.RegisterComponent(server.NewComponent(srv))
//	return app.Run(ctx)
package bootstrap
