// Package health reports the state of the recordcache process on /healthz.
//
// A Monitor holds one Status per component. Components either push their state
// with Update or register a CheckFunc that Check evaluates on demand:
//
//	monitor := health.NewMonitor()
//	monitor.Register("mirror", func(ctx context.Context) health.Status {
//	    return health.FromError("mirror", client.WaitForConnection(ctx), "connected")
//	})
//	status := monitor.Check(ctx, "recordcache")
//
// Aggregation rules: any unhealthy component makes the system unhealthy,
// otherwise any degraded component makes it degraded. FromError treats
// transient errors as degraded. Error text passed through FromError is
// stripped of URLs, paths, IP addresses, ports and credentials.
package health
