// Package serve exposes a beacon's broadcast status over the gRPC health
// checking protocol.
//
// The server registers the standard grpc.health.v1.Health service. The
// overall service ("") is SERVING while the server runs; the service named
// ServiceName follows the broadcaster, SERVING while the beacon is on air and
// NOT_SERVING otherwise. Load balancers and monitoring systems can probe it
// with any gRPC health client:
//
//	grpc_health_probe -addr=localhost:50051 -service=gemtot.Beacon
//
// # Usage
//
//	srv, err := serve.NewServer(serve.FromSettings(settings.GetServe()),
//	    serve.WithLogger(logger),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go srv.Watch(ctx, sdk.Broadcaster(), 0)
//	if err := srv.Serve(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Serve returns when ctx is canceled or on SIGINT/SIGTERM, stopping the
// server gracefully within the configured timeout.
package serve
