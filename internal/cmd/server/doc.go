// Package serverrun exposes the shared Run entrypoint used by the CLI to
// start the ground station, handling component wiring, lifecycle and
// shutdown.
//
// Example:
//
//	cfg := config.Default()
//	cfg.SerialDevice = "/dev/ttyUSB0"
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg})
package serverrun
