// Package piframe drives a video wall: a grid of RTSP streams, test
// patterns and still images composited onto one display.
//
// A wall is built from a validated config.Config. Every configured source
// gets a fixed cell. When a source fails, stalls or times out, only its
// subgraph is rebuilt and relinked into the same cell while the rest of the
// wall keeps playing.
//
// Usage:
//
//	cfg, err := config.Load("pi-frame.yaml")
//	if err != nil {
//	    return err
//	}
//	w, err := piframe.New(cfg)
//	if err != nil {
//	    return err
//	}
//	return w.Run(ctx)
package piframe
