// Package tap manages the lifecycle of taps. A tap is one listening port
// bound to one upstream address, with its own route registry.
//
// Usage:
//
//	manager := tap.NewManager(logger, tap.Options{BindHost: "127.0.0.1"})
//	info, err := manager.CreateTap("https://api.example.com", 9001, "api")
//	if err != nil {
//	    // errors.Is(err, tap.ErrInvalidAddress), tap.ErrBindFailure, tap.ErrPortInUse
//	}
//	defer manager.RemoveTap(ctx, info.ID)
package tap
