// Package anova maintains the websocket push channel to the Anova
// cloud and the command/response protocol that rides on it.
//
// The cloud sends three kinds of frames: device list events
// (EVENT_APO_WIFI_LIST), unsolicited state pushes (EVENT_APO_STATE),
// and RESPONSE envelopes correlated to sent commands by request id.
// State payloads are handed to the engine undecoded; this package does
// not understand oven state, only the framing around it.
//
// The client never reconnects on its own. When a session drops it
// fails in-flight commands, invokes the disconnect callback, and waits
// for the update scheduler to dial again on its poll cadence.
//
// # Usage
//
//	client := anova.NewClient(anova.Config{
//	    URL:   "wss://devices.anovaculinary.io",
//	    Token: token,
//	})
//	client.SetLogger(log)
//	client.SetOnState(func(raw map[string]interface{}) { ... })
//	client.SetOnDevices(func(devices []anova.DiscoveredDevice) { ... })
//	client.SetOnDisconnect(func(err error) { ... })
//
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err := client.SendCommand(ctx, deviceID, anova.CommandStopCook, nil)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Event callbacks run on a
// bounded worker pool; a full queue drops frames rather than blocking
// the read loop.
package anova
