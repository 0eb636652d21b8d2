// Package hub implements the broadcast hub: the fan-out component that
// delivers events to every live WebSocket connection of an account.
//
// # Guarantees
//
//   - Per-account ordering: events submitted sequentially are observed by
//     every connection in submission order. No reordering, no batching.
//   - No backlog: a reconnecting tab receives nothing it missed; it must
//     pull a fresh full snapshot over the HTTP API.
//   - Failure isolation: a dead or saturated connection is silently
//     removed; the emitting task is never affected.
//
// # Usage
//
//	h := hub.New(cfg.WebSocket, logger)
//	go h.Run(ctx)
//
//	// in an HTTP handler, after upgrading:
//	client := hub.NewClient(h, conn, accountID)
//	h.Register(client)
//	client.Start()
//
//	// from task code (via the hub.Sender interface):
//	h.Send(accountID, hub.EventFuelPurchased, payload)
package hub
