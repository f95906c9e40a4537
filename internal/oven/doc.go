// Package oven implements the device state engine for ovenlink.
//
// The engine turns raw cloud messages — push updates, poll responses,
// discovery payloads, in either wire dialect — into one authoritative,
// always-consistent snapshot per physical oven.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────────┐
//	│                          Oven State Engine                           │
//	│                                                                      │
//	│  ┌──────────────────┐    ┌──────────────────┐   ┌────────────────┐   │
//	│  │    Normalizer    │    │     Registry     │   │   Publisher    │   │
//	│  │ (normalize.go)   │───▶│  (registry.go)   │──▶│ (publisher.go) │   │
//	│  │                  │    │                  │   │                │   │
//	│  │ • dialect probe  │    │ • identity map   │   │ • per-device   │   │
//	│  │ • node mapping   │    │ • merge engine   │   │   observers    │   │
//	│  │ • unit canon     │    │ • freshness      │   │ • deep-copied  │   │
//	│  │ • markers        │    │   markers        │   │   snapshots    │   │
//	│  └──────────────────┘    └──────────────────┘   └────────────────┘   │
//	│                                   │                                  │
//	└───────────────────────────────────│──────────────────────────────────┘
//	                                    ▼
//	                        ┌──────────────────────┐
//	                        │  StateHistoryStore   │
//	                        │ (state_history table)│
//	                        └──────────────────────┘
//
// # Key Types
//
//   - DeviceSnapshot: best-known state of one oven, every field group
//     independently nullable
//   - StateDelta: the sparse output of normalizing one raw message
//   - Marker: freshness marker (message version, or receipt time when
//     the message carried none)
//   - Registry: identity map plus the per-device merge engine
//   - Publisher: change fan-out with reader isolation
//
// # Merge Semantics
//
// Deltas merge field group by field group. A group applies when the
// delta's marker is at least as fresh as the group's last accepted
// marker (ties accept, so re-delivered messages are idempotent) and is
// skipped when strictly staler. Groups absent from a delta are never
// touched, so a partial push can never blank out state learned from an
// earlier full poll.
//
// # Thread Safety
//
// All exported types are safe for concurrent use. Merges for one device
// are serialized on the device's own lock; different devices merge
// concurrently. Observer callbacks run with no engine locks held.
package oven
