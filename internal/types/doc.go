package types

// Client -> Server
// join (first message only):
//   room: string            // optional, trimmed, max 40 chars, "" -> "default"
//   key: string             // only checked when ROOM_KEY is set
//
// request_full_state: {}
//
// patch:
//   baseVersion: number     // version the client last saw
//   patch: { op: "set_state", state: { people: Person[], activePersonId: id | null, ui: {...} } }
//
// delete_room: {}

// Server -> Client
// full_state:
//   room: string
//   version: number
//   state: object
//   serverTime: number      // unix seconds, fractional
//   note?: string           // "Version mismatch, resync" on a stale patch
//
// error:
//   error: string
//
// room_deleted:
//   room: string
