// Package librefollow follows a glucose sensor through a self-hosted
// LibreLinkUp proxy server.
//
// The client runs four cooperating systems on one event loop:
//  1. Scheduler - fetches at every wall-clock minute boundary
//  2. Ticker - recomputes both countdowns once per second
//  3. Fetcher - issues patient, sensor and measurement requests concurrently
//  4. Grace period - tracks the sensor warm-up hour after activation
//
// Consumers read an immutable types.DisplayState through Snapshot or
// Subscribe; nothing outside the loop ever mutates follower state.
package librefollow
