// Package client implements a demo player for the dungeon session server.
//
// The client performs the following steps:
//  1. Sends JOIN to the server.
//  2. Waits for WELCOME, acknowledges it and remembers the session id it carries.
//  3. On every tick sends a POSITION update with the next movement sequence number,
//     until the configured number of moves has been sent.
//  4. Sends one MELEE with melee sequence number 1.
//  5. Acknowledges every reliable message from the server, and returns once the server
//     relayed the client's own attack back to it.
//
// Position updates of other players are counted and logged at debug level.
//
// Datagrams that do not come from the server endpoint are ignored. The client never
// resends JOIN: the server retransmits WELCOME until it is acknowledged, and a second
// JOIN from the same endpoint would cost trust.
package client
