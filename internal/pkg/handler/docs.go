// Package handler dispatches datagrams received by the session server.
//
// For each datagram the handler:
//  1. Drops it if the sender exceeded its ingress rate (when a Limiter is configured).
//  2. Decodes the 8 byte header, dropping packets that are too short.
//  3. JOIN: admits the endpoint and reliably sends WELCOME with the assigned session id.
//     A JOIN from an endpoint that already has a session costs 1 trust.
//  4. ACK, POSITION, MELEE: looks up the sender's session. Datagrams from endpoints
//     without a session are dropped.
//  5. ACK: removes the acknowledged message from the pending table. A malformed ACK
//     costs 2 trust, an ACK for an unknown message costs 1.
//  6. POSITION: checks the datagram size, the player id and the movement sequence,
//     stores the position and relays it unreliably to every other session.
//  7. MELEE: checks the datagram size, the player id and the melee sequence, and relays
//     the attack reliably to every session, the attacker included.
//
// A wrong datagram size costs 1 trust and a player id that does not match the sender's
// session costs 5. Stale sequence numbers are dropped without penalty unless a melee
// replay penalty is configured.
package handler
