// Package server implements the dispatch loop of the dungeon session server.
//
// The server performs the following steps:
//  1. A reader goroutine performs blocking receives on the transport and queues every
//     datagram for the dispatch goroutine.
//  2. The dispatch goroutine hands each queued datagram to the handler, which owns all
//     session, trust, sequence and pending state. Errors returned by the handler are
//     logged and the loop carries on.
//  3. On every tick of the sweep ticker the dispatch goroutine retransmits reliable
//     messages that have not been acknowledged in time, independently of inbound traffic.
//  4. When the context is cancelled or the transport fails, the transport is closed and
//     the reader goroutine is awaited before Run returns.
//
// A status hook reports when the loop starts and stops serving, which the health
// service uses to flip between SERVING and NOT_SERVING.
package server
