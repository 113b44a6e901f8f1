// Package audit fans audit events out to secondary consumers.
//
// The authoritative audit trail is the database row written by the Engine;
// this package only relays a copy of each record, asynchronously, to a [Sink]
// such as a JSON log stream or a Kafka topic. A slow or failing sink never
// delays an authentication operation: with DropIfFull the [Dispatcher]
// counts and drops events once its buffer is full.
package audit
