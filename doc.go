// Package fluentforward is a client-side log/event forwarder: it ingests
// structured records from application code and delivers them reliably to
// an upstream aggregator speaking the Fluentd Forward Protocol, an
// ordered, length-prefixed, MessagePack-framed TCP protocol.
//
// The core is a buffering, flushing, and sending pipeline: Forwarder.Emit
// converts a record into a per-tag MessagePack chunk in buffer.Buffer,
// periodic or synchronous flushing hands sealed chunks to transport.Transporter,
// which frames them for the sender.Sender stack (single connection,
// multi-endpoint failover, retry with backoff), optionally verifying an
// application-level acknowledgment and spilling to disk when the upstream
// is unavailable.
package fluentforward
