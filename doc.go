// Package fanout provides an in-memory notification fan-out core for Go:
// connections join named groups (topics), and a message published to a topic
// is delivered to every connection currently in it.
//
// Works both as a library embedded in an existing HTTP service AND as a
// standalone server with websocket, SSE and REST endpoints (cmd/fanout-server).
// See examples/basic for two nodes joined by an in-memory bridge.
//
// # Features
//
//   - Group registry: Join, Leave, SubscribersOf, LeaveAll, safe for concurrent use
//   - Broadcast dispatcher with bounded concurrent sends and a per-send timeout
//   - Delivery reports: every publish says who received the message and who did not
//   - Failed sends evict the connection from all its groups and are never retried
//   - Async publishing (PublishAsync) with a blocking adapter (Await)
//   - Optional cross-process bridge over NATS, RabbitMQ or Kafka
//   - Persisted per-user notifications and help alerts via Relica adapters
//   - Options Pattern for every service, no package-level singletons
//
// # Quick Start
//
// Build a registry and a dispatcher, then attach connections:
//
//	registry, _ := fanout.NewRegistry()
//	dispatcher, _ := fanout.NewDispatcher(
//	    fanout.WithRegistry(registry),
//	    fanout.WithLogger(fanout.NewZapLogger(zapLogger)),
//	    fanout.WithSendTimeout(5*time.Second),
//	)
//	defer dispatcher.Close(ctx)
//
//	_ = dispatcher.Join("notifications", conn)
//
//	report, err := dispatcher.Publish(ctx, "notifications",
//	    model.NewMessage(model.MessageTypeNotification, "server restarting", "ops"))
//	if fanout.IsTransportUnavailable(err) {
//	    // dispatcher closed; nothing was attempted
//	}
//	log.Printf("delivered=%d failed=%v", report.Delivered(), report.FailedIDs())
//
// Transport handlers usually wrap a socket in a Session, which enforces the
// UNREGISTERED → OPEN → CLOSED lifecycle and leaves every group on close:
//
//	session, err := fanout.NewSession(dispatcher, sendFunc)
//	if err != nil {
//	    return err
//	}
//	if err := session.Open(model.TopicNotifications); err != nil {
//	    return err
//	}
//	defer session.Close()
//
// # Delivery Semantics
//
//	publish(topic, msg)
//	  → snapshot the topic's members
//	  → send to each member concurrently (at most MaxConcurrency at a time)
//	  → a send that errors or exceeds SendTimeout:
//	      log it, LeaveAll(conn), mark FAILED in the report
//	  → forward to the bridge (if configured)
//
// Delivery is at-most-once and transient. A connection that joins after the
// snapshot does not receive the message; there is no replay on reconnect.
//
// # Database Schema
//
// The notification center uses 2 tables (see MigrationFiles):
//
//	fanout_notification   - Per-user notifications with read state
//	fanout_help_alert     - Help alerts broadcast on the notifications topic
//
// Supports MySQL, PostgreSQL, and SQLite via Relica adapters.
package fanout
