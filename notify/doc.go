// Package notify publishes account notifications over Redis Pub/Sub.
//
// The engine only publishes. Delivery to connected clients belongs to whatever
// subscribes to the channel.
package notify
