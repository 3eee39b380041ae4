// Package broker delivers encoded order events to a message broker.
//
// RabbitPublisher sends each message to a durable topic exchange using the event type as
// routing key and waits for the publisher confirm. KafkaPublisher sends each message to
// the topic named after the event type, keyed by order id so one order's events land on
// one partition.
package broker
