// Command trigger publishes a single user event to the broker, the same
// message the host application emits on profile changes. Useful to force a
// sync for one user from the command line.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"time"

	"github.com/Guizzs26/go-user-sync/internal/config"
	"github.com/Guizzs26/go-user-sync/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	userID := flag.Int64("user", 0, "user id to sync")
	event := flag.String("event", models.EventUserUpdated, "event type (user_created or user_updated)")
	flag.Parse()

	if *userID <= 0 {
		log.Fatal("missing required -user flag")
	}

	cfg := config.Load()

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal(err)
	}

	if err = ch.Confirm(false); err != nil {
		log.Fatal(err)
	}

	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	if err = ch.ExchangeDeclare(
		"users.topic",
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		log.Fatal(err)
	}

	body, _ := json.Marshal(models.UserEvent{
		UserID:    *userID,
		Event:     *event,
		Timestamp: time.Now().Unix(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	routingKey := "user.updated"
	if *event == models.EventUserCreated {
		routingKey = "user.created"
	}

	if err := ch.PublishWithContext(
		ctx,
		"users.topic",
		routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
		},
	); err != nil {
		log.Fatal(err)
	}

	if confirmed := <-confirms; confirmed.Ack {
		log.Printf(" [OK] Event for user %d confirmed by the broker", *userID)
	} else {
		log.Printf(" [ERROR] Event for user %d was not confirmed (Nack)", *userID)
	}
}
