package domain

import (
	"github.com/cuongbtq/render-studio/internal/studio/events"
	amqp "github.com/rabbitmq/amqp091-go"
)

// TransitionMessage is a decoded delivery handed to the worker pool
type TransitionMessage struct {
	Event    *events.TransitionEvent
	Delivery amqp.Delivery
}
