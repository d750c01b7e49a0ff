package outbox

// Event is the domain event envelope written to the outbox table within
// the transaction that produced it. The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types emitted by this service.
const (
	EventAppointmentCreated     = "appointment.created.v1"
	EventAppointmentRescheduled = "appointment.rescheduled.v1"
	EventAppointmentCancelled   = "appointment.cancelled.v1"
	EventReminderEscalated      = "reminder.escalated.v1"
)
