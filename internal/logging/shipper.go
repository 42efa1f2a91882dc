package logging

import "github.com/streadway/amqp"

// Shipper forwards log records to an external aggregation sink. It stands in
// for spec.md's out-of-scope "log-shipping sink" collaborator: the sink's
// existence is in scope, its internals are not.
type Shipper interface {
	Ship(body []byte)
	Close()
}

// AMQPShipper publishes log records to a fanout exchange, the same topology
// the connection service used for connection-lifecycle notifications,
// repurposed here to carry structured log records instead.
type AMQPShipper struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewAMQPShipper dials amqpURL and declares the log exchange eagerly so a
// misconfigured endpoint fails fast at startup rather than on the first
// dropped log line.
func NewAMQPShipper(amqpURL, exchange string) (*AMQPShipper, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPShipper{conn: conn, channel: ch, exchange: exchange}, nil
}

// Ship publishes body to the log exchange. Failures are not surfaced: a log
// shipper that can itself fail loudly risks turning a logging hiccup into an
// application error, so publish errors are simply dropped here.
func (s *AMQPShipper) Ship(body []byte) {
	_ = s.channel.Publish(s.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

func (s *AMQPShipper) Close() {
	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}
