package mqtt

import "fmt"

// maxPayloadSize caps outbound payloads. Appliance commands are a few
// hundred bytes.
const maxPayloadSize = 1 << 20

// checkTopic validates arguments shared by Publish and Subscribe.
func checkTopic(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// Publish sends payload to topic and waits for the broker to acknowledge
// it, bounded by Options.PublishTimeout.
//
// Example:
//
//	err := client.Publish(mqtt.CommandTopic("438", serial), body, 1, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if n := len(payload); n > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload over %d byte limit", ErrPublishFailed, n, maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	return await(c.paho.Publish(topic, qos, retained, payload), c.opts.PublishTimeout, ErrPublishFailed)
}
