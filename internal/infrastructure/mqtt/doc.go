// Package mqtt provides MQTT client connectivity to an appliance's
// embedded broker.
//
// This package manages:
//   - One connection per appliance, authenticated with device credentials
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with panic-safe handler dispatch
//   - Connection health reporting
//
// Reconnection is deliberately absent: when a connection drops the
// SetOnDisconnect callback fires and the owner decides what to do.
//
// # Usage
//
//	client, err := mqtt.Connect(mqtt.Options{
//	    Host:     "192.168.1.50",
//	    Port:     1883,
//	    ClientID: "dyson_1a2b3c4d5e6f7a8b",
//	    Username: serial,
//	    Password: passwordHash,
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.StatusTopic("438", serial), 1,
//	    func(topic string, payload []byte) error {
//	        return nil
//	    })
//
//	err = client.Publish(mqtt.CommandTopic("438", serial), payload, 1, false)
package mqtt
