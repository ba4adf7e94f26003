//go:build integration

package mqtt

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-ism7/internal/infrastructure/config"
)

// Integration tests against a real broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
		TopicRoot: "ism7-int",
	}
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	client, err := Connect(integrationConfig("ism7-int-sub-track"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topics := []string{
		"ism7-int/raw/+/rx",
		"ism7-int/boiler/set/#",
		"ism7-int/heatpump/set/#",
	}
	handler := func(string, []byte) error { return nil }

	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if client.SubscriptionCount() != len(topics) {
		t.Errorf("SubscriptionCount() = %d, want %d", client.SubscriptionCount(), len(topics))
	}

	if err := client.Unsubscribe(topics[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(topics[0]) {
		t.Errorf("HasSubscription(%s) = true after unsubscribe", topics[0])
	}
}

func TestIntegration_MessageRoundtrip(t *testing.T) {
	pubClient, err := Connect(integrationConfig("ism7-int-pub"))
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pubClient.Close()

	subClient, err := Connect(integrationConfig("ism7-int-sub"))
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer subClient.Close()

	expected := `{"telegrams":[{"nr":12,"low":215,"high":0}]}`
	received := make(chan string, 1)
	var once sync.Once

	err = subClient.Subscribe("ism7-int/raw/+/rx", 1, func(_ string, p []byte) error {
		once.Do(func() { received <- string(p) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pubClient.Publish("ism7-int/raw/boiler/rx", []byte(expected), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg != expected {
			t.Errorf("Received = %q, want %q", msg, expected)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for message")
	}

	if got := pubClient.Stats().Published; got != 1 {
		t.Errorf("publisher Stats().Published = %d, want 1", got)
	}
	if stats := subClient.Stats(); stats.Received == 0 || stats.LastReceived.IsZero() {
		t.Errorf("subscriber stats = %+v", stats)
	}
}

func TestIntegration_OnlineStatusRetained(t *testing.T) {
	client, err := Connect(integrationConfig("ism7-int-status"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	time.Sleep(100 * time.Millisecond)

	observer, err := Connect(integrationConfig("ism7-int-status-observer"))
	if err != nil {
		t.Fatalf("Connect() observer error = %v", err)
	}
	defer observer.Close()

	statuses := make(chan statusPayload, 4)
	err = observer.Subscribe(client.Topics().SystemStatus(), 1, func(_ string, p []byte) error {
		var s statusPayload
		if err := json.Unmarshal(p, &s); err != nil {
			return err
		}
		statuses <- s
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case s := <-statuses:
		if s.Status != statusOnline {
			t.Errorf("retained status = %q, want online", s.Status)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for retained status")
	}
}
