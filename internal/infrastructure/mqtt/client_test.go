package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/homecore/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "homecore-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
		TopicPrefix: "homecore-test",
	}
}

// connectOrSkip connects to a local broker, skipping when none is running.
func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	client, err := Connect(testConfig())
	if err != nil {
		t.Skipf("no MQTT broker on 127.0.0.1:1883: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

// =============================================================================
// Topic Tests
// =============================================================================

func TestTopics(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"default status", Topics{}.SystemStatus(), "homecore/system/status"},
		{"custom status", Topics{Prefix: "site1"}.SystemStatus(), "site1/system/status"},
		{"trimmed prefix", Topics{Prefix: "/site1/"}.SystemStatus(), "site1/system/status"},
		{"default alerts", Topics{}.Alerts(""), "homecore/alerts"},
		{"custom alerts", Topics{Prefix: "site1"}.Alerts("/notices"), "site1/notices"},
		{"all", Topics{}.All(), "homecore/#"},
		{"join skips empty", Topics{}.Join("a", "", "b"), "homecore/a/b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

// =============================================================================
// Option Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "core"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "homecore-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "core" || opts.Password != "secret" {
		t.Errorf("credentials not applied: %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect with a clean session")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
	if opts.TLSConfig != nil {
		t.Error("TLSConfig set without TLS enabled")
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].String(); got != "ssl://127.0.0.1:8883" {
		t.Errorf("broker = %q, want ssl://127.0.0.1:8883", got)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("expected TLS 1.2 minimum")
	}
	if opts.Username != "" {
		t.Errorf("Username = %q, want empty for anonymous", opts.Username)
	}
}

func TestNewClientConfiguresWill(t *testing.T) {
	c := newClient(testConfig())

	if !c.options.WillEnabled {
		t.Fatal("WillEnabled = false")
	}
	if c.options.WillTopic != "homecore-test/system/status" {
		t.Errorf("WillTopic = %q", c.options.WillTopic)
	}
	if !c.options.WillRetained || c.options.WillQos != 1 {
		t.Errorf("will retained=%v qos=%d, want true/1", c.options.WillRetained, c.options.WillQos)
	}

	var status statusPayload
	if err := json.Unmarshal(c.options.WillPayload, &status); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if status.Status != "offline" || status.Reason != "unexpected_disconnect" {
		t.Errorf("will payload = %+v", status)
	}
	if c.Topics().SystemStatus() != c.options.WillTopic {
		t.Error("Topics() disagrees with the will topic")
	}
}

func TestStatusPayloads(t *testing.T) {
	var online, offline statusPayload
	if err := json.Unmarshal([]byte(buildOnlinePayload("core-1")), &online); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(buildOfflinePayload("core-1")), &offline); err != nil {
		t.Fatal(err)
	}

	if online.Status != "online" || online.ClientID != "core-1" || online.Reason != "" {
		t.Errorf("online = %+v", online)
	}
	if offline.Status != "offline" || offline.Reason != "graceful_shutdown" {
		t.Errorf("offline = %+v", offline)
	}
	if _, err := time.Parse(time.RFC3339, online.Timestamp); err != nil {
		t.Errorf("timestamp %q: %v", online.Timestamp, err)
	}
	if strings.Contains(buildOnlinePayload("x"), "reason") {
		t.Error("online payload should omit reason")
	}
}

// =============================================================================
// Validation Tests (no broker)
// =============================================================================

func TestPublishValidation(t *testing.T) {
	c := newClient(testConfig())

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"bad qos", "a/b", []byte("x"), 3, ErrInvalidQoS},
		{"too large", "a/b", make([]byte, maxPayloadSize+1), 0, ErrPublishFailed},
		{"disconnected", "a/b", []byte("x"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := newClient(testConfig())
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: %v", err)
	}
	if err := c.Subscribe("a", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos: %v", err)
	}
	if err := c.Subscribe("a", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: %v", err)
	}
	if err := c.Subscribe("a", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0 after failures", c.SubscriptionCount())
	}

	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe empty: %v", err)
	}
	if err := c.Unsubscribe("a"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe disconnected: %v", err)
	}
}

func TestHealthCheckWithoutConnection(t *testing.T) {
	c := newClient(testConfig())

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) = %v, want context.Canceled", err)
	}
}

func TestCloseNil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("nil Close() = %v", err)
	}
	if c.IsConnected() {
		t.Error("nil client reports connected")
	}
	if err := newClient(testConfig()).Close(); err != nil {
		t.Errorf("unconnected Close() = %v", err)
	}
}

func TestDispatchRecoversAndLogs(t *testing.T) {
	c := newClient(testConfig())
	logger := &recordingLogger{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { panic("bad driver") }, "a", nil)
	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "a", nil)
	c.dispatch(func(string, []byte) error { return nil }, "a", nil)

	if len(logger.errors) != 1 {
		t.Errorf("errors logged = %d, want 1", len(logger.errors))
	}
	if len(logger.warns) != 1 {
		t.Errorf("warnings logged = %d, want 1", len(logger.warns))
	}
}

func TestDisconnectCallback(t *testing.T) {
	c := newClient(testConfig())
	var got error
	c.SetOnDisconnect(func(err error) { got = err })

	c.connected = true
	c.handleDisconnect(errors.New("link down"))

	if got == nil || got.Error() != "link down" {
		t.Errorf("callback error = %v", got)
	}
	if c.connected {
		t.Error("still marked connected")
	}
}

// =============================================================================
// Broker Tests
// =============================================================================

func TestConnect(t *testing.T) {
	client := connectOrSkip(t)

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}
}

func TestConnectRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	client := connectOrSkip(t)
	topic := client.Topics().Join("test", "roundtrip")

	received := make(chan string, 1)
	if err := client.Subscribe(topic, 1, func(_ string, payload []byte) error {
		received <- string(payload)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(topic) {
		t.Error("HasSubscription() = false")
	}

	if err := client.Publish(topic, []byte(`{"state":"ON"}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got != `{"state":"ON"}` {
			t.Errorf("payload = %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	if err := client.Unsubscribe(topic); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
}

func TestCloseTwice(t *testing.T) {
	client := connectOrSkip(t)

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := client.Publish("a/b", nil, 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish after Close = %v, want ErrNotConnected", err)
	}
}
