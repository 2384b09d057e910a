package sink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"

	"github.com/st-keller/librefollow/component"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(err error, complete bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakeMQTT struct {
	topic        string
	payload      []byte
	retained     bool
	token        *fakeToken
	disconnected bool
}

func (f *fakeMQTT) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	f.topic = topic
	f.retained = retained
	f.payload = payload.([]byte)
	return f.token
}

func (f *fakeMQTT) Disconnect(uint) { f.disconnected = true }

func testComponent(t *testing.T) component.Component {
	t.Helper()
	c, err := component.New(component.TypeReading, "session-1", map[string]string{"value": "142"}, time.Now())
	if err != nil {
		t.Fatalf("component: %v", err)
	}
	return c
}

func TestMQTTPublish(t *testing.T) {
	fake := &fakeMQTT{token: newFakeToken(nil, true)}
	m := newMQTT(fake, "librefollow/reading", 1, true)

	c := testComponent(t)
	if err := m.Publish(context.Background(), c); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if fake.topic != "librefollow/reading" || !fake.retained {
		t.Fatalf("unexpected publish target %q retained=%v", fake.topic, fake.retained)
	}
	var got component.Component
	if err := json.Unmarshal(fake.payload, &got); err != nil || got.Checksum != c.Checksum {
		t.Fatalf("payload mismatch: %v", err)
	}
	_ = m.Close()
	if !fake.disconnected {
		t.Fatal("expected disconnect")
	}
}

func TestMQTTPublishHonoursContext(t *testing.T) {
	fake := &fakeMQTT{token: newFakeToken(nil, false)}
	m := newMQTT(fake, "t", 0, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Publish(ctx, testComponent(t)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	fake.token = newFakeToken(errors.New("not connected"), true)
	if err := m.Publish(context.Background(), testComponent(t)); err == nil {
		t.Fatal("expected token error")
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublish(t *testing.T) {
	w := &fakeWriter{}
	k := &Kafka{writer: w}
	c := testComponent(t)

	if err := k.Publish(context.Background(), c); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "session-1" {
		t.Fatalf("key = %q", msg.Key)
	}
	if len(msg.Headers) != 2 || string(msg.Headers[1].Value) != c.Checksum {
		t.Fatalf("unexpected headers %+v", msg.Headers)
	}
	_ = k.Close()
	if !w.closed {
		t.Fatal("expected writer close")
	}
}

func TestNewSinksValidate(t *testing.T) {
	if _, err := NewKafka(nil, "topic"); err == nil {
		t.Fatal("expected error without brokers")
	}
	if _, err := NewMQTT(MQTTOptions{Topic: "t"}); err == nil {
		t.Fatal("expected error without broker")
	}
	if _, err := NewKafka([]string{"localhost:9092"}, "readings"); err != nil {
		t.Fatalf("kafka writer: %v", err)
	}
}
