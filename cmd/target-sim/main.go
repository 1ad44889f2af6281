// Command target-sim emulates a physical target sensor: it announces itself,
// publishes jittered hit events, and prints any LED commands it receives.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

func main() {
	brokerAddr := flag.String("broker", "tcp://localhost:1883", "MQTT broker address, e.g. tcp://localhost:1883")
	systemID := flag.String("system-id", "A", "System identifier")
	targetID := flag.String("target-id", "1", "Target identifier")
	interval := flag.Duration("interval", 3*time.Second, "Interval between published hits")
	announceEvery := flag.Duration("announce-every", 30*time.Second, "Interval between announce events")
	baseAmp := flag.Int("base-amp", 40, "Baseline amplitude to simulate")
	ampJitter := flag.Int("amp-jitter", 15, "Maximum random jitter applied to amplitude")

	flag.Parse()

	clientID := fmt.Sprintf("target-sim-%s-%s-%s", *systemID, *targetID, uuid.NewString())
	opts := mqtt.NewClientOptions().AddBroker(*brokerAddr).SetClientID(clientID)
	opts = opts.SetOrderMatters(false)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("failed to connect to broker: %v", token.Error())
	}
	log.Printf("connected to MQTT broker %s as %s", *brokerAddr, clientID)

	cmdTopic := fmt.Sprintf("targets/%s/%s/cmd", *systemID, *targetID)
	if token := client.Subscribe(cmdTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		log.Printf("received command on %s: %s", msg.Topic(), msg.Payload())
	}); token.Wait() && token.Error() != nil {
		log.Fatalf("failed to subscribe to %s: %v", cmdTopic, token.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	announce := func() {
		topic := fmt.Sprintf("targets/%s/%s/announce", *systemID, *targetID)
		token := client.Publish(topic, 0, false, []byte("{}"))
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("announce error: %v", err)
			return
		}
		log.Printf("published %s", topic)
	}

	hit := func() {
		amp := randomAmp(*baseAmp, *ampJitter)
		data, err := json.Marshal(map[string]int{"amp": amp})
		if err != nil {
			log.Printf("failed to encode payload: %v", err)
			return
		}

		topic := fmt.Sprintf("targets/%s/%s/hit", *systemID, *targetID)
		token := client.Publish(topic, 0, false, data)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("publish error: %v", err)
			return
		}
		log.Printf("published %s amp=%d", topic, amp)
	}

	announce()

	hitTicker := time.NewTicker(*interval)
	defer hitTicker.Stop()
	announceTicker := time.NewTicker(*announceEvery)
	defer announceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Print("received shutdown signal, disconnecting")
			client.Disconnect(250)
			return
		case <-hitTicker.C:
			hit()
		case <-announceTicker.C:
			announce()
		}
	}
}

func randomAmp(base, jitter int) int {
	if jitter <= 0 {
		return base
	}
	delta := rand.Intn(jitter*2+1) - jitter
	amp := base + delta
	if amp < 0 {
		amp = 0
	}
	return amp
}
