// Command glossynode runs a single Glossy node against a real NRF24L01
// radio, periodically publishing its lifetime statistics to an MQTT
// broker. It plays the same role as examples/simple/sender and
// examples/simple/receiver did for the bare NRF24L01 driver, but drives
// a glossy.Flood instead of talking to the radio directly.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tve-net/glossy"
	"github.com/tve-net/glossy/radionrf24"
)

func main() {
	configPath := flag.String("config", "glossynode.toml", "path to Glossy TOML config file")
	nodeID := flag.Uint("node", 1, "this node's NodeID")
	initiatorID := flag.Uint("initiator", 1, "initiator NodeID for the flood this node runs")
	payload := flag.String("payload", "", "payload to send if this node is the initiator")
	nTxMax := flag.Uint("ntx-max", 2, "n_tx_max for the flood (0 = unbounded)")
	withSync := flag.Bool("sync", true, "carry a time reference on this flood")
	period := flag.Duration("period", 10*time.Second, "interval between floods")
	mqttHost := flag.String("mqtt-host", "localhost", "MQTT broker host")
	mqttPort := flag.Int("mqtt-port", 1883, "MQTT broker port")
	mqttPrefix := flag.String("mqtt-prefix", "glossy", "MQTT topic prefix for published stats")
	flag.Parse()

	cfg, err := glossy.LoadConfig(*configPath)
	if err != nil {
		log.Printf("glossynode: %v, falling back to defaults", err)
		cfg = glossy.DefaultConfig()
	}

	dev, err := radionrf24.New(radionrf24.Config{
		RadioConfig: radionrf24.RadioConfig{
			ChannelNumber: 76,
			RxAddr:        radionrf24.Address{'G', 'L', 'O', 'S', 'Y'},
			EnableAutoAck: false,
		},
		CEPin:  25,
		IRQPin: 24,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "glossynode: opening radio: %v\n", err)
		os.Exit(1)
	}
	defer dev.Close()

	local := glossy.NodeID(*nodeID)
	timer := glossy.NewSystemTimer(cfg)
	broadcastAddr := radionrf24.Address{'G', 'L', 'O', 'S', 'Y'}
	adapter := radionrf24.NewGlossyAdapter(dev, broadcastAddr)
	flood := glossy.NewFlood(local, adapter, timer, cfg)
	adapter.SetCallbacks(flood)

	mq, err := newStatsPublisher(*mqttHost, *mqttPort, *mqttPrefix, local)
	if err != nil {
		log.Printf("glossynode: MQTT unavailable, stats won't be published: %v", err)
	}

	buf := make([]byte, cfg.PayloadLen)
	ticker := time.NewTicker(*period)
	defer ticker.Stop()

	for range ticker.C {
		var p []byte
		if glossy.NodeID(*initiatorID) == local {
			p = []byte(*payload)
		} else {
			p = buf
		}
		if err := flood.Start(glossy.NodeID(*initiatorID), p, byte(*nTxMax), *withSync, false); err != nil {
			log.Printf("glossynode: Start: %v", err)
			continue
		}

		time.Sleep(*period / 2)
		flood.Stop()

		_, lifetime := flood.Stats()
		if mq != nil {
			mq.publish(lifetime)
		}
	}
}

// statsPublisher wraps an MQTT connection dedicated to publishing Glossy
// lifetime statistics, grounded on tve-devices/cmd/mqttradio's newMQ
// connect-and-retry shape but stripped of its subscription-routing
// machinery, which a one-way stats feed does not need.
type statsPublisher struct {
	conn   mqtt.Client
	topic  string
}

func newStatsPublisher(host string, port int, prefix string, node glossy.NodeID) (*statsPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", host, port))
	opts.ClientID = fmt.Sprintf("glossynode-%d", node)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); !token.WaitTimeout(10 * time.Second) {
		return nil, token.Error()
	}
	return &statsPublisher{
		conn:  client,
		topic: fmt.Sprintf("%s/%d/stats", prefix, node),
	}, nil
}

func (p *statsPublisher) publish(s glossy.LifetimeStats) {
	msg := fmt.Sprintf(
		`{"pkt_cnt":%d,"pkt_cnt_crcok":%d,"flood_cnt":%d,"flood_cnt_success":%d,"error_cnt":%d,"per":%d,"fsr":%d}`,
		s.PktCnt, s.PktCntCRCOK, s.FloodCnt, s.FloodCntSuccess, s.ErrorCnt,
		s.PacketErrorRate(), s.FloodSuccessRate(),
	)
	p.conn.Publish(p.topic, 0, false, msg)
}
