package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Probe
//
// Manual test harness: connects to a running push server, subscribes to the
// given assets, sends a ping and prints every frame it receives until the
// duration elapses. Useful against a dev-mode server:
//
//	go run ./cmd/probe -url ws://localhost:8090/ws -token dev-secret -assets 1,2,3
//
// -----------------------------------------------------------------------------

func main() {
	url := flag.String("url", "ws://localhost:8090/ws", "websocket endpoint")
	token := flag.String("token", "", "bearer token (query parameter)")
	assets := flag.String("assets", "1", "comma separated asset ids")
	subType := flag.String("type", "asset_data", "subscription type")
	duration := flag.Duration("duration", 30*time.Second, "how long to listen")
	flag.Parse()

	target := *url + "?token=" + *token
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		fmt.Printf("dial failed: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	ids := splitIDs(*assets)

	send := func(v interface{}) {
		if err := conn.WriteJSON(v); err != nil {
			fmt.Printf("write failed: %v\n", err)
			os.Exit(1)
		}
	}

	send(map[string]interface{}{"action": "subscribe", "asset_ids": ids, "type": *subType})
	send(map[string]interface{}{"action": "ping"})
	send(map[string]interface{}{"action": "get_subscriptions"})

	deadline := time.Now().Add(*duration)
	conn.SetReadDeadline(deadline)

	for time.Now().Before(deadline) {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			fmt.Printf("read ended: %v\n", err)
			return
		}
		var pretty map[string]interface{}
		if err := json.Unmarshal(raw, &pretty); err != nil {
			fmt.Printf("<- %s\n", raw)
			continue
		}
		out, _ := json.Marshal(pretty)
		fmt.Printf("<- %s\n", out)
	}
}

// -----------------------------------------------------------------------------

func splitIDs(s string) []int64 {
	var ids []int64
	var current int64
	var has bool
	for _, r := range s {
		if r >= '0' && r <= '9' {
			current = current*10 + int64(r-'0')
			has = true
			continue
		}
		if has {
			ids = append(ids, current)
			current, has = 0, false
		}
	}
	if has {
		ids = append(ids, current)
	}
	return ids
}
