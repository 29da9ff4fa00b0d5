// ws_smoke drives a two-player session against a running server:
// connect, create a room, join it, start a match and print everything
// the server says. Useful as a quick end-to-end check after deploys.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func main() {
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	// 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	url := fmt.Sprintf("ws://127.0.0.1:%s/ws", port)

	connA := dial(url)
	defer connA.Close()
	connB := dial(url)
	defer connB.Close()

	send(connA, "connect", map[string]any{"name": "SmokeA", "avatarSeed": 1})
	send(connB, "connect", map[string]any{"name": "SmokeB", "avatarSeed": 2})
	expect(connA, "connected")
	expect(connB, "connected")

	send(connA, "createRoom", nil)
	created := expect(connA, "roomCreated")

	var room struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(created.Data, &room); err != nil {
		log.Fatalf("decode roomCreated: %v", err)
	}
	fmt.Println("room:", room.Code)

	send(connB, "joinRoom", map[string]any{"code": room.Code})
	expect(connB, "roomJoined")
	expect(connA, "playerJoined")

	send(connA, "startGame", nil)
	expect(connA, "gameStarted")
	expect(connB, "gameStarted")

	fmt.Println("smoke ok")
}

func dial(url string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", url, err)
	}
	return conn
}

func send(conn *websocket.Conn, msgType string, data any) {
	msg := map[string]any{"type": msgType}
	if data != nil {
		msg["data"] = data
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Fatalf("send %s: %v", msgType, err)
	}
}

// expect reads frames until one of the wanted type shows up, failing
// on errors from the server or a 5s silence.
func expect(conn *websocket.Conn, msgType string) envelope {
	deadline := time.Now().Add(5 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		var in envelope
		if err := conn.ReadJSON(&in); err != nil {
			log.Fatalf("waiting for %s: %v", msgType, err)
		}
		fmt.Printf("<- %s %s\n", in.Type, string(in.Data))
		if in.Type == msgType {
			return in
		}
		if in.Type == "error" {
			log.Fatalf("server error while waiting for %s", msgType)
		}
	}
}
