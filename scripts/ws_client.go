// Package main runs a demo WebSocket client for route events: it builds a
// route for today, subscribes to its event stream, then re-optimizes to
// trigger an event.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)
	today := time.Now().Format("2006-01-02")

	routeID := optimize(base, today)
	log.Printf("Route ID: %s", routeID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: fmt.Sprintf("/v1/routes/%s/events/ws", routeID)}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var evt struct {
				Type string         `json:"type"`
				Data map[string]any `json:"data"`
			}
			if err := c.ReadJSON(&evt); err != nil {
				log.Printf("read: %v", err)
				return
			}
			data, _ := json.Marshal(evt.Data)
			log.Printf("WS <- %s: %s", evt.Type, data)
		}
	}()

	// Re-optimize to trigger a route.optimized event on the stream.
	time.Sleep(500 * time.Millisecond)
	_ = optimize(base, today)

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}

func optimize(base, date string) string {
	body := []byte(fmt.Sprintf(`{"tenantId":"t_demo","providerId":"p_demo","date":%q}`, date))
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/routes/optimize", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var out struct {
		RouteID string `json:"routeId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatal(err)
	}
	if out.RouteID == "" {
		log.Fatal("no route returned; seed a provider p_demo first")
	}
	return out.RouteID
}
