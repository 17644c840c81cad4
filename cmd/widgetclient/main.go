// Command widgetclient generates widget command traffic against a running
// server and prints the replies it gets back. Useful for exercising the
// pipeline end to end from the outside.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	ceevent "github.com/cloudevents/sdk-go/v2/event"
	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/ryefield/souk/internal/channels/widget"
)

type payload struct {
	Emitter string `json:"emitter"`
	Name    string `json:"name"`
	Text    string `json:"text"`
}

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	interval, err := time.ParseDuration(cfg.Interval)
	if err != nil || interval <= 0 {
		fmt.Fprintln(os.Stderr, "interval must be a positive duration")
		os.Exit(1)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	client := &http.Client{Timeout: 10 * time.Second}
	sequence := time.Now().Unix()
	for {
		sequence++
		if err := sendCommand(client, cfg, sequence); err != nil {
			fmt.Fprintln(os.Stderr, "command error:", err)
		}
		if err := pollReplies(client, cfg); err != nil {
			fmt.Fprintln(os.Stderr, "poll error:", err)
		}
		<-ticker.C
	}
}

func loadConfig(path string) (config, error) {
	if strings.TrimSpace(path) == "" {
		return config{}, fmt.Errorf("config path is required")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return config{}, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Emitter = strings.TrimSpace(cfg.Emitter)
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.Command = strings.TrimSpace(cfg.Command)
	cfg.Interval = strings.TrimSpace(cfg.Interval)

	if cfg.BaseURL == "" || cfg.Emitter == "" || cfg.Command == "" {
		return config{}, fmt.Errorf("config must include base_url, emitter, command")
	}
	if cfg.Interval == "" {
		cfg.Interval = "10s"
	}

	return cfg, nil
}

func sendCommand(client *http.Client, cfg config, sequence int64) error {
	event := ceevent.New()
	event.SetID(uuid.NewString())
	event.SetSource("souk/widgetclient")
	event.SetType(widget.EventType)
	event.SetExtension(widget.SequenceExtension, sequence)
	if err := event.SetData(ceevent.ApplicationJSON, payload{
		Emitter: cfg.Emitter,
		Name:    cfg.Name,
		Text:    cfg.Command,
	}); err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	request, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		strings.TrimRight(cfg.BaseURL, "/")+"/webhooks/widget", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/cloudevents+json")

	resp, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delivery failed: %s", strings.TrimSpace(string(detail)))
	}

	fmt.Printf("Delivered sequence %d: %s\n", sequence, resp.Status)
	return nil
}

func pollReplies(client *http.Client, cfg config) error {
	request, err := http.NewRequestWithContext(context.Background(), http.MethodGet,
		strings.TrimRight(cfg.BaseURL, "/")+"/webhooks/widget/replies?address="+cfg.Emitter, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var decoded struct {
		Replies []string `json:"replies"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("failed to decode replies: %w", err)
	}
	for _, reply := range decoded.Replies {
		fmt.Println("Reply:", reply)
	}
	return nil
}
