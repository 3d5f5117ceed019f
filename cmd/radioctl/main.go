// Package main provides the operator CLI for the playback daemon.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
)

var (
	app    = kingpin.New("radioctl", "Control CLI for the radio playback daemon")
	server = app.Flag("server", "Daemon address").Default("http://127.0.0.1:8090").String()

	// toggle command
	toggleCmd   = app.Command("toggle", "Toggle playback")
	toggleURI   = toggleCmd.Flag("uri", "Stream URI (optional)").String()
	toggleTitle = toggleCmd.Flag("title", "Stream title (optional)").String()

	// play command
	playCmd   = app.Command("play", "Start or resume playback")
	playURI   = playCmd.Flag("uri", "Stream URI (optional)").String()
	playTitle = playCmd.Flag("title", "Stream title (optional)").String()

	// pause command
	pauseCmd = app.Command("pause", "Pause playback")

	// stop command
	stopCmd   = app.Command("stop", "Stop playback and release resources")
	stopForce = stopCmd.Flag("force", "Force stop from any state").Bool()

	// status command
	statusCmd = app.Command("status", "Show the current playback state")

	// watch command
	watchCmd = app.Command("watch", "Tail status notifications")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	switch command {
	case toggleCmd.FullCommand():
		postCommand("/v1/commands/toggle", *toggleURI, *toggleTitle)
	case playCmd.FullCommand():
		postCommand("/v1/commands/play", *playURI, *playTitle)
	case pauseCmd.FullCommand():
		postCommand("/v1/commands/pause", "", "")
	case stopCmd.FullCommand():
		path := "/v1/commands/stop"
		if *stopForce {
			path += "?force=true"
		}
		postCommand(path, "", "")
	case statusCmd.FullCommand():
		status()
	case watchCmd.FullCommand():
		watch()
	}
}

type snapshot struct {
	State       string `json:"state"`
	PauseReason string `json:"pause_reason"`
	Focus       string `json:"focus"`
	Station     struct {
		URI   string `json:"uri"`
		Title string `json:"title"`
	} `json:"station"`
}

func postCommand(path, uri, title string) {
	if title != "" && uri == "" {
		fmt.Println("Error: --title requires --uri")
		os.Exit(1)
	}

	var body *bytes.Reader
	if uri != "" {
		data, err := json.Marshal(map[string]string{"uri": uri, "title": title})
		if err != nil {
			fatal(err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	resp, err := http.Post(*server+path, "application/json", body)
	if err != nil {
		fatal(err)
	}
	defer resp.Body.Close()

	var snap snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		fatal(err)
	}
	if resp.StatusCode >= 400 {
		fmt.Printf("Error: daemon returned %s\n", resp.Status)
		os.Exit(1)
	}
	printSnapshot(snap)
}

func status() {
	resp, err := http.Get(*server + "/v1/status")
	if err != nil {
		fatal(err)
	}
	defer resp.Body.Close()

	var snap snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		fatal(err)
	}
	printSnapshot(snap)
}

func watch() {
	resp, err := http.Get(*server + "/v1/events")
	if err != nil {
		fatal(err)
	}
	defer resp.Body.Close()

	fmt.Println("Watching status notifications (Ctrl-C to quit)...")
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			fmt.Println(strings.TrimPrefix(line, "data: "))
		}
	}
	if err := scanner.Err(); err != nil {
		fatal(err)
	}
}

func printSnapshot(snap snapshot) {
	fmt.Printf("State: %s", snap.State)
	if snap.PauseReason != "" {
		fmt.Printf(" (%s)", snap.PauseReason)
	}
	fmt.Printf("  Focus: %s\n", snap.Focus)
	if snap.Station.URI != "" {
		fmt.Printf("Station: %s - %s\n", snap.Station.Title, snap.Station.URI)
	}
}

func fatal(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}
