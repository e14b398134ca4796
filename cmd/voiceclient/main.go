// Command voiceclient is a push-to-talk terminal client for the voice
// relay. Type "help" at the prompt for the command list.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/akshaymakw8/Realtime-Voice-Agent/pkg/audio"
	paudio "github.com/akshaymakw8/Realtime-Voice-Agent/pkg/audio/portaudio"
	"github.com/akshaymakw8/Realtime-Voice-Agent/pkg/session"
)

func main() {
	os.Exit(run())
}

func run() int {
	serverURL := flag.String("server", "ws://localhost:8000", "relay server base URL")
	clientID := flag.String("client-id", "", "client identifier (empty for server-assigned)")
	agentID := flag.String("agent", "general_assistant", "agent to bind on connect")
	frameSize := flag.Int("frame-size", audio.DefaultFrameSize, "capture frame size in samples")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	lvl := slog.LevelWarn
	if *verbose {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))

	url := strings.TrimSuffix(*serverURL, "/") + "/ws"
	if *clientID != "" {
		url += "/" + *clientID
	}

	capture := audio.NewCapture(&paudio.Microphone{}, audio.WithFrameSize(*frameSize))
	player := audio.NewPlayer(&paudio.Speaker{})
	defer player.Close()

	client := session.New(url, player, session.WithCapture(capture))
	defer client.Close()

	go printEvents(client)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := client.Connect(ctx, *agentID)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voiceclient: connect %s: %v\n", url, err)
		return 1
	}

	fmt.Println("connected — \"talk\" to speak, \"done\" to send, \"help\" for more")
	repl(client)
	return 0
}

// repl reads commands from stdin until quit or EOF.
func repl(client *session.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")

		switch cmd {
		case "":
		case "talk":
			if err := client.Talk(); err != nil {
				if errors.Is(err, audio.ErrCaptureActive) {
					fmt.Println("already recording")
				} else {
					fmt.Printf("cannot start recording: %v\n", err)
				}
				continue
			}
			fmt.Println("recording — \"done\" to send")

		case "done":
			client.StopTalking()
			switch err := client.Commit(); {
			case errors.Is(err, session.ErrNothingBuffered):
				fmt.Println("nothing recorded")
			case err != nil:
				fmt.Printf("commit failed: %v\n", err)
			}

		case "cancel":
			if err := client.Cancel(); err != nil {
				fmt.Printf("cancel failed: %v\n", err)
			}

		case "switch":
			if arg == "" {
				fmt.Println("usage: switch <agent_id>")
				continue
			}
			if err := client.SwitchAgent(arg); err != nil {
				fmt.Printf("switch failed: %v\n", err)
			}

		case "say":
			if arg == "" {
				fmt.Println("usage: say <text>")
				continue
			}
			if err := client.SendText(arg); err != nil {
				fmt.Printf("send failed: %v\n", err)
			}

		case "transcript":
			for _, e := range client.Transcript() {
				who := e.Role
				if e.Role == session.RoleAssistant && e.AgentName != "" {
					who = e.AgentName
				}
				fmt.Printf("  [%s] %s: %s\n", e.CreatedAt.Format("15:04:05"), who, e.Text)
			}

		case "status":
			id, name := client.Agent()
			fmt.Printf("%s — agent %s (%s), speaking=%v\n",
				client.Status(), name, id, client.Speaking())

		case "help":
			fmt.Println("  talk            start recording")
			fmt.Println("  done            stop recording and send")
			fmt.Println("  cancel          abort the current response")
			fmt.Println("  switch <id>     rebind to another agent")
			fmt.Println("  say <text>      send a typed turn")
			fmt.Println("  transcript      show the conversation so far")
			fmt.Println("  status          show connection state")
			fmt.Println("  quit            exit")

		case "quit", "exit":
			return

		default:
			fmt.Printf("unknown command %q — try \"help\"\n", cmd)
		}
	}
}

// printEvents renders session events until the client closes.
func printEvents(client *session.Client) {
	assistantOpen := false
	for evt := range client.Events() {
		// Streamed assistant text prints inline; everything else gets
		// its own line.
		if assistantOpen && evt.Kind != session.EventAssistantDelta {
			fmt.Println()
			assistantOpen = false
		}
		switch evt.Kind {
		case session.EventConnected:
			fmt.Printf("\r* connected to %s (%s)\n> ", evt.AgentName, evt.AgentID)
		case session.EventAgentSwitched:
			fmt.Printf("\r* switched to %s (%s)\n> ", evt.AgentName, evt.AgentID)
		case session.EventUserTranscript:
			fmt.Printf("\ryou: %s\n> ", evt.Text)
		case session.EventAssistantDelta:
			if !assistantOpen {
				fmt.Printf("\r%s: ", evt.AgentName)
				assistantOpen = true
			}
			fmt.Print(evt.Text)
		case session.EventAssistantDone:
			// Text already printed incrementally.
			fmt.Print("> ")
		case session.EventError:
			fmt.Printf("\r! %s\n> ", evt.Text)
		case session.EventDisconnected:
			fmt.Print("\r* connection lost\n> ")
		}
	}
}
