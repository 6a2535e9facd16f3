package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/seminarlabs/seminar-core/internal/client"
	"github.com/seminarlabs/seminar-core/internal/config"
	"github.com/seminarlabs/seminar-core/internal/playback"
	"github.com/seminarlabs/seminar-core/internal/protocol"
	"github.com/seminarlabs/seminar-core/internal/synth"
)

var version = "0.1.0-dev"

func main() {
	var (
		servers     string
		docID       string
		chapterID   string
		userID      string
		userName    string
		audioMode   string
		synthCmd    string
		showVersion bool
	)

	flag.StringVar(&servers, "servers", nats.DefaultURL, "NATS server URLs, comma separated")
	flag.StringVar(&docID, "doc", "", "Document id of the chapter")
	flag.StringVar(&chapterID, "chapter", "", "Chapter id to discuss")
	flag.StringVar(&userID, "user", "", "User id (defaults to the user name)")
	flag.StringVar(&userName, "name", "student", "Display name for the human participant")
	flag.StringVar(&audioMode, "audio", "mock", "Audio mode: mock, exec or off")
	flag.StringVar(&synthCmd, "synth-cmd", "", "Synthesis command for -audio exec")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if chapterID == "" {
		fmt.Fprintln(os.Stderr, "usage: seminar-client -chapter <id> [-doc <id>] [-name <display name>]")
		os.Exit(2)
	}
	if userID == "" {
		userID = userName
	}

	conn, err := nats.Connect(servers,
		nats.Name("seminar-client"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to %s: %v\n", servers, err)
		os.Exit(1)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reply, err := startDiscussion(conn, protocol.StartDiscussionRequest{
		DocID:     docID,
		ChapterID: chapterID,
		UserID:    userID,
		UserName:  userName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "start discussion: %v\n", err)
		os.Exit(1)
	}
	if reply.TimedOut {
		fmt.Println("(the classroom is taking a while to warm up; messages will appear when ready)")
	}
	fmt.Printf("joined discussion %s\n", reply.Channel)
	for _, p := range reply.Roster {
		if p.Kind == protocol.PersonaKindSynthetic {
			fmt.Printf("  %s (%s)\n", p.Name, p.Role)
		}
	}

	sequencer := buildSequencer(ctx, audioMode, synthCmd, logger)
	if sequencer != nil {
		defer sequencer.Close()
	}

	session := client.NewSession(conn, reply.Channel, userID, userName, printMessage, sequencer, logger)
	conn.SetDisconnectErrHandler(func(_ *nats.Conn, err error) {
		session.OnDisconnected(err)
		fmt.Println("(connection lost; messages will be sent on reconnect)")
	})
	conn.SetReconnectHandler(func(_ *nats.Conn) {
		session.OnReconnected()
		fmt.Println("(reconnected)")
	})
	if err := session.Join(); err != nil {
		fmt.Fprintf(os.Stderr, "join channel: %v\n", err)
		os.Exit(1)
	}
	defer session.Leave()

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			body := strings.TrimSpace(scanner.Text())
			if body == "" {
				continue
			}
			if err := session.Send(body); err != nil {
				fmt.Fprintf(os.Stderr, "send: %v\n", err)
			}
		}
		stop()
	}()

	<-ctx.Done()
	fmt.Println("\nleaving the discussion")
}

func startDiscussion(conn *nats.Conn, req protocol.StartDiscussionRequest) (protocol.StartDiscussionReply, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return protocol.StartDiscussionReply{}, err
	}
	// the server answers within its own 15s window; leave headroom
	msg, err := conn.Request(protocol.SubjectStartDiscussion, data, 20*time.Second)
	if err != nil {
		return protocol.StartDiscussionReply{}, err
	}
	var reply protocol.StartDiscussionReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return protocol.StartDiscussionReply{}, err
	}
	if reply.Error != "" {
		return protocol.StartDiscussionReply{}, fmt.Errorf("%s", reply.Error)
	}
	return reply, nil
}

func buildSequencer(ctx context.Context, mode, command string, logger *slog.Logger) *playback.Sequencer {
	if mode == "off" {
		return nil
	}
	syn, err := synth.FromConfig(config.SynthConfig{
		Mode:       mode,
		Command:    command,
		SampleRate: 22050,
		Channels:   1,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "audio disabled: %v\n", err)
		return nil
	}
	return playback.NewSequencer(ctx, syn, nil, logger)
}

func printMessage(msg protocol.Message) {
	fmt.Printf("[%s] %s\n", msg.Persona.Name, msg.Body)
}
