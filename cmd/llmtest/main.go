package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/heitor/cmd/mainconfig"
	"github.com/wolfman30/heitor/internal/app/bootstrap"
	"github.com/wolfman30/heitor/internal/assistant"
	appconfig "github.com/wolfman30/heitor/internal/config"
	"github.com/wolfman30/heitor/internal/conversation"
	"github.com/wolfman30/heitor/pkg/logging"
)

// llmtest is a local console: each stdin line is handled as an inbound
// WhatsApp message against an in-memory conversation.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	from := flag.String("from", "5511999999999", "sender phone number")
	group := flag.String("group", "", "group id; empty for a private chat")
	flag.Parse()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("load AWS config: %v", err)
	}
	completer, closeCompleter, err := bootstrap.BuildCompleter(ctx, cfg, mainconfig.AWSClients(awsCfg, cfg), logger)
	if err != nil {
		log.Fatalf("build completer: %v", err)
	}
	defer closeCompleter()

	engine := conversation.NewEngine(conversation.NewMemoryStore(), logger,
		conversation.WithLimits(cfg.Limits()),
		conversation.WithSaveAttempts(cfg.SaveAttempts),
		conversation.WithAssistantName(cfg.AssistantName),
	)
	responder := assistant.NewResponder(engine, completer, logger,
		assistant.WithPersona(assistant.DefaultPersona(cfg.AssistantName, cfg.OwnerName)),
		assistant.WithRand(rand.New(rand.NewSource(time.Now().UnixNano()))),
		assistant.WithAudioChance(cfg.AudioReplyChance),
	)

	fmt.Printf("Talking to %s via %q. Ctrl-D to quit.\n", cfg.AssistantName, cfg.LLMProvider)
	scanner := bufio.NewScanner(os.Stdin)
	for fmt.Print("> "); scanner.Scan(); fmt.Print("> ") {
		body := strings.TrimSpace(scanner.Text())
		if body == "" {
			continue
		}
		msg := conversation.Message{
			ID:        fmt.Sprintf("local-%d", time.Now().UnixNano()),
			From:      *from,
			Body:      body,
			Timestamp: time.Now(),
			Type:      conversation.MessageText,
			IsGroup:   *group != "",
			GroupID:   *group,
		}

		start := time.Now()
		reply, err := responder.Handle(ctx, msg)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		if reply.Skipped {
			fmt.Println("(no reply: group message outside art/promotion requests)")
			continue
		}
		fmt.Printf("%s: %s\n", cfg.AssistantName, reply.Text)
		fmt.Printf("  confidence=%.2f audio=%v fallback=%v elapsed=%v\n",
			reply.Confidence, reply.SendAudio, reply.Fallback, time.Since(start).Round(time.Millisecond))
		if len(reply.SuggestedActions) > 0 {
			fmt.Printf("  actions=%s\n", strings.Join(reply.SuggestedActions, ", "))
		}
		if conv := reply.Conversation; conv != nil {
			fmt.Printf("  topic=%q intent=%s emotion=%s urgency=%s\n",
				conv.Context.CurrentTopic, conv.Context.LastIntent, conv.Context.EmotionalState, conv.Context.Urgency)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("read stdin: %v", err)
	}
}
