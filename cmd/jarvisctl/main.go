// Jarvisctl - Terminal client for the Jarvis assistant backend
// License: MIT
//
// Copyright (c) 2026 Jarvisctl contributors

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/dotsetgreg/jarvisctl/pkg/backend"
	"github.com/dotsetgreg/jarvisctl/pkg/bus"
	"github.com/dotsetgreg/jarvisctl/pkg/channels"
	"github.com/dotsetgreg/jarvisctl/pkg/chat"
	"github.com/dotsetgreg/jarvisctl/pkg/config"
	"github.com/dotsetgreg/jarvisctl/pkg/heartbeat"
	"github.com/dotsetgreg/jarvisctl/pkg/logger"
	"github.com/dotsetgreg/jarvisctl/pkg/session"
	"github.com/dotsetgreg/jarvisctl/pkg/store"
	"github.com/dotsetgreg/jarvisctl/pkg/utils"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const appName = "jarvisctl"

// formatVersion returns the version string with optional git commit
func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func formatBuildInfo() (build string, goVer string) {
	if buildTime != "" {
		build = buildTime
	}
	goVer = goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return
}

func printVersion() {
	fmt.Printf("%s %s\n", appName, formatVersion())
	build, goVer := formatBuildInfo()
	if build != "" {
		fmt.Printf("  Build: %s\n", build)
	}
	if goVer != "" {
		fmt.Printf("  Go: %s\n", goVer)
	}
}

func main() {
	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".jarvisctl", "config.json")
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(getConfigPath())
}

func buildClient(cfg *config.Config) *backend.Client {
	return backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Proxy, cfg.BackendTimeout())
}

func openStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(cfg.DatabasePath())
}

func onboard() {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists at %s\n", configPath)
		fmt.Print("Overwrite? (y/n): ")
		reader := bufio.NewReader(os.Stdin)
		response, readErr := reader.ReadString('\n')
		if readErr != nil {
			fmt.Printf("Error reading input: %v\n", readErr)
			fmt.Println("Aborted.")
			return
		}
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return
		}
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(configPath, cfg); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s is ready!\n", appName)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Start the Jarvis backend (default: http://localhost:8000)")
	fmt.Println("  2. Adjust", configPath, "if the backend runs elsewhere")
	fmt.Println("  3. (Gateway mode) Add your Discord bot token to channels.discord.token")
	fmt.Println("  4. Chat: jarvisctl chat")
	fmt.Println("  5. Check readiness: jarvisctl status")
}

func chatCmd() {
	message := ""
	mode := ""
	model := ""
	memory := ""

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--debug", "-d":
			logger.SetLevel(logger.DEBUG)
			fmt.Println("🔍 Debug mode enabled")
		case "-m", "--message":
			if i+1 < len(args) {
				message = args[i+1]
				i++
			}
		case "--mode":
			if i+1 < len(args) {
				mode = args[i+1]
				i++
			}
		case "--model":
			if i+1 < len(args) {
				model = args[i+1]
				i++
			}
		case "--memory":
			if i+1 < len(args) {
				memory = args[i+1]
				i++
			}
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	st, err := openStore(cfg)
	if err != nil {
		fmt.Printf("Error opening conversation store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	opts := session.Options{
		Mode:                cfg.Chat.Mode,
		Model:               cfg.Chat.Model,
		MemoryMode:          chat.MemoryMode(cfg.Chat.MemoryMode),
		CitationEnforcement: cfg.Chat.CitationEnforcement,
	}
	if mode != "" {
		opts.Mode = mode
	}
	if model != "" {
		opts.Model = model
	}
	if memory != "" {
		opts.MemoryMode = chat.MemoryMode(memory)
	}

	client := buildClient(cfg)
	ctrl, err := session.New(client, st, opts)
	if err != nil {
		fmt.Printf("Error starting session: %v\n", err)
		os.Exit(1)
	}

	if message != "" {
		reply, err := ctrl.Send(context.Background(), message, printStep)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		printAssistant(reply)
		return
	}

	fmt.Printf("%s Interactive mode (Ctrl+C to exit, /help for commands)\n\n", appName)
	interactiveMode(ctrl, client)
}

func interactiveMode(ctrl *session.Controller, client *backend.Client) {
	prompt := fmt.Sprintf("%s You: ", appName)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".jarvisctl_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})

	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		simpleInteractiveMode(ctrl, client)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		if !handleLine(ctrl, client, line) {
			return
		}
	}
}

func simpleInteractiveMode(ctrl *session.Controller, client *backend.Client) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("%s You: ", appName)
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		if !handleLine(ctrl, client, line) {
			return
		}
	}
}

// handleLine processes one line of interactive input. Returns false
// when the session should end.
func handleLine(ctrl *session.Controller, client *backend.Client, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}

	if input == "exit" || input == "quit" {
		fmt.Println("Goodbye!")
		return false
	}

	if strings.HasPrefix(input, "/") {
		handleSlashCommand(ctrl, client, input)
		return true
	}

	reply, err := ctrl.Send(context.Background(), input, printStep)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return true
	}
	printAssistant(reply)
	return true
}

func handleSlashCommand(ctrl *session.Controller, client *backend.Client, input string) {
	fields := strings.Fields(input)
	command := fields[0]
	arg := ""
	if len(fields) > 1 {
		arg = strings.Join(fields[1:], " ")
	}

	switch command {
	case "/help":
		printSlashHelp()
	case "/new":
		if err := ctrl.NewConversation(); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Println("Started a new conversation.")
	case "/open":
		if arg == "" {
			fmt.Println("Usage: /open <conversation-id>")
			return
		}
		if err := ctrl.OpenConversation(arg); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("Opened conversation %s (%d messages).\n", arg, len(ctrl.Messages()))
	case "/history":
		for _, msg := range ctrl.Messages() {
			role := "You"
			if msg.Role == chat.RoleAssistant {
				role = appName
			}
			fmt.Printf("  %s: %s\n", role, utils.Truncate(msg.Text, 80))
		}
	case "/mode":
		if arg == "" {
			fmt.Printf("Current mode: %s\n", ctrl.Mode())
			return
		}
		ctrl.SetMode(arg)
		fmt.Printf("Mode set to %s.\n", arg)
	case "/model":
		if arg == "" {
			fmt.Printf("Current model: %s\n", ctrl.Model())
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.SwitchModel(ctx, arg); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		ctrl.SetModel(arg)
		fmt.Printf("Model set to %s.\n", arg)
	case "/memory":
		if arg == "" {
			fmt.Printf("Current memory mode: %s\n", ctrl.MemoryMode())
			return
		}
		if err := ctrl.SetMemoryMode(chat.MemoryMode(arg)); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("Memory mode set to %s.\n", arg)
	case "/upload":
		if arg == "" {
			fmt.Println("Usage: /upload <file-path>")
			return
		}
		uploadAndSummarize(ctrl, arg)
	case "/docs":
		docs := ctrl.SessionDocIDs()
		if len(docs) == 0 {
			fmt.Println("No session documents.")
			return
		}
		for _, id := range docs {
			fmt.Printf("  %s\n", id)
		}
	default:
		fmt.Printf("Unknown command: %s (try /help)\n", command)
	}
}

func printSlashHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /new              Start a new conversation")
	fmt.Println("  /open <id>        Open a stored conversation")
	fmt.Println("  /history          Show the current conversation")
	fmt.Println("  /mode [m]         Show or set chat mode (mixed, context_only, general_only)")
	fmt.Println("  /model [m]        Show or switch backend model (fast, balanced, quality)")
	fmt.Println("  /memory [m]       Show or set memory mode (stateless, short-term, long-term)")
	fmt.Println("  /upload <path>    Upload a document to the knowledge base")
	fmt.Println("  /docs             List documents uploaded this session")
	fmt.Println("  exit, quit        Leave the session")
}

// uploadAndSummarize uploads a file and asks for a summary grounded
// only in the uploaded content.
func uploadAndSummarize(ctrl *session.Controller, path string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, notice, err := ctrl.UploadDocument(ctx, path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("✓ %s\n", notice.Text)

	previousMode := ctrl.Mode()
	ctrl.SetMode("context_only")
	defer ctrl.SetMode(previousMode)

	summaryPrompt := fmt.Sprintf("Briefly summarize the document %s.", filepath.Base(path))
	reply, err := ctrl.Send(context.Background(), summaryPrompt, printStep)
	if err != nil {
		logger.WarnCF("cli", "Post-upload summary failed", map[string]interface{}{
			"doc_id": result.DocID,
			"error":  err.Error(),
		})
		return
	}
	printAssistant(reply)
}

func gatewayCmd() {
	args := os.Args[2:]
	for _, arg := range args {
		if arg == "--debug" || arg == "-d" {
			logger.SetLevel(logger.DEBUG)
			fmt.Println("🔍 Debug mode enabled")
			break
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(cfg.Channels.Discord.Token) == "" {
		fmt.Printf("Configuration error: channels.discord.token is required in %s or JARVISCTL_CHANNELS_DISCORD_TOKEN\n", getConfigPath())
		os.Exit(1)
	}

	st, err := openStore(cfg)
	if err != nil {
		fmt.Printf("Error opening conversation store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	client := buildClient(cfg)
	msgBus := bus.NewMessageBus()

	gateway := session.NewGateway(client, st, msgBus, session.Options{
		Mode:                cfg.Chat.Mode,
		Model:               cfg.Chat.Model,
		MemoryMode:          chat.MemoryMode(cfg.Chat.MemoryMode),
		CitationEnforcement: cfg.Chat.CitationEnforcement,
	})

	channelManager, err := channels.NewManager(cfg, msgBus)
	if err != nil {
		fmt.Printf("Error creating channel manager: %v\n", err)
		os.Exit(1)
	}

	info := session.NewBackendInfo()
	heartbeatService, err := heartbeat.NewService(cfg.Heartbeat, func(ctx context.Context) error {
		return info.Refresh(ctx, client)
	})
	if err != nil {
		fmt.Printf("Error creating heartbeat service: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := heartbeatService.Start(); err != nil {
		fmt.Printf("Error starting heartbeat service: %v\n", err)
	}

	if err := channelManager.StartAll(ctx); err != nil {
		fmt.Printf("Error starting channels: %v\n", err)
		cancel()
		heartbeatService.Stop()
		os.Exit(1)
	}

	go gateway.Run(ctx)

	fmt.Println("✓ Gateway started")
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	<-sigChan

	fmt.Println("\nShutting down...")
	cancel()
	heartbeatService.Stop()
	channelManager.StopAll(context.Background())
	msgBus.Close()
	fmt.Println("✓ Gateway stopped")
}

func statusCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	configPath := getConfigPath()

	fmt.Printf("%s Status\n", appName)
	fmt.Printf("Version: %s\n", formatVersion())
	build, _ := formatBuildInfo()
	if build != "" {
		fmt.Printf("Build: %s\n", build)
	}
	fmt.Println()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("Config:", configPath, "✓")
	} else {
		fmt.Println("Config:", configPath, "✗ (run 'jarvisctl onboard')")
	}

	dbPath := cfg.DatabasePath()
	if _, err := os.Stat(dbPath); err == nil {
		fmt.Println("Conversation DB:", dbPath, "✓")
	} else {
		fmt.Println("Conversation DB:", dbPath, "not initialized")
	}

	fmt.Printf("Backend: %s\n", cfg.Backend.BaseURL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := buildClient(cfg)
	health, err := client.Health(ctx)
	if err != nil {
		fmt.Println("Backend health: ✗", err)
	} else {
		fmt.Printf("Backend health: %s ✓\n", health.Status)
		fmt.Printf("  Documents: %d\n", health.ChromaDocuments)
		fmt.Printf("  Embedding model: %s\n", health.EmbeddingModel)
	}

	discordReady := strings.TrimSpace(cfg.Channels.Discord.Token) != ""
	if discordReady {
		fmt.Println("Discord token: ✓")
	} else {
		fmt.Println("Discord token: not set")
	}
	fmt.Printf("Chat defaults: mode=%s model=%s memory=%s\n", cfg.Chat.Mode, cfg.Chat.Model, cfg.Chat.MemoryMode)
}

func uploadCmd() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: jarvisctl upload <file-path>")
		return
	}
	path := os.Args[2]

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	st, err := openStore(cfg)
	if err != nil {
		fmt.Printf("Error opening conversation store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctrl, err := session.New(buildClient(cfg), st, session.Options{
		Mode:       cfg.Chat.Mode,
		Model:      cfg.Chat.Model,
		MemoryMode: chat.MemoryMode(cfg.Chat.MemoryMode),
	})
	if err != nil {
		fmt.Printf("Error starting session: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, notice, err := ctrl.UploadDocument(ctx, path)
	if err != nil {
		fmt.Printf("✗ Upload failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ %s\n", notice.Text)
	fmt.Printf("  Doc ID: %s (%d chunks)\n", result.DocID, result.Chunks)
}

func historyListCmd() {
	_, st, ok := loadConfigAndStore()
	if !ok {
		return
	}
	defer st.Close()

	summaries, err := st.ListConversations()
	if err != nil {
		fmt.Printf("Error listing conversations: %v\n", err)
		return
	}
	if len(summaries) == 0 {
		fmt.Println("No stored conversations.")
		return
	}

	active := st.ActiveConversationID()
	fmt.Println("\nConversations:")
	fmt.Println("---------------")
	for _, s := range summaries {
		marker := " "
		if s.ID == active {
			marker = "*"
		}
		updated := time.UnixMilli(s.UpdatedAtMS).Format("2006-01-02 15:04")
		fmt.Printf(" %s %s\n", marker, s.Title)
		fmt.Printf("    ID: %s  Messages: %d  Docs: %d  Updated: %s\n", s.ID, s.MessageCount, s.DocCount, updated)
	}
}

func historyShowCmd(id string) {
	_, st, ok := loadConfigAndStore()
	if !ok {
		return
	}
	defer st.Close()

	rec, found := st.Conversation(id)
	if !found {
		fmt.Printf("✗ Conversation %s not found\n", id)
		return
	}

	fmt.Printf("\n%s\n", rec.Title)
	fmt.Println("----------------------")
	for _, msg := range rec.Messages {
		role := "You"
		if msg.Role == chat.RoleAssistant {
			role = appName
		}
		fmt.Printf("%s: %s\n", role, msg.Text)
		for _, step := range msg.Steps {
			faintText.Printf("  %s\n", step)
		}
		if len(msg.Sources) > 0 {
			faintText.Printf("  Sources: %s\n", strings.Join(msg.Sources, ", "))
		}
		if msg.Mode != "" || msg.Model != "" {
			faintText.Printf("  Mode: %s  Model: %s\n", msg.Mode, msg.Model)
		}
	}
}

func historyOpenCmd(id string) {
	cfg, st, ok := loadConfigAndStore()
	if !ok {
		return
	}
	defer st.Close()

	ctrl, err := session.New(buildClient(cfg), st, session.Options{
		Mode:       cfg.Chat.Mode,
		Model:      cfg.Chat.Model,
		MemoryMode: chat.MemoryMode(cfg.Chat.MemoryMode),
	})
	if err != nil {
		fmt.Printf("Error starting session: %v\n", err)
		return
	}

	if err := ctrl.OpenConversation(id); err != nil {
		fmt.Printf("✗ %v\n", err)
		return
	}
	fmt.Printf("✓ Conversation %s is now active (%d messages)\n", id, len(ctrl.Messages()))
}

func historyClearCmd() {
	_, st, ok := loadConfigAndStore()
	if !ok {
		return
	}
	defer st.Close()

	fmt.Print("Delete all stored conversations and long-term memory? (y/n): ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println("Aborted.")
		return
	}
	response = strings.ToLower(strings.TrimSpace(response))
	if response != "y" && response != "yes" {
		fmt.Println("Aborted.")
		return
	}

	if err := st.ClearConversations(); err != nil {
		fmt.Printf("✗ Failed to clear conversations: %v\n", err)
		return
	}
	if err := st.ClearActiveState(); err != nil {
		fmt.Printf("✗ Failed to clear active state: %v\n", err)
		return
	}
	fmt.Println("✓ All conversations cleared")
}

func loadConfigAndStore() (*config.Config, *store.Store, bool) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return nil, nil, false
	}
	st, err := openStore(cfg)
	if err != nil {
		fmt.Printf("Error opening conversation store: %v\n", err)
		return nil, nil, false
	}
	return cfg, st, true
}

func kbStatsCmd() {
	client, ok := loadBackendClient()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := client.KnowledgeStats(ctx)
	if err != nil {
		fmt.Printf("✗ Failed to fetch knowledge base stats: %v\n", err)
		return
	}
	fmt.Printf("Knowledge base documents: %d\n", stats.TotalDocuments)
}

func kbListCmd() {
	client, ok := loadBackendClient()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	contents, err := client.KnowledgeInspect(ctx)
	if err != nil {
		fmt.Printf("✗ Failed to inspect knowledge base: %v\n", err)
		return
	}
	if contents.TotalCount == 0 {
		fmt.Println("Knowledge base is empty.")
		return
	}

	fmt.Printf("\nKnowledge base chunks (%d):\n", contents.TotalCount)
	fmt.Println("---------------------------")
	for i, id := range contents.IDs {
		fmt.Printf("  %s\n", id)
		if i < len(contents.Documents) {
			fmt.Printf("    %s\n", utils.Truncate(contents.Documents[i], 100))
		}
	}
}

func kbDeleteCmd(docID string) {
	client, ok := loadBackendClient()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.DeleteDocument(ctx, docID); err != nil {
		fmt.Printf("✗ Failed to delete document: %v\n", err)
		return
	}
	fmt.Printf("✓ Document %s deleted\n", docID)
}

func modelsListCmd() {
	client, ok := loadBackendClient()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	list, err := client.Models(ctx)
	if err != nil {
		fmt.Printf("✗ Failed to fetch models: %v\n", err)
		return
	}

	tiers := make([]string, 0, len(list.Available))
	for tier := range list.Available {
		tiers = append(tiers, tier)
	}
	sort.Strings(tiers)

	fmt.Println("\nAvailable models:")
	fmt.Println("------------------")
	for _, tier := range tiers {
		m := list.Available[tier]
		marker := " "
		if tier == list.Current {
			marker = "*"
		}
		fmt.Printf(" %s %s (%s)\n", marker, tier, m.Name)
		if m.Description != "" {
			fmt.Printf("    %s\n", m.Description)
		}
	}
}

func modelsUseCmd(name string) {
	client, ok := loadBackendClient()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.SwitchModel(ctx, name); err != nil {
		fmt.Printf("✗ Failed to switch model: %v\n", err)
		return
	}
	fmt.Printf("✓ Backend model switched to %s\n", name)
}

func loadBackendClient() (*backend.Client, bool) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return nil, false
	}
	return buildClient(cfg), true
}
