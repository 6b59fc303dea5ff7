package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func executeCLI() error {
	root := buildRootCommand(true)
	if err := root.Execute(); err != nil {
		return err
	}
	return nil
}

func buildRootCommand(includeDocsCommand bool) *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "jarvisctl",
		Short: "Terminal client for the Jarvis assistant backend",
		Long: strings.TrimSpace(`jarvisctl is a terminal client for the Jarvis assistant backend.

Use CLI commands to chat with streamed progress, browse conversation
history, manage the knowledge base, switch backend models, and run the
Discord gateway.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")

	root.AddCommand(newOnboardCommand())
	root.AddCommand(newChatCommand())
	root.AddCommand(newGatewayCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newHistoryCommand())
	root.AddCommand(newKBCommand())
	root.AddCommand(newModelsCommand())
	root.AddCommand(newUploadCommand())
	root.AddCommand(newVersionCommand())

	if includeDocsCommand {
		docsCmd := newDocsCommand(func() *cobra.Command { return buildRootCommand(false) })
		root.AddCommand(docsCmd)
	}

	return root
}

func runLegacyWithArgs(args []string, fn func()) error {
	original := os.Args
	os.Args = append([]string{original[0]}, args...)
	defer func() {
		os.Args = original
	}()
	fn()
	return nil
}

func newOnboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "onboard",
		Short:   "Initialize ~/.jarvisctl configuration",
		Long:    "Create the default configuration file for a new jarvisctl installation.",
		Example: "  jarvisctl onboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLegacyWithArgs([]string{"onboard"}, onboard)
		},
	}
}

func newChatCommand() *cobra.Command {
	var (
		message string
		mode    string
		model   string
		memory  string
		debug   bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant (interactive or one-shot)",
		Long:  "Run an interactive chat session with streamed progress, or send a one-shot message.",
		Example: strings.Join([]string{
			"  jarvisctl chat",
			"  jarvisctl chat --mode context_only",
			"  jarvisctl chat --message \"what is in my knowledge base?\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			legacyArgs := []string{"chat"}
			if debug {
				legacyArgs = append(legacyArgs, "--debug")
			}
			if strings.TrimSpace(message) != "" {
				legacyArgs = append(legacyArgs, "--message", message)
			}
			if strings.TrimSpace(mode) != "" {
				legacyArgs = append(legacyArgs, "--mode", mode)
			}
			if strings.TrimSpace(model) != "" {
				legacyArgs = append(legacyArgs, "--model", model)
			}
			if strings.TrimSpace(memory) != "" {
				legacyArgs = append(legacyArgs, "--memory", memory)
			}
			return runLegacyWithArgs(legacyArgs, chatCmd)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "One-shot message to send")
	cmd.Flags().StringVar(&mode, "mode", "", "Chat mode (mixed, context_only, general_only)")
	cmd.Flags().StringVar(&model, "model", "", "Model tier (fast, balanced, quality)")
	cmd.Flags().StringVar(&memory, "memory", "", "Memory mode (stateless, short-term, long-term)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func newGatewayCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "gateway",
		Short:   "Run the Discord gateway",
		Long:    "Start channel adapters, per-chat sessions, and the heartbeat worker.",
		Example: "  jarvisctl gateway --debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			legacyArgs := []string{"gateway"}
			if debug {
				legacyArgs = append(legacyArgs, "--debug")
			}
			return runLegacyWithArgs(legacyArgs, gatewayCmd)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration and backend readiness",
		Example: "  jarvisctl status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLegacyWithArgs([]string{"status"}, statusCmd)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  jarvisctl version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion()
			return nil
		},
	}
}

func newHistoryCommand() *cobra.Command {
	historyRoot := &cobra.Command{
		Use:   "history",
		Short: "Browse and manage stored conversations",
	}

	historyRoot.AddCommand(&cobra.Command{
		Use:     "list",
		Short:   "List stored conversations",
		Example: "  jarvisctl history list",
		RunE: func(cmd *cobra.Command, args []string) error {
			historyListCmd()
			return nil
		},
	})

	historyRoot.AddCommand(&cobra.Command{
		Use:     "show <conversation-id>",
		Short:   "Show a stored conversation",
		Args:    cobra.ExactArgs(1),
		Example: "  jarvisctl history show conv-abc123",
		RunE: func(cmd *cobra.Command, args []string) error {
			historyShowCmd(args[0])
			return nil
		},
	})

	historyRoot.AddCommand(&cobra.Command{
		Use:     "open <conversation-id>",
		Short:   "Make a stored conversation the active one",
		Args:    cobra.ExactArgs(1),
		Example: "  jarvisctl history open conv-abc123",
		RunE: func(cmd *cobra.Command, args []string) error {
			historyOpenCmd(args[0])
			return nil
		},
	})

	historyRoot.AddCommand(&cobra.Command{
		Use:     "clear",
		Short:   "Delete all conversations and long-term memory",
		Example: "  jarvisctl history clear",
		RunE: func(cmd *cobra.Command, args []string) error {
			historyClearCmd()
			return nil
		},
	})

	return historyRoot
}

func newKBCommand() *cobra.Command {
	kbRoot := &cobra.Command{
		Use:   "kb",
		Short: "Inspect and manage the knowledge base",
	}

	kbRoot.AddCommand(&cobra.Command{
		Use:     "stats",
		Short:   "Show knowledge base document count",
		Example: "  jarvisctl kb stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			kbStatsCmd()
			return nil
		},
	})

	kbRoot.AddCommand(&cobra.Command{
		Use:     "list",
		Short:   "List knowledge base contents",
		Example: "  jarvisctl kb list",
		RunE: func(cmd *cobra.Command, args []string) error {
			kbListCmd()
			return nil
		},
	})

	kbRoot.AddCommand(&cobra.Command{
		Use:     "delete <doc-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a document from the knowledge base",
		Args:    cobra.ExactArgs(1),
		Example: "  jarvisctl kb delete doc_abc123",
		RunE: func(cmd *cobra.Command, args []string) error {
			kbDeleteCmd(args[0])
			return nil
		},
	})

	return kbRoot
}

func newModelsCommand() *cobra.Command {
	modelsRoot := &cobra.Command{
		Use:   "models",
		Short: "List and switch backend models",
	}

	modelsRoot.AddCommand(&cobra.Command{
		Use:     "list",
		Short:   "List available models",
		Example: "  jarvisctl models list",
		RunE: func(cmd *cobra.Command, args []string) error {
			modelsListCmd()
			return nil
		},
	})

	modelsRoot.AddCommand(&cobra.Command{
		Use:     "use <name>",
		Short:   "Switch the backend model",
		Args:    cobra.ExactArgs(1),
		Example: "  jarvisctl models use quality",
		RunE: func(cmd *cobra.Command, args []string) error {
			modelsUseCmd(args[0])
			return nil
		},
	})

	return modelsRoot
}

func newUploadCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "upload <file-path>",
		Short:   "Upload a document to the knowledge base",
		Args:    cobra.ExactArgs(1),
		Example: "  jarvisctl upload ./notes.pdf",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLegacyWithArgs([]string{"upload", args[0]}, uploadCmd)
		},
	}
}
