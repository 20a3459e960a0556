// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL for lamachat.
//
// USABILITY: Markdown rendering and input history for better CLI experience
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /new                Start a new chat
//   /chats              List saved chats
//   /open N             Open a saved chat by number or id
//   /delete [N]         Delete a chat (current when omitted)
//   /rename TITLE       Rename the current chat
//   /models             List installed models
//   /model [name]       Show or switch model
//   /doc PATH           Attach a text file as conversation context
//   /docs [clear]       Show or clear attached documents
//   /export [PATH]      Export all chats to a JSON archive
//   /import PATH        Merge a JSON archive into saved chats
//   /clear              Delete all chats
//   /status, /s         Show connection and session state
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel current generation
//   Ctrl+D              Exit chat
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jeranaias/lamachat/internal/config"
	"github.com/jeranaias/lamachat/internal/ollama"
	"github.com/jeranaias/lamachat/internal/session"
	"github.com/jeranaias/lamachat/internal/store"
	"github.com/jeranaias/lamachat/internal/util"
)

// =============================================================================
// ENTRY POINT
// =============================================================================

// Run wires the application and enters the interactive REPL.
func Run(args Args) error {
	if args.ShowHelp {
		fmt.Println(Usage())
		return nil
	}
	if args.ShowVersion {
		fmt.Printf("lamachat %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return nil
	}

	app, err := newApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First probe happens before the prompt so the banner can show real
	// connectivity. The background loop takes over from there.
	connected := app.prober.Check(ctx)
	go app.prober.Run(ctx)

	// Hot-reload sampling parameters when the config file changes.
	if watcher, err := config.NewWatcher(func(cfg *config.Config) {
		app.store.SetSampling(cfg.Sampling.Temperature, cfg.Sampling.ContextWindow)
	}); err == nil {
		if err := watcher.Watch(); err == nil {
			defer watcher.Close()
		}
	}

	if !connected && !args.Quiet {
		fmt.Fprintln(os.Stderr, warningStyle.Render(
			"Ollama is not reachable. Start it with: ollama serve"))
	}

	app.input = NewInput()

	if !args.Quiet {
		printWelcome(app)
	}

	// First Ctrl+C during generation cancels the stream. liner handles
	// Ctrl+C at the prompt itself.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if s := app.activeSession(); s != nil {
				s.Cancel()
			}
		}
	}()

	return repl(app, args.Quiet)
}

// repl is the main read-eval loop.
func repl(app *App, quiet bool) error {
	for {
		input, err := app.input.ReadLine(promptStyle.Render("lamachat> "))
		if err != nil {
			// Ctrl+C at the prompt, EOF (Ctrl+D), or a closed terminal
			// all end the run.
			fmt.Println()
			fmt.Println(infoStyle.Render("Goodbye!"))
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			cont, err := handleSlashCommand(app, input)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			}
			if !cont {
				fmt.Println(infoStyle.Render("Goodbye!"))
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			fmt.Println(infoStyle.Render("Goodbye!"))
			return nil
		}

		if err := sendMessage(app, input, quiet); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
		}
	}
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// sendMessage runs one full generation turn against the current chat.
func sendMessage(app *App, input string, quiet bool) error {
	if !app.store.IsConnected() {
		return fmt.Errorf("not connected to Ollama (last endpoint: %s)", app.prober.ActiveURL())
	}

	if app.store.Current() == nil {
		app.store.CreateChat("")
	}

	if err := app.store.AppendMessage(store.Message{Role: "user", Content: input}); err != nil {
		return err
	}
	if err := app.store.AppendMessage(store.Message{Role: "assistant", Content: ""}); err != nil {
		return err
	}

	if err := app.store.BeginGeneration(); err != nil {
		return err
	}

	chat := app.store.Current()
	temperature, contextWindow := app.store.Sampling()

	// History excludes the empty assistant placeholder the stream writes
	// into.
	history := make([]ollama.Message, 0, len(chat.Messages))
	for _, m := range chat.Messages[:len(chat.Messages)-1] {
		history = append(history, ollama.Message{
			Role:    m.Role,
			Content: m.Content,
			Images:  m.Images,
		})
	}

	useMarkdown := app.cfg.UI.RenderMarkdown && IsStdoutTTY()
	start := time.Now()
	result := make(chan error, 1)

	fmt.Println()

	s := session.Start(context.Background(), app.client, session.Request{
		ChatID:        chat.ID,
		Model:         chat.Model,
		History:       history,
		Temperature:   temperature,
		ContextWindow: contextWindow,
		Persona:       app.cfg.Persona,
		Documents:     app.store.Documents(),
	}, session.Callbacks{
		OnToken: func(tok string) {
			app.store.AppendToken(tok)
			// With markdown on, the reply is collected and rendered
			// whole once the stream ends.
			if !useMarkdown {
				fmt.Print(tok)
			}
		},
		OnDone: func() {
			result <- nil
		},
		OnError: func(err error) {
			result <- err
		},
	})
	app.setSession(s)

	genErr := <-result
	app.setSession(nil)

	if genErr != nil {
		// The partial reply stands, with the failure noted inline.
		app.store.AppendToken(fmt.Sprintf("\n\n⚠️ Error: %v", genErr))
		fmt.Fprintf(os.Stderr, "\n%s %v\n", errorStyle.Render("[Error]"), genErr)
	}

	app.store.EndGeneration()
	app.store.Flush()

	if genErr == nil {
		if useMarkdown {
			if cur := app.store.Current(); cur != nil && len(cur.Messages) > 0 {
				displayResponse(cur.Messages[len(cur.Messages)-1].Content, true)
			}
		} else {
			fmt.Println()
		}
	}

	if !quiet {
		fmt.Fprintf(os.Stderr, "%s %s | %s\n",
			infoStyle.Render("[Done]"),
			commandStyle.Render(chat.Model),
			time.Since(start).Round(time.Millisecond))
	}
	fmt.Println()

	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands.
// Returns (shouldContinue, error) where shouldContinue=false means exit.
func handleSlashCommand(app *App, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		printHelp()
		return true, nil

	case "/new", "/n":
		chat := app.store.CreateChat("")
		fmt.Printf("%s %s\n", commandStyle.Render("[New chat]"), chat.ID)
		return true, nil

	case "/chats":
		printChats(app)
		return true, nil

	case "/open", "/o":
		return true, handleOpen(app, args)

	case "/delete", "/del":
		return true, handleDelete(app, args)

	case "/rename":
		return true, handleRename(app, args)

	case "/models":
		printModels(app)
		return true, nil

	case "/model", "/m":
		return true, handleModel(app, args)

	case "/doc":
		return true, handleDoc(app, args)

	case "/docs":
		return true, handleDocs(app, args)

	case "/export":
		return true, handleExport(app, args)

	case "/import":
		return true, handleImport(app, args)

	case "/clear":
		app.store.ClearAll()
		fmt.Println(commandStyle.Render("[All chats deleted]"))
		return true, nil

	case "/status", "/s":
		printStatus(app)
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

// resolveChat maps a 1-based list position or a raw id to a chat id.
func resolveChat(app *App, ref string) (string, error) {
	chats := app.store.Chats()
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(chats) {
			return "", fmt.Errorf("chat %d does not exist (have %d)", n, len(chats))
		}
		return chats[n-1].ID, nil
	}
	for _, c := range chats {
		if c.ID == ref {
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("no chat matching %q", ref)
}

func handleOpen(app *App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: /open N")
	}
	id, err := resolveChat(app, args[0])
	if err != nil {
		return err
	}
	app.store.SelectChat(id)
	printConversation(app)
	return nil
}

func handleDelete(app *App, args []string) error {
	var id string
	if len(args) == 0 {
		cur := app.store.Current()
		if cur == nil {
			return fmt.Errorf("no current chat to delete")
		}
		id = cur.ID
	} else {
		var err error
		id, err = resolveChat(app, args[0])
		if err != nil {
			return err
		}
	}
	app.store.DeleteChat(id)
	fmt.Println(commandStyle.Render("[Chat deleted]"))
	return nil
}

func handleRename(app *App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: /rename TITLE")
	}
	cur := app.store.Current()
	if cur == nil {
		return fmt.Errorf("no current chat to rename")
	}
	title := strings.Join(args, " ")
	app.store.RenameChat(cur.ID, title)
	fmt.Printf("%s %s\n", commandStyle.Render("[Renamed]"), title)
	return nil
}

func handleModel(app *App, args []string) error {
	if len(args) == 0 {
		fmt.Printf("%s Current model: %s\n",
			infoStyle.Render("[Model]"),
			commandStyle.Render(app.store.SelectedModel()))
		return nil
	}

	newModel := args[0]
	known := false
	for _, m := range app.store.Models() {
		if m == newModel {
			known = true
			break
		}
	}
	if !known {
		fmt.Fprintf(os.Stderr, "%s Model '%s' not found locally, will attempt to use anyway\n",
			warningStyle.Render("[Warning]"), newModel)
	}

	app.store.SetSelectedModel(newModel)
	fmt.Printf("%s Switched to model: %s\n", commandStyle.Render("[OK]"), newModel)
	return nil
}

// MaxDocSize bounds a document attached with /doc.
const MaxDocSize = 256 * 1024

func handleDoc(app *App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: /doc PATH")
	}
	path := strings.Join(args, " ")

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	if info.Size() > MaxDocSize {
		return fmt.Errorf("%s is too large (%d bytes, max %d)", path, info.Size(), MaxDocSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}

	app.store.AddDocument(fmt.Sprintf("File: %s\n\n%s", path, string(data)))
	fmt.Printf("%s %s (%d bytes)\n", commandStyle.Render("[Attached]"), path, info.Size())
	return nil
}

func handleDocs(app *App, args []string) error {
	if len(args) > 0 && strings.EqualFold(args[0], "clear") {
		app.store.ClearDocuments()
		fmt.Println(commandStyle.Render("[Documents cleared]"))
		return nil
	}

	docs := app.store.Documents()
	if len(docs) == 0 {
		fmt.Println(infoStyle.Render("[No documents attached]"))
		return nil
	}
	for i, doc := range docs {
		first := doc
		if idx := strings.IndexByte(first, '\n'); idx >= 0 {
			first = first[:idx]
		}
		fmt.Printf("  %d. %s (%d bytes)\n", i+1, first, len(doc))
	}
	return nil
}

func handleExport(app *App, args []string) error {
	path := store.ExportFilename(time.Now())
	if len(args) > 0 {
		path = args[0]
	}

	blob, err := app.store.ExportAll()
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if err := os.WriteFile(path, blob, 0600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("%s %s\n", commandStyle.Render("[Exported]"), path)
	return nil
}

func handleImport(app *App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: /import PATH")
	}
	blob, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	if !app.store.ImportMerge(blob) {
		return fmt.Errorf("%s is not a valid chat archive", args[0])
	}
	fmt.Printf("%s %d chats total\n", commandStyle.Render("[Imported]"), len(app.store.Chats()))
	return nil
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

// printWelcome prints the welcome banner.
func printWelcome(app *App) {
	fmt.Println()
	fmt.Println(welcomeStyle.Render("lamachat"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 30)))
	fmt.Printf("%s %s\n",
		infoStyle.Render("Model:"),
		commandStyle.Render(app.store.SelectedModel()))

	if app.store.IsConnected() {
		fmt.Printf("%s %s (%s)\n",
			infoStyle.Render("Server:"),
			commandStyle.Render("Connected"),
			app.prober.ActiveURL())
	} else {
		fmt.Printf("%s %s\n",
			infoStyle.Render("Server:"),
			warningStyle.Render("Disconnected"))
	}

	if n := len(app.store.Chats()); n > 0 {
		fmt.Printf("%s %d saved\n", infoStyle.Render("Chats:"), n)
	}

	fmt.Println()
	fmt.Println(infoStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}

// printHelp prints available commands.
func printHelp() {
	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Available Commands"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))
	fmt.Println()

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/new", "Start a new chat"},
		{"/chats", "List saved chats"},
		{"/open N", "Open a saved chat"},
		{"/delete [N]", "Delete a chat (current when omitted)"},
		{"/rename TITLE", "Rename the current chat"},
		{"/models", "List installed models"},
		{"/model [name]", "Show or switch model"},
		{"/doc PATH", "Attach a text file as context"},
		{"/docs [clear]", "Show or clear attached documents"},
		{"/export [PATH]", "Export all chats to JSON"},
		{"/import PATH", "Merge a JSON archive"},
		{"/clear", "Delete all chats"},
		{"/status, /s", "Show connection and session state"},
		{"/quit, /q", "Exit chat"},
	}

	for _, c := range commands {
		fmt.Printf("  %s  %s\n",
			commandStyle.Render(fmt.Sprintf("%-15s", c.cmd)),
			infoStyle.Render(c.desc))
	}

	fmt.Println()
	fmt.Println(infoStyle.Render("Tip: Ctrl+C cancels current generation, Ctrl+D exits"))
	fmt.Println()
}

// printChats lists saved chats, most recent first.
func printChats(app *App) {
	chats := app.store.Chats()
	if len(chats) == 0 {
		fmt.Println(infoStyle.Render("[No saved chats]"))
		return
	}

	cur := app.store.Current()

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Saved Chats"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))
	for i, c := range chats {
		marker := " "
		if cur != nil && cur.ID == c.ID {
			marker = commandStyle.Render("*")
		}
		fmt.Printf(" %s %d. %s (%d messages, %s)\n",
			marker, i+1, util.TruncateRunes(c.Title, 60), c.MessageCount,
			c.UpdatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Println()
}

// printConversation replays the current chat transcript.
func printConversation(app *App) {
	chat := app.store.Current()
	if chat == nil {
		return
	}

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render(chat.Title))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 25)))
	fmt.Println()

	for _, msg := range chat.Messages {
		switch msg.Role {
		case "user":
			fmt.Printf("%s %s\n\n", promptStyle.Render("You:"), msg.Content)
		case "assistant":
			fmt.Printf("%s\n", welcomeStyle.Render("AI:"))
			displayResponse(msg.Content, app.cfg.UI.RenderMarkdown)
			fmt.Println()
		}
	}
}

// printModels lists installed models.
func printModels(app *App) {
	models := app.store.Models()
	if len(models) == 0 {
		fmt.Println(infoStyle.Render("[No models known; is Ollama running?]"))
		return
	}

	selected := app.store.SelectedModel()
	fmt.Println()
	for _, m := range models {
		if m == selected {
			fmt.Printf("  %s %s\n", commandStyle.Render("*"), commandStyle.Render(m))
		} else {
			fmt.Printf("    %s\n", m)
		}
	}
	fmt.Println()
}

// printStatus shows connection and session state.
func printStatus(app *App) {
	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Status"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))

	if app.store.IsConnected() {
		fmt.Printf("  %s %s (%s)\n",
			infoStyle.Render("Server:"),
			commandStyle.Render("Connected"),
			app.prober.ActiveURL())
	} else {
		fmt.Printf("  %s %s\n",
			infoStyle.Render("Server:"),
			warningStyle.Render("Disconnected"))
	}

	fmt.Printf("  %s %s\n",
		infoStyle.Render("Model:"),
		commandStyle.Render(app.store.SelectedModel()))

	temperature, contextWindow := app.store.Sampling()
	fmt.Printf("  %s temperature=%.2f num_ctx=%d\n",
		infoStyle.Render("Sampling:"), temperature, contextWindow)

	if cur := app.store.Current(); cur != nil {
		fmt.Printf("  %s %s (%d messages)\n",
			infoStyle.Render("Chat:"), cur.Title, len(cur.Messages))
	} else {
		fmt.Printf("  %s none\n", infoStyle.Render("Chat:"))
	}

	fmt.Printf("  %s %d\n", infoStyle.Render("Saved chats:"), len(app.store.Chats()))
	if docs := app.store.Documents(); len(docs) > 0 {
		fmt.Printf("  %s %d attached\n", infoStyle.Render("Documents:"), len(docs))
	}
	fmt.Println()
}
