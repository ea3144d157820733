package cli

import (
	"bufio"
	"context"
	"strings"
)

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	List(ctx context.Context) error
	New(ctx context.Context, title string) error
	Open(ctx context.Context, fileID string) error
	Edit(ctx context.Context) error
	Rename(ctx context.Context, title string) error
	Save(ctx context.Context) error
	Sync(ctx context.Context) error
	Status(ctx context.Context) error
	Resolve(ctx context.Context, how string) error
	Trash(ctx context.Context, fileID string) error
	Restore(ctx context.Context, fileID string) error
	Purge(ctx context.Context, fileID string) error
	Favorite(ctx context.Context, fileID string, favorite bool) error
	Attach(ctx context.Context, path string) error
	Fetch(ctx context.Context, assetID string) error
}

// runREPL reads a line from the scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn("sk " + statusFn() + "> ")
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]
		args := parts[1:]

		var err error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Commands: (l)ist, new <title>, open <id>, edit, title <text>, save, sync, status,")
				printlnFn("          resolve keep|copy, trash <id>, restore <id>, purge <id>, fav <id>, unfav <id>,")
				printlnFn("          attach <path>, fetch <asset-id>, logout, exit")
			} else {
				printlnFn("Commands: register, login, exit")
			}

		case "register":
			err = a.Register(ctx)

		case "login":
			err = a.Login(ctx)

		case "logout":
			err = a.Logout(ctx)

		case "l", "list":
			err = a.List(ctx)

		case "new":
			if len(args) == 0 {
				printlnFn("Usage: new <title>")
				continue
			}
			err = a.New(ctx, strings.Join(args, " "))

		case "open":
			if len(args) == 0 {
				printlnFn("Usage: open <id>")
				continue
			}
			err = a.Open(ctx, args[0])

		case "edit":
			err = a.Edit(ctx)

		case "title":
			if len(args) == 0 {
				printlnFn("Usage: title <text>")
				continue
			}
			err = a.Rename(ctx, strings.Join(args, " "))

		case "save":
			err = a.Save(ctx)

		case "sync":
			err = a.Sync(ctx)

		case "status":
			err = a.Status(ctx)

		case "resolve":
			if len(args) == 0 {
				printlnFn("Usage: resolve keep|copy")
				continue
			}
			err = a.Resolve(ctx, args[0])

		case "trash":
			if len(args) == 0 {
				printlnFn("Usage: trash <id>")
				continue
			}
			err = a.Trash(ctx, args[0])

		case "restore":
			if len(args) == 0 {
				printlnFn("Usage: restore <id>")
				continue
			}
			err = a.Restore(ctx, args[0])

		case "purge":
			if len(args) == 0 {
				printlnFn("Usage: purge <id>")
				continue
			}
			err = a.Purge(ctx, args[0])

		case "fav":
			if len(args) == 0 {
				printlnFn("Usage: fav <id>")
				continue
			}
			err = a.Favorite(ctx, args[0], true)

		case "unfav":
			if len(args) == 0 {
				printlnFn("Usage: unfav <id>")
				continue
			}
			err = a.Favorite(ctx, args[0], false)

		case "attach":
			if len(args) == 0 {
				printlnFn("Usage: attach <path>")
				continue
			}
			err = a.Attach(ctx, args[0])

		case "fetch":
			if len(args) == 0 {
				printlnFn("Usage: fetch <asset-id>")
				continue
			}
			err = a.Fetch(ctx, args[0])

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("error:", err.Error())
		}
	}
}
