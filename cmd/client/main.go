// Command client is a small terminal front end for the converse server:
// register or log in, pick a thread, chat.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/converse-chat/converse/internal/client"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	flag.Parse()

	if err := run(*server); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(server string) error {
	ctx := context.Background()

	opts := []client.Option{}
	if path, err := client.DefaultIdentityPath(); err == nil {
		opts = append(opts, client.WithIdentityStore(client.NewFileIdentityStore(path)))
	}

	session, err := client.NewSession(server, opts...)
	if err != nil {
		return err
	}

	state := session.Bootstrap(ctx)
	if state == client.StateAuthenticated {
		fmt.Printf("welcome back, %s\n", session.Identity().Name)
	} else {
		fmt.Println("not logged in; use `register` or `login`")
	}

	fmt.Println("commands: register | login | me | threads | new | send <msg> | history | delete | clear | logout | quit")

	scanner := bufio.NewScanner(os.Stdin)
	threadID := uuid.NewString()

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")

		switch cmd {
		case "quit", "exit":
			return nil

		case "register":
			name := prompt(scanner, "name: ")
			email := prompt(scanner, "email: ")
			password := prompt(scanner, "password: ")
			if err := session.Register(ctx, name, email, password); err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Println("registered and logged in")

		case "login":
			email := prompt(scanner, "email: ")
			password := prompt(scanner, "password: ")
			if err := session.Login(ctx, email, password); err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Printf("logged in as %s\n", session.Identity().Name)

		case "me":
			id, err := session.Me(ctx)
			if err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Printf("%s <%s> (%s)\n", id.Name, id.Email, id.Role)

		case "threads":
			threads, err := session.Threads(ctx)
			if err != nil {
				fmt.Println(err)
				continue
			}
			if len(threads) == 0 {
				fmt.Println("no threads")
			}
			for _, t := range threads {
				marker := " "
				if t.ThreadID == threadID {
					marker = "*"
				}
				fmt.Printf("%s %s  %s\n", marker, t.ThreadID, t.Title)
			}

		case "new":
			threadID = uuid.NewString()
			fmt.Printf("switched to new thread %s\n", threadID)

		case "send":
			if rest == "" {
				fmt.Println("usage: send <message>")
				continue
			}
			reply, err := session.Send(ctx, threadID, rest)
			if err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Println(reply.Reply)

		case "history":
			messages, err := session.History(ctx, threadID)
			if err != nil {
				fmt.Println(err)
				continue
			}
			for _, m := range messages {
				fmt.Printf("[%s] %s\n", m.Role, m.Content)
			}

		case "delete":
			if err := session.DeleteThread(ctx, threadID); err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Println("thread deleted")
			threadID = uuid.NewString()

		case "clear":
			confirm := prompt(scanner, "delete ALL threads? this cannot be undone [y/N]: ")
			if err := session.ClearThreads(ctx, strings.EqualFold(confirm, "y")); err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Println("all threads cleared")

		case "logout":
			session.Logout(ctx)
			fmt.Println("logged out")

		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
	}
}

func prompt(scanner *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}
