// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// roundcli is a terminal participant for estimation rounds: it joins a
// round (or creates one as driver), keeps the websocket mounted with
// exponential backoff, and maps stdin commands onto round operations.
//
// Usage:
//
//	roundcli -create
//	roundcli -round <id> [-driver-key <key>]
//
// Commands at the prompt:
//
//	vote <n> | vote abstain     submit or replace your estimate
//	view <id>                   browse a tracker view (driver)
//	next | prev                 navigate issues (driver)
//	more                        load the next issue page
//	estimate <n>                write the agreed estimate back (driver)
//	show                        reprint the current ballot
//	quit                        leave the round
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/storypoints/roundsync/channel"
	"github.com/storypoints/roundsync/client"
	"github.com/storypoints/roundsync/roundctl"
	"github.com/storypoints/roundsync/session"
	"github.com/storypoints/roundsync/store"
)

type printNotifier struct{}

func (printNotifier) Notify(message string) {
	fmt.Printf("\n*** %s\n> ", message)
}

func main() {
	serverURL := flag.String("server", "http://localhost:3319", "server base URL")
	roundID := flag.String("round", "", "round to join")
	driverKey := flag.String("driver-key", "", "driver key for an existing round")
	create := flag.Bool("create", false, "create a new round and drive it")
	cachePath := flag.String("cache", defaultCachePath(), "credential cache file")
	flag.Parse()

	if err := run(*serverURL, *roundID, *driverKey, *create, *cachePath); err != nil {
		slog.Error("roundcli failed", "error", err)
		os.Exit(1)
	}
}

func run(serverURL, roundID, driverKey string, create bool, cachePath string) error {
	if !create && roundID == "" {
		return fmt.Errorf("either -round or -create is required")
	}

	cache, err := openCache(cachePath)
	if err != nil {
		return err
	}
	defer cache.Close()

	api := client.New(serverURL)

	if create {
		resp, err := api.CreateRound(context.Background())
		if err != nil {
			return fmt.Errorf("failed to create round: %w", err)
		}
		roundID = resp.RoundID
		api.SetCredentials(resp.ViewerToken, resp.CSRFToken)
		api.SetDriverKey(resp.DriverKey)
		if err := cache.save(roundID, credentials{
			ViewerToken: resp.ViewerToken,
			CSRFToken:   resp.CSRFToken,
			DriverKey:   resp.DriverKey,
		}); err != nil {
			slog.Warn("failed to cache credentials", "error", err)
		}
		fmt.Printf("round created: %s\n", roundID)
		fmt.Printf("driver key:    %s\n", resp.DriverKey)
	} else {
		if creds, ok := cache.load(roundID); ok {
			api.SetCredentials(creds.ViewerToken, creds.CSRFToken)
			if creds.DriverKey != "" {
				api.SetDriverKey(creds.DriverKey)
			}
		}
		if driverKey != "" {
			api.SetDriverKey(driverKey)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resolver := session.NewResolver(api)
	identity, err := resolver.Resolve(ctx, roundID)
	if err != nil {
		return err
	}
	fmt.Printf("joined round %s as %s (%s)\n", roundID, identity.Name, identity.Kind)

	viewer, csrf := api.Credentials()
	creds, _ := cache.load(roundID)
	creds.ViewerToken = viewer
	creds.CSRFToken = csrf
	if driverKey != "" {
		creds.DriverKey = driverKey
	}
	if err := cache.save(roundID, creds); err != nil {
		slog.Warn("failed to cache credentials", "error", err)
	}

	st := store.New()
	ch := channel.New(wsURL(serverURL), roundID, api.ViewerToken(), nil)
	sess := roundctl.New(roundID, api, st, ch, printNotifier{})

	ch.OnMessage = func(m channel.Message) {
		sess.HandleMessage(m)
		render(sess)
	}
	ch.NotifyLeave = func() {
		api.Disconnect(roundID)
	}

	go mountLoop(ctx, ch, api, roundID)

	// Ctrl-C leaves the round cleanly.
	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctrlc
		ch.Unload()
		cancel()
		os.Exit(0)
	}()

	repl(ctx, cancel, sess, ch)
	return nil
}

// mountLoop keeps the round channel connected. Each remount re-registers
// presence first (idempotent for a known viewer token) so the connected
// flag converges, then dials with exponential backoff.
func mountLoop(ctx context.Context, ch *channel.Channel, api *client.Client, roundID string) {
	for ctx.Err() == nil {
		connect := func() error {
			if _, err := api.JoinAnonymous(ctx, roundID, ""); err != nil {
				slog.Warn("presence re-registration failed", "error", err)
			}
			if err := ch.Connect(ctx); err != nil && err != channel.ErrAlreadyConnected {
				return err
			}
			return nil
		}

		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = 0 // retry until the context ends
		if err := backoff.Retry(connect, backoff.WithContext(b, ctx)); err != nil {
			return
		}

		// Wait for the mount to drop before trying again.
		for ctx.Err() == nil && ch.Status() != channel.StatusClosed {
			time.Sleep(time.Second)
		}
	}
}

func repl(ctx context.Context, cancel context.CancelFunc, sess *roundctl.Session, ch *channel.Channel) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			fmt.Print("> ")
			continue
		}

		switch fields[0] {
		case "vote":
			if len(fields) != 2 {
				fmt.Println("usage: vote <n> | vote abstain")
				break
			}
			var value *float64
			if fields[1] != "abstain" {
				v, err := strconv.ParseFloat(fields[1], 64)
				if err != nil {
					fmt.Printf("not a number: %s\n", fields[1])
					break
				}
				value = &v
			}
			if err := sess.SubmitVote(ctx, value); err != nil {
				fmt.Printf("vote failed: %v\n", err)
			}
		case "view":
			if len(fields) != 2 {
				fmt.Println("usage: view <id>")
				break
			}
			if err := sess.SelectView(ctx, fields[1]); err != nil {
				fmt.Printf("view failed: %v\n", err)
			} else {
				printIssues(sess)
			}
		case "next":
			if err := sess.Advance(ctx); err != nil {
				fmt.Printf("next failed: %v\n", err)
			}
		case "prev":
			if err := sess.Retreat(ctx); err != nil {
				fmt.Printf("prev failed: %v\n", err)
			}
		case "more":
			if err := sess.EnsureNextPage(ctx); err != nil {
				fmt.Printf("more failed: %v\n", err)
			} else {
				printIssues(sess)
			}
		case "estimate":
			if len(fields) != 2 {
				fmt.Println("usage: estimate <n>")
				break
			}
			v, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				fmt.Printf("not a number: %s\n", fields[1])
				break
			}
			got, err := sess.SubmitEstimate(ctx, v)
			if err != nil {
				fmt.Printf("estimate failed: %v\n", err)
			} else {
				fmt.Printf("recorded estimate: %v\n", got)
			}
		case "show":
			render(sess)
		case "quit", "exit":
			ch.Unload()
			cancel()
			return
		default:
			fmt.Printf("unknown command: %s\n", fields[0])
		}
		fmt.Print("> ")
	}
}

func render(sess *roundctl.Session) {
	d := sess.Display()
	fmt.Println()
	if d.Issue == nil {
		fmt.Println("no issue selected yet")
		fmt.Print("> ")
		return
	}

	fmt.Printf("issue: %s - %s\n", d.Issue.ID, d.Issue.Title)
	fmt.Printf("votes: %d/%d [%s]\n", d.Received, d.Expected, strings.Join(d.Cells, " "))
	if d.OwnVote != "" {
		fmt.Printf("yours: %s\n", d.OwnVote)
	}
	if d.Revealed {
		fmt.Printf("stats: low %v  high %v  median %v  avg %.2f\n",
			d.Stats.Lowest, d.Stats.Highest, d.Stats.Median, d.Stats.Average)
	}
	fmt.Print("> ")
}

func printIssues(sess *roundctl.Session) {
	state := sess.Store().Snapshot()
	for i, issue := range state.Issues {
		marker := "  "
		if i == state.CurrentIssueIndex {
			marker = "* "
		}
		fmt.Printf("%s%s - %s\n", marker, issue.ID, issue.Title)
	}
	if state.NextPage != nil {
		fmt.Println("  (more available: run 'more')")
	}
}

func wsURL(serverURL string) string {
	switch {
	case strings.HasPrefix(serverURL, "https://"):
		return "wss://" + strings.TrimPrefix(serverURL, "https://")
	case strings.HasPrefix(serverURL, "http://"):
		return "ws://" + strings.TrimPrefix(serverURL, "http://")
	default:
		return serverURL
	}
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "roundsync.db"
	}
	return filepath.Join(dir, "roundsync", "credentials.db")
}
