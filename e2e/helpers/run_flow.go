// Command run_flow exercises a full automation run against a live engine
// gateway.
//
// It connects to a running `lux engine`, starts a run through the session
// controller, optionally stops it midway, and verifies the resulting session
// state and event sequence.
//
// Usage: run_flow -gateway ws://127.0.0.1:PORT/api/ws -mode tasker:software_qa -expect completed
//
// Exit codes:
//
//	0 = all checks passed
//	1 = a check failed
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	wsclient "github.com/agiopen-org/lux-desktop/clients/ws"
	"github.com/agiopen-org/lux-desktop/internal/automation"
	"github.com/agiopen-org/lux-desktop/internal/events"
)

func main() {
	gatewayURL := flag.String("gateway", "ws://127.0.0.1:18420/api/ws", "Gateway WS URL")
	instruction := flag.String("instruction", "Book an appointment", "Instruction sent to the engine")
	mode := flag.String("mode", "actor", "Engine mode (actor or tasker:<workflow>)")
	expect := flag.String("expect", "completed", "Expected final status")
	stopAfter := flag.Duration("stop-after", 0, "Stop the run after this delay (0 = let it finish)")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, *gatewayURL, *instruction, *mode, automation.Status(*expect), *stopAfter); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, gatewayURL, instruction, mode string, expect automation.Status, stopAfter time.Duration) error {
	// ── Step 1: Connect and wire the controller ─────────────────────────
	client, err := wsclient.Dial(ctx, gatewayURL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer client.Close()
	fmt.Println("CHECK connected")

	bus := events.NewBus(256)
	ctrl := automation.NewController(client, automation.WithBus(bus))

	var (
		started   bool
		entries   int
		finished  bool
		loadingOn int
	)
	unsubscribe := bus.Subscribe(func(e events.Event) {
		switch e.Type {
		case events.EventRunStarted:
			started = true
			fmt.Printf("CHECK run started: %s\n", e.RunID)
		case events.EventLoadingChanged:
			if p, ok := events.ExtractPayload[events.LoadingChangedPayload](e); ok && p.Loading {
				loadingOn++
			}
		case events.EventHistoryAppend:
			if p, ok := events.GetHistoryAppendPayload(e); ok {
				entries = p.Total
			}
		case events.EventRunFinished:
			finished = true
			if p, ok := events.GetRunFinishedPayload(e); ok {
				fmt.Printf("CHECK run finished: status=%s error=%q\n", p.Status, p.Error)
			}
		}
	})
	defer unsubscribe()

	// ── Step 2: Start the run ───────────────────────────────────────────
	if err := ctrl.Start(ctx, instruction, mode); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	fmt.Println("CHECK start acknowledged")

	// ── Step 3: Optionally stop midway ──────────────────────────────────
	if stopAfter > 0 {
		select {
		case <-time.After(stopAfter):
		case <-ctx.Done():
			return fmt.Errorf("timeout before stop")
		}
		if err := ctrl.Stop(ctx); err != nil {
			return fmt.Errorf("stop: %w", err)
		}
		fmt.Println("CHECK stop acknowledged")
	}

	// ── Step 4: Wait for the stream to end ──────────────────────────────
	state, err := ctrl.Wait(ctx)
	if err != nil {
		return fmt.Errorf("timeout waiting for run end")
	}
	if err := ctrl.Close(ctx); err != nil {
		return fmt.Errorf("close controller: %w", err)
	}
	bus.Close()

	// ── Step 5: Verify results ──────────────────────────────────────────
	if !started {
		return fmt.Errorf("controller never published a start event")
	}
	if !finished {
		return fmt.Errorf("controller never published a finish event")
	}
	if loadingOn == 0 {
		return fmt.Errorf("loading was never raised")
	}
	if state.Status != expect {
		return fmt.Errorf("final status %s, want %s (error %q)", state.Status, expect, state.Error)
	}
	if state.Loading {
		return fmt.Errorf("loading still raised after the run ended")
	}
	if entries != len(state.History) {
		return fmt.Errorf("history events total %d, session holds %d entries", entries, len(state.History))
	}
	fmt.Printf("CHECK %d timeline entries, last message %q\n", len(state.History), state.AgentMessage)

	fmt.Println("CHECK all flow checks passed")
	return nil
}
