package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

type inventoryPayload struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
	Stacks  []struct {
		Name            string    `json:"name"`
		Rarity          string    `json:"rarity"`
		Count           int64     `json:"count"`
		Locked          bool      `json:"locked"`
		FirstAcquiredAt time.Time `json:"first_acquired_at"`
	} `json:"stacks"`
}

type drawPayload struct {
	Name   string `json:"name"`
	Rarity string `json:"rarity"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptOptional(label string) (string, error) {
	fmt.Printf("%s: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func renderInventory(raw map[string]any) error {
	inv, err := decodeInto[inventoryPayload](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== INVENTORY %s ==\n", inv.UserID)
	fmt.Printf("Balance: %d\n\n", inv.Balance)
	if len(inv.Stacks) == 0 {
		printInfo("No cards yet.")
		return nil
	}
	fmt.Printf("%-6s %-28s %8s %-7s %-16s\n", "RARITY", "NAME", "COUNT", "LOCKED", "FIRST ACQUIRED")
	for _, st := range inv.Stacks {
		locked := ""
		if st.Locked {
			locked = "yes"
		}
		fmt.Printf("%-6s %-28s %8d %-7s %-16s\n",
			st.Rarity,
			truncate(st.Name, 28),
			st.Count,
			locked,
			st.FirstAcquiredAt.Local().Format("2006-01-02 15:04"),
		)
	}
	fmt.Println()
	return nil
}

func renderDraw(raw map[string]any) error {
	out, err := decodeInto[drawPayload](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Pulled %s [%s]", out.Name, out.Rarity))
	return nil
}

func renderJSON(raw map[string]any) error {
	body, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	return nil
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
