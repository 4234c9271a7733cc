package main

import "fmt"

var topLevelCommands = []string{
	"init", "run", "topology", "status", "lineage", "compete", "promote",
	"kernels", "generate", "evolve", "snapshot", "pool", "watch",
	"completions", "help",
}

func handleCompletions(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: sgctl completions <bash|zsh>")
	}
	switch args[0] {
	case "bash":
		fmt.Printf("complete -W \"%s\" sgctl\n", joinSpace(topLevelCommands))
	case "zsh":
		fmt.Printf("#compdef sgctl\ncompadd %s\n", joinSpace(topLevelCommands))
	default:
		return fmt.Errorf("unsupported shell %q", args[0])
	}
	return nil
}

func joinSpace(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += " "
		}
		out += item
	}
	return out
}
