package main

import (
	"fmt"

	"github.com/selfgene/sg/internal/engine/snapshot"
)

func handleSnapshot(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: sgctl snapshot create|restore|list|delete [name]")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	mgr := snapshot.New(a.cfg.Engine.ProjectRoot)

	switch args[0] {
	case "create":
		if len(args) != 2 {
			return fmt.Errorf("usage: sgctl snapshot create <name>")
		}
		manifest, err := mgr.Create(args[1])
		if err != nil {
			return err
		}
		fmt.Printf("created snapshot %s (%d files)\n", manifest.Name, len(manifest.Files))
		return nil

	case "restore":
		if len(args) != 2 {
			return fmt.Errorf("usage: sgctl snapshot restore <name>")
		}
		manifest, err := mgr.Restore(args[1])
		if err != nil {
			return err
		}
		fmt.Printf("restored snapshot %s (%d files)\n", manifest.Name, len(manifest.Files))
		return nil

	case "list":
		manifests, err := mgr.List()
		if err != nil {
			return err
		}
		for _, m := range manifests {
			fmt.Printf("%s  created=%s  files=%d\n", m.Name, m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), len(m.Files))
		}
		return nil

	case "delete":
		if len(args) != 2 {
			return fmt.Errorf("usage: sgctl snapshot delete <name>")
		}
		return mgr.Delete(args[1])

	default:
		return fmt.Errorf("unknown snapshot subcommand %q", args[0])
	}
}
